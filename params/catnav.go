package params

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

func init() {
	metrics.Enabled = true
}

// ErrInvalidConfig is wrapped by every Validate error.
var ErrInvalidConfig = errors.New("invalid config")

var DefaultDatadirRoot = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".catnav")
	}
	return filepath.Join(home, ".catnav")
}()

var StateDBName = "state.db"
var SnapshotBucket = []byte("snapshots")

var DefaultBatchSize = 1_000

var CacheLastKnownTTL = 24 * time.Hour

var (
	INFLUXDB_URL    = os.Getenv("INFLUXDB_URL")
	INFLUXDB_TOKEN  = os.Getenv("INFLUXDB_TOKEN")
	INFLUXDB_ORG    = os.Getenv("INFLUXDB_ORG")
	INFLUXDB_BUCKET = os.Getenv("INFLUXDB_BUCKET")
)
