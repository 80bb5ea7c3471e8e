package webd

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/params"
)

func TestMain(m *testing.M) {
	accessLog = io.Discard
	reset := common.SlogResetLevel(slog.LevelWarn + 1)
	code := m.Run()
	reset()
	os.Exit(code)
}

// newTestWebDaemon creates a WebDaemon for testing purposes.
// If datadir is empty, a temp dir is used.
func newTestWebDaemon(t *testing.T, datadir string) *WebDaemon {
	t.Helper()
	config := params.DefaultTestWebDaemonConfig()
	config.DataDir = datadir
	if datadir == "" {
		config.DataDir = t.TempDir()
	}
	d, err := NewWebDaemon(config)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}
