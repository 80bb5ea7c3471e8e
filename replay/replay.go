/*
Package replay runs a recorded sensor trace through a fusion engine.
Input is newline-delimited JSON records (see sensor.DecodeRecord);
output is one GeoJSON point feature per fused estimate.
*/
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rotblauer/catnav/cache"
	"github.com/rotblauer/catnav/fusion"
	"github.com/rotblauer/catnav/geo/beacon"
	"github.com/rotblauer/catnav/geo/floor"
	"github.com/rotblauer/catnav/metrics/influxdb"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/stream"
	"github.com/rotblauer/catnav/types/location"
	"github.com/rotblauer/catnav/types/sensor"
)

type Config struct {
	Device string

	// SortWindow reorders up to this many records by time.
	// Zero passes records in input order.
	SortWindow int

	// Dedupe drops repeated lines.
	Dedupe bool

	// LogInterval sets the progress log period. Zero disables it.
	LogInterval time.Duration

	// Influx exports estimates in batches of params.DefaultBatchSize.
	Influx bool

	Engine   *params.EngineConfig
	Registry *beacon.Registry

	// Restore, if set, seeds the engine before the first record.
	Restore *fusion.Snapshot
	Store   fusion.SnapshotStore

	// Listener also receives every output.
	Listener fusion.Listener
}

func DefaultConfig() *Config {
	return &Config{
		Device:      "replay",
		SortWindow:  256,
		Dedupe:      true,
		LogInterval: 10 * time.Second,
		Engine:      params.DefaultEngineConfig(),
	}
}

type Result struct {
	Records    int64
	Duplicates int64
	Invalid    int64
	Estimates  int64
	Last       location.Estimate
	Counts     map[string]int64
}

type decoded struct {
	rec  sensor.Record
	size int
}

// Run replays r into a fresh coordinator, writing features to w (if non-nil).
// Undecodable lines are logged and skipped. It returns early with ctx's error.
func Run(ctx context.Context, config *Config, r io.Reader, w io.Writer) (Result, error) {
	logger := slog.With("d", "replay", "device", config.Device)
	res := Result{}

	var out *bufio.Writer
	var enc *json.Encoder
	if w != nil {
		out = bufio.NewWriter(w)
		enc = json.NewEncoder(out)
	}

	var writeErr error
	var exports chan location.Estimate
	var exported <-chan error
	listeners := fusion.Listeners{fusion.ListenerFuncs{
		Location: func(e location.Estimate) {
			res.Estimates++
			if enc != nil && writeErr == nil {
				writeErr = enc.Encode(e.Feature())
			}
			if exports != nil {
				exports <- e
			}
		},
		Environment: func(c fusion.EnvironmentChange) {
			logger.Info("Environment changed", "from", c.Previous, "to", c.Environment,
				"confidence", c.Confidence, "time", c.Time)
		},
		Floor: func(c floor.Change) {
			logger.Info("Floor changed", "floor", c.Floor, "previous", c.Previous, "type", c.Type, "time", c.Time)
		},
		Error: func(e fusion.ProviderError) {
			logger.Warn("Sensor unavailable", "sensor", e.Sensor, "reason", e.Reason, "disabled", e.Disabled)
		},
	}}
	if config.Listener != nil {
		listeners = append(listeners, config.Listener)
	}

	coord, err := fusion.NewCoordinator(config.Engine, config.Registry, listeners)
	if err != nil {
		return res, err
	}
	defer coord.Close()
	if config.Restore != nil {
		if err := coord.Restore(*config.Restore); err != nil {
			return res, err
		}
	}
	if config.Store != nil {
		coord.SetSnapshotStore(config.Store)
	}

	if config.Influx {
		exports = make(chan location.Estimate, params.DefaultBatchSize)
		exported = export(config.Device,
			stream.Batch(context.Background(), params.DefaultBatchSize, exports))
	}

	meter := stream.NewMeter("replay."+config.Device, config.LogInterval)
	defer meter.Stop()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErrs := make(chan error, 1)
	lines := stream.Lines(ctx, r, readErrs)

	var duplicates, invalid atomic.Int64
	if config.Dedupe {
		pass := cache.NewDedupePassLRUFunc[[]byte]()
		lines = stream.Filter(ctx, func(line []byte) bool {
			if pass(line) {
				return true
			}
			duplicates.Add(1)
			return false
		}, lines)
	}
	records := stream.Filter(ctx, func(d decoded) bool { return d.rec != nil },
		stream.Transform(ctx, func(line []byte) decoded {
			rec, err := sensor.DecodeRecord(line)
			if err != nil {
				invalid.Add(1)
				logger.Debug("Skipping record", "error", err)
				return decoded{}
			}
			return decoded{rec: rec, size: len(line)}
		}, lines))
	if config.SortWindow > 0 {
		records = stream.SortWindow(ctx, config.SortWindow, func(a, b decoded) int {
			return a.rec.RecordTime().Compare(b.rec.RecordTime())
		}, records)
	}

	for d := range records {
		if err := coord.Handle(d.rec); err != nil {
			invalid.Add(1)
			logger.Debug("Unhandled record", "error", err)
			continue
		}
		meter.Mark(d.rec.RecordTime(), d.size)
		if writeErr != nil {
			cancel()
			break
		}
	}

	var exportErr error
	if exports != nil {
		close(exports)
		exports = nil
		exportErr = <-exported
	}

	res.Records = meter.Count()
	res.Duplicates = duplicates.Load()
	res.Invalid = invalid.Load()
	res.Last, _ = coord.Last()
	res.Counts = coord.Metrics().Counts()
	meter.Log()

	if out != nil && writeErr == nil {
		writeErr = out.Flush()
	}
	select {
	case err := <-readErrs:
		return res, err
	default:
	}
	if writeErr != nil {
		return res, writeErr
	}
	if err := parent.Err(); err != nil {
		return res, err
	}
	if exportErr != nil {
		logger.Warn("Influx export failed", "error", exportErr)
	}
	logger.Info("Replay done", "records", res.Records, "estimates", res.Estimates,
		"duplicates", res.Duplicates, "invalid", res.Invalid)
	return res, nil
}

// export writes each batch to influx off the replay loop and delivers the
// first error, or nil, once batches is drained.
func export(device string, batches <-chan []location.Estimate) <-chan error {
	done := make(chan error, 1)
	go func() {
		var first error
		for batch := range batches {
			if err := influxdb.ExportEstimates(device, batch); err != nil && first == nil {
				first = err
			}
		}
		done <- first
	}()
	return done
}
