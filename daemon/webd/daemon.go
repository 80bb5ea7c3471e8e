// Package webd serves the fusion engine over HTTP. Devices push sensor
// records to /ingest/{device}; each device gets its own coordinator, and
// fused estimates are cached, persisted as snapshots, and broadcast on a
// websocket.
package webd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/olahol/melody"
	"github.com/rotblauer/catnav/cache"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/events"
	"github.com/rotblauer/catnav/fusion"
	"github.com/rotblauer/catnav/geo/beacon"
	"github.com/rotblauer/catnav/params"
	"github.com/rotblauer/catnav/state"
	"github.com/rotblauer/catnav/types/location"
)

// RecentEstimates is how many estimates per device /recent can return.
var RecentEstimates = 100

type WebDaemon struct {
	Config *params.WebDaemonConfig

	logger         *slog.Logger
	started        time.Time
	melodyInstance *melody.Melody
	registry       *beacon.Registry
	store          *state.Store
	engines        *lru.Cache[string, *engine]
	lastKnown      *cache.LastKnown

	server   *http.Server
	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// engine is one device's coordinator plus its ingest-side state.
type engine struct {
	mu     sync.Mutex
	device string
	coord  *fusion.Coordinator
	dedupe func([]byte) bool
	recent *common.RingBuffer[location.Estimate]
}

func NewWebDaemon(config *params.WebDaemonConfig) (*WebDaemon, error) {
	if config == nil {
		config = params.DefaultWebDaemonConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &WebDaemon{
		Config:    config,
		logger:    slog.With("d", "web"),
		started:   time.Now(),
		lastKnown: cache.NewLastKnown(config.LastKnownTTL),
		quit:      make(chan struct{}),
	}

	s.registry = beacon.NewRegistry()
	if config.BeaconRegistryPath != "" {
		reg, err := beacon.LoadRegistryFile(config.BeaconRegistryPath)
		if err != nil {
			return nil, fmt.Errorf("beacon registry: %w", err)
		}
		s.registry = reg
	}

	if config.DataDir != "" {
		store, err := state.Open(config.DataDir, false)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	engines, err := lru.NewWithEvict[string, *engine](config.MaxDevices, func(device string, e *engine) {
		s.logger.Info("Evicting device engine", "device", device)
		e.coord.Close()
	})
	if err != nil {
		return nil, err
	}
	s.engines = engines
	s.initMelody()
	return s, nil
}

// engineFor returns the device's engine, creating (and restoring) it on first use.
func (s *WebDaemon) engineFor(device string) (*engine, error) {
	if e, ok := s.engines.Get(device); ok {
		return e, nil
	}
	e := &engine{
		device: device,
		dedupe: cache.NewDedupePassLRUFunc[[]byte](),
		recent: common.NewRingBuffer[location.Estimate](RecentEstimates),
	}
	listener := fusion.Listeners{
		fusion.ListenerFuncs{Location: func(est location.Estimate) {
			s.lastKnown.Set(device, est)
			e.recent.Add(est)
		}},
		events.Publisher(device),
	}
	coord, err := fusion.NewCoordinator(s.Config.Engine, s.registry, listener)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		snap, err := s.store.LoadSnapshot(device)
		switch {
		case err == nil:
			if err := coord.Restore(snap); err != nil {
				return nil, err
			}
			s.logger.Info("Restored device", "device", device, "floor", snap.Floor, "env", snap.Environment)
		case !errors.Is(err, state.ErrNoSnapshot):
			s.logger.Warn("Failed to load snapshot", "device", device, "error", err)
		}
		coord.SetSnapshotStore(s.store.ForDevice(device))
	}
	e.coord = coord

	// Two requests may race to create the same device; keep the first.
	if prev, ok, _ := s.engines.PeekOrAdd(device, e); ok {
		coord.Close()
		return prev, nil
	}
	return e, nil
}

// Run listens and serves until ctx is done or Close is called.
func (s *WebDaemon) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-s.quit:
	}
	return s.Close()
}

// Start listens on the configured address and serves in the background.
func (s *WebDaemon) Start() error {
	ln, err := net.Listen(s.Config.Network, s.Config.Address)
	if err != nil {
		return err
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting web daemon", "network", s.Config.Network, "address", ln.Addr().String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Web daemon stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address, once started.
func (s *WebDaemon) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, closes every engine and the state store.
// It is idempotent.
func (s *WebDaemon) Close() error {
	select {
	case <-s.quit:
		return nil
	default:
		close(s.quit)
	}
	var errs []error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, s.server.Shutdown(ctx))
	}
	s.wg.Wait()
	errs = append(errs, s.melodyInstance.Close())
	s.engines.Purge()
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	s.logger.Info("Web daemon closed")
	return errors.Join(errs...)
}
