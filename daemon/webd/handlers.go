package webd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/geojson"
	"github.com/rotblauer/catnav/state"
	"github.com/rotblauer/catnav/types/location"
	"github.com/rotblauer/catnav/types/sensor"
)

func (s *WebDaemon) NewRouter() *mux.Router {
	router := mux.NewRouter().StrictSlash(false)
	router.Use(recoveryMiddleware, loggingMiddleware)

	router.Path("/socket").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.melodyInstance.HandleRequest(w, r); err != nil {
			s.logger.Warn("Websocket upgrade failed", "error", err)
		}
	})

	apiRoutes := router.NewRoute().Subrouter()
	apiRoutes.Use(permissiveCorsMiddleware)

	// /ping is a simple server healthcheck endpoint
	apiRoutes.Path("/ping").HandlerFunc(pingPong)

	apiJSONRoutes := apiRoutes.NewRoute().Subrouter()
	apiJSONRoutes.Use(contentTypeMiddlewareFunc("application/json"))

	apiJSONRoutes.Path("/status").HandlerFunc(s.statusReport).Methods(http.MethodGet)
	apiJSONRoutes.Path("/last").HandlerFunc(s.handleLastAll).Methods(http.MethodGet)
	apiJSONRoutes.Path("/last/{device}").HandlerFunc(s.handleLast).Methods(http.MethodGet)
	apiJSONRoutes.Path("/recent/{device}").HandlerFunc(s.handleRecent).Methods(http.MethodGet)

	ingestRoutes := apiJSONRoutes.NewRoute().Subrouter()
	ingestRoutes.Use(s.tokenAuthenticationMiddleware)
	ingestRoutes.Path("/ingest/{device}").HandlerFunc(s.handleIngest).Methods(http.MethodPost)

	return router
}

func pingPong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type webDaemonStatus struct {
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
	Devices   []string  `json:"devices"`
	Engines   int       `json:"engines"`
	Beacons   int       `json:"beacons"`
	WSConns   int       `json:"ws_conns"`
}

func (s *WebDaemon) statusReport(w http.ResponseWriter, r *http.Request) {
	st := webDaemonStatus{
		StartedAt: s.started,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Devices:   s.lastKnown.Devices(),
		Engines:   s.engines.Len(),
		Beacons:   s.registry.Len(),
		WSConns:   s.melodyInstance.Len(),
	}
	s.writeJSON(w, st)
}

// IngestResult is the response to a record push.
type IngestResult struct {
	Accepted   int                `json:"accepted"`
	Duplicates int                `json:"duplicates"`
	Invalid    int                `json:"invalid"`
	Last       *location.Estimate `json:"last,omitempty"`
}

// handleIngest feeds a body of records (NDJSON or a JSON array) to the
// device's engine, in body order.
func (s *WebDaemon) handleIngest(w http.ResponseWriter, r *http.Request) {
	device := mux.Vars(r)["device"]
	if device == "" {
		http.Error(w, "missing device", http.StatusBadRequest)
		return
	}
	if r.Body == nil {
		http.Error(w, "Please send a request body", http.StatusBadRequest)
		return
	}
	e, err := s.engineFor(device)
	if err != nil {
		s.logger.Error("Failed to create engine", "device", device, "error", err)
		http.Error(w, "Failed to create engine", http.StatusInternalServerError)
		return
	}

	res := IngestResult{}
	e.mu.Lock()
	err = sensor.ScanJSONMessages(r.Body, func(msg json.RawMessage) error {
		if !e.dedupe(msg) {
			res.Duplicates++
			return nil
		}
		rec, err := sensor.DecodeRecord(msg)
		if err != nil {
			res.Invalid++
			s.logger.Debug("Skipping record", "device", device, "error", err)
			return nil
		}
		if err := e.coord.Handle(rec); err != nil {
			res.Invalid++
			return nil
		}
		res.Accepted++
		return nil
	})
	e.mu.Unlock()
	if err != nil {
		s.logger.Warn("Failed to decode body", "device", device, "error", err)
		http.Error(w, "Failed to decode: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if last, ok := e.coord.Last(); ok {
		res.Last = &last
	}
	s.logger.Debug("Ingested", "device", device, "accepted", res.Accepted,
		"duplicates", res.Duplicates, "invalid", res.Invalid)
	s.writeJSON(w, res)
}

// lastFor prefers the live cache, then the stored snapshot.
func (s *WebDaemon) lastFor(device string) (location.Estimate, bool, error) {
	if est, ok := s.lastKnown.Get(device); ok {
		return est, true, nil
	}
	if s.store == nil {
		return location.Estimate{}, false, nil
	}
	snap, err := s.store.LoadSnapshot(device)
	if errors.Is(err, state.ErrNoSnapshot) {
		return location.Estimate{}, false, nil
	}
	if err != nil {
		return location.Estimate{}, false, err
	}
	return snap.Last, !snap.Last.IsEmpty(), nil
}

// handleLast writes the device's last estimate as a GeoJSON feature.
func (s *WebDaemon) handleLast(w http.ResponseWriter, r *http.Request) {
	device := mux.Vars(r)["device"]
	est, ok, err := s.lastFor(device)
	if err != nil {
		s.logger.Warn("Failed to get last known", "device", device, "error", err)
		http.Error(w, "Failed to get last known", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no device that", http.StatusNotFound)
		return
	}
	f := est.Feature()
	f.Properties["Device"] = device
	s.writeJSON(w, f)
}

// handleLastAll writes every cached device's last estimate as a FeatureCollection.
func (s *WebDaemon) handleLastAll(w http.ResponseWriter, r *http.Request) {
	fc := geojson.NewFeatureCollection()
	for _, device := range s.lastKnown.Devices() {
		est, ok := s.lastKnown.Get(device)
		if !ok {
			continue
		}
		f := est.Feature()
		f.Properties["Device"] = device
		fc.Append(f)
	}
	s.writeJSON(w, fc)
}

// handleRecent writes up to ?n= (default all held) of the device's newest estimates, oldest first.
func (s *WebDaemon) handleRecent(w http.ResponseWriter, r *http.Request) {
	device := mux.Vars(r)["device"]
	e, ok := s.engines.Peek(device)
	if !ok {
		http.Error(w, "no device that", http.StatusNotFound)
		return
	}
	n := RecentEstimates
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = v
	}
	s.writeJSON(w, e.recent.Tail(n))
}

func (s *WebDaemon) writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
