package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rotblauer/catnav/common"
)

// Meter logs throughput of a long-running stream on a ticker.
type Meter struct {
	name     string
	interval time.Duration
	started  time.Time
	ticker   *time.Ticker
	done     chan struct{}
	once     sync.Once

	mu   sync.Mutex
	last time.Time // stream time of the last mark

	Registry metrics.Registry
	count    metrics.Counter
	size     metrics.Counter
	rate     metrics.Meter
	byteRate metrics.Meter
}

// NewMeter starts logging every interval; call Stop to end it.
// A non-positive interval disables periodic logs.
func NewMeter(name string, interval time.Duration) *Meter {
	// Meters are no-ops unless enabled before construction.
	metrics.Enabled = true

	reg := metrics.NewRegistry()
	m := &Meter{
		name:     name,
		interval: interval,
		started:  time.Now(),
		done:     make(chan struct{}),
		Registry: reg,
		count:    metrics.NewRegisteredCounter(name+".count", reg),
		size:     metrics.NewRegisteredCounter(name+".bytes", reg),
		rate:     metrics.NewRegisteredMeter(name+".meter", reg),
		byteRate: metrics.NewRegisteredMeter(name+".bytes.meter", reg),
	}
	if interval > 0 {
		m.ticker = time.NewTicker(interval)
		go m.run()
	}
	return m
}

// Mark counts one item of n bytes read at stream time t.
func (m *Meter) Mark(t time.Time, n int) {
	m.mu.Lock()
	if t.After(m.last) {
		m.last = t
	}
	m.mu.Unlock()
	m.count.Inc(1)
	m.size.Inc(int64(n))
	m.rate.Mark(1)
	m.byteRate.Mark(int64(n))
}

func (m *Meter) Count() int64 {
	return m.count.Snapshot().Count()
}

func (m *Meter) Bytes() int64 {
	return m.size.Snapshot().Count()
}

func (m *Meter) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.ticker.C:
			m.Log()
		}
	}
}

func (m *Meter) Log() {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	rate := m.rate.Snapshot()
	slog.Info("Stream progress", "name", m.name,
		"n", humanize.Comma(m.Count()),
		"last", last.Format(time.DateTime),
		"rps", common.DecimalToFixed(rate.Rate1(), 0),
		"bps", humanize.Bytes(uint64(m.byteRate.Snapshot().Rate1())),
		"total.bytes", humanize.Bytes(uint64(m.Bytes())),
		"running", time.Since(m.started).Round(time.Second))
}

// Stop ends periodic logging and releases the meters. It is idempotent.
func (m *Meter) Stop() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		close(m.done)
		if m.ticker != nil {
			m.ticker.Stop()
		}
		m.rate.Stop()
		m.byteRate.Stop()
	})
}
