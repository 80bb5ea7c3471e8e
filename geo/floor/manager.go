package floor

import (
	"sync"
	"time"
)

type ChangeType int

const (
	ChangeInitial ChangeType = iota
	ChangeDetected
)

func (c ChangeType) String() string {
	if c == ChangeDetected {
		return "DETECTED"
	}
	return "INITIAL"
}

func (c ChangeType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

type Change struct {
	Floor    int
	Previous int
	Type     ChangeType
	Time     time.Time
	// Event is set for detected changes.
	Event *Event
}

// Manager holds the current floor.
type Manager struct {
	mu      sync.Mutex
	floor   int
	started bool
}

func NewManager() *Manager {
	return &Manager{}
}

// Start sets the initial floor. Only the first call produces a change.
func (m *Manager) Start(initial int, t time.Time) (Change, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return Change{}, false
	}
	m.started = true
	m.floor = initial
	return Change{Floor: initial, Previous: initial, Type: ChangeInitial, Time: t}, true
}

// Apply moves the current floor by ev.FloorDelta.
func (m *Manager) Apply(ev Event) (Change, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || ev.FloorDelta == 0 {
		return Change{}, false
	}
	prev := m.floor
	m.floor += ev.FloorDelta
	return Change{Floor: m.floor, Previous: prev, Type: ChangeDetected, Time: ev.End, Event: &ev}, true
}

func (m *Manager) Floor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.floor
}

func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}
