package cache

import (
	"testing"
	"time"

	"github.com/rotblauer/catnav/types/location"
)

func TestDedupePassLRU(t *testing.T) {
	pass := NewDedupePassLRUFunc[[]byte]()
	lines := [][]byte{
		[]byte(`{"kind":"accel","time":"2024-05-01T12:00:00Z","x":0,"y":0,"z":9.8}`),
		[]byte(`{"kind":"accel","time":"2024-05-01T12:00:00.02Z","x":0,"y":0,"z":9.9}`),
		[]byte(`{"kind":"accel","time":"2024-05-01T12:00:00Z","x":0,"y":0,"z":9.8}`),
	}
	want := []bool{true, true, false}
	for i, l := range lines {
		if have := pass(l); have != want[i] {
			t.Errorf("%d: have %v want %v", i, have, want[i])
		}
	}

	// Each func has its own memory.
	if !NewDedupePassLRUFunc[[]byte]()(lines[0]) {
		t.Error("fresh filter rejected first sighting")
	}
}

func TestDedupeEviction(t *testing.T) {
	old := DedupeCacheSize
	DedupeCacheSize = 2
	defer func() { DedupeCacheSize = old }()

	pass := NewDedupePassLRUFunc[int]()
	for _, v := range []int{1, 2, 3} {
		if !pass(v) {
			t.Fatalf("rejected first sighting of %d", v)
		}
	}
	if !pass(1) {
		t.Error("evicted value should pass again")
	}
	if pass(3) {
		t.Error("held value should be rejected")
	}
}

func TestLastKnown(t *testing.T) {
	lk := NewLastKnown(time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if _, ok := lk.Get("rye"); ok {
		t.Fatal("empty cache returned an estimate")
	}
	lk.Set("rye", location.Estimate{Lat: 1, Time: now})
	lk.Set("rye", location.Estimate{Lat: 2, Time: now.Add(-time.Second)})
	have, ok := lk.Get("rye")
	if !ok || have.Lat != 1 {
		t.Errorf("stale set overwrote: have %+v", have)
	}
	lk.Set("rye", location.Estimate{Lat: 3, Time: now.Add(time.Second)})
	if have, _ := lk.Get("rye"); have.Lat != 3 {
		t.Errorf("have %v want 3", have.Lat)
	}
	if lk.Len() != 1 || lk.Devices()[0] != "rye" {
		t.Errorf("have %v", lk.Devices())
	}
}

func TestLastKnownExpires(t *testing.T) {
	lk := NewLastKnown(50 * time.Millisecond)
	lk.Set("rye", location.Estimate{Lat: 1, Time: time.Now()})
	time.Sleep(100 * time.Millisecond)
	if _, ok := lk.Get("rye"); ok {
		t.Error("expired estimate returned")
	}
}
