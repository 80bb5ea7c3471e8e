// Package cache holds the in-memory caches sitting in front of the engine:
// an LRU dedupe filter for pushed records and a TTL cache of each device's
// last known estimate.
package cache

import (
	"fmt"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/jellydator/ttlcache/v3"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/rotblauer/catnav/types/location"
)

// DedupeCacheSize bounds the number of hashes a dedupe func remembers.
var DedupeCacheSize = 10_000

// NewDedupePassLRUFunc returns a filter that passes the first sighting of
// a value and rejects repeats still held by its LRU.
// Values that cannot be hashed are rejected.
// The returned func is not safe for concurrent use.
func NewDedupePassLRUFunc[T any]() func(T) bool {
	seen := lru.New(DedupeCacheSize)
	return func(v T) bool {
		hash, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
		if err != nil {
			return false
		}
		key := fmt.Sprintf("%d", hash)
		if _, ok := seen.Get(key); ok {
			return false
		}
		seen.Add(key, true)
		return true
	}
}

// LastKnown caches the last estimate per device.
type LastKnown struct {
	c *ttlcache.Cache[string, location.Estimate]
}

func NewLastKnown(ttl time.Duration) *LastKnown {
	return &LastKnown{
		c: ttlcache.New[string, location.Estimate](
			ttlcache.WithTTL[string, location.Estimate](ttl)),
	}
}

// Set keeps e unless a newer estimate is already cached.
func (l *LastKnown) Set(device string, e location.Estimate) {
	if it := l.c.Get(device); it != nil && it.Value().Time.After(e.Time) {
		return
	}
	l.c.Set(device, e, ttlcache.DefaultTTL)
}

func (l *LastKnown) Get(device string) (location.Estimate, bool) {
	it := l.c.Get(device)
	if it == nil {
		return location.Estimate{}, false
	}
	return it.Value(), true
}

// Devices lists the devices with an unexpired estimate.
func (l *LastKnown) Devices() []string {
	return l.c.Keys()
}

func (l *LastKnown) Len() int {
	return l.c.Len()
}
