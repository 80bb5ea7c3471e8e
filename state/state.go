// Package state persists per-device engine snapshots in a bbolt file,
// so a restarted daemon resumes each device on the right floor.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotblauer/catnav/fusion"
	"github.com/rotblauer/catnav/params"
	"go.etcd.io/bbolt"
)

var ErrNoSnapshot = errors.New("no snapshot")

type Store struct {
	DB    *bbolt.DB
	path  string
	rOnly bool
}

// Open opens (creating if needed) the state db at dir/params.StateDBName.
// A writable conn holds the file lock; other writers block until Timeout.
func Open(dir string, readOnly bool) (*Store, error) {
	if !readOnly {
		if err := os.MkdirAll(dir, 0770); err != nil {
			return nil, err
		}
	}
	path := filepath.Join(dir, params.StateDBName)
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		ReadOnly: readOnly,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", path, err)
	}
	return &Store{DB: db, path: path, rOnly: readOnly}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) storeKV(key []byte, data []byte) error {
	if s.rOnly {
		return fmt.Errorf("storeKV: read-only state")
	}
	if len(key) == 0 {
		return fmt.Errorf("storeKV: empty key")
	}
	if data == nil {
		return fmt.Errorf("storeKV: nil data")
	}
	return s.DB.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(params.SnapshotBucket)
		if err != nil {
			return err
		}
		return bucket.Put(key, data)
	})
}

// readKV returns nil, nil for a missing key.
func (s *Store) readKV(key []byte) ([]byte, error) {
	var out []byte
	err := s.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(params.SnapshotBucket)
		if bucket == nil {
			return nil
		}
		// Get's value is only valid inside the transaction.
		if got := bucket.Get(key); got != nil {
			out = bytes.Clone(got)
		}
		return nil
	})
	return out, err
}

func (s *Store) SaveSnapshot(device string, snap fusion.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.storeKV([]byte(device), b); err != nil {
		return err
	}
	slog.Debug("Stored snapshot", "device", device, "floor", snap.Floor, "env", snap.Environment)
	return nil
}

func (s *Store) LoadSnapshot(device string) (fusion.Snapshot, error) {
	got, err := s.readKV([]byte(device))
	if err != nil {
		return fusion.Snapshot{}, err
	}
	if got == nil {
		return fusion.Snapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, device)
	}
	snap := fusion.Snapshot{}
	if err := json.Unmarshal(got, &snap); err != nil {
		return fusion.Snapshot{}, fmt.Errorf("%w: %q", err, string(got))
	}
	return snap, nil
}

// Devices lists every device with a stored snapshot, sorted.
func (s *Store) Devices() ([]string, error) {
	var out []string
	err := s.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(params.SnapshotBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	sort.Strings(out)
	return out, err
}

// ForDevice binds the store to one device, for fusion.Coordinator.SetSnapshotStore.
func (s *Store) ForDevice(device string) *DeviceStore {
	return &DeviceStore{store: s, Device: device}
}

type DeviceStore struct {
	store  *Store
	Device string
}

var _ fusion.SnapshotStore = (*DeviceStore)(nil)

func (d *DeviceStore) SaveSnapshot(snap fusion.Snapshot) error {
	return d.store.SaveSnapshot(d.Device, snap)
}

func (d *DeviceStore) LoadSnapshot() (fusion.Snapshot, error) {
	return d.store.LoadSnapshot(d.Device)
}
