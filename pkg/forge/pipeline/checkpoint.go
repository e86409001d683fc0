package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"
)

// SnapshotVersion identifies the checkpoint serialization format.
const SnapshotVersion = 1

var checkpointBucket = []byte("checkpoints")

// Snapshot is the versioned run-state checkpoint: which stage the run was
// in and which documents that stage had already processed. A resumed run
// with the same configuration fingerprint skips completed stages and the
// processed documents of the in-flight stage, so each document is
// processed at most once per stage across the combined runs.
type Snapshot struct {
	Version     int     `json:"version"`
	RunID       string  `json:"run_id"`
	Fingerprint string  `json:"fingerprint"`
	StageIndex  int     `json:"stage_index"`
	Processed   []int64 `json:"processed"`
}

// processedSet converts the ordinal list into a membership set.
func (s Snapshot) processedSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(s.Processed))
	for _, o := range s.Processed {
		set[o] = struct{}{}
	}
	return set
}

// CheckpointStore persists snapshots in a bbolt database, keyed by
// configuration fingerprint.
type CheckpointStore struct {
	db *bbolt.DB
}

// OpenCheckpointStore opens (or creates) the checkpoint database.
func OpenCheckpointStore(path string) (*CheckpointStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoint bucket: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

// Close closes the underlying database.
func (c *CheckpointStore) Close() error { return c.db.Close() }

// Save writes the snapshot, replacing any snapshot with the same
// fingerprint.
func (c *CheckpointStore) Save(snap Snapshot) error {
	snap.Version = SnapshotVersion
	sort.Slice(snap.Processed, func(i, j int) bool { return snap.Processed[i] < snap.Processed[j] })

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(checkpointBucket).Put([]byte(snap.Fingerprint), data)
	})
}

// Load returns the snapshot for the fingerprint, if one exists.
func (c *CheckpointStore) Load(fingerprint string) (Snapshot, bool, error) {
	var snap Snapshot
	var found bool
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(checkpointBucket).Get([]byte(fingerprint))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	if found && snap.Version != SnapshotVersion {
		// Unknown format: treat as absent rather than resuming wrongly.
		return Snapshot{}, false, nil
	}
	return snap, found, nil
}

// Clear removes the snapshot for the fingerprint. Called when a run
// completes so the next run starts fresh.
func (c *CheckpointStore) Clear(fingerprint string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(checkpointBucket).Delete([]byte(fingerprint))
	})
}
