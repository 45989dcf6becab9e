// Package store persists the pipeline state as a JSON snapshot with
// load-all, replace-all semantics, so a restart resumes with minimal loss.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/neyrobot/showcanvas/internal/model"
)

// Snapshot is the full persisted state.
type Snapshot struct {
	SavedAt    time.Time       `json:"savedAt"`
	Messages   []model.Message `json:"messages"`
	BatchedIDs []string        `json:"batchedIds"`
	Batches    []model.Batch   `json:"batches"`
}

// FileStore reads and writes snapshots at a fixed path.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot. A missing file returns an empty snapshot, not an
// error: first boot has no state.
func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{}, nil
		}
		return nil, errors.Wrap(err, "read snapshot")
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return &snap, nil
}

// Save writes the snapshot via temp file and rename so a crash mid-write
// never leaves a truncated file behind.
func (s *FileStore) Save(snap *Snapshot) error {
	snap.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create snapshot dir")
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return errors.Wrap(err, "create temp snapshot")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close snapshot")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replace snapshot")
}
