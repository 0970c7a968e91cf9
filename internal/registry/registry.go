// Package registry keeps a local history of training runs in a bbolt database.
//
// Each run is stored as JSON in the "runs" bucket under a time-ordered UUIDv7
// key, so a reverse cursor walk yields the most recent runs first.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/sklearn/gbdt"
)

const runsBucket = "runs"

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("training run not found")

// RunRecord describes one training run.
type RunRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`

	DatasetPath  string   `json:"dataset_path"`
	Rows         int      `json:"rows"`
	Positives    int      `json:"positives"`
	FeatureNames []string `json:"feature_names"`

	Params gbdt.TrainingParams `json:"params"`
	CV     *gbdt.CVReport      `json:"cv,omitempty"`

	ArtifactPath string `json:"artifact_path,omitempty"`
	Checksum     string `json:"checksum,omitempty"`
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store is a bbolt-backed run registry. It is safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the registry database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create registry directory for %s", path)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open registry %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return errors.Wrap(err, "create runs bucket")
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewRunID returns a fresh time-ordered run identifier.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "generate run id")
	}
	return id.String(), nil
}

// Put stores rec, assigning an ID if it has none. An existing record with
// the same ID is replaced.
func (s *Store) Put(rec *RunRecord) error {
	if rec.ID == "" {
		id, err := NewRunID()
		if err != nil {
			return err
		}
		rec.ID = id
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal run record")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).Put([]byte(rec.ID), data)
	})
}

// Get returns the run with the given ID.
func (s *Store) Get(id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get([]byte(id))
		if data == nil {
			return errors.Wrapf(ErrRunNotFound, "run %s", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns up to limit runs, newest first. limit <= 0 returns all runs.
func (s *Store) List(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.Wrapf(err, "decode run %s", k)
			}
			runs = append(runs, rec)
		}
		return nil
	})
	return runs, err
}

// Latest returns the most recent successful run.
func (s *Store) Latest() (*RunRecord, error) {
	runs, err := s.List(0)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Status == StatusSucceeded {
			return &runs[i], nil
		}
	}
	return nil, ErrRunNotFound
}
