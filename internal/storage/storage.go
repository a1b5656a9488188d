// Package storage keeps a persistent registry of model artifact loads. It uses
// BoltDB as the underlying storage engine. Every startup records the
// fingerprint of each artifact it loaded so that operators can tell when a
// model file changed between deployments.
//
// Only artifact metadata is stored; predictions are never persisted.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"exoplanet-ml/internal/ml"

	"go.etcd.io/bbolt"
)

const (
	artifactsBucket = "artifacts" // Parent bucket; one nested bucket per artifact name
	dbFileName      = "exoplanet-registry.db"
)

// Store provides persistent storage for artifact load records.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the registry database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(artifactsBucket)); err != nil {
			return fmt.Errorf("create artifacts bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// RecordArtifact appends a load record for info.Name keyed by its load time.
func (s *Store) RecordArtifact(info ml.ArtifactInfo) error {
	if info.Name == "" {
		return fmt.Errorf("artifact name is required")
	}
	if info.LoadedAt.IsZero() {
		info.LoadedAt = time.Now()
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket([]byte(artifactsBucket)).CreateBucketIfNotExists([]byte(info.Name))
		if err != nil {
			return fmt.Errorf("create bucket for %s: %w", info.Name, err)
		}
		// Same-nanosecond loads get a sequence suffix so none is overwritten.
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(recordKey(info.LoadedAt, seq), data)
	})
}

// ListArtifacts returns every load record for name, oldest first.
func (s *Store) ListArtifacts(name string) ([]ml.ArtifactInfo, error) {
	var records []ml.ArtifactInfo

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(artifactsBucket)).Bucket([]byte(name))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var info ml.ArtifactInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return nil // Skip malformed records
			}
			records = append(records, info)
			return nil
		})
	})

	return records, err
}

// LatestArtifact returns the most recent load record for name.
func (s *Store) LatestArtifact(name string) (ml.ArtifactInfo, bool, error) {
	var (
		info  ml.ArtifactInfo
		found bool
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(artifactsBucket)).Bucket([]byte(name))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if err := json.Unmarshal(v, &info); err == nil {
				found = true
				return nil
			}
		}
		return nil
	})

	return info, found, err
}

// ArtifactNames lists every artifact with at least one record.
func (s *Store) ArtifactNames() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(artifactsBucket)).ForEach(func(k, v []byte) error {
			if v == nil { // nested bucket
				names = append(names, string(k))
			}
			return nil
		})
	})
	return names, err
}

// recordKey orders records by load time; big-endian keys sort bytewise.
func recordKey(t time.Time, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}
