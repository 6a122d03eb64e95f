package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

var (
	bucketEndpoints = []byte("endpoints")
	bucketQueryLog  = []byte("query_log")
	bucketInventory = []byte("device_inventory")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEndpoints, bucketQueryLog, bucketInventory} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Endpoints
// =============================================================================

// LoadEndpoints returns every stored endpoint.
func (s *BoltStore) LoadEndpoints(ctx context.Context) ([]model.Endpoint, error) {
	var out []model.Endpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEndpoints)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.ForEach(func(k, v []byte) error {
			var ep model.Endpoint
			if err := json.Unmarshal(v, &ep); err != nil {
				return fmt.Errorf("endpoint %s: %w", k, err)
			}
			out = append(out, ep)
			return nil
		})
	})
	return out, err
}

// SaveEndpoint writes ep under its id.
func (s *BoltStore) SaveEndpoint(ctx context.Context, ep model.Endpoint) error {
	return s.put(bucketEndpoints, ep.ID, ep)
}

// DeleteEndpoint removes the endpoint with the given id.
func (s *BoltStore) DeleteEndpoint(ctx context.Context, id string) error {
	return s.delete(bucketEndpoints, id)
}

// =============================================================================
// Query ledger
// =============================================================================

// AppendRecord stores rec in the nested bucket of its endpoint.
func (s *BoltStore) AppendRecord(ctx context.Context, rec model.APIQueryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketQueryLog)
		if root == nil {
			return fmt.Errorf("bucket not found")
		}
		b, err := root.CreateBucketIfNotExists([]byte(rec.EndpointID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(recordKey(rec.Timestamp, seq), data)
	})
}

// PageRecords returns up to limit records after the cursor.
func (s *BoltStore) PageRecords(ctx context.Context, endpointID string, cursor Cursor, limit int) ([]model.APIQueryRecord, Cursor, error) {
	var (
		out  []model.APIQueryRecord
		last Cursor
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketQueryLog)
		if root == nil {
			return fmt.Errorf("bucket not found")
		}
		b := root.Bucket([]byte(endpointID))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		var k, v []byte
		if cursor == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(cursor)
			if k != nil && !after(k, cursor) {
				k, v = c.Next()
			}
		}

		for ; k != nil && len(out) < limit; k, v = c.Next() {
			var rec model.APIQueryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			out = append(out, rec)
			last = append(Cursor(nil), k...)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if last == nil {
		last = cursor
	}
	return out, last, nil
}

// CountRecords returns the number of records stored for endpointID.
func (s *BoltStore) CountRecords(ctx context.Context, endpointID string) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketQueryLog)
		if root == nil {
			return fmt.Errorf("bucket not found")
		}
		if b := root.Bucket([]byte(endpointID)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// RecordEndpoints returns the ids of every endpoint with ledger entries.
func (s *BoltStore) RecordEndpoints(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketQueryLog)
		if root == nil {
			return fmt.Errorf("bucket not found")
		}
		return root.ForEach(func(k, v []byte) error {
			if v == nil {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	return ids, err
}

// =============================================================================
// Inventory
// =============================================================================

// LoadInventory returns every stored inventory record.
func (s *BoltStore) LoadInventory(ctx context.Context) ([]InventoryRecord, error) {
	var out []InventoryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInventory)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.ForEach(func(k, v []byte) error {
			var rec InventoryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("inventory %s: %w", k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// SaveInventory writes rec under its id.
func (s *BoltStore) SaveInventory(ctx context.Context, rec InventoryRecord) error {
	return s.put(bucketInventory, rec.ID, rec)
}

// DeleteInventory removes the inventory record with the given id.
func (s *BoltStore) DeleteInventory(ctx context.Context, id string) error {
	return s.delete(bucketInventory, id)
}

func (s *BoltStore) put(bucket []byte, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", bucket, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(id), data)
	})
}

func (s *BoltStore) delete(bucket []byte, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete([]byte(id))
	})
}
