// Package store provides persistence for endpoints, the query ledger and the
// device inventory.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Cursor marks a position in an endpoint's ledger. A nil cursor is the start.
type Cursor []byte

// EndpointRepository persists registered endpoints.
type EndpointRepository interface {
	LoadEndpoints(ctx context.Context) ([]model.Endpoint, error)
	SaveEndpoint(ctx context.Context, ep model.Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
}

// LedgerRepository persists query records in (timestamp, insertion) order.
type LedgerRepository interface {
	AppendRecord(ctx context.Context, rec model.APIQueryRecord) error
	// PageRecords returns up to limit records of endpointID strictly after the
	// cursor, and the cursor of the last returned record.
	PageRecords(ctx context.Context, endpointID string, after Cursor, limit int) ([]model.APIQueryRecord, Cursor, error)
	CountRecords(ctx context.Context, endpointID string) (int, error)
	RecordEndpoints(ctx context.Context) ([]string, error)
}

// InventoryRecord is a DeviceInventory together with the recent outcome
// window used to derive its status.
type InventoryRecord struct {
	model.DeviceInventory `yaml:",inline"`
	Outcomes              []bool `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
}

// InventoryRepository persists inventory scorecards.
type InventoryRepository interface {
	LoadInventory(ctx context.Context) ([]InventoryRecord, error)
	SaveInventory(ctx context.Context, rec InventoryRecord) error
	DeleteInventory(ctx context.Context, id string) error
}

// Store bundles every repository with a Close.
type Store interface {
	EndpointRepository
	LedgerRepository
	InventoryRepository
	io.Closer
}

// recordKey orders ledger entries by completion time, then by insertion.
func recordKey(ts time.Time, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func after(key []byte, cursor Cursor) bool {
	return cursor == nil || bytes.Compare(key, cursor) > 0
}
