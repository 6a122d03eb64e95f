// Package ledger keeps the append-only log of every dispatched request.
package ledger

import (
	"context"
	"iter"
	"sync"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/internal/store"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// DefaultPageSize is the number of records an Iterator fetches at a time.
const DefaultPageSize = 100

// Ledger serializes appends over a LedgerRepository. Reads go straight to
// the repository and may run concurrently with appends.
type Ledger struct {
	mu       sync.Mutex
	repo     store.LedgerRepository
	pageSize int
}

// New creates a ledger over repo.
func New(repo store.LedgerRepository) *Ledger {
	return &Ledger{repo: repo, pageSize: DefaultPageSize}
}

// WithPageSize returns l configured to fetch n records per page.
func (l *Ledger) WithPageSize(n int) *Ledger {
	if n > 0 {
		l.pageSize = n
	}
	return l
}

// Append stores rec. Records are immutable once appended.
func (l *Ledger) Append(ctx context.Context, rec model.APIQueryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.repo.AppendRecord(ctx, rec); err != nil {
		return errors.NewStorageError("ledger_append", err)
	}
	return nil
}

// ListByEndpoint returns a lazy iterator over the records of endpointID in
// (timestamp, insertion) order. Nothing is read until Next is called.
func (l *Ledger) ListByEndpoint(endpointID string) *Iterator {
	return &Iterator{repo: l.repo, endpointID: endpointID, pageSize: l.pageSize}
}

// Records returns the records of endpointID as a range-over-func sequence.
// Iteration stops at the first storage error, which is yielded last.
func (l *Ledger) Records(ctx context.Context, endpointID string) iter.Seq2[model.APIQueryRecord, error] {
	return func(yield func(model.APIQueryRecord, error) bool) {
		it := l.ListByEndpoint(endpointID)
		for it.Next(ctx) {
			if !yield(it.Record(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(model.APIQueryRecord{}, err)
		}
	}
}

// Recent returns at most the n newest records of endpointID, oldest first.
func (l *Ledger) Recent(ctx context.Context, endpointID string, n int) ([]model.APIQueryRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]model.APIQueryRecord, 0, n)
	for rec, err := range l.Records(ctx, endpointID) {
		if err != nil {
			return nil, err
		}
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, rec)
	}
	return ring, nil
}

// Count returns the number of records of endpointID.
func (l *Ledger) Count(ctx context.Context, endpointID string) (int, error) {
	n, err := l.repo.CountRecords(ctx, endpointID)
	if err != nil {
		return 0, errors.NewStorageError("ledger_count", err)
	}
	return n, nil
}

// Endpoints returns the ids that have at least one record.
func (l *Ledger) Endpoints(ctx context.Context) ([]string, error) {
	ids, err := l.repo.RecordEndpoints(ctx)
	if err != nil {
		return nil, errors.NewStorageError("ledger_endpoints", err)
	}
	return ids, nil
}

// Iterator walks one endpoint's records a page at a time. It is not safe
// for concurrent use.
type Iterator struct {
	repo       store.LedgerRepository
	endpointID string
	pageSize   int

	page   []model.APIQueryRecord
	pos    int
	cursor store.Cursor
	cur    model.APIQueryRecord
	done   bool
	err    error
}

// Next advances to the next record, fetching a page when needed.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.pos >= len(it.page) {
		if it.done {
			return false
		}
		page, next, err := it.repo.PageRecords(ctx, it.endpointID, it.cursor, it.pageSize)
		if err != nil {
			it.err = errors.NewStorageError("ledger_page", err)
			return false
		}
		it.page, it.pos, it.cursor = page, 0, next
		if len(page) < it.pageSize {
			it.done = true
		}
		if len(page) == 0 {
			return false
		}
	}
	it.cur = it.page[it.pos]
	it.pos++
	return true
}

// Record returns the current record.
func (it *Iterator) Record() model.APIQueryRecord {
	return it.cur
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Reset rewinds the iterator to the first record. Records appended since
// the previous pass are included on the next one.
func (it *Iterator) Reset() {
	it.page, it.pos, it.cursor = nil, 0, nil
	it.cur = model.APIQueryRecord{}
	it.done, it.err = false, nil
}
