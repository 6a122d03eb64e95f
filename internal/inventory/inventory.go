// Package inventory maintains the per-endpoint health scorecard.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/internal/logger"
	"github.com/PentesterFlow/OpenExplorer/internal/store"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Window is the number of recent outcomes that decide an entry's status.
const Window = 5

// StatusSink receives status changes. The endpoint registry implements it.
type StatusSink interface {
	SetStatus(ctx context.Context, id, status string) error
}

type entry struct {
	mu      sync.Mutex
	rec     store.InventoryRecord
	removed bool // set by Forget; outcomes arriving later are dropped
}

// Tracker owns one entry per endpoint id. Each entry has its own mutex, so
// updates to one endpoint never wait on another.
type Tracker struct {
	mu        sync.RWMutex // guards entries and forgotten, not entry content
	entries   map[string]*entry
	forgotten map[string]struct{}
	repo      store.InventoryRepository
	sink      StatusSink
	log       *logger.Logger
}

// New creates a tracker. sink may be nil.
func New(repo store.InventoryRepository, sink StatusSink, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		entries:   make(map[string]*entry),
		forgotten: make(map[string]struct{}),
		repo:      repo,
		sink:      sink,
		log:       log.WithComponent("inventory"),
	}
}

// Load replaces the tracked entries with what the repository holds.
func (t *Tracker) Load(ctx context.Context) error {
	recs, err := t.repo.LoadInventory(ctx)
	if err != nil {
		return errors.NewStorageError("load_inventory", err)
	}

	next := make(map[string]*entry, len(recs))
	for _, rec := range recs {
		next[rec.ID] = &entry{rec: rec}
	}

	t.mu.Lock()
	t.entries = next
	t.mu.Unlock()
	return nil
}

// Register creates the scorecard for ep, or refreshes its descriptive
// fields when one exists. Counters are never reset.
func (t *Tracker) Register(ctx context.Context, ep model.Endpoint) (model.DeviceInventory, error) {
	t.mu.Lock()
	delete(t.forgotten, ep.ID)
	t.mu.Unlock()

	e, created, _ := t.entry(ep.ID, ep.Created)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rec.Name = ep.Name
	e.rec.DeviceType = string(ep.Type)
	e.rec.Type = string(ep.Type)
	e.rec.URL = ep.URL
	e.rec.Username = ep.Username
	if created {
		e.rec.Notes = fmt.Sprintf("Added via Endpoint Manager - %s", ep.Type)
	}

	if err := t.repo.SaveInventory(ctx, e.rec); err != nil {
		return model.DeviceInventory{}, errors.NewStorageError("save_inventory", err)
	}
	return e.rec.DeviceInventory, nil
}

// Record folds one outcome into the scorecard of endpointID. The counter
// update, status recompute, persistence and status mirror all happen under
// the entry's lock. Outcomes for a forgotten endpoint are dropped with a
// NotFound error.
func (t *Tracker) Record(ctx context.Context, endpointID string, success bool, ts time.Time) (model.DeviceInventory, error) {
	e, _, ok := t.entry(endpointID, ts)
	if !ok {
		return model.DeviceInventory{}, errors.NewNotFoundError("inventory", endpointID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return model.DeviceInventory{}, errors.NewNotFoundError("inventory", endpointID)
	}

	e.rec.TestCount++
	if success {
		e.rec.SuccessCount++
	}
	tested := ts.UTC()
	e.rec.LastTested = &tested

	e.rec.Outcomes = append(e.rec.Outcomes, success)
	if len(e.rec.Outcomes) > Window {
		e.rec.Outcomes = append([]bool(nil), e.rec.Outcomes[len(e.rec.Outcomes)-Window:]...)
	}

	prev := e.rec.Status
	e.rec.Status = Status(e.rec.Outcomes)
	if prev != e.rec.Status {
		t.log.WithField("endpoint_id", endpointID).
			WithField("from", prev).
			WithField("to", e.rec.Status).
			Info("Status changed")
	}

	if err := t.repo.SaveInventory(ctx, e.rec); err != nil {
		return e.rec.DeviceInventory, errors.NewStorageError("save_inventory", err)
	}
	if t.sink != nil {
		if err := t.sink.SetStatus(ctx, endpointID, e.rec.Status); err != nil {
			return e.rec.DeviceInventory, err
		}
	}
	return e.rec.DeviceInventory, nil
}

// Get returns the scorecard of endpointID.
func (t *Tracker) Get(endpointID string) (model.DeviceInventory, error) {
	t.mu.RLock()
	e, ok := t.entries[endpointID]
	t.mu.RUnlock()
	if !ok {
		return model.DeviceInventory{}, errors.NewNotFoundError("inventory", endpointID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.DeviceInventory, nil
}

// List returns every scorecard ordered by name, then id.
func (t *Tracker) List() []model.DeviceInventory {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	out := make([]model.DeviceInventory, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec.DeviceInventory)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Forget drops the scorecard of endpointID. Outcomes of calls still in
// flight are not recorded afterwards, until the id is registered again.
func (t *Tracker) Forget(ctx context.Context, endpointID string) error {
	t.mu.Lock()
	e, ok := t.entries[endpointID]
	delete(t.entries, endpointID)
	t.forgotten[endpointID] = struct{}{}
	t.mu.Unlock()

	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.removed = true
	}
	if err := t.repo.DeleteInventory(ctx, endpointID); err != nil {
		return errors.NewStorageError("delete_inventory", err)
	}
	return nil
}

// entry returns the entry for id, creating an untested one when missing.
// It reports false for forgotten ids.
func (t *Tracker) entry(id string, addedAt time.Time) (e *entry, created bool, ok bool) {
	t.mu.RLock()
	e, ok = t.entries[id]
	t.mu.RUnlock()
	if ok {
		return e, false, true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		return e, false, true
	}
	if _, gone := t.forgotten[id]; gone {
		return nil, false, false
	}
	if addedAt.IsZero() {
		addedAt = time.Now()
	}
	e = &entry{rec: store.InventoryRecord{DeviceInventory: model.DeviceInventory{
		ID:      id,
		Status:  model.StatusUnknown,
		AddedAt: addedAt.UTC(),
	}}}
	t.entries[id] = e
	return e, true, true
}

// Status derives a status from the most recent outcomes, oldest first.
func Status(outcomes []bool) string {
	if len(outcomes) == 0 {
		return model.StatusUnknown
	}
	if len(outcomes) > Window {
		outcomes = outcomes[len(outcomes)-Window:]
	}

	successes := 0
	for _, ok := range outcomes {
		if ok {
			successes++
		}
	}
	switch {
	case successes == len(outcomes):
		return model.StatusHealthy
	case successes == 0:
		return model.StatusUnreachable
	default:
		return model.StatusDegraded
	}
}
