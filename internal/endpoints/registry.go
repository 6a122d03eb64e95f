// Package endpoints keeps the registry of configured devices and controllers.
package endpoints

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/internal/store"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// IDPrefix is prepended to generated endpoint ids.
const IDPrefix = "ep_"

type snapshot map[string]model.Endpoint

// Store is the endpoint registry. Reads load an immutable snapshot; writes
// are serialized, persisted, then published as a new snapshot.
type Store struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
	repo store.EndpointRepository
	now  func() time.Time
}

// New creates an empty registry backed by repo.
func New(repo store.EndpointRepository) *Store {
	s := &Store{repo: repo, now: func() time.Time { return time.Now().UTC() }}
	empty := snapshot{}
	s.snap.Store(&empty)
	return s
}

// Load replaces the registry content with what the repository holds.
func (s *Store) Load(ctx context.Context) error {
	eps, err := s.repo.LoadEndpoints(ctx)
	if err != nil {
		return errors.NewStorageError("load_endpoints", err)
	}

	next := make(snapshot, len(eps))
	for _, ep := range eps {
		next[ep.ID] = ep
	}

	s.mu.Lock()
	s.snap.Store(&next)
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the endpoint with the given id.
func (s *Store) Get(id string) (model.Endpoint, error) {
	ep, ok := (*s.snap.Load())[id]
	if !ok {
		return model.Endpoint{}, errors.NewNotFoundError("endpoint", id)
	}
	return ep.Clone(), nil
}

// List returns every endpoint ordered by name, then id.
func (s *Store) List() []model.Endpoint {
	cur := *s.snap.Load()
	out := make([]model.Endpoint, 0, len(cur))
	for _, ep := range cur {
		out = append(out, ep.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of registered endpoints.
func (s *Store) Len() int {
	return len(*s.snap.Load())
}

// Create assigns an id and creation time to ep and registers it.
func (s *Store) Create(ctx context.Context, ep model.Endpoint) (model.Endpoint, error) {
	ep = ep.Clone()
	ep.ID = IDPrefix + uuid.NewString()
	ep.Created = s.now()
	ep.Status = model.StatusUnknown
	ep.URL = strings.TrimRight(ep.URL, "/")
	if ep.Tags == nil {
		ep.Tags = []string{}
	}
	if err := ep.Validate(); err != nil {
		return model.Endpoint{}, errors.NewValidationError("", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.SaveEndpoint(ctx, ep); err != nil {
		return model.Endpoint{}, errors.NewStorageError("save_endpoint", err)
	}
	s.publish(func(next snapshot) { next[ep.ID] = ep })
	return ep.Clone(), nil
}

// Update replaces the mutable fields of an existing endpoint. Id, creation
// time and status are kept from the stored value.
func (s *Store) Update(ctx context.Context, ep model.Endpoint) (model.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := (*s.snap.Load())[ep.ID]
	if !ok {
		return model.Endpoint{}, errors.NewNotFoundError("endpoint", ep.ID)
	}

	ep = ep.Clone()
	ep.Created = cur.Created
	ep.Status = cur.Status
	ep.URL = strings.TrimRight(ep.URL, "/")
	if ep.Tags == nil {
		ep.Tags = []string{}
	}
	if err := ep.Validate(); err != nil {
		return model.Endpoint{}, errors.NewValidationError(ep.ID, err.Error())
	}

	if err := s.repo.SaveEndpoint(ctx, ep); err != nil {
		return model.Endpoint{}, errors.NewStorageError("save_endpoint", err)
	}
	s.publish(func(next snapshot) { next[ep.ID] = ep })
	return ep.Clone(), nil
}

// Delete removes an endpoint.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := (*s.snap.Load())[id]; !ok {
		return errors.NewNotFoundError("endpoint", id)
	}
	if err := s.repo.DeleteEndpoint(ctx, id); err != nil {
		return errors.NewStorageError("delete_endpoint", err)
	}
	s.publish(func(next snapshot) { delete(next, id) })
	return nil
}

// SetStatus mirrors a health status onto the endpoint. Unknown ids are ignored
// since the endpoint may have been deleted while a call was in flight.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := (*s.snap.Load())[id]
	if !ok || cur.Status == status {
		return nil
	}
	cur = cur.Clone()
	cur.Status = status
	if err := s.repo.SaveEndpoint(ctx, cur); err != nil {
		return errors.NewStorageError("save_endpoint", err)
	}
	s.publish(func(next snapshot) { next[id] = cur })
	return nil
}

// publish copies the current snapshot, applies fn and swaps it in.
// Callers hold s.mu.
func (s *Store) publish(fn func(next snapshot)) {
	cur := *s.snap.Load()
	next := make(snapshot, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	fn(next)
	s.snap.Store(&next)
}
