// Package catalog holds the enumerated API surface, partitioned by service.
package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/errors"
	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// Source produces a catalog.
type Source interface {
	Load(ctx context.Context) (model.APICatalog, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (model.APICatalog, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context) (model.APICatalog, error) {
	return f(ctx)
}

// Catalog serves lookups from an immutable snapshot. Replace and Reload
// publish a new snapshot; readers never block.
type Catalog struct {
	mu   sync.Mutex
	snap atomic.Pointer[model.APICatalog]
}

// New creates a catalog holding the valid definitions of c.
func New(c model.APICatalog) (*Catalog, error) {
	cat := &Catalog{}
	err := cat.Replace(c)
	return cat, err
}

// Empty creates a catalog with no definitions.
func Empty() *Catalog {
	cat := &Catalog{}
	empty := model.NewAPICatalog()
	cat.snap.Store(&empty)
	return cat
}

// RejectedError lists the definitions Replace dropped. The valid rest of
// the catalog was published.
type RejectedError struct {
	Errs []error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%d catalog definitions rejected: %v", len(e.Errs), stderrors.Join(e.Errs...))
}

func (e *RejectedError) Unwrap() []error {
	return e.Errs
}

// IsRejected reports whether err only reports dropped definitions.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return stderrors.As(err, &rejected)
}

// Replace validates every definition of c and publishes the valid ones.
// Rejected definitions are reported as a *RejectedError.
func (c *Catalog) Replace(src model.APICatalog) error {
	next, err := sanitize(src)

	c.mu.Lock()
	c.snap.Store(&next)
	c.mu.Unlock()
	return err
}

// Reload loads src and replaces the catalog. A source failure leaves the
// current snapshot in place.
func (c *Catalog) Reload(ctx context.Context, src Source) error {
	loaded, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	return c.Replace(loaded)
}

// Lookup returns the definition id of service.
func (c *Catalog) Lookup(service, id string) (model.APIDefinition, error) {
	def, ok := c.snap.Load().Partition(service)[id]
	if !ok {
		return model.APIDefinition{}, errors.NewNotFoundError("definition", service+"/"+id)
	}
	return cloneDef(def), nil
}

// Find returns the first definition with the given id in service order.
func (c *Catalog) Find(id string) (model.APIDefinition, error) {
	snap := c.snap.Load()
	for _, t := range model.EndpointTypes {
		if def, ok := snap.Partition(string(t))[id]; ok {
			return cloneDef(def), nil
		}
	}
	return model.APIDefinition{}, errors.NewNotFoundError("definition", id)
}

// Service returns the definitions of one service sorted by id.
func (c *Catalog) Service(service string) []model.APIDefinition {
	return sorted(c.snap.Load().Partition(service), nil)
}

// All returns every definition sorted by service, then id.
func (c *Catalog) All() []model.APIDefinition {
	return c.filter(nil)
}

// Search returns definitions whose description, path, category, method or
// tags contain query, case-insensitively.
func (c *Catalog) Search(query string) []model.APIDefinition {
	query = strings.ToLower(strings.TrimSpace(query))
	return c.filter(func(d model.APIDefinition) bool {
		text := strings.ToLower(strings.Join([]string{
			d.ID, d.Description, d.Path, d.Category, d.Method, strings.Join(d.Tags, " "),
		}, " "))
		return strings.Contains(text, query)
	})
}

// ByCategory returns the definitions of a category across services.
func (c *Catalog) ByCategory(category string) []model.APIDefinition {
	return c.filter(func(d model.APIDefinition) bool {
		return strings.EqualFold(d.Category, category)
	})
}

// Categories returns the distinct category names, sorted.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	for _, d := range c.All() {
		if d.Category != "" {
			seen[d.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the current catalog.
func (c *Catalog) Snapshot() model.APICatalog {
	snap := c.snap.Load()
	out := model.NewAPICatalog()
	out.LastUpdated = snap.LastUpdated
	for _, t := range model.EndpointTypes {
		for id, def := range snap.Partition(string(t)) {
			out.Partition(string(t))[id] = cloneDef(def)
		}
	}
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return c.snap.Load().Len()
}

func (c *Catalog) filter(keep func(model.APIDefinition) bool) []model.APIDefinition {
	snap := c.snap.Load()
	var out []model.APIDefinition
	for _, t := range model.EndpointTypes {
		out = append(out, sorted(snap.Partition(string(t)), keep)...)
	}
	return out
}

func sorted(part map[string]model.APIDefinition, keep func(model.APIDefinition) bool) []model.APIDefinition {
	out := make([]model.APIDefinition, 0, len(part))
	for _, def := range part {
		if keep == nil || keep(def) {
			out = append(out, cloneDef(def))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sanitize fills ids and services from the map position, validates each
// definition and drops the invalid ones.
func sanitize(src model.APICatalog) (model.APICatalog, error) {
	next := model.NewAPICatalog()
	if !src.LastUpdated.IsZero() {
		next.LastUpdated = src.LastUpdated
	} else {
		next.LastUpdated = time.Now().UTC()
	}

	var errs []error
	for _, t := range model.EndpointTypes {
		for key, def := range src.Partition(string(t)) {
			if def.ID == "" {
				def.ID = key
			}
			if def.Service == "" {
				def.Service = string(t)
			}
			def.Method = model.NormalizeMethod(def.Method)
			if def.Service != string(t) {
				errs = append(errs, fmt.Errorf("definition %s: service %q filed under %q", def.ID, def.Service, t))
				continue
			}
			if err := next.Add(def); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return next, &RejectedError{Errs: errs}
	}
	return next, nil
}

func cloneDef(d model.APIDefinition) model.APIDefinition {
	d.Params = append([]string(nil), d.Params...)
	if d.Tags != nil {
		d.Tags = append([]string(nil), d.Tags...)
	}
	return d
}
