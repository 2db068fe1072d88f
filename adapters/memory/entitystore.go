// Package memory provides in-memory implementations of the storage ports,
// used by tests and as a reference for semantics the SQLite adapter must
// match.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/crmgate/domain/entity"
	"github.com/artpar/crmgate/ports"
)

// EntityStore is an in-memory implementation of ports.EntityStore.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[string]entity.Entity
	order    []string // insertion order, stands in for created_at ordering
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{entities: make(map[string]entity.Entity)}
}

// Insert stores a new entity.
func (s *EntityStore) Insert(ctx context.Context, e entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[e.ID]; exists {
		return ports.ErrDuplicate
	}
	s.entities[e.ID] = cloneEntity(e)
	s.order = append(s.order, e.ID)
	return nil
}

// Get retrieves an entity by id.
func (s *EntityStore) Get(ctx context.Context, id string) (entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return entity.Entity{}, fmt.Errorf("entity %s: %w", id, ports.ErrNotFound)
	}
	return cloneEntity(e), nil
}

// Update replaces an entity if the stored updated_at still matches expect.
func (s *EntityStore) Update(ctx context.Context, e entity.Entity, expect time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entities[e.ID]
	if !ok {
		return fmt.Errorf("entity %s: %w", e.ID, ports.ErrNotFound)
	}
	if !cur.UpdatedAt.Equal(expect) {
		return ports.ErrConflict
	}
	s.entities[e.ID] = cloneEntity(e)
	return nil
}

// Delete removes the given entities; all or none.
func (s *EntityStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.entities[id]; !ok {
			return fmt.Errorf("entity %s: %w", id, ports.ErrNotFound)
		}
	}
	for _, id := range ids {
		delete(s.entities, id)
	}

	remaining := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.entities[id]; ok {
			remaining = append(remaining, id)
		}
	}
	s.order = remaining
	return nil
}

// List returns a page of a module's entities plus the total filtered count.
func (s *EntityStore) List(ctx context.Context, moduleID string, opts ports.QueryOptions) ([]entity.Entity, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []entity.Entity
	for _, id := range s.order {
		e := s.entities[id]
		if e.ModuleID != moduleID {
			continue
		}
		if !matchesFilters(e, opts.Filters) {
			continue
		}
		if opts.Search != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(opts.Search)) {
			continue
		}
		matched = append(matched, cloneEntity(e))
	}

	total := int64(len(matched))

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// ListRefs returns the {id, name} projection of every entity in a module.
func (s *EntityStore) ListRefs(ctx context.Context, moduleID string) ([]entity.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []entity.Ref
	for _, e := range s.entities {
		if e.ModuleID == moduleID {
			refs = append(refs, entity.Ref{ID: e.ID, Name: e.Name})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Exists reports whether an entity with the given id exists in a module.
func (s *EntityStore) Exists(ctx context.Context, moduleID, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	return ok && e.ModuleID == moduleID, nil
}

// ConvertTx atomically inserts the targets and writes the source's appended
// links, guarded by the updated_at compare-and-swap. The source row lands
// with the timestamps the caller stamped; the store never reads the wall
// clock.
func (s *EntityStore) ConvertTx(ctx context.Context, source entity.Entity, expect time.Time, targets []entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entities[source.ID]
	if !ok {
		return fmt.Errorf("entity %s: %w", source.ID, ports.ErrNotFound)
	}
	if !cur.UpdatedAt.Equal(expect) {
		return ports.ErrConflict
	}
	for _, t := range targets {
		if _, exists := s.entities[t.ID]; exists {
			return ports.ErrDuplicate
		}
	}

	for _, t := range targets {
		s.entities[t.ID] = cloneEntity(t)
		s.order = append(s.order, t.ID)
	}
	s.entities[source.ID] = cloneEntity(source)
	return nil
}

func matchesFilters(e entity.Entity, filters map[string][]any) bool {
	for key, values := range filters {
		if len(values) == 0 {
			continue
		}
		val, ok := e.Data[key]
		if !ok {
			return false
		}
		found := false
		for _, want := range values {
			if filterValueEqual(want, val) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// filterValueEqual compares a filter value against a stored value the way
// SQLite's json_extract comparison does: numbers compare numerically across
// integer and float shapes, everything else requires matching types. A text
// "100" does not equal the number 100.
func filterValueEqual(want, got any) bool {
	if wf, ok := asNumber(want); ok {
		gf, ok := asNumber(got)
		return ok && wf == gf
	}
	switch w := want.(type) {
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case string:
		g, ok := got.(string)
		return ok && g == w
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func cloneEntity(e entity.Entity) entity.Entity {
	data := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		data[k] = v
	}
	links := make([]entity.ConversionLink, len(e.ConvertedInfo))
	copy(links, e.ConvertedInfo)
	e.Data = data
	e.ConvertedInfo = links
	return e
}
