package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/domain/conversion"
	"github.com/artpar/crmgate/domain/role"
	"github.com/artpar/crmgate/ports"
)

// ModuleStore is an in-memory implementation of ports.ModuleStore.
type ModuleStore struct {
	mu      sync.RWMutex
	modules map[string]schema.Module // by ID
}

// NewModuleStore creates a new in-memory module store.
func NewModuleStore() *ModuleStore {
	return &ModuleStore{modules: make(map[string]schema.Module)}
}

// Create stores a new module.
func (s *ModuleStore) Create(ctx context.Context, mod schema.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.modules {
		if m.Name == mod.Name {
			return ports.ErrDuplicate
		}
	}
	s.modules[mod.ID] = mod
	return nil
}

// Update replaces a stored module definition.
func (s *ModuleStore) Update(ctx context.Context, mod schema.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modules[mod.ID]; !ok {
		return ports.ErrNotFound
	}
	s.modules[mod.ID] = mod
	return nil
}

// List returns every stored module, ordered by name.
func (s *ModuleStore) List(ctx context.Context) ([]schema.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schema.Module, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RoleStore is an in-memory implementation of ports.RoleStore.
type RoleStore struct {
	mu    sync.RWMutex
	roles map[string]role.Role
}

// NewRoleStore creates a new in-memory role store.
func NewRoleStore() *RoleStore {
	return &RoleStore{roles: make(map[string]role.Role)}
}

// Create stores a new role.
func (s *RoleStore) Create(ctx context.Context, r role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.roles {
		if existing.Name == r.Name {
			return ports.ErrDuplicate
		}
	}
	s.roles[r.ID] = r
	return nil
}

// Get retrieves a role by id.
func (s *RoleStore) Get(ctx context.Context, id string) (role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return role.Role{}, fmt.Errorf("role %s: %w", id, ports.ErrNotFound)
	}
	return r, nil
}

// Update modifies an existing role.
func (s *RoleStore) Update(ctx context.Context, r role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[r.ID]; !ok {
		return ports.ErrNotFound
	}
	s.roles[r.ID] = r
	return nil
}

// List returns every role, ordered by name.
func (s *RoleStore) List(ctx context.Context) ([]role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]role.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RuleStore is an in-memory implementation of ports.RuleStore.
type RuleStore struct {
	mu    sync.RWMutex
	rules map[string]conversion.Rule
}

// NewRuleStore creates a new in-memory conversion rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{rules: make(map[string]conversion.Rule)}
}

// Create stores a new conversion rule.
func (s *RuleStore) Create(ctx context.Context, r conversion.Rule) error {
	if err := r.Check(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[r.ID]; exists {
		return ports.ErrDuplicate
	}
	s.rules[r.ID] = r
	return nil
}

// Get retrieves a conversion rule by id.
func (s *RuleStore) Get(ctx context.Context, id string) (conversion.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return conversion.Rule{}, fmt.Errorf("rule %s: %w", id, ports.ErrNotFound)
	}
	return r, nil
}

// List returns every conversion rule, ordered by id.
func (s *RuleStore) List(ctx context.Context) ([]conversion.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]conversion.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// IngestStore is an in-memory implementation of ports.IngestStore.
type IngestStore struct {
	mu   sync.RWMutex
	seen map[string]string // "source\x00externalID" -> entityID
}

// NewIngestStore creates a new in-memory ingest dedup store.
func NewIngestStore() *IngestStore {
	return &IngestStore{seen: make(map[string]string)}
}

func ingestKey(source, externalID string) string {
	return source + "\x00" + externalID
}

// Lookup returns the entity id recorded for (source, externalID).
func (s *IngestStore) Lookup(ctx context.Context, source, externalID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.seen[ingestKey(source, externalID)]
	if !ok {
		return "", ports.ErrNotFound
	}
	return id, nil
}

// Record stores the dedup key.
func (s *IngestStore) Record(ctx context.Context, source, externalID, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ingestKey(source, externalID)
	if _, exists := s.seen[key]; exists {
		return ports.ErrDuplicate
	}
	s.seen[key] = entityID
	return nil
}

// AuditSink is an in-memory audit sink that captures events for assertions.
type AuditSink struct {
	mu     sync.Mutex
	Events []ports.AuditEvent
}

// NewAuditSink creates a capturing audit sink.
func NewAuditSink() *AuditSink {
	return &AuditSink{}
}

// Record appends the event.
func (s *AuditSink) Record(ctx context.Context, ev ports.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
}
