// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/domain/conversion"
	"github.com/artpar/crmgate/domain/entity"
	"github.com/artpar/crmgate/domain/role"
)

// Sentinel errors shared by every store implementation.
var (
	// ErrNotFound is returned when a module, entity, role or rule is
	// unresolvable.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned on module/field/role name collisions.
	ErrDuplicate = errors.New("already exists")

	// ErrConflict is returned when a concurrent mutation race is lost
	// (compare-and-swap on updated_at failed).
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrForbidden is returned when the authorization gate denies an action.
	ErrForbidden = errors.New("action not allowed")

	// ErrAlreadyConverted is returned on a re-conversion attempt under the
	// same rule.
	ErrAlreadyConverted = errors.New("entity already converted under this rule")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ModuleStore persists module schemas.
type ModuleStore interface {
	// Create stores a new module. Returns ErrDuplicate on a name collision.
	Create(ctx context.Context, mod schema.Module) error

	// Update replaces a stored module definition (used when fields change).
	Update(ctx context.Context, mod schema.Module) error

	// List returns every stored module.
	List(ctx context.Context) ([]schema.Module, error)
}

// QueryOptions configures entity list queries.
type QueryOptions struct {
	// Filters are field-name constraints; one value means equality, several
	// mean set membership. Field names must come from the module's schema.
	Filters map[string][]any

	// Search is a case-insensitive substring match against the entity name.
	Search string

	// Page is 1-indexed.
	Page int

	// Limit bounds the page size.
	Limit int
}

// EntityStore persists records.
type EntityStore interface {
	// Insert stores a new entity.
	Insert(ctx context.Context, e entity.Entity) error

	// Get retrieves an entity by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (entity.Entity, error)

	// Update replaces the mutable parts of an entity. The write only lands
	// if the stored updated_at still equals expect; otherwise ErrConflict.
	Update(ctx context.Context, e entity.Entity, expect time.Time) error

	// Delete removes the given entities in a single transaction.
	Delete(ctx context.Context, ids []string) error

	// List returns a page of entities for a module plus the total count of
	// the filtered set before pagination.
	List(ctx context.Context, moduleID string, opts QueryOptions) ([]entity.Entity, int64, error)

	// ListRefs returns the {id, name} projection of every entity in a module.
	ListRefs(ctx context.Context, moduleID string) ([]entity.Ref, error)

	// Exists reports whether an entity with the given id exists in a module.
	Exists(ctx context.Context, moduleID, id string) (bool, error)

	// ConvertTx atomically inserts the target entities and appends the
	// conversion links to the source. The source write is guarded by a
	// compare-and-swap on expect; the loser of a concurrent conversion gets
	// ErrConflict and no target rows.
	ConvertTx(ctx context.Context, source entity.Entity, expect time.Time, targets []entity.Entity) error
}

// RoleStore persists roles and their actions.
type RoleStore interface {
	Create(ctx context.Context, r role.Role) error
	Get(ctx context.Context, id string) (role.Role, error)
	Update(ctx context.Context, r role.Role) error
	List(ctx context.Context) ([]role.Role, error)
}

// RuleStore persists conversion rules.
type RuleStore interface {
	Create(ctx context.Context, r conversion.Rule) error
	Get(ctx context.Context, id string) (conversion.Rule, error)
	List(ctx context.Context) ([]conversion.Rule, error)
}

// IngestStore records webhook ingestion dedup keys so a redelivered external
// lead maps back to the entity created the first time.
type IngestStore interface {
	// Lookup returns the entity id previously recorded for (source,
	// externalID), or ErrNotFound.
	Lookup(ctx context.Context, source, externalID string) (string, error)

	// Record stores the dedup key. Returns ErrDuplicate if already recorded.
	Record(ctx context.Context, source, externalID, entityID string) error
}

// -----------------------------------------------------------------------------
// Collaborator Ports
// -----------------------------------------------------------------------------

// AuditEvent describes one audited operation.
type AuditEvent struct {
	Actor    string
	Action   string
	Module   string
	EntityID string
	Detail   string
	At       time.Time
}

// AuditSink is a write-only audit trail. Persistence is an external concern;
// failures must never block the operation being audited.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent)
}
