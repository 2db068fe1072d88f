// Package engine implements the entity store: schema-validated CRUD over
// polymorphic records. Every operation checks the authorization gate first,
// then resolves the module schema from the registry, then validates and
// shapes data before anything is persisted. A failed validation aborts the
// whole write.
package engine

import (
	"context"
	"fmt"

	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/domain/authz"
	"github.com/artpar/crmgate/domain/entity"
	"github.com/artpar/crmgate/domain/role"
	"github.com/artpar/crmgate/ports"
	"github.com/rs/zerolog"
)

// Engine orchestrates entity reads and writes.
type Engine struct {
	registry *registry.Registry
	store    ports.EntityStore
	ids      ports.IDGenerator
	clock    ports.Clock
	audit    ports.AuditSink
	logger   zerolog.Logger
}

// New creates an engine.
func New(reg *registry.Registry, store ports.EntityStore, ids ports.IDGenerator, clock ports.Clock, audit ports.AuditSink, logger zerolog.Logger) *Engine {
	return &Engine{
		registry: reg,
		store:    store,
		ids:      ids,
		clock:    clock,
		audit:    audit,
		logger:   logger,
	}
}

// Paginated is a bounded query result. Total is the size of the filtered set
// before pagination.
type Paginated struct {
	Items []entity.Entity `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Create validates data against the module schema and persists a new entity.
func (e *Engine) Create(ctx context.Context, p authz.Principal, moduleName, name string, data map[string]any) (entity.Entity, error) {
	mod, err := e.registry.Get(moduleName)
	if err != nil {
		return entity.Entity{}, err
	}

	if !authz.IsAllowed(p.Role, role.CanCreate, mod.Name, false) {
		return entity.Entity{}, fmt.Errorf("create in module %q: %w", mod.Name, ports.ErrForbidden)
	}

	if name == "" {
		vr := schema.ValidationResult{}
		vr.AddError("name", "required", nil, "display name is required")
		return entity.Entity{}, vr
	}

	coerced, err := e.shape(ctx, mod, data, false)
	if err != nil {
		return entity.Entity{}, err
	}

	now := e.clock.Now().UTC()
	ent := entity.Entity{
		ID:         e.ids.New(),
		ModuleID:   mod.ID,
		ModuleName: mod.Name,
		Name:       name,
		Data:       coerced,
		OwnerID:    p.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.store.Insert(ctx, ent); err != nil {
		return entity.Entity{}, fmt.Errorf("insert %s entity: %w", mod.Name, err)
	}

	e.audit.Record(ctx, ports.AuditEvent{
		Actor: p.UserID, Action: "create", Module: mod.Name, EntityID: ent.ID, At: now,
	})
	e.logger.Debug().Str("module", mod.Name).Str("id", ent.ID).Msg("entity created")

	return ent, nil
}

// Get retrieves an entity by id within a module. An id that resolves to a
// different module is ErrNotFound; ids are scoped to the module the caller
// addressed. A caller with no visibility right on the owning module also
// gets ErrNotFound rather than ErrForbidden, so existence is not leaked.
func (e *Engine) Get(ctx context.Context, p authz.Principal, moduleName, entityID string) (entity.Entity, error) {
	ent, err := e.store.Get(ctx, entityID)
	if err != nil {
		return entity.Entity{}, err
	}

	mod, err := e.registry.GetByID(ent.ModuleID)
	if err != nil {
		return entity.Entity{}, err
	}
	if mod.Name != moduleName {
		return entity.Entity{}, fmt.Errorf("entity %s in module %q: %w", entityID, moduleName, ports.ErrNotFound)
	}
	ent.ModuleName = mod.Name

	isOwner := ent.OwnerID == p.UserID
	if !authz.IsAllowed(p.Role, role.CanViewDetailAndEditAny, mod.Name, isOwner) {
		if !authz.CanSeeModule(p.Role, mod.Name) {
			return entity.Entity{}, fmt.Errorf("entity %s: %w", entityID, ports.ErrNotFound)
		}
		return entity.Entity{}, fmt.Errorf("view entity %s: %w", entityID, ports.ErrForbidden)
	}

	return ent, nil
}

// Update validates the provided keys, merges them onto the stored data, and
// re-checks the required-field invariant over the merged record. An explicit
// null clears an optional field. The write is guarded by a compare-and-swap
// on updated_at, so two concurrent updates never interleave partial merges.
func (e *Engine) Update(ctx context.Context, p authz.Principal, moduleName, entityID, name string, partial map[string]any) (entity.Entity, error) {
	ent, err := e.store.Get(ctx, entityID)
	if err != nil {
		return entity.Entity{}, err
	}

	mod, err := e.registry.GetByID(ent.ModuleID)
	if err != nil {
		return entity.Entity{}, err
	}
	if mod.Name != moduleName {
		return entity.Entity{}, fmt.Errorf("entity %s in module %q: %w", entityID, moduleName, ports.ErrNotFound)
	}

	isOwner := ent.OwnerID == p.UserID
	if !authz.IsAllowed(p.Role, role.CanViewDetailAndEditAny, mod.Name, isOwner) {
		return entity.Entity{}, fmt.Errorf("update entity %s: %w", entityID, ports.ErrForbidden)
	}

	coerced, err := e.shape(ctx, mod, partial, true)
	if err != nil {
		return entity.Entity{}, err
	}

	merged := make(map[string]any, len(ent.Data)+len(coerced))
	for k, v := range ent.Data {
		merged[k] = v
	}
	for k := range partial {
		v, ok := coerced[k]
		if !ok || v == nil {
			delete(merged, k) // explicit null clears the field
			continue
		}
		merged[k] = v
	}

	vr := schema.OK()
	checkRequired(mod, merged, &vr)
	if !vr.Valid {
		return entity.Entity{}, vr
	}

	expect := ent.UpdatedAt
	ent.Data = merged
	ent.ModuleName = mod.Name
	if name != "" {
		ent.Name = name
	}
	ent.UpdatedAt = e.clock.Now().UTC()

	if err := e.store.Update(ctx, ent, expect); err != nil {
		return entity.Entity{}, fmt.Errorf("update %s entity: %w", mod.Name, err)
	}

	e.audit.Record(ctx, ports.AuditEvent{
		Actor: p.UserID, Action: "update", Module: mod.Name, EntityID: ent.ID, At: ent.UpdatedAt,
	})

	return ent, nil
}

// Delete removes a batch of entities from one module. An id belonging to a
// different module aborts the batch with ErrNotFound. Authorization is
// checked per entity before any deletion executes; a single disallowed id
// aborts the whole batch. The deletion itself is one transaction.
func (e *Engine) Delete(ctx context.Context, p authz.Principal, moduleName string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	modules := make([]string, 0, len(ids))
	for _, id := range ids {
		ent, err := e.store.Get(ctx, id)
		if err != nil {
			return err
		}
		mod, err := e.registry.GetByID(ent.ModuleID)
		if err != nil {
			return err
		}
		if mod.Name != moduleName {
			return fmt.Errorf("entity %s in module %q: %w", id, moduleName, ports.ErrNotFound)
		}

		isOwner := ent.OwnerID == p.UserID
		if !authz.IsAllowed(p.Role, role.CanDeleteAny, mod.Name, isOwner) {
			return fmt.Errorf("delete entity %s: %w", id, ports.ErrForbidden)
		}
		modules = append(modules, mod.Name)
	}

	if err := e.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}

	now := e.clock.Now().UTC()
	for i, id := range ids {
		e.audit.Record(ctx, ports.AuditEvent{
			Actor: p.UserID, Action: "delete", Module: modules[i], EntityID: id, At: now,
		})
	}

	return nil
}

// Query returns a bounded page of a module's entities. Filter keys must be
// field names from the module's schema; filter values are coerced to the
// field's type before they reach the store, so a "100" from a query string
// matches a stored JSON number.
func (e *Engine) Query(ctx context.Context, moduleName string, opts ports.QueryOptions) (Paginated, error) {
	mod, err := e.registry.Get(moduleName)
	if err != nil {
		return Paginated{}, err
	}

	vr := schema.OK()
	for key, values := range opts.Filters {
		f := mod.Field(key)
		if f == nil {
			vr.AddError(key, "unknown_field", nil, fmt.Sprintf("module %q has no field %q", mod.Name, key))
			continue
		}
		coerced := make([]any, 0, len(values))
		for _, v := range values {
			cv, ferr := schema.Coerce(*f, v)
			if ferr != nil {
				vr.Errors = append(vr.Errors, *ferr)
				vr.Valid = false
				continue
			}
			coerced = append(coerced, cv)
		}
		opts.Filters[key] = coerced
	}
	if !vr.Valid {
		return Paginated{}, vr
	}

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.Limit > maxLimit {
		opts.Limit = maxLimit
	}

	items, total, err := e.store.List(ctx, mod.ID, opts)
	if err != nil {
		return Paginated{}, fmt.Errorf("query %s: %w", mod.Name, err)
	}
	for i := range items {
		items[i].ModuleName = mod.Name
	}

	return Paginated{Items: items, Total: total, Page: opts.Page, Limit: opts.Limit}, nil
}

// ValidateForCreate shapes data exactly as Create would, without persisting.
// The conversion engine uses it to validate target records before its
// transaction.
func (e *Engine) ValidateForCreate(ctx context.Context, mod schema.Module, data map[string]any) (map[string]any, error) {
	return e.shape(ctx, mod, data, false)
}

// NewEntity assembles an entity value the way Create would, for callers that
// persist through their own transactional boundary.
func (e *Engine) NewEntity(mod schema.Module, name, ownerID string, data map[string]any) entity.Entity {
	now := e.clock.Now().UTC()
	return entity.Entity{
		ID:         e.ids.New(),
		ModuleID:   mod.ID,
		ModuleName: mod.Name,
		Name:       name,
		Data:       data,
		OwnerID:    ownerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// shape validates and coerces data against the module schema. Unknown keys
// are rejected. When partial is false, required fields must be present with
// non-null values. Relation values must point at existing entities in the
// target module.
func (e *Engine) shape(ctx context.Context, mod schema.Module, data map[string]any, partial bool) (map[string]any, error) {
	vr := schema.OK()
	coerced := make(map[string]any, len(data))

	for key, raw := range data {
		f := mod.Field(key)
		if f == nil {
			vr.AddError(key, "unknown_field", nil, fmt.Sprintf("module %q has no field %q", mod.Name, key))
			continue
		}

		if raw == nil {
			if f.Required {
				vr.AddError(key, "required", nil, "field is required")
			}
			continue
		}

		val, ferr := schema.Coerce(*f, raw)
		if ferr != nil {
			vr.Errors = append(vr.Errors, *ferr)
			vr.Valid = false
			continue
		}
		coerced[key] = val
	}

	if !partial {
		checkRequired(mod, coerced, &vr)
	}
	if !vr.Valid {
		return nil, vr
	}

	if err := e.checkRelations(ctx, mod, coerced, &vr); err != nil {
		return nil, err
	}
	if !vr.Valid {
		return nil, vr
	}

	return coerced, nil
}

// checkRequired enforces the required-field invariant over a full record.
func checkRequired(mod schema.Module, data map[string]any, vr *schema.ValidationResult) {
	for _, f := range mod.RequiredFields() {
		if v, ok := data[f.Name]; !ok || v == nil {
			vr.AddError(f.Name, "required", nil, "field is required")
		}
	}
}

// checkRelations verifies every relation value points at an existing entity
// in the relate_to module. This is the referential half of relation
// validation; syntax is checked by schema.Coerce.
func (e *Engine) checkRelations(ctx context.Context, mod schema.Module, data map[string]any, vr *schema.ValidationResult) error {
	for _, f := range mod.Fields {
		if f.Type != schema.FieldTypeRelation {
			continue
		}
		raw, ok := data[f.Name]
		if !ok || raw == nil {
			continue
		}
		id, _ := raw.(string)

		target, err := e.registry.Get(f.RelateTo)
		if err != nil {
			return fmt.Errorf("field %q: relate_to module %q: %w", f.Name, f.RelateTo, err)
		}

		exists, err := e.store.Exists(ctx, target.ID, id)
		if err != nil {
			return fmt.Errorf("field %q: check relation: %w", f.Name, err)
		}
		if !exists {
			vr.AddError(f.Name, "relation", id,
				fmt.Sprintf("no %s entity with id %q", target.Name, id))
		}
	}
	return nil
}
