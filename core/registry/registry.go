// Package registry manages module schemas: named, ordered field metadata
// that every entity write is validated against. The registry is constructed
// once at startup and passed by reference to every component that needs it;
// there is no ambient global lookup.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/ports"
	"github.com/rs/zerolog"
)

// Registry holds the live module schemas, backed by a ModuleStore. Reads hit
// the in-memory map; writes go through the store first.
type Registry struct {
	mu     sync.RWMutex
	store  ports.ModuleStore
	ids    ports.IDGenerator
	byName map[string]schema.Module
	byID   map[string]schema.Module
	logger zerolog.Logger
}

// New creates an empty registry. Call Load to populate it from the store.
func New(store ports.ModuleStore, ids ports.IDGenerator, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		ids:    ids,
		byName: make(map[string]schema.Module),
		byID:   make(map[string]schema.Module),
		logger: logger,
	}
}

// Load reads every stored module into memory.
func (r *Registry) Load(ctx context.Context) error {
	mods, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load modules: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]schema.Module, len(mods))
	r.byID = make(map[string]schema.Module, len(mods))
	for _, m := range mods {
		r.byName[m.Name] = m
		r.byID[m.ID] = m
	}

	r.logger.Info().Int("modules", len(mods)).Msg("module registry loaded")
	return nil
}

// CreateModule registers a new module with no fields yet.
// Returns ports.ErrDuplicate if the name is taken.
func (r *Registry) CreateModule(ctx context.Context, name, description string) (schema.Module, error) {
	if !schema.ValidModuleName(name) {
		vr := schema.OK()
		vr.AddError("name", "invalid", name, fmt.Sprintf("invalid module name %q", name))
		return schema.Module{}, vr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return schema.Module{}, fmt.Errorf("module %q: %w", name, ports.ErrDuplicate)
	}

	mod := schema.Module{
		ID:          r.ids.New(),
		Name:        name,
		Description: description,
	}

	if err := r.store.Create(ctx, mod); err != nil {
		return schema.Module{}, fmt.Errorf("create module %q: %w", name, err)
	}

	r.byName[mod.Name] = mod
	r.byID[mod.ID] = mod

	r.logger.Info().Str("module", name).Msg("module created")
	return mod, nil
}

// AddField appends a field to a module's schema. Returns ports.ErrDuplicate
// if the field name already exists in the module. Existing entities are not
// re-validated against the new schema; missing keys are tolerated on read.
func (r *Registry) AddField(ctx context.Context, moduleID string, f schema.FieldMeta) (schema.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mod, ok := r.byID[moduleID]
	if !ok {
		return schema.Module{}, fmt.Errorf("module %s: %w", moduleID, ports.ErrNotFound)
	}

	if mod.HasField(f.Name) {
		return schema.Module{}, fmt.Errorf("field %q in module %q: %w", f.Name, mod.Name, ports.ErrDuplicate)
	}
	if err := mod.CheckField(f); err != nil {
		vr := schema.OK()
		vr.AddError(f.Name, "invalid", nil, err.Error())
		return schema.Module{}, vr
	}

	mod.Fields = append(mod.Fields, f)

	if err := r.store.Update(ctx, mod); err != nil {
		return schema.Module{}, fmt.Errorf("update module %q: %w", mod.Name, err)
	}

	r.byName[mod.Name] = mod
	r.byID[mod.ID] = mod

	r.logger.Info().Str("module", mod.Name).Str("field", f.Name).Msg("field added")
	return mod, nil
}

// UpdateModule changes a module's description. The name is immutable once
// entities may reference it.
func (r *Registry) UpdateModule(ctx context.Context, moduleID, description string) (schema.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mod, ok := r.byID[moduleID]
	if !ok {
		return schema.Module{}, fmt.Errorf("module %s: %w", moduleID, ports.ErrNotFound)
	}

	mod.Description = description
	if err := r.store.Update(ctx, mod); err != nil {
		return schema.Module{}, fmt.Errorf("update module %q: %w", mod.Name, err)
	}

	r.byName[mod.Name] = mod
	r.byID[mod.ID] = mod
	return mod, nil
}

// Get returns a module by name.
func (r *Registry) Get(name string) (schema.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mod, ok := r.byName[name]
	if !ok {
		return schema.Module{}, fmt.Errorf("module %q: %w", name, ports.ErrNotFound)
	}
	return mod, nil
}

// GetByID returns a module by id.
func (r *Registry) GetByID(id string) (schema.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mod, ok := r.byID[id]
	if !ok {
		return schema.Module{}, fmt.Errorf("module %s: %w", id, ports.ErrNotFound)
	}
	return mod, nil
}

// List returns every registered module.
func (r *Registry) List() []schema.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schema.Module, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	return out
}

// Seed registers the given module definitions if they are not already
// present. Used at boot to install the default CRM modules from YAML files.
func (r *Registry) Seed(ctx context.Context, mods []schema.Module) error {
	for _, def := range mods {
		if _, err := r.Get(def.Name); err == nil {
			continue
		}

		created, err := r.CreateModule(ctx, def.Name, def.Description)
		if err != nil {
			return err
		}
		for _, f := range def.Fields {
			if _, err := r.AddField(ctx, created.ID, f); err != nil {
				return err
			}
		}
	}
	return nil
}
