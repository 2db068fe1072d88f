// Package relation resolves relation-typed field values to lightweight
// cross-module references. Records store ids only; callers join by id and
// never receive the full target entity through this package.
package relation

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/domain/entity"
	"github.com/artpar/crmgate/ports"
)

// Resolver projects entities of a module down to {id, name} pairs.
type Resolver struct {
	registry *registry.Registry
	store    ports.EntityStore
}

// New creates a resolver.
func New(reg *registry.Registry, store ports.EntityStore) *Resolver {
	return &Resolver{registry: reg, store: store}
}

// ResolveRaw returns the {id, name} projection of every entity in a module.
// Used to populate relation pickers.
func (r *Resolver) ResolveRaw(ctx context.Context, moduleName string) ([]entity.Ref, error) {
	mod, err := r.registry.Get(moduleName)
	if err != nil {
		return nil, err
	}

	refs, err := r.store.ListRefs(ctx, mod.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s refs: %w", mod.Name, err)
	}
	return refs, nil
}

// ResolveOne returns the {id, name} projection of a single entity, or nil if
// no entity with that id exists in the module.
func (r *Resolver) ResolveOne(ctx context.Context, moduleName, entityID string) (*entity.Ref, error) {
	mod, err := r.registry.Get(moduleName)
	if err != nil {
		return nil, err
	}

	ent, err := r.store.Get(ctx, entityID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if ent.ModuleID != mod.ID {
		return nil, nil
	}

	return &entity.Ref{ID: ent.ID, Name: ent.Name}, nil
}
