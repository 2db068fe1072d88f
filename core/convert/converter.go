// Package convert executes conversion rules: the atomic creation of one
// or more target-module entities from a source entity, with lineage recorded
// on the source. Per (entity, rule) the state model is Unconverted ->
// Converted, terminal; re-entrant attempts fail.
package convert

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/crmgate/core/engine"
	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/core/schema"
	"github.com/artpar/crmgate/domain/authz"
	"github.com/artpar/crmgate/domain/conversion"
	"github.com/artpar/crmgate/domain/entity"
	"github.com/artpar/crmgate/domain/role"
	"github.com/artpar/crmgate/ports"
	"github.com/rs/zerolog"
)

// MappingError is returned when a rule cannot satisfy a required field of a
// target module from the source, the overrides, or a literal.
type MappingError struct {
	RuleID string
	Module string
	Fields []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("rule %s: target %s: required fields unsatisfied: %v", e.RuleID, e.Module, e.Fields)
}

// Converter executes conversion rules against the entity store.
type Converter struct {
	registry *registry.Registry
	engine   *engine.Engine
	store    ports.EntityStore
	rules    ports.RuleStore
	clock    ports.Clock
	audit    ports.AuditSink
	logger   zerolog.Logger
}

// New creates a converter.
func New(reg *registry.Registry, eng *engine.Engine, store ports.EntityStore, rules ports.RuleStore, clk ports.Clock, audit ports.AuditSink, logger zerolog.Logger) *Converter {
	return &Converter{
		registry: reg,
		engine:   eng,
		store:    store,
		rules:    rules,
		clock:    clk,
		audit:    audit,
		logger:   logger,
	}
}

// Convert turns a source entity into the rule's target entities as a single
// atomic unit: either every target is created and the source's link list
// grows, or nothing changes. Overrides supply target field values not
// covered by the mapping. Concurrent converts on the same (entity, rule) are
// serialized by a compare-and-swap on the source row; the loser observes
// ErrAlreadyConverted or ErrConflict, never a duplicate target set.
func (c *Converter) Convert(ctx context.Context, p authz.Principal, moduleName, entityID, ruleID string, overrides map[string]any) ([]entity.ConversionLink, error) {
	source, err := c.store.Get(ctx, entityID)
	if err != nil {
		return nil, err
	}

	sourceMod, err := c.registry.GetByID(source.ModuleID)
	if err != nil {
		return nil, err
	}
	if sourceMod.Name != moduleName {
		return nil, fmt.Errorf("entity %s in module %q: %w", entityID, moduleName, ports.ErrNotFound)
	}

	isOwner := source.OwnerID == p.UserID
	if !authz.IsAllowed(p.Role, role.CanConvertAny, sourceMod.Name, isOwner) {
		return nil, fmt.Errorf("convert entity %s: %w", entityID, ports.ErrForbidden)
	}

	rule, err := c.rules.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.SourceModule != sourceMod.Name {
		return nil, fmt.Errorf("rule %s applies to module %q, entity is in %q", ruleID, rule.SourceModule, sourceMod.Name)
	}

	if source.ConvertedUnder(ruleID) {
		return nil, fmt.Errorf("entity %s, rule %s: %w", entityID, ruleID, ports.ErrAlreadyConverted)
	}

	targets := make([]entity.Entity, 0, len(rule.Targets))
	links := make([]entity.ConversionLink, 0, len(rule.Targets))

	for _, t := range rule.Targets {
		targetMod, err := c.registry.Get(t.Module)
		if err != nil {
			return nil, err
		}

		data, err := buildTargetData(rule, t, targetMod.Fields, source, overrides)
		if err != nil {
			return nil, err
		}

		shaped, err := c.engine.ValidateForCreate(ctx, targetMod, data)
		if err != nil {
			return nil, fmt.Errorf("rule %s: target %s: %w", rule.ID, targetMod.Name, err)
		}

		name := source.Name
		if t.NameFrom != "" {
			if v, ok := source.Data[t.NameFrom].(string); ok && v != "" {
				name = v
			}
		}

		ent := c.engine.NewEntity(targetMod, name, source.OwnerID, shaped)
		targets = append(targets, ent)
		links = append(links, entity.ConversionLink{
			RuleID:     rule.ID,
			ModuleName: targetMod.Name,
			EntityID:   ent.ID,
			EntityName: ent.Name,
		})
	}

	expect := source.UpdatedAt
	source.ConvertedInfo = append(source.ConvertedInfo, links...)
	source.UpdatedAt = c.clock.Now().UTC()

	if err := c.store.ConvertTx(ctx, source, expect, targets); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			// Another convert landed first. Report the terminal state if the
			// winner used the same rule.
			if cur, gerr := c.store.Get(ctx, entityID); gerr == nil && cur.ConvertedUnder(ruleID) {
				return nil, fmt.Errorf("entity %s, rule %s: %w", entityID, ruleID, ports.ErrAlreadyConverted)
			}
		}
		return nil, fmt.Errorf("convert %s under rule %s: %w", entityID, ruleID, err)
	}

	c.audit.Record(ctx, ports.AuditEvent{
		Actor: p.UserID, Action: "convert", Module: sourceMod.Name, EntityID: entityID,
		Detail: "rule " + rule.ID, At: targets[0].CreatedAt,
	})
	c.logger.Info().Str("entity", entityID).Str("rule", ruleID).Int("targets", len(targets)).Msg("entity converted")

	return links, nil
}

// buildTargetData assembles a target record from the rule mapping: source
// field value first, then the caller override, then the literal default.
// Overrides may also supply fields the mapping does not cover, as long as
// the target schema knows them.
func buildTargetData(rule conversion.Rule, t conversion.Target, fields []schema.FieldMeta, source entity.Entity, overrides map[string]any) (map[string]any, error) {
	data := make(map[string]any)

	for targetField, mv := range t.Mapping {
		if mv.FromField != "" {
			if v, ok := source.Data[mv.FromField]; ok && v != nil {
				data[targetField] = v
				continue
			}
		}
		if v, ok := overrides[targetField]; ok && v != nil {
			data[targetField] = v
			continue
		}
		if mv.Literal != nil {
			data[targetField] = mv.Literal
		}
	}

	// Overrides for fields outside the mapping.
	for name, v := range overrides {
		if _, mapped := data[name]; mapped {
			continue
		}
		for _, f := range fields {
			if f.Name == name {
				data[name] = v
				break
			}
		}
	}

	// Required target fields must be satisfiable before validation so the
	// caller gets a mapping error, not a bare validation error.
	var missing []string
	for _, f := range fields {
		if f.Required && data[f.Name] == nil {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &MappingError{RuleID: rule.ID, Module: t.Module, Fields: missing}
	}

	return data, nil
}
