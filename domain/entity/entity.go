// Package entity provides the record value types stored by the entity
// engine. An Entity belongs to exactly one module; its Data map holds only
// keys defined by the owning module's schema.
package entity

import "time"

// Entity is a single record belonging to one module.
type Entity struct {
	ID         string         `json:"id"`
	ModuleID   string         `json:"moduleId"`
	ModuleName string         `json:"moduleName"`

	// Name is the display label, always present.
	Name string `json:"name"`

	// Data holds the field values keyed by field name. Unknown keys are
	// rejected on write; keys missing from the current schema are tolerated
	// on read.
	Data map[string]any `json:"data"`

	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// ConvertedInfo records the targets produced each time this entity was
	// converted. Append-only; an entity is never un-converted.
	ConvertedInfo []ConversionLink `json:"convertedInfo"`
}

// ConversionLink records one target entity produced by a conversion.
type ConversionLink struct {
	RuleID     string `json:"ruleId"`
	ModuleName string `json:"moduleName"`
	EntityID   string `json:"entityId"`
	EntityName string `json:"entityName"`
}

// ConvertedUnder reports whether the entity has already been converted under
// the given rule.
func (e Entity) ConvertedUnder(ruleID string) bool {
	for _, l := range e.ConvertedInfo {
		if l.RuleID == ruleID {
			return true
		}
	}
	return false
}

// Ref is the lightweight cross-module projection used by relation pickers
// and labels. Resolution never embeds the full target entity.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
