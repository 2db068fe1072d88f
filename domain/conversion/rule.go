// Package conversion provides the conversion rule value types. A rule names
// a source module and the target modules to create from it, with a field
// mapping per target. The engine that executes rules lives in
// core/convert.
package conversion

import "fmt"

// MappingValue is one side of a field mapping entry: either a source field
// to copy from, or a literal default. FromField wins when both are set.
type MappingValue struct {
	FromField string `yaml:"from,omitempty" json:"from,omitempty"`
	Literal   any    `yaml:"literal,omitempty" json:"literal,omitempty"`
}

// Target describes one module to create during a conversion.
type Target struct {
	// Module is the target module name.
	Module string `yaml:"module" json:"module"`

	// Mapping maps target field names to their sources.
	Mapping map[string]MappingValue `yaml:"mapping" json:"mapping"`

	// NameFrom is the source field whose value becomes the target entity's
	// display name. Empty means the source entity's own name is reused.
	NameFrom string `yaml:"name_from,omitempty" json:"nameFrom,omitempty"`
}

// Rule is a named conversion recipe.
type Rule struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name,omitempty" json:"name,omitempty"`
	SourceModule string   `yaml:"source" json:"sourceModule"`
	Targets      []Target `yaml:"targets" json:"targets"`
}

// Check validates the structural shape of a rule.
func (r Rule) Check() error {
	if r.ID == "" {
		return fmt.Errorf("rule id must not be empty")
	}
	if r.SourceModule == "" {
		return fmt.Errorf("rule %q: source module must not be empty", r.ID)
	}
	if len(r.Targets) == 0 {
		return fmt.Errorf("rule %q: at least one target module required", r.ID)
	}
	for _, t := range r.Targets {
		if t.Module == "" {
			return fmt.Errorf("rule %q: target module must not be empty", r.ID)
		}
	}
	return nil
}
