package schema

import "fmt"

// Module is a named, administrator-defined record schema. Field order is
// preserved as defined; groups and per-view visibility drive rendering but
// carry no validation weight.
type Module struct {
	ID          string      `yaml:"-" json:"id"`
	Name        string      `yaml:"module" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Fields      []FieldMeta `yaml:"fields" json:"fields"`
}

// Field returns the field metadata for name, or nil if the module has no
// field with that name.
func (m *Module) Field(name string) *FieldMeta {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}

// HasField reports whether the module defines a field with the given name.
func (m *Module) HasField(name string) bool {
	return m.Field(name) != nil
}

// RequiredFields returns the fields that must carry a non-null value.
func (m *Module) RequiredFields() []FieldMeta {
	var out []FieldMeta
	for _, f := range m.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// CheckField validates a field definition before it is added to a module.
func (m *Module) CheckField(f FieldMeta) error {
	if !ValidFieldName(f.Name) {
		return fmt.Errorf("invalid field name %q", f.Name)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
	}
	if f.Type == FieldTypeRelation && f.RelateTo == "" {
		return fmt.Errorf("field %q: relation fields require relate_to", f.Name)
	}
	if f.Type != FieldTypeRelation && f.RelateTo != "" {
		return fmt.Errorf("field %q: relate_to is only valid on relation fields", f.Name)
	}
	if f.Type == FieldTypeSelect && len(f.Options) == 0 {
		return fmt.Errorf("field %q: select fields require options", f.Name)
	}
	return nil
}
