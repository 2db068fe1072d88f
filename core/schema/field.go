// Package schema defines the metadata types for CRM modules: field kinds,
// field metadata, and module definitions. A module is a named record shape
// (Lead, Contact, Deal, ...) that the entity engine validates data against.
package schema

// FieldType is the closed set of field kinds a module field can have.
type FieldType string

const (
	FieldTypeText          FieldType = "text"
	FieldTypeMultilineText FieldType = "multiline_text"
	FieldTypeNumber        FieldType = "number"
	FieldTypeDate          FieldType = "date"
	FieldTypeEmail         FieldType = "email"
	FieldTypePhone         FieldType = "phone"
	FieldTypeCheckbox      FieldType = "checkbox"

	// FieldTypeSelect requires Options on the FieldMeta.
	FieldTypeSelect FieldType = "select"

	// FieldTypeRelation requires RelateTo on the FieldMeta. The value is the
	// id of an entity in the target module. Existence is checked by the
	// entity engine at write time; this package only checks id syntax.
	FieldTypeRelation FieldType = "relation"
)

// KnownFieldTypes lists every valid field type.
var KnownFieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeMultilineText,
	FieldTypeNumber,
	FieldTypeDate,
	FieldTypeEmail,
	FieldTypePhone,
	FieldTypeCheckbox,
	FieldTypeSelect,
	FieldTypeRelation,
}

// Valid reports whether t is a member of the closed field type set.
func (t FieldType) Valid() bool {
	for _, k := range KnownFieldTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ViewName identifies a UI surface a field can be visible in.
type ViewName string

const (
	ViewList   ViewName = "list"
	ViewDetail ViewName = "detail"
	ViewCreate ViewName = "create"
	ViewEdit   ViewName = "edit"
)

// FieldMeta is the schema definition of one field within a module.
type FieldMeta struct {
	// Name is unique within the owning module.
	Name string `yaml:"name" json:"name"`

	// Type is the field kind. See FieldType constants.
	Type FieldType `yaml:"type" json:"type"`

	// Group is the display group the field belongs to (e.g. "Contact Info").
	Group string `yaml:"group,omitempty" json:"group,omitempty"`

	// Required indicates the field must carry a non-null value on create,
	// and must remain non-null after every update.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// VisibleIn lists the views this field appears in.
	VisibleIn []ViewName `yaml:"visible_in,omitempty" json:"visibleIn,omitempty"`

	// Options lists valid values for select fields.
	Options []string `yaml:"options,omitempty" json:"options,omitempty"`

	// RelateTo is the target module name for relation fields.
	RelateTo string `yaml:"relate_to,omitempty" json:"relateTo,omitempty"`

	// MaxLength bounds text and multiline text values. Zero means unbounded.
	MaxLength int `yaml:"max_length,omitempty" json:"maxLength,omitempty"`
}

// VisibleOn reports whether the field is visible in the given view.
func (f FieldMeta) VisibleOn(v ViewName) bool {
	for _, name := range f.VisibleIn {
		if name == v {
			return true
		}
	}
	return false
}
