// Package role provides the authorization primitives: an Action names a
// permitted operation scoped to a module (or globally), a Role is a named
// bundle of Actions assigned to a principal.
// This package has NO dependencies on I/O or external packages.
package role

// ActionType is the closed set of grantable operations.
type ActionType string

const (
	// CanViewDetailAndEditAny grants detail view and edit on every record of
	// the target module.
	CanViewDetailAndEditAny ActionType = "CAN_VIEW_DETAIL_AND_EDIT_ANY"

	// CanDeleteAny grants delete on every record of the target module.
	CanDeleteAny ActionType = "CAN_DELETE_ANY"

	// CanConvertAny grants conversion on every record of the target module.
	CanConvertAny ActionType = "CAN_CONVERT_ANY"

	// CanCreate grants record creation in the target module.
	CanCreate ActionType = "CAN_CREATE"

	// IsAdmin grants everything, everywhere. Target is "admin".
	IsAdmin ActionType = "IS_ADMIN"
)

// KnownActionTypes lists every valid action type.
var KnownActionTypes = []ActionType{
	CanViewDetailAndEditAny,
	CanDeleteAny,
	CanConvertAny,
	CanCreate,
	IsAdmin,
}

// Valid reports whether t is a member of the closed action type set.
func (t ActionType) Valid() bool {
	for _, k := range KnownActionTypes {
		if t == k {
			return true
		}
	}
	return false
}

// AdminTarget is the target used for global actions.
const AdminTarget = "admin"

// Action names a permitted operation scoped to a module (or globally).
type Action struct {
	ID     string     `json:"id"`
	Type   ActionType `json:"type"`
	Target string     `json:"target"` // module name, or "admin" for IS_ADMIN
}

// Role is a named bundle of actions.
type Role struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Actions []Action `json:"actions"`
}

// IsAdmin reports whether the role carries the global admin action.
func (r Role) IsAdmin() bool {
	for _, a := range r.Actions {
		if a.Type == IsAdmin {
			return true
		}
	}
	return false
}

// Allows reports whether the role carries an action of the given type scoped
// to the given module.
func (r Role) Allows(t ActionType, module string) bool {
	for _, a := range r.Actions {
		if a.Type == t && a.Target == module {
			return true
		}
	}
	return false
}
