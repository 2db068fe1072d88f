// Package authz implements the authorization gate as a pure function. It is
// invoked explicitly at the start of every mutating and detail-sensitive
// operation, never as web-framework middleware.
package authz

import "github.com/artpar/crmgate/domain/role"

// Principal is the authenticated caller: a user id plus the role assigned to
// it. Role resolution is the job of an external auth collaborator.
type Principal struct {
	UserID string
	Role   role.Role
}

// selfService is the fixed subset of action types that ownership grants on a
// principal's own records, independent of any role-granted action.
var selfService = map[role.ActionType]bool{
	role.CanViewDetailAndEditAny: true,
	role.CanDeleteAny:            true,
	role.CanConvertAny:           true,
}

// IsAllowed decides whether a role may perform an action on a module.
// Two independent allow paths: role scope (admin or an explicit action for
// this module) and ownership (self-service subset on the caller's own
// records). Ownership never restricts, it only adds.
func IsAllowed(r role.Role, action role.ActionType, module string, isOwner bool) bool {
	if r.IsAdmin() {
		return true
	}
	if r.Allows(action, module) {
		return true
	}
	if isOwner && selfService[action] {
		return true
	}
	return false
}

// CanSeeModule reports whether the principal has any visibility right on the
// module at all: admin, or any action scoped to it. Callers with no
// visibility right get NotFound rather than Forbidden so record existence is
// not leaked.
func CanSeeModule(r role.Role, module string) bool {
	if r.IsAdmin() {
		return true
	}
	for _, a := range r.Actions {
		if a.Target == module {
			return true
		}
	}
	return false
}
