// Package auth provides the reference authenticator. Real deployments sit
// behind an external identity collaborator (API gateway, SSO proxy) that
// injects the caller identity; this adapter trusts the headers that
// collaborator sets.
package auth

import (
	"errors"
	"net/http"

	"github.com/artpar/crmgate/domain/authz"
	"github.com/artpar/crmgate/ports"
)

// ErrUnauthenticated is returned when no principal can be derived from the
// request.
var ErrUnauthenticated = errors.New("unauthenticated")

// Header names set by the upstream auth collaborator.
const (
	HeaderUserID = "X-User-Id"
	HeaderRoleID = "X-Role-Id"
)

// HeaderAuthenticator derives the principal from trusted headers, resolving
// the role through the role store.
type HeaderAuthenticator struct {
	roles ports.RoleStore
}

// NewHeaderAuthenticator creates a header-based authenticator.
func NewHeaderAuthenticator(roles ports.RoleStore) *HeaderAuthenticator {
	return &HeaderAuthenticator{roles: roles}
}

// Principal resolves the caller from request headers.
func (a *HeaderAuthenticator) Principal(r *http.Request) (authz.Principal, error) {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		return authz.Principal{}, ErrUnauthenticated
	}

	p := authz.Principal{UserID: userID}

	if roleID := r.Header.Get(HeaderRoleID); roleID != "" {
		role, err := a.roles.Get(r.Context(), roleID)
		if err != nil {
			return authz.Principal{}, err
		}
		p.Role = role
	}

	return p, nil
}
