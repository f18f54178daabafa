// internal/app/system/authz/roles.go
package authz

import (
	"net/http"
	"strings"
)

// HasAnyRole reports whether the current request's user holds one of roles.
// An anonymous request holds none.
func HasAnyRole(r *http.Request, roles ...string) bool {
	cur, ok := Role(r)
	if !ok {
		return false
	}
	for _, want := range roles {
		if cur == strings.ToLower(strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}

// HasRole is HasAnyRole for a single role.
func HasRole(r *http.Request, role string) bool {
	return HasAnyRole(r, role)
}

// Role returns the current user's role (lowercased) and whether a user is present.
func Role(r *http.Request) (string, bool) {
	role, _, _, ok := UserCtx(r)
	return role, ok
}
