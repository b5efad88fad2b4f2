package rbac

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Guard turns permission checks into route middleware.
type Guard struct{ c *Checker }

func NewGuard(c *Checker) Guard {
	if c == nil {
		c = NewChecker(nil)
	}
	return Guard{c: c}
}

var defaultChecker = NewChecker(nil)

func (g Guard) Require(perm string) func(http.Handler) http.Handler {
	return g.RequireAny(perm)
}

// RequireAny enforces that the role has at least one of the permissions.
// A zero Guard uses the default policy.
func (g Guard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	c := g.c
	if c == nil {
		c = defaultChecker
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !c.Any(role, perms...) {
				forbid(w, role, perms)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forbid(w http.ResponseWriter, role string, perms []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "ACCESS_FORBIDDEN",
		"message": "role " + quoteRole(role) + " lacks " + strings.Join(perms, " or "),
	})
}

func quoteRole(role string) string {
	if role == "" {
		return "(none)"
	}
	return role
}
