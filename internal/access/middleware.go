package access

import (
	"log/slog"
	"net/http"

	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/shared"
)

// Middleware wires capability checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireCapability lets the request through when the session role holds
// at least one of caps.
func (m Middleware) RequireCapability(caps ...Capability) func(http.Handler) http.Handler {
	return m.gate("require capability", func(role Role) bool {
		if len(caps) == 0 {
			return true
		}
		for _, c := range caps {
			if Can(role, c) {
				return true
			}
		}
		return false
	})
}

// RequireAll lets the request through only when every capability is held.
func (m Middleware) RequireAll(caps ...Capability) func(http.Handler) http.Handler {
	return m.gate("require all", func(role Role) bool {
		for _, c := range caps {
			if !Can(role, c) {
				return false
			}
		}
		return true
	})
}

// RequireRole restricts the route to the listed roles.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return m.gate("require role", func(role Role) bool {
		for _, r := range roles {
			if r == role {
				return true
			}
		}
		return false
	})
}

func (m Middleware) gate(name string, allowed func(Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := CurrentRole(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			if !allowed(role) {
				if m.Logger != nil {
					m.Logger.Warn(name+" denied", slog.String("role", string(role)), slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CurrentRole resolves the role of the request session. ok is false when
// nobody is logged in.
func CurrentRole(r *http.Request) (Role, bool) {
	p := shared.PrincipalFromContext(r.Context())
	if p.IsZero() {
		return RoleUnauthenticated, false
	}
	role, known := ParseRole(p.Role)
	if !known || role == RoleUnauthenticated {
		return RoleUnauthenticated, false
	}
	return role, true
}
