// Package middleware provides the HTTP middleware stack: caller identity,
// permission checks, request logging, and metrics endpoint auth.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/campushq/reportworks/internal/domain"
)

// Identity headers set by the upstream API gateway after it authenticates
// the caller and resolves the tenant. This service trusts them; it must
// never be exposed without the gateway in front.
const (
	HeaderTenantSchema  = "X-Tenant-Schema"
	HeaderInstitutionID = "X-Institution-ID"
	HeaderUserID        = "X-User-ID"
	HeaderPermissions   = "X-Permissions"
)

// Permissions used by the report endpoints.
const (
	PermissionReportsCreate = "reports.create"
	PermissionReportsView   = "reports.view"
)

// Identity is the resolved caller: tenant schema, institution, user, and
// granted permissions.
type Identity struct {
	Schema        string
	InstitutionID uuid.UUID
	UserID        uuid.UUID
	Permissions   map[string]bool
}

// HasPermission returns true if the caller was granted the permission.
func (id *Identity) HasPermission(p string) bool {
	return id.Permissions[p]
}

type contextKey string

const identityKey contextKey = "identity"

// GetIdentity extracts the caller identity from the request context.
// The second return is false outside the Identity middleware.
func GetIdentity(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// IdentityMiddleware parses the gateway identity headers into an Identity
// and rejects requests missing any required part.
type IdentityMiddleware struct{}

// NewIdentityMiddleware creates the identity middleware.
func NewIdentityMiddleware() *IdentityMiddleware {
	return &IdentityMiddleware{}
}

// Handler returns middleware that requires a complete caller identity.
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := FromHeaders(r)
		if err != "" {
			writeUnauthorized(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromHeaders builds an Identity from the gateway headers. Returns a
// non-empty message describing the first missing or malformed part.
func FromHeaders(r *http.Request) (*Identity, string) {
	schema := r.Header.Get(HeaderTenantSchema)
	if schema == "" {
		return nil, "missing tenant schema"
	}

	institutionID, err := uuid.Parse(r.Header.Get(HeaderInstitutionID))
	if err != nil {
		return nil, "missing or invalid institution id"
	}

	userID, err := uuid.Parse(r.Header.Get(HeaderUserID))
	if err != nil {
		return nil, "missing or invalid user id"
	}

	permissions := make(map[string]bool)
	for _, p := range strings.Split(r.Header.Get(HeaderPermissions), ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			permissions[trimmed] = true
		}
	}

	return &Identity{
		Schema:        schema,
		InstitutionID: institutionID,
		UserID:        userID,
		Permissions:   permissions,
	}, ""
}

// RequirePermission returns middleware rejecting callers without the given
// permission. Must run after the Identity middleware.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok {
				writeUnauthorized(w, "missing identity")
				return
			}
			if !id.HasPermission(permission) {
				writeError(w, http.StatusForbidden, domain.EFORBIDDEN, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}

// Stack composes multiple middleware functions into a single middleware.
// The first argument is outermost; the last runs closest to the handler.
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
