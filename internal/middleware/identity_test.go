package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityRequest(t *testing.T) (*http.Request, uuid.UUID, uuid.UUID) {
	t.Helper()
	institutionID := uuid.New()
	userID := uuid.New()

	r := httptest.NewRequest(http.MethodGet, "/reports/history", nil)
	r.Header.Set(HeaderTenantSchema, "tenant_a")
	r.Header.Set(HeaderInstitutionID, institutionID.String())
	r.Header.Set(HeaderUserID, userID.String())
	r.Header.Set(HeaderPermissions, "reports.view, reports.create")
	return r, institutionID, userID
}

func TestFromHeaders(t *testing.T) {
	r, institutionID, userID := identityRequest(t)

	id, errMsg := FromHeaders(r)
	require.Empty(t, errMsg)
	assert.Equal(t, "tenant_a", id.Schema)
	assert.Equal(t, institutionID, id.InstitutionID)
	assert.Equal(t, userID, id.UserID)
	assert.True(t, id.HasPermission(PermissionReportsView))
	assert.True(t, id.HasPermission(PermissionReportsCreate))
	assert.False(t, id.HasPermission("reports.admin"))
}

func TestFromHeaders_MissingParts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *http.Request)
	}{
		{"missing schema", func(r *http.Request) { r.Header.Del(HeaderTenantSchema) }},
		{"missing institution", func(r *http.Request) { r.Header.Del(HeaderInstitutionID) }},
		{"bad institution", func(r *http.Request) { r.Header.Set(HeaderInstitutionID, "nope") }},
		{"missing user", func(r *http.Request) { r.Header.Del(HeaderUserID) }},
		{"bad user", func(r *http.Request) { r.Header.Set(HeaderUserID, "nope") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := identityRequest(t)
			tt.mutate(r)

			id, errMsg := FromHeaders(r)
			assert.Nil(t, id)
			assert.NotEmpty(t, errMsg)
		})
	}
}

func TestIdentityMiddleware(t *testing.T) {
	mw := NewIdentityMiddleware()

	var captured *Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	r, institutionID, _ := identityRequest(t)
	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, institutionID, captured.InstitutionID)
}

func TestIdentityMiddleware_RejectsAnonymous(t *testing.T) {
	mw := NewIdentityMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without identity")
	})

	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/history", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestRequirePermission(t *testing.T) {
	mw := NewIdentityMiddleware()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Granted.
	r, _, _ := identityRequest(t)
	rec := httptest.NewRecorder()
	mw.Handler(RequirePermission(PermissionReportsView)(next)).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Not granted.
	r, _, _ = identityRequest(t)
	r.Header.Set(HeaderPermissions, "reports.view")
	rec = httptest.NewRecorder()
	mw.Handler(RequirePermission(PermissionReportsCreate)(next)).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// No identity middleware in front.
	rec = httptest.NewRecorder()
	RequirePermission(PermissionReportsView)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStack_Order(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	stacked := Stack(tag("outer"), tag("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	stacked.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
