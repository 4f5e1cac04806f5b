package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// Metrics Auth Middleware Tests
// =============================================================================

func metricsRequest(configure func(r *http.Request)) *httptest.ResponseRecorder {
	mw := NewMetricsAuthMiddleware("admin", "secret123")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("metrics data"))
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	if configure != nil {
		configure(req)
	}
	rec := httptest.NewRecorder()
	mw.Handler(handler).ServeHTTP(rec, req)
	return rec
}

func TestMetricsAuthMiddleware_AllowsValidCredentials(t *testing.T) {
	rec := metricsRequest(func(r *http.Request) {
		r.SetBasicAuth("admin", "secret123")
	})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "metrics data" {
		t.Errorf("expected body 'metrics data', got %q", rec.Body.String())
	}
}

func TestMetricsAuthMiddleware_RejectsNoCredentials(t *testing.T) {
	rec := metricsRequest(nil)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
	wwwAuth := rec.Header().Get("WWW-Authenticate")
	if wwwAuth != `Basic realm="metrics"` {
		t.Errorf("unexpected WWW-Authenticate header: %q", wwwAuth)
	}
}

func TestMetricsAuthMiddleware_RejectsWrongCredentials(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong username", "wronguser", "secret123"},
		{"wrong password", "admin", "wrongpassword"},
		{"both wrong", "wronguser", "wrongpassword"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := metricsRequest(func(r *http.Request) {
				r.SetBasicAuth(tt.username, tt.password)
			})
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
		})
	}
}

func TestMetricsAuthMiddleware_RejectsMalformedAuth(t *testing.T) {
	rec := metricsRequest(func(r *http.Request) {
		r.Header.Set("Authorization", "Basic notvalidbase64!!!")
	})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestMetricsAuthMiddleware_DisabledWithoutCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("", "")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mw.Handler(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 when auth is disabled, got %d", rec.Code)
	}
}
