package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(Config{Enabled: false})(okHandler())

	req := httptest.NewRequest("POST", "/api/v1/session", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}
}

func TestMiddlewareExemptPaths(t *testing.T) {
	h := Middleware(Config{Enabled: true, Token: "secret"})(okHandler())

	paths := []string{
		"/healthz",
		"/readyz",
		"/metrics",
		"/api/v1/ephemeris/metadata",
		"/api/v1/sky",
		"/api/v1/dop",
		"/api/v1/positions",
		"/api/v1/stream/positions",
		"/api/v1/satellites/43873",
	}
	for _, path := range paths {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200 (exempt)", path, w.Code)
		}
	}
}

func TestMiddlewareProtected(t *testing.T) {
	h := Middleware(Config{Enabled: true, Token: "secret"})(okHandler())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"correct token", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/ephemeris/refresh", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
