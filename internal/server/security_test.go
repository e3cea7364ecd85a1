package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// securedRouter wraps a single /test route with the security middleware.
func securedRouter(config SecurityConfig, next gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(SecurityMiddleware(config))
	r.Any("/test", next)
	return r
}

// TestDefaultSecurityConfig verifies default security configuration values.
func TestDefaultSecurityConfig(t *testing.T) {
	config := DefaultSecurityConfig()

	if !config.EnableCORS {
		t.Error("EnableCORS should be true by default")
	}
	if len(config.AllowedOrigins) != 1 || config.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v, want [\"*\"]", config.AllowedOrigins)
	}
	want := map[string]bool{"GET": true, "POST": true, "DELETE": true, "OPTIONS": true}
	if len(config.AllowedMethods) != len(want) {
		t.Errorf("AllowedMethods = %v", config.AllowedMethods)
	}
	for _, m := range config.AllowedMethods {
		if !want[m] {
			t.Errorf("unexpected method %q", m)
		}
	}
	if config.MaxBodyBytes <= 0 {
		t.Errorf("MaxBodyBytes = %d, want a positive limit", config.MaxBodyBytes)
	}
}

// TestSecurityMiddleware_SecurityHeaders tests that all security headers are set.
func TestSecurityMiddleware_SecurityHeaders(t *testing.T) {
	nextCalled := false
	r := securedRouter(DefaultSecurityConfig(), func(c *gin.Context) {
		nextCalled = true
		c.Status(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

	tests := []struct {
		header string
		want   string
	}{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"X-XSS-Protection", "1; mode=block"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := rec.Header().Get(tt.header); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
	if !nextCalled {
		t.Error("next handler was not called")
	}
}

// TestSecurityMiddleware_CORS tests CORS header handling.
func TestSecurityMiddleware_CORS(t *testing.T) {
	tests := []struct {
		name           string
		config         SecurityConfig
		origin         string
		expectedOrigin string
	}{
		{
			name:   "CORS disabled",
			config: SecurityConfig{EnableCORS: false, AllowedOrigins: []string{"*"}},
			origin: "http://example.com",
		},
		{
			name:           "wildcard origin",
			config:         SecurityConfig{EnableCORS: true, AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}},
			origin:         "http://example.com",
			expectedOrigin: "*",
		},
		{
			name:           "specific allowed origin",
			config:         SecurityConfig{EnableCORS: true, AllowedOrigins: []string{"http://allowed.com"}, AllowedMethods: []string{"GET"}},
			origin:         "http://allowed.com",
			expectedOrigin: "http://allowed.com",
		},
		{
			name:   "disallowed origin",
			config: SecurityConfig{EnableCORS: true, AllowedOrigins: []string{"http://allowed.com"}, AllowedMethods: []string{"GET"}},
			origin: "http://notallowed.com",
		},
		{
			name:           "second of several origins",
			config:         SecurityConfig{EnableCORS: true, AllowedOrigins: []string{"http://first.com", "http://second.com"}, AllowedMethods: []string{"GET"}},
			origin:         "http://second.com",
			expectedOrigin: "http://second.com",
		},
		{
			name:   "no origin header",
			config: SecurityConfig{EnableCORS: true, AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := securedRouter(tt.config, func(c *gin.Context) { c.Status(http.StatusOK) })
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			got := rec.Header().Get("Access-Control-Allow-Origin")
			if got != tt.expectedOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.expectedOrigin)
			}
			if tt.expectedOrigin != "" && rec.Header().Get("Access-Control-Allow-Methods") == "" {
				t.Error("Access-Control-Allow-Methods should be set")
			}
		})
	}
}

// TestSecurityMiddleware_Preflight tests OPTIONS preflight handling.
func TestSecurityMiddleware_Preflight(t *testing.T) {
	nextCalled := false
	r := securedRouter(DefaultSecurityConfig(), func(c *gin.Context) {
		nextCalled = true
	})
	req := httptest.NewRequest(http.MethodOptions, "/test", http.NoBody)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if nextCalled {
		t.Error("next handler should not be called for OPTIONS")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("CORS headers should be set for OPTIONS")
	}
}

func TestSecurityMiddleware_BodyLimit(t *testing.T) {
	config := DefaultSecurityConfig()
	config.MaxBodyBytes = 16
	r := securedRouter(config, func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("x", 64))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body: status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("small")))
	if rec.Code != http.StatusOK {
		t.Errorf("small body: status = %d, want %d", rec.Code, http.StatusOK)
	}
}
