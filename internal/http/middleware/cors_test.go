package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, allowed []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/leads", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestCORSOriginMatching(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"exact", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"trailing slash in config", []string{"https://app.example.com/"}, "https://app.example.com", true},
		{"unknown", []string{"https://app.example.com"}, "https://evil.example", false},
		{"any", []string{"*"}, "https://random.example", true},
		{"subdomain wildcard", []string{"https://*.example.com"}, "https://crm.example.com", true},
		{"wildcard needs subdomain", []string{"https://*.example.com"}, "https://example.com", false},
		{"wildcard scheme must match", []string{"https://*.example.com"}, "http://crm.example.com", false},
		{"wildcard suffix boundary", []string{"https://*.example.com"}, "https://badexample.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, called := corsRequest(t, tt.allowed, http.MethodGet, tt.origin, false)
			assert.True(t, called)
			if tt.want {
				assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Org-Id")
				assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://app.example.com"}, http.MethodOptions, "https://app.example.com", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, called = corsRequest(t, []string{"https://app.example.com"}, http.MethodOptions, "https://evil.example", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSWithoutOriginPassesThrough(t *testing.T) {
	rec, called := corsRequest(t, nil, http.MethodGet, "", false)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
