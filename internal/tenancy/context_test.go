package tenancy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithOrgIDAndOrgIDFromContext(t *testing.T) {
	ctx := WithOrgID(context.Background(), "org-123")

	got, ok := OrgIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected org id to be present")
	}
	if got != "org-123" {
		t.Fatalf("expected org-123, got %s", got)
	}
}

func TestOrgIDFromContext_EmptyOrMissing(t *testing.T) {
	if _, ok := OrgIDFromContext(context.Background()); ok {
		t.Fatalf("expected missing org id to return false")
	}
	if _, ok := OrgIDFromContext(context.WithValue(context.Background(), orgKey, 42)); ok {
		t.Fatalf("expected non-string org id to return false")
	}
	if _, ok := OrgIDFromContext(WithOrgID(context.Background(), "")); ok {
		t.Fatalf("expected empty org id to return false")
	}
}

func TestRequireOrgID(t *testing.T) {
	var seen string
	h := RequireOrgID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = OrgIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/leads", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without header, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	req.Header.Set(OrgHeader, " org-7 ")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if seen != "org-7" {
		t.Fatalf("expected trimmed org id, got %q", seen)
	}
}
