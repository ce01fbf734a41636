package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vedran77/pulsefeed/internal/auth"
	"github.com/vedran77/pulsefeed/internal/domain"
)

const secret = "test-secret"

func protected(t *testing.T) (http.Handler, *domain.Principal) {
	t.Helper()
	var seen domain.Principal
	h := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r.Context())
		if !ok {
			t.Fatalf("principal missing from context")
		}
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	h, seen := protected(t)
	tok, _ := auth.IssueToken(secret, domain.Principal{ID: "u1", DisplayName: "Ana"}, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || seen.ID != "u1" {
		t.Fatalf("status=%d principal=%+v", rec.Code, *seen)
	}
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	h, seen := protected(t)
	tok, _ := auth.IssueToken(secret, domain.Principal{ID: "u2", DisplayName: "Bo"}, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+tok, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || seen.DisplayName != "Bo" {
		t.Fatalf("status=%d principal=%+v", rec.Code, *seen)
	}
}

func TestAuthRejectsMissingAndBadTokens(t *testing.T) {
	h, _ := protected(t)

	for _, target := range []string{"/ws", "/ws?token=garbage"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
	}
}
