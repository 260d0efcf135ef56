package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/policy"
)

type fakeResolver struct {
	viewers map[string]policy.Viewer
}

func (f fakeResolver) Resolve(_ context.Context, token string) (policy.Viewer, error) {
	v, ok := f.viewers[token]
	if !ok {
		return policy.Viewer{}, errors.New("unknown session")
	}
	return v, nil
}

func newMiddlewareChain(t *testing.T, protected bool) (http.Handler, *policy.Viewer) {
	t.Helper()
	resolver := fakeResolver{viewers: map[string]policy.Viewer{
		"good-token": {ID: "user-1", Username: "alice", Role: model.RoleUser},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seen policy.Viewer
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ViewerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	if protected {
		h = RequireAuth(h)
	}
	return LoadViewer(resolver, false, logger)(h), &seen
}

func TestLoadViewer_ValidSession(t *testing.T) {
	h, seen := newMiddlewareChain(t, false)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen.ID != "user-1" {
		t.Errorf("viewer = %+v, want user-1", *seen)
	}
}

func TestLoadViewer_BadCookieIsClearedAndAnonymous(t *testing.T) {
	h, seen := newMiddlewareChain(t, false)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen.Authenticated() {
		t.Errorf("viewer = %+v, want anonymous", *seen)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("stale session cookie was not cleared")
	}
}

func TestRequireAuth_RedirectsAnonymous(t *testing.T) {
	h, _ := newMiddlewareChain(t, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

func TestRequireAuth_AllowsAuthenticated(t *testing.T) {
	h, _ := newMiddlewareChain(t, true)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestViewerFromContext_Empty(t *testing.T) {
	if ViewerFromContext(context.Background()).Authenticated() {
		t.Error("empty context should yield the anonymous viewer")
	}
}
