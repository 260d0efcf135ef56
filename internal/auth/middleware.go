package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/admin-panel/internal/policy"
)

// SessionCookie is the name of the cookie holding the signed session token.
const SessionCookie = "session"

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the viewer.
type contextKey string

const viewerKey contextKey = "viewer"

// SessionResolver turns a session token into the viewer it belongs to.
// service.AuthService implements it; the interface keeps this package free
// of a dependency on the service layer.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (policy.Viewer, error)
}

// LoadViewer resolves the session cookie on every request and stores the
// resulting Viewer in the request context. It never blocks a request: a
// missing, forged or expired session yields the anonymous viewer, and a bad
// cookie is cleared.
func LoadViewer(resolver SessionResolver, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := policy.Anonymous()

			if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
				v, err := resolver.Resolve(r.Context(), cookie.Value)
				if err != nil {
					logger.Debug("discarding session cookie",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					ClearSessionCookie(w, secure)
				} else {
					viewer = v
				}
			}

			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
		})
	}
}

// RequireAuth redirects anonymous requests to /login. It must run after LoadViewer.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ViewerFromContext(r.Context()).Authenticated() {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithViewer returns a copy of ctx carrying v.
func WithViewer(ctx context.Context, v policy.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}

// ViewerFromContext returns the viewer stored by LoadViewer, or the
// anonymous viewer when there is none.
//
// Handlers read it once and pass it explicitly to the services:
//
//	viewer := auth.ViewerFromContext(r.Context())
//	outcome, err := h.accounts.SetEmail(ctx, viewer, id, email)
func ViewerFromContext(ctx context.Context) policy.Viewer {
	v, _ := ctx.Value(viewerKey).(policy.Viewer)
	return v
}

// SetSessionCookie stores a session token until expiresAt.
//
// HttpOnly keeps the token away from page scripts; SameSite=Lax stops the
// browser from sending it on cross-site POSTs.
func SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
