package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
)

const (
	// CSRFCookieName holds the token. The templates read the token from the
	// request context, so the cookie can be HttpOnly.
	CSRFCookieName = "csrf_token"

	// CSRFFormField is the hidden input every POST form carries.
	CSRFFormField = "csrf_token"

	// CSRFHeaderName is accepted instead of the form field.
	CSRFHeaderName = "X-CSRF-Token"
)

type csrfKey struct{}

// CSRF implements the double-submit cookie pattern for server-rendered forms.
//
// Safe methods (GET, HEAD, OPTIONS) pass through; if the browser has no
// token yet one is generated and set. Either way the token is stored in the
// request context for the templates (see CSRFToken).
//
// Every other method must carry the cookie token again, in the form field or
// the X-CSRF-Token header, or it is rejected with 403.
func CSRF(secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CSRFCookieName)
			token := ""
			if err == nil {
				token = cookie.Value
			}

			if isSafeMethod(r.Method) {
				if token == "" {
					token, err = generateCSRFToken()
					if err != nil {
						logger.Error("failed to generate CSRF token", slog.String("error", err.Error()))
						http.Error(w, "internal server error", http.StatusInternalServerError)
						return
					}
					http.SetCookie(w, &http.Cookie{
						Name:     CSRFCookieName,
						Value:    token,
						Path:     "/",
						MaxAge:   86400,
						HttpOnly: true,
						Secure:   secure,
						SameSite: http.SameSiteLaxMode,
					})
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
				return
			}

			if token == "" {
				logger.Warn("CSRF validation failed: missing cookie token",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}

			submitted := r.Header.Get(CSRFHeaderName)
			if submitted == "" {
				submitted = r.PostFormValue(CSRFFormField)
			}
			if subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
				logger.Warn("CSRF validation failed: token mismatch",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
		})
	}
}

// CSRFToken returns the token for the current request, or "" outside CSRF.
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
