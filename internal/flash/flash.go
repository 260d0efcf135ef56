// Package flash carries one-shot notifications across a redirect.
//
// A Flash is a plain value returned by the services. The HTTP layer stores
// it in a short-lived signed cookie, and the next rendered page pops it.
// Signing uses an HS256 JWT so the cookie can't be forged to inject
// arbitrary messages into another user's page.
package flash

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type is the severity of a notification.
type Type string

const (
	Success Type = "success"
	Warning Type = "warning"
	Error   Type = "error"
)

// Flash is a single notification.
type Flash struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

func NewSuccess(msg string) *Flash { return &Flash{Type: Success, Message: msg} }
func NewWarning(msg string) *Flash { return &Flash{Type: Warning, Message: msg} }
func NewError(msg string) *Flash   { return &Flash{Type: Error, Message: msg} }

const (
	cookieName = "flash"
	issuer     = "admin-panel/flash"
	maxAge     = time.Minute
)

// Codec signs and verifies flash cookies.
type Codec struct {
	secret []byte
	secure bool
}

// NewCodec creates a Codec. secret must be at least 16 characters.
// secure sets the Secure attribute on the cookie (HTTPS deployments).
func NewCodec(secret string, secure bool) (*Codec, error) {
	if len(secret) < 16 {
		return nil, errors.New("flash: secret must be at least 16 characters")
	}
	return &Codec{secret: []byte(secret), secure: secure}, nil
}

type claims struct {
	Flash
	jwt.RegisteredClaims
}

// Encode returns the signed cookie value for f.
func (c *Codec) Encode(f Flash) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Flash: f,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(maxAge)),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("flash: signing: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns the Flash it carries.
func (c *Codec) Decode(value string) (*Flash, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(value, &cl,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("flash: invalid cookie: %w", err)
	}
	switch cl.Type {
	case Success, Warning, Error:
	default:
		return nil, fmt.Errorf("flash: unknown type %q", cl.Type)
	}
	f := cl.Flash
	return &f, nil
}

// Set stores f for the next request. A nil f is a no-op.
func (c *Codec) Set(w http.ResponseWriter, f *Flash) error {
	if f == nil {
		return nil
	}
	value, err := c.Encode(*f)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Pop returns the pending flash, if any, and clears the cookie.
// A tampered or expired cookie is cleared and ignored.
func (c *Codec) Pop(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})

	f, err := c.Decode(cookie.Value)
	if err != nil {
		return nil
	}
	return f
}
