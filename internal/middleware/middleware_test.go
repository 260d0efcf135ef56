package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakeRecorder) RecordMutation(string, string) {}
func (f *fakeRecorder) RecordRegistration(string) {}
func (f *fakeRecorder) RecordLogin(string) {}
func (f *fakeRecorder) RecordHTTPRequest(method string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, method+" "+http.StatusText(status))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
})

// ============================================================
// LOGGER TESTS
// ============================================================

func TestLogger_LogsAndRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec := &fakeRecorder{}

	h := chimiddleware.RequestID(Logger(logger, rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users", nil))

	out := buf.String()
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "path=/users")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "bytes=15")
	assert.Contains(t, out, "requestID=")
	assert.Equal(t, []string{"GET I'm a teapot"}, rec.requests)
}

func TestLogger_DefaultStatusOK(t *testing.T) {
	rec := &fakeRecorder{}
	h := Logger(discardLogger(), rec)(okHandler)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/", nil))

	assert.Equal(t, []string{"HEAD OK"}, rec.requests)
}

func TestLogger_ServerErrorAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := Logger(logger, &fakeRecorder{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, buf.String(), "level=ERROR")
}

// ============================================================
// RATE LIMITER TESTS
// ============================================================

func postFrom(ip string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = ip + ":5555"
	return r
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(0.5), Burst: 2, CleanupInterval: time.Hour}, discardLogger())
	defer rl.Stop()
	h := rl.Middleware(okHandler)

	for i := range 2 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, postFrom("10.0.0.1"))
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postFrom("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(0.001), Burst: 1, CleanupInterval: time.Hour}, discardLogger())
	defer rl.Stop()
	h := rl.Middleware(okHandler)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postFrom("10.0.0.1"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, postFrom("10.0.0.2"))
	assert.Equal(t, http.StatusOK, rr.Code, "another IP has its own bucket")
	assert.Equal(t, 2, rl.ClientCount())
}

func TestRateLimiter_CleanupForgetsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Hour}, discardLogger())
	defer rl.Stop()

	rl.limiterFor("10.0.0.1")
	require.Equal(t, 1, rl.ClientCount())

	rl.cleanup(time.Now().Add(time.Hour))
	assert.Equal(t, 1, rl.ClientCount(), "one interval idle is kept")

	rl.cleanup(time.Now().Add(3 * time.Hour))
	assert.Equal(t, 0, rl.ClientCount())
}

func TestPerMinute(t *testing.T) {
	cfg := PerMinute(30, 5)
	assert.InDelta(t, 0.5, float64(cfg.Rate), 1e-9)
	assert.Equal(t, 5, cfg.Burst)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(PerMinute(10, 5), discardLogger())
	rl.Stop()
	rl.Stop()
}

// ============================================================
// CSRF TESTS
// ============================================================

func TestCSRF_SafeMethodIssuesToken(t *testing.T) {
	var seen string
	h := CSRF(false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CSRFToken(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))

	require.Len(t, seen, 64)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CSRFCookieName, cookies[0].Name)
	assert.Equal(t, seen, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestCSRF_SafeMethodReusesCookie(t *testing.T) {
	var seen string
	h := CSRF(false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CSRFToken(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "existing"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "existing", seen)
	assert.Empty(t, rr.Result().Cookies())
}

func TestCSRF_Post(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		form   string
		header string
		want   int
	}{
		{"form field matches", "tok", "tok", "", http.StatusOK},
		{"header matches", "tok", "", "tok", http.StatusOK},
		{"mismatch", "tok", "other", "", http.StatusForbidden},
		{"missing submission", "tok", "", "", http.StatusForbidden},
		{"missing cookie", "", "tok", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CSRF(false, discardLogger())(okHandler)

			body := url.Values{}
			if tt.form != "" {
				body.Set(CSRFFormField, tt.form)
			}
			req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(body.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeaderName, tt.header)
			}

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestCSRFToken_EmptyOutsideMiddleware(t *testing.T) {
	assert.Empty(t, CSRFToken(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
