// AngelaMos | 2026
// middleware_test.go

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fertilityflow/portal/internal/core"
)

type stubVerifier struct {
	claims *AccessTokenClaims
	err    error
	got    string
}

func (s *stubVerifier) VerifyAccessToken(
	_ context.Context,
	token string,
) (*AccessTokenClaims, error) {
	s.got = token
	return s.claims, s.err
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc"},
		{name: "case-insensitive scheme", header: "bearer  abc ", want: "abc"},
		{name: "wrong scheme", header: "Basic abc", cookie: "zzz", want: ""},
		{name: "cookie fallback", cookie: "from-cookie", want: "from-cookie"},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tt.cookie})
			}

			if got := ExtractToken(r); got != tt.want {
				t.Errorf("ExtractToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthenticator(t *testing.T) {
	var seenUser, seenRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = GetUserID(r.Context())
		seenRole = GetRole(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Authenticator(&stubVerifier{})(next).ServeHTTP(
			rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer t")

		v := &stubVerifier{err: core.ErrTokenExpired}
		Authenticator(v)(next).ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("cookie token sets identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})

		v := &stubVerifier{claims: &AccessTokenClaims{UserID: "u1", Role: "user"}}
		Authenticator(v)(next).ServeHTTP(rec, r)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if v.got != "cookie-token" {
			t.Errorf("verified token = %q", v.got)
		}
		if seenUser != "u1" || seenRole != "user" {
			t.Errorf("identity = %q/%q", seenUser, seenRole)
		}
	})
}

func TestOptionalAuthIgnoresBadToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if GetUserID(r.Context()) != "" {
			t.Error("request should be anonymous")
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer bad")

	OptionalAuth(&stubVerifier{err: errors.New("bad")})(next).ServeHTTP(
		httptest.NewRecorder(), r)

	if !called {
		t.Fatal("next handler not called")
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name string
		role string
		want int
	}{
		{name: "anonymous", role: "", want: http.StatusUnauthorized},
		{name: "user", role: "user", want: http.StatusForbidden},
		{name: "admin", role: "admin", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.role != "" {
				r = r.WithContext(WithUser(r.Context(), "u1", tt.role))
			}
			rec := httptest.NewRecorder()
			RequireAdmin(next).ServeHTTP(rec, r)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if seen != "req-1" || rec.Header().Get(RequestIDHeader) != "req-1" {
		t.Errorf("request id = %q / %q", seen, rec.Header().Get(RequestIDHeader))
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen == "" || seen == "req-1" {
		t.Errorf("generated request id = %q", seen)
	}
}

func TestLocalLimiterExhaustsBurst(t *testing.T) {
	l := &localLimiter{}
	limit := Quota(60, 2, time.Minute)
	now := time.Now()

	for i := range 2 {
		res, err := l.take("k", limit, now)
		if err != nil {
			t.Fatalf("take() error = %v", err)
		}
		if res.Allowed != 1 {
			t.Fatalf("request %d denied inside burst", i)
		}
	}

	res, _ := l.take("k", limit, now)
	if res.Allowed != 0 {
		t.Fatal("request past burst allowed")
	}
	if res.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want one second", res.RetryAfter)
	}

	res, _ = l.take("k", limit, now.Add(time.Second))
	if res.Allowed != 1 {
		t.Error("token did not refill after one interval")
	}
}

func TestLocalLimiterSweepsIdleBuckets(t *testing.T) {
	l := &localLimiter{}
	limit := Quota(10, 1, time.Minute)
	start := time.Now()

	_, _ = l.take("old", limit, start)
	_, _ = l.take("new", limit, start.Add(2*localIdle))

	if _, ok := l.buckets["old"]; ok {
		t.Error("idle bucket survived the sweep")
	}
	if _, ok := l.buckets["new"]; !ok {
		t.Error("active bucket missing")
	}
}

func TestRateLimiterFallsBackWithoutRedis(t *testing.T) {
	mw := NewRateLimiter(nil, RateLimit{
		Scope: "forms",
		Limit: Quota(1, 1, time.Hour),
		Key:   KeyByCallerAndRoute,
		Skip:  func(r *http.Request) bool { return r.URL.Path == "/webhook" },
	})

	r := chi.NewRouter()
	r.With(mw).Post("/programs/{slug}/claim", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.With(mw).Post("/webhook", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	send := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "203.0.113.9:4000"
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("/programs/a/claim"); rec.Code != http.StatusNoContent {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := send("/programs/b/claim")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request on same route = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("RateLimit-Policy") != "1;w=3600" {
		t.Errorf("headers = %v", rec.Header())
	}
	for range 3 {
		if rec := send("/webhook"); rec.Code != http.StatusNoContent {
			t.Fatalf("skipped path limited: %d", rec.Code)
		}
	}
}

func TestKeyByCaller(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:1234"
	if got := KeyByCaller(r); got != "ip:198.51.100.7" {
		t.Errorf("anonymous key = %q", got)
	}

	r = r.WithContext(WithUser(r.Context(), "u1", "user"))
	if got := KeyByCaller(r); got != "user:u1" {
		t.Errorf("member key = %q", got)
	}
}
