// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fertilityflow/portal/internal/core"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	ti := newTestIssuer(t, 15*time.Minute)

	tok, err := ti.SignAccess("user-1", "admin", 4)
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}

	claims, err := ti.ParseAccess(context.Background(), tok.Value)
	if err != nil {
		t.Fatalf("ParseAccess() error = %v", err)
	}

	if claims.UserID != "user-1" || claims.Role != "admin" || claims.TokenVersion != 4 {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("claims.ID is empty, the denylist keys on it")
	}
	if d := tok.ExpiresAt.Sub(claims.ExpiresAt); d < 0 || d >= time.Second {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, tok.ExpiresAt)
	}
}

func TestParseAccessRejects(t *testing.T) {
	ti := newTestIssuer(t, time.Minute)
	other := newTestIssuer(t, time.Minute)
	stale := newTestIssuer(t, -time.Minute)

	foreign, err := other.SignAccess("user-1", "user", 0)
	if err != nil {
		t.Fatal(err)
	}
	expiredTok, err := stale.SignAccess("user-1", "user", 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		issuer *TokenIssuer
		raw    string
		want   error
	}{
		{name: "foreign key", issuer: ti, raw: foreign.Value, want: core.ErrTokenInvalid},
		{name: "garbage", issuer: ti, raw: "not.a.jwt", want: core.ErrTokenInvalid},
		{name: "expired", issuer: stale, raw: expiredTok.Value, want: core.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.issuer.ParseAccess(context.Background(), tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ParseAccess() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestJWKSPublishesKeyID(t *testing.T) {
	ti := newTestIssuer(t, time.Minute)

	rec := httptest.NewRecorder()
	ti.JWKSHandler()(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Use string `json:"use"`
			D   string `json:"d"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("keys = %d, want 1", len(doc.Keys))
	}
	k := doc.Keys[0]
	if k.Kid != ti.KeyID() || k.Use != "sig" {
		t.Errorf("key = %+v, want kid %q use sig", k, ti.KeyID())
	}
	if k.D != "" {
		t.Fatal("private component published")
	}
}
