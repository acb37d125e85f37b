// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/fertilityflow/portal/internal/config"
	"github.com/fertilityflow/portal/internal/core"
	"github.com/fertilityflow/portal/internal/middleware"
)

const (
	claimRole    = "role"
	claimVersion = "token_version"
	claimType    = "type"
	typeAccess   = "access"
)

// TokenIssuer signs ES256 access tokens and mints opaque refresh secrets.
// The key id is the key's SHA-256 thumbprint so it survives restarts and
// cached JWKS documents stay valid.
type TokenIssuer struct {
	signing jwk.Key
	verify  jwk.Key
	jwks    jwk.Set
	kid     string
	cfg     config.JWTConfig
}

func LoadTokenIssuer(cfg config.JWTConfig) (*TokenIssuer, error) {
	pemBytes, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	signing, err := jwk.ParseKey(pemBytes, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	thumb, err := signing.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("thumbprint signing key: %w", err)
	}
	kid := base64.RawURLEncoding.EncodeToString(thumb)[:16]

	for k, v := range map[string]any{
		jwk.AlgorithmKey: jwa.ES256(),
		jwk.KeyIDKey:     kid,
	} {
		if err := signing.Set(k, v); err != nil {
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
	}

	verify, err := signing.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive verification key: %w", err)
	}
	if err := verify.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("set key usage: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(verify); err != nil {
		return nil, fmt.Errorf("build jwks: %w", err)
	}

	return &TokenIssuer{signing: signing, verify: verify, jwks: set, kid: kid, cfg: cfg}, nil
}

// GenerateKeyPair writes a fresh P-256 key pair as PEM. The private half
// is owner-only.
func GenerateKeyPair(privatePath, publicPath string) error {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	private, err := jwk.Import(raw)
	if err != nil {
		return fmt.Errorf("import key: %w", err)
	}
	public, err := private.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	files := []struct {
		path string
		key  jwk.Key
		mode os.FileMode
	}{
		{privatePath, private, 0o600},
		{publicPath, public, 0o644},
	}
	for _, f := range files {
		encoded, err := jwk.Pem(f.key)
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.path, err)
		}
		//nolint:gosec // public key mode is world-readable on purpose
		if err := os.WriteFile(f.path, encoded, f.mode); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
	}
	return nil
}

func (ti *TokenIssuer) KeyID() string {
	return ti.kid
}

func (ti *TokenIssuer) AccessTTL() time.Duration {
	return ti.cfg.AccessTokenExpire
}

// AccessToken is a signed token plus the expiry written into it.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

func (ti *TokenIssuer) SignAccess(userID, role string, version int) (AccessToken, error) {
	now := time.Now()
	exp := now.Add(ti.cfg.AccessTokenExpire)

	tok, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Issuer(ti.cfg.Issuer).
		Audience([]string{ti.cfg.Audience}).
		Subject(userID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(exp).
		Claim(claimRole, role).
		Claim(claimVersion, version).
		Claim(claimType, typeAccess).
		Build()
	if err != nil {
		return AccessToken{}, fmt.Errorf("build access token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256(), ti.signing))
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Value: string(signed), ExpiresAt: exp}, nil
}

// ParseAccess validates signature, issuer, audience and lifetime and
// returns the claims the middleware needs. Expired tokens map to
// ErrTokenExpired; everything else is ErrTokenInvalid.
func (ti *TokenIssuer) ParseAccess(
	_ context.Context,
	raw string,
) (*middleware.AccessTokenClaims, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.ES256(), ti.verify),
		jwt.WithValidate(true),
		jwt.WithIssuer(ti.cfg.Issuer),
		jwt.WithAudience(ti.cfg.Audience),
	)
	if err != nil {
		if expired(err) {
			return nil, fmt.Errorf("parse access token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("parse access token: %w", core.ErrTokenInvalid)
	}

	var (
		kind    string
		role    string
		version float64
	)
	if tok.Get(claimType, &kind) != nil || kind != typeAccess {
		return nil, fmt.Errorf("parse access token: wrong type: %w", core.ErrTokenInvalid)
	}
	if tok.Get(claimRole, &role) != nil {
		return nil, fmt.Errorf("parse access token: no role: %w", core.ErrTokenInvalid)
	}
	if tok.Get(claimVersion, &version) != nil {
		return nil, fmt.Errorf("parse access token: no version: %w", core.ErrTokenInvalid)
	}
	sub, ok := tok.Subject()
	if !ok || sub == "" {
		return nil, fmt.Errorf("parse access token: no subject: %w", core.ErrTokenInvalid)
	}

	jti, _ := tok.JwtID()
	exp, _ := tok.Expiration()

	return &middleware.AccessTokenClaims{
		UserID:       sub,
		Role:         role,
		TokenVersion: int(version),
		ID:           jti,
		ExpiresAt:    exp,
	}, nil
}

func expired(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "exp") && strings.Contains(msg, "not satisfied")
}

func (ti *TokenIssuer) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body, err := json.Marshal(ti.jwks)
		if err != nil {
			core.InternalServerError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/jwk-set+json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(body)
	}
}

// refreshSecret is the plaintext handed to the client once; only its hash
// is stored.
type refreshSecret struct {
	plain     string
	hash      string
	familyID  string
	expiresAt time.Time
}

func (ti *TokenIssuer) newRefreshSecret(familyID string) (refreshSecret, error) {
	plain, err := core.GenerateRefreshToken()
	if err != nil {
		return refreshSecret{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if familyID == "" {
		familyID = uuid.NewString()
	}
	return refreshSecret{
		plain:     plain,
		hash:      core.HashToken(plain),
		familyID:  familyID,
		expiresAt: time.Now().Add(ti.cfg.RefreshTokenExpire),
	}, nil
}
