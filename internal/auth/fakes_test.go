// AngelaMos | 2026
// fakes_test.go

package auth

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fertilityflow/portal/internal/config"
	"github.com/fertilityflow/portal/internal/core"
)

type fakeAccounts struct {
	mu       sync.Mutex
	byID     map[string]*UserInfo
	nextID   int
	setCalls []string
}

func newFakeAccounts(users ...UserInfo) *fakeAccounts {
	f := &fakeAccounts{byID: map[string]*UserInfo{}}
	for i := range users {
		u := users[i]
		f.byID[u.ID] = &u
	}
	return f
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeAccounts) Lookup(_ context.Context, email string) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeAccounts) Register(ctx context.Context, email, hash, name string) (*UserInfo, error) {
	if _, err := f.Lookup(ctx, email); err == nil {
		return nil, core.ErrDuplicateKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &UserInfo{
		ID:           "new-" + string(rune('0'+f.nextID)),
		Email:        strings.ToLower(email),
		Name:         name,
		PasswordHash: hash,
		Role:         "user",
	}
	f.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeAccounts) RevokeTokens(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return core.ErrNotFound
	}
	u.TokenVersion++
	return nil
}

func (f *fakeAccounts) SetPassword(_ context.Context, id, hash string, revoke bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = hash
	if revoke {
		u.TokenVersion++
	}
	f.setCalls = append(f.setCalls, id)
	return nil
}

type fakeSessions struct {
	mu        sync.Mutex
	rows      map[string]*Session
	rotateErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: map[string]*Session{}}
}

func (f *fakeSessions) Save(_ context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.CreatedAt = time.Now()
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSessions) ByHash(_ context.Context, hash string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.TokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeSessions) ByID(_ context.Context, id string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Rotate(_ context.Context, id, successor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rotateErr != nil {
		return f.rotateErr
	}
	s, ok := f.rows[id]
	if !ok || s.IsUsed {
		return core.ErrNotFound
	}
	s.IsUsed = true
	s.ReplacedByID = &successor
	return nil
}

func (f *fakeSessions) Revoke(_ context.Context, scope RevokeScope, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var n int64
	for _, s := range f.rows {
		var match bool
		switch scope {
		case ScopeSession:
			match = s.ID == key
		case ScopeFamily:
			match = s.FamilyID == key
		case ScopeUser:
			match = s.UserID == key
		}
		if match && s.RevokedAt == nil {
			s.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) Active(_ context.Context, userID string) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Session
	for _, s := range f.rows {
		if s.UserID == userID && s.exchangeable(time.Now()) == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.rows {
		if s.ExpiresAt.Before(cutoff) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) revokedFor(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.rows {
		if s.UserID == userID && s.RevokedAt != nil {
			n++
		}
	}
	return n
}

type fakeResets struct {
	tokens map[string]*PasswordResetToken
}

func newFakeResets() *fakeResets {
	return &fakeResets{tokens: map[string]*PasswordResetToken{}}
}

func (f *fakeResets) Replace(_ context.Context, token *PasswordResetToken) error {
	for hash, t := range f.tokens {
		if t.Email == token.Email {
			delete(f.tokens, hash)
		}
	}
	f.tokens[token.TokenHash] = token
	return nil
}

func (f *fakeResets) FindByHash(_ context.Context, hash string) (*PasswordResetToken, error) {
	t, ok := f.tokens[hash]
	if !ok {
		return nil, core.ErrNotFound
	}
	return t, nil
}

func (f *fakeResets) DeleteForEmail(_ context.Context, email string) error {
	for hash, t := range f.tokens {
		if t.Email == email {
			delete(f.tokens, hash)
		}
	}
	return nil
}

type recordedReset struct {
	email, name, token string
}

type fakeAuthNotifier struct {
	mu       sync.Mutex
	welcomed []string
	resets   []recordedReset
}

func (f *fakeAuthNotifier) Welcome(email, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.welcomed = append(f.welcomed, email)
}

func (f *fakeAuthNotifier) PasswordReset(email, name, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, recordedReset{email, name, token})
}

func newTestIssuer(t *testing.T, ttl time.Duration) *TokenIssuer {
	t.Helper()

	dir := t.TempDir()
	priv := filepath.Join(dir, "private.pem")
	pub := filepath.Join(dir, "public.pem")
	if err := GenerateKeyPair(priv, pub); err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	ti, err := LoadTokenIssuer(config.JWTConfig{
		PrivateKeyPath:     priv,
		PublicKeyPath:      pub,
		AccessTokenExpire:  ttl,
		RefreshTokenExpire: 24 * time.Hour,
		Issuer:             "portal-test",
		Audience:           "portal-test",
	})
	if err != nil {
		t.Fatalf("LoadTokenIssuer() error = %v", err)
	}
	return ti
}

type authFixture struct {
	svc      *Service
	accounts *fakeAccounts
	sessions *fakeSessions
	resets   *fakeResets
	notifier *fakeAuthNotifier
}

func newAuthFixture(t *testing.T, users ...UserInfo) *authFixture {
	t.Helper()

	f := &authFixture{
		accounts: newFakeAccounts(users...),
		sessions: newFakeSessions(),
		resets:   newFakeResets(),
		notifier: &fakeAuthNotifier{},
	}
	f.svc = NewService(f.sessions, f.resets, newTestIssuer(t, 15*time.Minute), f.accounts, nil, f.notifier)
	return f
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := core.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return h
}
