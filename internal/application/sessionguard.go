package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/port/driven"
)

// The persisted session lives in a single credential-store slot.
const (
	SessionService = "deskbooking"
	SessionKey     = "user"
)

const userCacheSize = 16

// GuardOptions tunes a SessionGuard. The zero value is usable.
type GuardOptions struct {
	// ExpiryLeeway treats a token as expired this long before its exp claim.
	ExpiryLeeway time.Duration
	// UserInfoTTL bounds how long a /users/me lookup is reused. Zero disables the cache.
	UserInfoTTL time.Duration
	Logger      *slog.Logger
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// SessionGuard owns the single cached credential. Every read and write of it
// happens under mu, so the clear performed by EnforceValidity is never
// observed half-done.
type SessionGuard struct {
	auth   driven.AuthAPI
	store  driven.CredentialStore
	logger *slog.Logger
	leeway time.Duration
	now    func() time.Time
	users  *expirable.LRU[string, *model.User]

	mu    sync.Mutex
	cred  *model.Credential
	hooks []func()
}

// NewSessionGuard creates a guard with no session. Call Restore to pick up a
// session persisted by an earlier process.
func NewSessionGuard(auth driven.AuthAPI, store driven.CredentialStore, opts GuardOptions) *SessionGuard {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	g := &SessionGuard{
		auth:   auth,
		store:  store,
		logger: logger.With("component", "session"),
		leeway: opts.ExpiryLeeway,
		now:    now,
	}
	if opts.UserInfoTTL > 0 {
		g.users = expirable.NewLRU[string, *model.User](userCacheSize, nil, opts.UserInfoTTL)
	}
	return g
}

// OnSessionEnd registers fn to run whenever the cached credential is cleared
// or replaced. Hooks run while the guard is locked and must not call back
// into it.
func (g *SessionGuard) OnSessionEnd(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, fn)
}

// Restore loads the persisted session into memory. A missing slot leaves the
// guard empty; an unreadable one is cleared. Expiry is not checked here, the
// next EnforceValidity does that.
func (g *SessionGuard) Restore(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	raw, err := g.store.Get(ctx, SessionService, SessionKey)
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		g.logger.Warn("session persistence disabled", "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if raw == "" {
		return nil
	}

	var cred model.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil || cred.AccessToken == "" {
		g.logger.Warn("discarding unreadable persisted session", "error", err)
		if err := g.store.Delete(ctx, SessionService, SessionKey); err != nil {
			return fmt.Errorf("clear unreadable session: %w", err)
		}
		return nil
	}

	g.cred = &cred
	g.logger.Debug("session restored")
	return nil
}

// Login submits in to the backend and, when it answers with an access token,
// caches the credential in memory and in the store. On failure the cache is
// left untouched.
func (g *SessionGuard) Login(ctx context.Context, in model.LoginInput) (*model.Credential, error) {
	cred, err := g.auth.Login(ctx, in)
	if err != nil {
		loginsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	if cred == nil || cred.AccessToken == "" {
		loginsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("%w: no access token issued", model.ErrAuthenticationFailed)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.persistLocked(ctx, cred); err != nil {
		loginsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	if g.cred != nil {
		g.endSessionLocked()
	}
	g.cred = cred.Clone()

	loginsTotal.WithLabelValues("success").Inc()
	g.logger.Info("logged in", "username", in.Username)
	return cred, nil
}

// Register creates an account. It never caches a credential; the caller has
// to log in afterwards.
func (g *SessionGuard) Register(ctx context.Context, in model.Registration) (*model.User, error) {
	user, err := g.auth.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	g.logger.Info("account registered", "username", user.Username)
	return user, nil
}

// Logout clears the session from memory and the store. It is purely local and
// safe to call with no session.
func (g *SessionGuard) Logout(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	hadSession := g.cred != nil
	if err := g.clearLocked(ctx); err != nil {
		return err
	}
	if hadSession {
		g.logger.Info("logged out")
	}
	return nil
}

// CurrentCredential returns a copy of the cached credential, or nil. It does
// not check expiry.
func (g *SessionGuard) CurrentCredential() *model.Credential {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cred.Clone()
}

// IsExpired reports whether cred's exp claim is strictly before now. A missing
// or undecodable token returns model.ErrTokenDecode rather than a verdict.
func (g *SessionGuard) IsExpired(cred *model.Credential) (bool, error) {
	if cred == nil {
		return false, fmt.Errorf("%w: no credential", model.ErrTokenDecode)
	}
	claims, err := DecodeClaims(cred.AccessToken)
	if err != nil {
		return false, err
	}
	return claims.ExpiresAt.Before(g.now().Add(g.leeway)), nil
}

// EnforceValidity runs on every navigation. With no session it does nothing.
// An expired or undecodable credential is cleared before the lock is
// released and SessionExpired is returned so the caller can force a full
// reload of the unauthenticated view. The error is non-nil only when the
// store could not be cleared.
func (g *SessionGuard) EnforceValidity(ctx context.Context) (model.SessionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cred == nil {
		return model.SessionNone, nil
	}

	expired, err := g.IsExpired(g.cred)
	switch {
	case err != nil:
		forcedLogoutsTotal.WithLabelValues("undecodable").Inc()
		g.logger.Warn("clearing session with undecodable token", "error", err)
	case expired:
		forcedLogoutsTotal.WithLabelValues("expired").Inc()
		g.logger.Info("session expired, logging out")
	default:
		return model.SessionActive, nil
	}

	if err := g.clearLocked(ctx); err != nil {
		return model.SessionExpired, err
	}
	return model.SessionExpired, nil
}

// Username returns the token's subject, or "" with no decodable session.
func (g *SessionGuard) Username() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cred == nil {
		return ""
	}
	claims, err := DecodeClaims(g.cred.AccessToken)
	if err != nil {
		return ""
	}
	return claims.Subject
}

// ExpiresAt returns the session's exp instant, or the zero time.
func (g *SessionGuard) ExpiresAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cred == nil {
		return time.Time{}
	}
	claims, err := DecodeClaims(g.cred.AccessToken)
	if err != nil {
		return time.Time{}
	}
	return claims.ExpiresAt
}

// CurrentUser fetches the account behind the cached credential. Lookups are
// reused per token for UserInfoTTL.
func (g *SessionGuard) CurrentUser(ctx context.Context) (*model.User, error) {
	cred := g.CurrentCredential()
	if cred == nil {
		return nil, model.ErrUnauthorized
	}
	token := cred.AccessToken

	if g.users != nil {
		if user, ok := g.users.Get(token); ok {
			return user, nil
		}
	}

	user, err := g.auth.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if g.users != nil {
		g.users.Add(token, user)
	}
	return user, nil
}

// persistLocked writes cred to the store. Without an encryption key the
// session is kept in memory only.
func (g *SessionGuard) persistLocked(ctx context.Context, cred *model.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	err = g.store.Set(ctx, SessionService, SessionKey, string(data))
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		g.logger.Warn("session kept in memory only", "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// clearLocked drops the in-memory credential first, then the persisted slot.
// The in-memory clear happens even when the store fails.
func (g *SessionGuard) clearLocked(ctx context.Context) error {
	if g.cred != nil {
		g.endSessionLocked()
	}
	g.cred = nil

	if err := g.store.Delete(ctx, SessionService, SessionKey); err != nil {
		return fmt.Errorf("clear persisted session: %w", err)
	}
	return nil
}

func (g *SessionGuard) endSessionLocked() {
	if g.users != nil {
		g.users.Purge()
	}
	for _, fn := range g.hooks {
		fn()
	}
}
