package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/repo"
)

var (
	// ErrInvalidCredential indicates the login code was rejected by the
	// upstream verifier (bad or already consumed).
	ErrInvalidCredential = errors.New("invalid login credential")

	// ErrTokenInvalid indicates an unknown bearer token.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired indicates a known but expired bearer token.
	// Callers must treat this and ErrTokenInvalid both as "not
	// authenticated"; expiry simply forces re-exchange.
	ErrTokenExpired = errors.New("token expired")

	// ErrRoleConflict indicates the external identity is already bound
	// to a different role.
	ErrRoleConflict = errors.New("identity already bound to another role")
)

// LoginResult is the outcome of a successful code exchange.
type LoginResult struct {
	Token     string
	AccountID int64
	Role      repo.Role
	ElderID   int64 // equals AccountID for elder accounts, 0 otherwise
}

// Resolver exchanges one-time login codes for accounts and issues
// opaque bearer tokens. The token→account map is owned by the resolver
// instance and expires entries after the configured TTL, so tests can
// construct isolated resolvers per case.
type Resolver struct {
	accounts repo.AccountRepo
	verifier CodeVerifier
	ttl      time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	tokens map[string]tokenEntry
}

type tokenEntry struct {
	account   repo.Account
	expiresAt time.Time
}

// NewResolver creates a resolver issuing tokens valid for ttl.
func NewResolver(accounts repo.AccountRepo, verifier CodeVerifier, ttl time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		accounts: accounts,
		verifier: verifier,
		ttl:      ttl,
		log:      log.With().Str("component", "auth").Logger(),
		tokens:   make(map[string]tokenEntry),
	}
}

// Exchange verifies a one-time login code, binds (or re-finds) the
// account for the external identity, and issues a bearer token.
// Binding is idempotent: the same external identity always resolves to
// the same account.
func (r *Resolver) Exchange(ctx context.Context, code string, role repo.Role) (*LoginResult, error) {
	externalID, err := r.verifier.Verify(ctx, code)
	if err != nil {
		return nil, err
	}

	acc, err := r.accounts.FindByExternalID(ctx, externalID)
	if errors.Is(err, repo.ErrNotFound) {
		acc, err = r.accounts.Create(ctx, externalID, role)
	}
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if acc.Role != role {
		return nil, ErrRoleConflict
	}

	token := newToken()
	now := time.Now()

	r.mu.Lock()
	r.pruneLocked(now)
	r.tokens[token] = tokenEntry{account: *acc, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()

	res := &LoginResult{Token: token, AccountID: acc.ID, Role: acc.Role}
	if acc.Role == repo.RoleElder {
		res.ElderID = acc.ID
	}
	r.log.Info().Int64("account_id", acc.ID).Str("role", string(acc.Role)).Msg("login exchange")
	return res, nil
}

// Resolve maps a bearer token to its account.
func (r *Resolver) Resolve(ctx context.Context, token string) (*repo.Account, error) {
	r.mu.Lock()
	entry, ok := r.tokens[token]
	r.mu.Unlock()

	if !ok {
		return nil, ErrTokenInvalid
	}
	if time.Now().After(entry.expiresAt) {
		r.mu.Lock()
		delete(r.tokens, token)
		r.mu.Unlock()
		return nil, ErrTokenExpired
	}
	acc := entry.account
	return &acc, nil
}

// pruneLocked drops expired tokens. Called with the lock held on every
// exchange so the map cannot grow without bound.
func (r *Resolver) pruneLocked(now time.Time) {
	for t, e := range r.tokens {
		if now.After(e.expiresAt) {
			delete(r.tokens, t)
		}
	}
}

func newToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
