package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/listen-engine/internal/repo"
)

func newTestResolver(ttl time.Duration) (*Resolver, *repo.Memory) {
	mem := repo.NewMemory()
	return NewResolver(mem.Accounts(), StaticVerifier{}, ttl, zerolog.Nop()), mem
}

func TestExchange_IssuesResolvableToken(t *testing.T) {
	r, _ := newTestResolver(time.Hour)
	ctx := context.Background()

	res, err := r.Exchange(ctx, "code-1", repo.RoleElder)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token")
	}
	if res.ElderID != res.AccountID {
		t.Errorf("elder ElderID = %d, want account id %d", res.ElderID, res.AccountID)
	}

	acc, err := r.Resolve(ctx, res.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if acc.ID != res.AccountID || acc.Role != repo.RoleElder {
		t.Errorf("resolved %+v, want id=%d role=elder", acc, res.AccountID)
	}
}

func TestExchange_BindingIsIdempotent(t *testing.T) {
	r, _ := newTestResolver(time.Hour)
	ctx := context.Background()

	first, err := r.Exchange(ctx, "same-identity", repo.RoleCaregiver)
	if err != nil {
		t.Fatalf("first Exchange: %v", err)
	}
	second, err := r.Exchange(ctx, "same-identity", repo.RoleCaregiver)
	if err != nil {
		t.Fatalf("second Exchange: %v", err)
	}
	if first.AccountID != second.AccountID {
		t.Errorf("two logins bound two accounts: %d and %d", first.AccountID, second.AccountID)
	}
	if first.Token == second.Token {
		t.Error("expected a fresh token per exchange")
	}
	if second.ElderID != 0 {
		t.Errorf("caregiver ElderID = %d, want 0", second.ElderID)
	}
}

func TestExchange_RoleConflict(t *testing.T) {
	r, _ := newTestResolver(time.Hour)
	ctx := context.Background()

	if _, err := r.Exchange(ctx, "identity-x", repo.RoleElder); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	_, err := r.Exchange(ctx, "identity-x", repo.RoleCaregiver)
	if !errors.Is(err, ErrRoleConflict) {
		t.Errorf("Exchange with other role = %v, want ErrRoleConflict", err)
	}
}

func TestExchange_InvalidCode(t *testing.T) {
	r, _ := newTestResolver(time.Hour)
	_, err := r.Exchange(context.Background(), "", repo.RoleElder)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Exchange with empty code = %v, want ErrInvalidCredential", err)
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	r, _ := newTestResolver(time.Hour)
	_, err := r.Resolve(context.Background(), "deadbeef")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Resolve(unknown) = %v, want ErrTokenInvalid", err)
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	r, _ := newTestResolver(-time.Second) // already expired when issued
	ctx := context.Background()

	res, err := r.Exchange(ctx, "code-1", repo.RoleElder)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if _, err := r.Resolve(ctx, res.Token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Resolve(expired) = %v, want ErrTokenExpired", err)
	}
	// Expired entries are dropped, so a second resolve sees an unknown token.
	if _, err := r.Resolve(ctx, res.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("second Resolve = %v, want ErrTokenInvalid", err)
	}
}
