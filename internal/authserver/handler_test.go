package authserver

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/netplay/internal/config"
	"github.com/udisondev/netplay/internal/db"
	"github.com/udisondev/netplay/internal/model"
	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/token"
)

// fakeRepo is an in-memory AccountRepository with the same rate limit
// arithmetic as the SQL implementation.
type fakeRepo struct {
	accounts map[string]*model.Account // by username
	attempts []attempt
	failAll  bool
}

type attempt struct {
	ip      string
	success bool
	at      time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accounts: make(map[string]*model.Account)}
}

func (f *fakeRepo) CreateAccount(_ context.Context, acc *model.Account) error {
	if _, ok := f.accounts[acc.Username]; ok {
		return db.ErrDuplicate
	}
	f.accounts[acc.Username] = acc
	return nil
}

func (f *fakeRepo) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	return f.accounts[username], nil
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	for _, acc := range f.accounts {
		if acc.Email == email {
			return acc, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	for _, acc := range f.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) UpdateLastLogin(_ context.Context, id uuid.UUID) error { return nil }

func (f *fakeRepo) RecordLoginAttempt(_ context.Context, ip, _ string, success bool) error {
	f.attempts = append(f.attempts, attempt{ip: ip, success: success, at: time.Now()})
	return nil
}

func (f *fakeRepo) CheckRateLimit(_ context.Context, ip string, window time.Duration, maxAttempts int) (model.RateLimitDecision, error) {
	if f.failAll {
		return model.RateLimitDecision{}, context.DeadlineExceeded
	}
	now := time.Now()
	var dec model.RateLimitDecision
	var oldest time.Time
	for _, a := range f.attempts {
		if a.ip != ip || a.success || now.Sub(a.at) >= window {
			continue
		}
		dec.Attempts++
		if oldest.IsZero() || a.at.Before(oldest) {
			oldest = a.at
		}
	}
	if dec.Attempts >= maxAttempts && !oldest.IsZero() {
		dec.Limited = true
		dec.RetryAfter = oldest.Add(window).Sub(now)
	}
	return dec, nil
}

func (f *fakeRepo) CleanupLoginAttempts(_ context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func testConfig() config.AuthServer {
	cfg := config.DefaultAuthServer()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.RateLimitWindowMinutes = 1
	cfg.RateLimitMaxAttempts = 5
	return cfg
}

func newTestHandler(repo AccountRepository) *Handler {
	cfg := testConfig()
	return NewHandler(cfg, repo, token.NewIssuer(cfg.JWT))
}

func TestRegisterThenLogin(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo)
	ctx := context.Background()

	reg := h.Register(ctx, netmsg.RegisterRequest{
		Username: "player_one",
		Email:    "one@example.com",
		Password: "correct horse",
		Confirm:  "correct horse",
	})
	require.Equal(t, netmsg.AuthSuccess, reg.Result)
	require.Equal(t, "player_one", reg.Username)
	require.NotEmpty(t, reg.AccountID)

	login := h.Login(ctx, "10.0.0.1", netmsg.LoginRequest{
		Identifier: "player_one",
		Password:   "correct horse",
	})
	require.Equal(t, netmsg.AuthSuccess, login.Result)
	require.NotEmpty(t, login.Token)
	require.Equal(t, reg.AccountID, login.UserID)

	// The issued token verifies against the same JWT config.
	claims, err := token.NewIssuer(testConfig().JWT).Verify(login.Token)
	require.NoError(t, err)
	require.Equal(t, "player_one", claims.Username)
}

func TestLoginByEmail(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo)
	ctx := context.Background()

	h.Register(ctx, netmsg.RegisterRequest{
		Username: "player_two",
		Email:    "two@example.com",
		Password: "correct horse",
		Confirm:  "correct horse",
	})

	resp := h.Login(ctx, "10.0.0.1", netmsg.LoginRequest{
		Identifier: "two@example.com",
		Password:   "correct horse",
	})
	require.Equal(t, netmsg.AuthSuccess, resp.Result)
}

func TestRegisterRefusals(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo)
	ctx := context.Background()

	ok := netmsg.RegisterRequest{
		Username: "taken",
		Email:    "taken@example.com",
		Password: "long enough",
		Confirm:  "long enough",
	}
	require.Equal(t, netmsg.AuthSuccess, h.Register(ctx, ok).Result)

	cases := []struct {
		name string
		req  netmsg.RegisterRequest
		want netmsg.AuthResult
	}{
		{"short username", netmsg.RegisterRequest{Username: "ab", Email: "a@b.c", Password: "long enough", Confirm: "long enough"}, netmsg.AuthInvalidCredentials},
		{"bad email", netmsg.RegisterRequest{Username: "valid_name", Email: "nope", Password: "long enough", Confirm: "long enough"}, netmsg.AuthInvalidCredentials},
		{"weak password", netmsg.RegisterRequest{Username: "valid_name", Email: "a@b.c", Password: "short", Confirm: "short"}, netmsg.AuthWeakPassword},
		{"mismatched confirm", netmsg.RegisterRequest{Username: "valid_name", Email: "a@b.c", Password: "long enough", Confirm: "different!"}, netmsg.AuthWeakPassword},
		{"duplicate username", netmsg.RegisterRequest{Username: "taken", Email: "new@example.com", Password: "long enough", Confirm: "long enough"}, netmsg.AuthUserExists},
		{"duplicate email", netmsg.RegisterRequest{Username: "brand_new", Email: "taken@example.com", Password: "long enough", Confirm: "long enough"}, netmsg.AuthUserExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, h.Register(ctx, tc.req).Result)
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo)
	ctx := context.Background()

	h.Register(ctx, netmsg.RegisterRequest{
		Username: "victim",
		Email:    "v@example.com",
		Password: "long enough",
		Confirm:  "long enough",
	})

	resp := h.Login(ctx, "10.0.0.9", netmsg.LoginRequest{Identifier: "victim", Password: "wrong"})
	require.Equal(t, netmsg.AuthInvalidCredentials, resp.Result)
	require.Len(t, repo.attempts, 1)
	require.False(t, repo.attempts[0].success)
}

func TestLoginRateLimitTripsWithRetryAfter(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo)
	ctx := context.Background()

	h.Register(ctx, netmsg.RegisterRequest{
		Username: "target",
		Email:    "t@example.com",
		Password: "long enough",
		Confirm:  "long enough",
	})

	for i := 0; i < 5; i++ {
		resp := h.Login(ctx, "198.51.100.7", netmsg.LoginRequest{Identifier: "target", Password: "wrong"})
		require.Equal(t, netmsg.AuthInvalidCredentials, resp.Result)
	}

	// Age the first failure a few seconds into the one-minute window.
	repo.attempts[0].at = time.Now().Add(-3 * time.Second)

	resp := h.Login(ctx, "198.51.100.7", netmsg.LoginRequest{Identifier: "target", Password: "long enough"})
	require.Equal(t, netmsg.AuthRateLimited, resp.Result)
	require.InDelta(t, 57, float64(resp.RetryAfter), 2)

	// A different address is unaffected.
	other := h.Login(ctx, "203.0.113.1", netmsg.LoginRequest{Identifier: "target", Password: "long enough"})
	require.Equal(t, netmsg.AuthSuccess, other.Result)
}

func TestLoginSuccessDoesNotCountTowardLimit(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo)
	ctx := context.Background()

	h.Register(ctx, netmsg.RegisterRequest{
		Username: "regular",
		Email:    "r@example.com",
		Password: "long enough",
		Confirm:  "long enough",
	})

	for i := 0; i < 10; i++ {
		resp := h.Login(ctx, "192.0.2.5", netmsg.LoginRequest{Identifier: "regular", Password: "long enough"})
		require.Equal(t, netmsg.AuthSuccess, resp.Result)
	}
}

func TestLoginFailsOpenOnLimiterError(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo)
	ctx := context.Background()

	h.Register(ctx, netmsg.RegisterRequest{
		Username: "stoic",
		Email:    "s@example.com",
		Password: "long enough",
		Confirm:  "long enough",
	})
	repo.failAll = true

	resp := h.Login(ctx, "192.0.2.6", netmsg.LoginRequest{Identifier: "stoic", Password: "long enough"})
	require.Equal(t, netmsg.AuthSuccess, resp.Result)
}

func TestLoginBanned(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo)
	ctx := context.Background()

	h.Register(ctx, netmsg.RegisterRequest{
		Username: "outcast",
		Email:    "o@example.com",
		Password: "long enough",
		Confirm:  "long enough",
	})
	repo.accounts["outcast"].AccessLevel = -1

	resp := h.Login(ctx, "192.0.2.7", netmsg.LoginRequest{Identifier: "outcast", Password: "long enough"})
	require.Equal(t, netmsg.AuthBanned, resp.Result)
}

func TestValidateToken(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo)
	ctx := context.Background()

	h.Register(ctx, netmsg.RegisterRequest{
		Username: "checker",
		Email:    "c@example.com",
		Password: "long enough",
		Confirm:  "long enough",
	})
	login := h.Login(ctx, "192.0.2.8", netmsg.LoginRequest{Identifier: "checker", Password: "long enough"})
	require.Equal(t, netmsg.AuthSuccess, login.Result)

	valid := h.ValidateToken(netmsg.TokenValidationRequest{Token: login.Token})
	require.True(t, valid.Valid)
	require.Equal(t, login.UserID, valid.UserID)
	require.Equal(t, "checker", valid.Username)
	require.Greater(t, valid.ExpiresAt, time.Now().Unix())

	bogus := h.ValidateToken(netmsg.TokenValidationRequest{Token: "garbage"})
	require.False(t, bogus.Valid)
	require.Equal(t, "invalid token", bogus.Message)
}
