package authserver

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/netplay/internal/config"
	"github.com/udisondev/netplay/internal/db"
	"github.com/udisondev/netplay/internal/metrics"
	"github.com/udisondev/netplay/internal/model"
	"github.com/udisondev/netplay/internal/netmsg"
	"github.com/udisondev/netplay/internal/token"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// Handler implements the auth endpoints over the account repository.
// It is transport-agnostic: the server loop decodes requests and sends
// the returned responses.
type Handler struct {
	repo   AccountRepository
	issuer *token.Issuer
	cfg    config.AuthServer
	window time.Duration
}

// NewHandler wires the endpoints to their dependencies.
func NewHandler(cfg config.AuthServer, repo AccountRepository, issuer *token.Issuer) *Handler {
	return &Handler{
		repo:   repo,
		issuer: issuer,
		cfg:    cfg,
		window: time.Duration(cfg.RateLimitWindowMinutes) * time.Minute,
	}
}

// Register creates a new account.
func (h *Handler) Register(ctx context.Context, req netmsg.RegisterRequest) netmsg.RegisterResponse {
	if !usernameRe.MatchString(req.Username) {
		return netmsg.RegisterResponse{
			Result:  netmsg.AuthInvalidCredentials,
			Message: "username must be 3-32 characters: letters, digits, underscore",
		}
	}
	if !strings.Contains(req.Email, "@") || len(req.Email) > 254 {
		return netmsg.RegisterResponse{
			Result:  netmsg.AuthInvalidCredentials,
			Message: "invalid email address",
		}
	}
	if msg := checkPasswordPolicy(req.Password, req.Confirm, h.cfg.MinPasswordLength); msg != "" {
		return netmsg.RegisterResponse{Result: netmsg.AuthWeakPassword, Message: msg}
	}

	if acc, err := h.repo.GetByUsername(ctx, req.Username); err != nil {
		slog.Error("register: username lookup", "err", err)
		return netmsg.RegisterResponse{Result: netmsg.AuthInternalError, Message: "try again later"}
	} else if acc != nil {
		return netmsg.RegisterResponse{Result: netmsg.AuthUserExists, Message: "username is taken"}
	}
	if acc, err := h.repo.GetByEmail(ctx, req.Email); err != nil {
		slog.Error("register: email lookup", "err", err)
		return netmsg.RegisterResponse{Result: netmsg.AuthInternalError, Message: "try again later"}
	} else if acc != nil {
		return netmsg.RegisterResponse{Result: netmsg.AuthUserExists, Message: "email is taken"}
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		slog.Error("register: hashing", "err", err)
		return netmsg.RegisterResponse{Result: netmsg.AuthInternalError, Message: "try again later"}
	}

	acc := &model.Account{
		ID:           uuid.New(),
		Username:     strings.ToLower(req.Username),
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := h.repo.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// Lost the race against a concurrent registration.
			return netmsg.RegisterResponse{Result: netmsg.AuthUserExists, Message: "account already exists"}
		}
		slog.Error("register: insert", "err", err)
		return netmsg.RegisterResponse{Result: netmsg.AuthInternalError, Message: "try again later"}
	}

	slog.Info("account registered", "account", acc.ID, "username", acc.Username)
	return netmsg.RegisterResponse{
		Result:    netmsg.AuthSuccess,
		AccountID: acc.ID.String(),
		Username:  acc.Username,
	}
}

// Login authenticates by username or email and issues a session token.
// ip is the transport peer address, never client-supplied.
func (h *Handler) Login(ctx context.Context, ip string, req netmsg.LoginRequest) netmsg.LoginResponse {
	resp := h.login(ctx, ip, req)
	metrics.LoginOutcomes.WithLabelValues(resp.Result.String()).Inc()
	return resp
}

func (h *Handler) login(ctx context.Context, ip string, req netmsg.LoginRequest) netmsg.LoginResponse {
	dec, err := h.repo.CheckRateLimit(ctx, ip, h.window, h.cfg.RateLimitMaxAttempts)
	if err != nil {
		// Fail open: a storage hiccup must not lock everyone out.
		slog.Warn("login: rate limit check failed, allowing", "ip", ip, "err", err)
	} else if dec.Limited {
		retry := uint32((dec.RetryAfter + time.Second - 1) / time.Second)
		slog.Info("login rate limited", "ip", ip, "attempts", dec.Attempts, "retry_after", retry)
		return netmsg.LoginResponse{
			Result:     netmsg.AuthRateLimited,
			RetryAfter: retry,
			Message:    "too many failed attempts",
		}
	}

	acc, err := h.lookup(ctx, req.Identifier)
	if err != nil {
		slog.Error("login: account lookup", "err", err)
		return netmsg.LoginResponse{Result: netmsg.AuthInternalError, Message: "try again later"}
	}
	if acc == nil || !CheckPassword(acc.PasswordHash, req.Password) {
		h.recordAttempt(ctx, ip, req.Identifier, false)
		return netmsg.LoginResponse{Result: netmsg.AuthInvalidCredentials, Message: "invalid credentials"}
	}
	if acc.Banned() {
		h.recordAttempt(ctx, ip, req.Identifier, false)
		slog.Info("login refused, banned", "account", acc.ID, "ip", ip)
		return netmsg.LoginResponse{Result: netmsg.AuthBanned, Message: "account is blocked"}
	}

	signed, exp, err := h.issuer.Issue(acc.ID, acc.Username)
	if err != nil {
		slog.Error("login: token issue", "account", acc.ID, "err", err)
		return netmsg.LoginResponse{Result: netmsg.AuthInternalError, Message: "try again later"}
	}

	h.recordAttempt(ctx, ip, req.Identifier, true)
	if err := h.repo.UpdateLastLogin(ctx, acc.ID); err != nil {
		// Cosmetic field, the login still succeeds.
		slog.Warn("login: last login update", "account", acc.ID, "err", err)
	}

	slog.Info("login succeeded", "account", acc.ID, "username", acc.Username, "expires", exp)
	return netmsg.LoginResponse{
		Result:   netmsg.AuthSuccess,
		Token:    signed,
		UserID:   acc.ID.String(),
		Username: acc.Username,
	}
}

// ValidateToken verifies a session token on behalf of another service.
func (h *Handler) ValidateToken(req netmsg.TokenValidationRequest) netmsg.TokenValidationResponse {
	claims, err := h.issuer.Verify(req.Token)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, token.ErrExpired) {
			msg = "token expired"
		}
		return netmsg.TokenValidationResponse{Valid: false, Message: msg}
	}
	return netmsg.TokenValidationResponse{
		Valid:     true,
		UserID:    claims.Subject,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}
}

// lookup resolves the identifier: anything with '@' is an email.
func (h *Handler) lookup(ctx context.Context, identifier string) (*model.Account, error) {
	if strings.Contains(identifier, "@") {
		return h.repo.GetByEmail(ctx, identifier)
	}
	return h.repo.GetByUsername(ctx, identifier)
}

func (h *Handler) recordAttempt(ctx context.Context, ip, identifier string, success bool) {
	if err := h.repo.RecordLoginAttempt(ctx, ip, identifier, success); err != nil {
		slog.Warn("login: recording attempt", "ip", ip, "err", err)
	}
}
