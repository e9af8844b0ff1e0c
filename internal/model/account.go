package model

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a player account stored in the database.
// Username and email are unique; the password hash is a bcrypt string.
// A negative AccessLevel means the account is banned.
type Account struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	AccessLevel  int
	Metadata     []byte
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Banned reports whether the account is blocked from logging in.
func (a *Account) Banned() bool {
	return a.AccessLevel < 0
}

// RateLimitDecision is the outcome of the per-IP login limiter.
type RateLimitDecision struct {
	Attempts   int
	Limited    bool
	RetryAfter time.Duration
}
