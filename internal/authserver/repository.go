package authserver

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/netplay/internal/model"
)

// AccountRepository is the persistence contract the auth service consumes.
// Lookups return nil, nil when no row matches.
type AccountRepository interface {
	CreateAccount(ctx context.Context, acc *model.Account) error
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	RecordLoginAttempt(ctx context.Context, ip, identifier string, success bool) error
	CheckRateLimit(ctx context.Context, ip string, window time.Duration, maxAttempts int) (model.RateLimitDecision, error)
	CleanupLoginAttempts(ctx context.Context, olderThan time.Duration) (int64, error)
}
