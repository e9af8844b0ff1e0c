package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/netplay/internal/model"
)

// ErrDuplicate is returned when a unique constraint (username or email)
// rejects an insert.
var ErrDuplicate = errors.New("account already exists")

// PostgresAccountRepository implements the auth service's repository
// contract on PostgreSQL.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAccountRepository creates a repository over the given pool.
func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

const accountColumns = `id, username, email, password, access_level, metadata, created_at, last_login`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var acc model.Account
	err := row.Scan(&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash,
		&acc.AccessLevel, &acc.Metadata, &acc.CreatedAt, &acc.LastLogin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

// CreateAccount inserts a new account. Returns ErrDuplicate when the
// username or email is already taken.
func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, acc *model.Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (id, username, email, password, access_level, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		acc.ID, strings.ToLower(acc.Username), strings.ToLower(acc.Email),
		acc.PasswordHash, acc.AccessLevel, acc.Metadata, acc.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicate
		}
		return fmt.Errorf("creating account %q: %w", acc.Username, err)
	}
	return nil
}

// GetByUsername returns the account with the given username.
// Returns nil, nil if it does not exist.
func (r *PostgresAccountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`,
		strings.ToLower(username)))
	if err != nil {
		return nil, fmt.Errorf("querying account by username %q: %w", username, err)
	}
	return acc, nil
}

// GetByEmail returns the account with the given email.
// Returns nil, nil if it does not exist.
func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		strings.ToLower(email)))
	if err != nil {
		return nil, fmt.Errorf("querying account by email %q: %w", email, err)
	}
	return acc, nil
}

// GetByID returns the account with the given id.
// Returns nil, nil if it does not exist.
func (r *PostgresAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("querying account by id %s: %w", id, err)
	}
	return acc, nil
}

// UpdateLastLogin stamps last_login on successful login.
func (r *PostgresAccountRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET last_login = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("updating last login for %s: %w", id, err)
	}
	return nil
}

// RecordLoginAttempt appends one row to the audit log.
func (r *PostgresAccountRepository) RecordLoginAttempt(ctx context.Context, ip, identifier string, success bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO login_attempts (ip, identifier, success, attempted_at)
		 VALUES ($1, $2, $3, $4)`,
		ip, identifier, success, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("recording login attempt from %s: %w", ip, err)
	}
	return nil
}

// CheckRateLimit counts failed attempts from ip inside the window and
// computes when the limit would release. The decision is monotone within
// the window: once limited, retry-after only shrinks as time passes.
func (r *PostgresAccountRepository) CheckRateLimit(ctx context.Context, ip string, window time.Duration, maxAttempts int) (model.RateLimitDecision, error) {
	now := time.Now()
	var attempts int
	var oldest *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT count(*), min(attempted_at) FROM login_attempts
		 WHERE ip = $1 AND success = false AND attempted_at > $2`,
		ip, now.Add(-window),
	).Scan(&attempts, &oldest)
	if err != nil {
		return model.RateLimitDecision{}, fmt.Errorf("checking rate limit for %s: %w", ip, err)
	}

	dec := model.RateLimitDecision{Attempts: attempts}
	if attempts >= maxAttempts && oldest != nil {
		dec.Limited = true
		retry := oldest.Add(window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		dec.RetryAfter = retry
	}
	return dec, nil
}

// CleanupLoginAttempts prunes audit rows older than the retention cutoff.
// Returns the number of rows removed.
func (r *PostgresAccountRepository) CleanupLoginAttempts(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM login_attempts WHERE attempted_at < $1`,
		time.Now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up login attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
