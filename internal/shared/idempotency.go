package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// ErrIdempotencyConflict is returned when a key was already claimed within
// the same module.
var ErrIdempotencyConflict = Conflict("IDEMPOTENCY_KEY_REUSED", "request already processed")

var errNoIdempotencyStore = errors.New("idempotency store not initialised")

// IdempotencyStore records client request keys in idempotency_keys. Keys are
// unique per module, so a receipt and a return may reuse the same token.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// Claim inserts (module, key). A second claim of the same pair fails with
// ErrIdempotencyConflict until the first is released or purged.
func (s *IdempotencyStore) Claim(ctx context.Context, module, key string) error {
	if s == nil || s.pool == nil {
		return errNoIdempotencyStore
	}
	if module == "" || key == "" {
		return Validation("IDEMPOTENCY_KEY_INVALID", "idempotency module and key are required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (module, key, created_at) VALUES ($1, $2, $3)`,
		module, key, s.now().UTC())
	if IsUniqueViolation(err) {
		return ErrIdempotencyConflict
	}
	return err
}

// Release frees a claimed key so the client can resubmit after a failure.
func (s *IdempotencyStore) Release(ctx context.Context, module, key string) error {
	if s == nil || s.pool == nil {
		return errNoIdempotencyStore
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE module = $1 AND key = $2`, module, key)
	return err
}

// Purge deletes keys claimed more than olderThan ago and reports how many
// went.
func (s *IdempotencyStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
