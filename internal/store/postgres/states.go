package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/store"
)

// StateRepo persists one-time OAuth state tokens.
type StateRepo struct {
	db *sqlx.DB
}

// NewStateRepo wires a StateRepo to the shared connection pool.
func NewStateRepo(db *sqlx.DB) *StateRepo {
	return &StateRepo{db: db}
}

// Create stores a freshly issued state token.
func (r *StateRepo) Create(ctx context.Context, req *domain.LinkRequest) error {
	const q = `INSERT INTO auth_states (state, user_id, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, q, req.State, req.UserID, req.CreatedAt); err != nil {
		return fmt.Errorf("states create: %w", err)
	}
	return nil
}

// Consume atomically deletes the token and returns its record. A second call
// with the same token observes store.ErrNotFound; under concurrent callers
// exactly one wins because the delete-and-return is a single statement.
func (r *StateRepo) Consume(ctx context.Context, state string) (*domain.LinkRequest, error) {
	const q = `DELETE FROM auth_states WHERE state = $1 RETURNING state, user_id, created_at`
	var req domain.LinkRequest
	if err := r.db.QueryRowxContext(ctx, q, state).StructScan(&req); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("states consume: %w", err)
	}
	return &req, nil
}

// PurgeOlderThan removes stale state tokens and returns the number deleted.
func (r *StateRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_states WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("states purge: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
