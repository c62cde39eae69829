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

// UserRepo persists Telegram users and their subscription state.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo wires a UserRepo to the shared connection pool.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Ensure inserts the user if absent and refreshes the username otherwise.
// New users start on the free plan with AI disabled.
func (r *UserRepo) Ensure(ctx context.Context, userID int64, username string) error {
	const q = `
		INSERT INTO users (user_id, username, plan, ai_enabled)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username`
	if _, err := r.db.ExecContext(ctx, q, userID, username, domain.PlanFree); err != nil {
		return fmt.Errorf("users ensure: %w", err)
	}
	return nil
}

// Get loads a user by Telegram id.
func (r *UserRepo) Get(ctx context.Context, userID int64) (*domain.User, error) {
	const q = `
		SELECT user_id, username, plan, ai_enabled, expires_at
		FROM users WHERE user_id = $1`
	var u domain.User
	if err := r.db.GetContext(ctx, &u, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("users get: %w", err)
	}
	return &u, nil
}

// SetPlan updates the subscription plan, AI flag and expiry for a user.
func (r *UserRepo) SetPlan(ctx context.Context, userID int64, plan string, aiEnabled bool, expiresAt time.Time) error {
	const q = `
		UPDATE users SET plan = $2, ai_enabled = $3, expires_at = $4
		WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, q, userID, plan, aiEnabled, expiresAt)
	if err != nil {
		return fmt.Errorf("users set plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListIDs returns all known user ids, used by the admin broadcast.
func (r *UserRepo) ListIDs(ctx context.Context) ([]int64, error) {
	const q = `SELECT user_id FROM users ORDER BY user_id`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, fmt.Errorf("users list ids: %w", err)
	}
	return ids, nil
}

// CountByPlan returns the number of users per plan, used by admin stats.
func (r *UserRepo) CountByPlan(ctx context.Context) (map[string]int, error) {
	const q = `SELECT plan, COUNT(*) AS n FROM users GROUP BY plan`
	rows := []struct {
		Plan string `db:"plan"`
		N    int    `db:"n"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("users count by plan: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Plan] = row.N
	}
	return out, nil
}
