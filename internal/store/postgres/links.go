package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/store"
)

// LinkRepo persists Instagram account links keyed by Telegram user id.
type LinkRepo struct {
	db *sqlx.DB
}

// NewLinkRepo wires a LinkRepo to the shared connection pool.
func NewLinkRepo(db *sqlx.DB) *LinkRepo {
	return &LinkRepo{db: db}
}

// Save upserts the link, replacing any prior record for the user in full.
func (r *LinkRepo) Save(ctx context.Context, link *domain.AccountLink) error {
	const q = `
		INSERT INTO ig_links (user_id, fb_user_id, page_id, ig_id, short_token, long_token, token_expires_at)
		VALUES (:user_id, :fb_user_id, :page_id, :ig_id, :short_token, :long_token, :token_expires_at)
		ON CONFLICT (user_id) DO UPDATE SET
			fb_user_id = EXCLUDED.fb_user_id,
			page_id = EXCLUDED.page_id,
			ig_id = EXCLUDED.ig_id,
			short_token = EXCLUDED.short_token,
			long_token = EXCLUDED.long_token,
			token_expires_at = EXCLUDED.token_expires_at`
	if _, err := r.db.NamedExecContext(ctx, q, link); err != nil {
		return fmt.Errorf("links save: %w", err)
	}
	return nil
}

// Get loads the link for a user.
func (r *LinkRepo) Get(ctx context.Context, userID int64) (*domain.AccountLink, error) {
	const q = `
		SELECT user_id, fb_user_id, page_id, ig_id, short_token, long_token, token_expires_at
		FROM ig_links WHERE user_id = $1`
	var link domain.AccountLink
	if err := r.db.GetContext(ctx, &link, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("links get: %w", err)
	}
	return &link, nil
}

// Delete removes the link for a user (admin / data-deletion path).
func (r *LinkRepo) Delete(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ig_links WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("links delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Count returns the number of linked accounts, used by admin stats.
func (r *LinkRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM ig_links`); err != nil {
		return 0, fmt.Errorf("links count: %w", err)
	}
	return n, nil
}
