// Package domain declares the persistent entities shared between the bot,
// the web callback endpoint and the storage layer.
package domain

import "time"

// Plan names stored on the user record.
const (
	PlanFree  = "free"
	PlanPro   = "pro"
	PlanProAI = "pro_ai"
)

// User is a Telegram user known to the bot, together with their
// subscription status.
type User struct {
	UserID    int64      `db:"user_id"`
	Username  string     `db:"username"`
	Plan      string     `db:"plan"`
	AIEnabled bool       `db:"ai_enabled"`
	ExpiresAt *time.Time `db:"expires_at"`
}

// SubscriptionActive reports whether the user's paid plan is still valid at t.
func (u *User) SubscriptionActive(t time.Time) bool {
	if u == nil || u.Plan == "" || u.Plan == PlanFree {
		return false
	}
	if u.ExpiresAt == nil {
		return false
	}
	return u.ExpiresAt.After(t)
}

// AccountLink ties a Telegram user to their resolved Instagram Business
// account and the Graph access tokens needed to act on it. One link per
// user; re-linking replaces the record in full.
type AccountLink struct {
	UserID         int64  `db:"user_id"`
	FBUserID       string `db:"fb_user_id"`
	PageID         string `db:"page_id"`
	IGID           string `db:"ig_id"`
	ShortToken     string `db:"short_token"`
	LongToken      string `db:"long_token"`
	TokenExpiresAt int64  `db:"token_expires_at"`
}

// LinkRequest is a one-time state token correlating an OAuth redirect back
// to the Telegram user who initiated linking. Consumed (deleted) exactly
// once; absence of a row means the token was used, expired or never issued.
type LinkRequest struct {
	State     string    `db:"state"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}
