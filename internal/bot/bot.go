// Package bot implements the Telegram-facing feature set: the main menu,
// Instagram linking entry point, the comment dashboard, Stars subscriptions,
// the AI assistant and the admin commands.
package bot

import (
	"context"
	"time"

	"github.com/arashpm/instabridge/core/telegram/state"
	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/graph"
)

// Conversation states driven through the FSM manager.
const (
	StateAwaitCommentReply state.State = "awaiting_comment_reply"
	StateAwaitMediaComment state.State = "awaiting_media_comment"
	StateAwaitBroadcast    state.State = "awaiting_broadcast"
	StateAIChat            state.State = "ai_chat"
)

// Temp-data keys used alongside the states above.
const (
	tempCommentID = "comment_id"
	tempMediaID   = "media_id"
)

// LinkService is the slice of the linking pipeline the handlers drive.
type LinkService interface {
	BeginLink(ctx context.Context, userID int64) (string, error)
	Link(ctx context.Context, userID int64) (*domain.AccountLink, error)
	Unlink(ctx context.Context, userID int64) error
}

// SubscriptionService gates paid features and activates purchased plans.
type SubscriptionService interface {
	Activate(ctx context.Context, userID int64, planID string) (time.Time, error)
	Status(ctx context.Context, userID int64) (*domain.User, error)
	AIAllowed(ctx context.Context, userID int64) (bool, error)
}

// InstagramAPI covers the Graph calls behind the dashboard and reply flows.
type InstagramAPI interface {
	MediaList(ctx context.Context, igID, token string, limit int) ([]graph.Media, error)
	Comments(ctx context.Context, mediaID, token string, limit int) ([]graph.Comment, error)
	ReplyToComment(ctx context.Context, commentID, message, token string) error
	PostComment(ctx context.Context, mediaID, message, token string) error
}

// UserDirectory is the user bookkeeping surface the handlers need.
type UserDirectory interface {
	Ensure(ctx context.Context, userID int64, username string) error
	ListIDs(ctx context.Context) ([]int64, error)
	CountByPlan(ctx context.Context) (map[string]int, error)
}

// LinkCounter reports how many accounts are linked, for admin stats.
type LinkCounter interface {
	Count(ctx context.Context) (int, error)
}

// Assistant produces AI replies for the assistant chat mode.
type Assistant interface {
	Reply(ctx context.Context, userText string) (string, error)
}
