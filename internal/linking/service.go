// Package linking implements the Instagram account linking pipeline: state
// token issuance, the two-step OAuth token exchange, page-to-Instagram
// account resolution and link persistence.
package linking

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"golang.org/x/oauth2"

	"github.com/arashpm/instabridge/core/logger"
	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/graph"
	"github.com/arashpm/instabridge/internal/store"
)

const (
	stateTokenBytes = 24

	// DefaultStateTTL bounds how long an issued state token stays valid.
	DefaultStateTTL = 15 * time.Minute

	// defaultTokenLifetime is assumed for long-lived tokens when the exchange
	// response carries no expires_in. Graph long-lived tokens last ~60 days.
	defaultTokenLifetime = 60 * 24 * time.Hour
)

// DefaultScopes are the Graph permissions requested during authorization.
var DefaultScopes = []string{
	"instagram_basic",
	"instagram_manage_comments",
	"pages_show_list",
	"pages_read_engagement",
	"business_management",
}

// StateStore persists one-time state tokens.
type StateStore interface {
	Create(ctx context.Context, req *domain.LinkRequest) error
	Consume(ctx context.Context, state string) (*domain.LinkRequest, error)
}

// LinkStore persists account links keyed by Telegram user id.
type LinkStore interface {
	Save(ctx context.Context, link *domain.AccountLink) error
	Get(ctx context.Context, userID int64) (*domain.AccountLink, error)
	Delete(ctx context.Context, userID int64) error
}

// GraphAPI is the subset of the Graph client the pipeline depends on.
type GraphAPI interface {
	ExchangeCode(ctx context.Context, code string) (graph.TokenResult, error)
	ExchangeLongLived(ctx context.Context, shortToken string) (graph.TokenResult, error)
	Me(ctx context.Context, token string) (string, error)
	Accounts(ctx context.Context, token string) ([]graph.Page, error)
	PageInstagram(ctx context.Context, pageID, token string) (string, error)
}

// Notifier delivers best-effort messages back to the user's bot chat.
// Implementations must never block the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, userID int64, message string)
}

// Options configures a Service.
type Options struct {
	AuthURL     string
	ClientID    string
	RedirectURI string
	Scopes      []string

	// StateTTL bounds state token validity; 0 applies DefaultStateTTL and
	// a negative value disables the check entirely.
	StateTTL time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

// Service orchestrates the linking pipeline.
type Service struct {
	states   StateStore
	links    LinkStore
	graph    GraphAPI
	notifier Notifier

	oauth    oauth2.Config
	stateTTL time.Duration
	now      func() time.Time
}

// NewService wires the pipeline dependencies. notifier may be nil.
func NewService(states StateStore, links LinkStore, g GraphAPI, notifier Notifier, opts Options) *Service {
	ttl := opts.StateTTL
	if ttl == 0 {
		ttl = DefaultStateTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &Service{
		states:   states,
		links:    links,
		graph:    g,
		notifier: notifier,
		oauth: oauth2.Config{
			ClientID:    opts.ClientID,
			RedirectURL: opts.RedirectURI,
			Scopes:      scopes,
			Endpoint:    oauth2.Endpoint{AuthURL: opts.AuthURL},
		},
		stateTTL: ttl,
		now:      now,
	}
}

// BeginLink issues a fresh state token for the user and returns the
// authorization URL to open in a browser.
func (s *Service) BeginLink(ctx context.Context, userID int64) (string, error) {
	token, err := generateStateToken()
	if err != nil {
		return "", fmt.Errorf("linking: generate state: %w", err)
	}
	req := &domain.LinkRequest{
		State:     token,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.states.Create(ctx, req); err != nil {
		return "", fmt.Errorf("linking: store state: %w", err)
	}

	logger.SVCLinking.LogAttrs(ctx, slog.LevelInfo, "link.begin",
		slog.Int64("user_id", userID),
		slog.String("state", logger.SanitizeLimit(token, 8)+"…"),
	)
	return s.oauth.AuthCodeURL(token), nil
}

// ConsumeState resolves a state token to the requesting user, enforcing
// at-most-once consumption and the configured TTL. Expired tokens are
// indistinguishable from unknown ones for the caller.
func (s *Service) ConsumeState(ctx context.Context, state string) (int64, error) {
	req, err := s.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrStateNotFound
		}
		return 0, fmt.Errorf("linking: consume state: %w", err)
	}
	if s.stateTTL > 0 {
		if age := s.now().UTC().Sub(req.CreatedAt); age > s.stateTTL {
			logger.SVCLinking.LogAttrs(ctx, slog.LevelWarn, "state.expired",
				slog.Int64("user_id", req.UserID),
				slog.Duration("age", age),
			)
			return 0, ErrStateNotFound
		}
	}
	return req.UserID, nil
}

// CompleteLink runs the pipeline from a consumed state to a persisted link:
// code -> short token -> long token -> account resolution -> upsert.
// Failures after this point are mirrored to the user's chat best-effort.
func (s *Service) CompleteLink(ctx context.Context, userID int64, code string) (*domain.AccountLink, error) {
	start := s.now()

	short, err := s.graph.ExchangeCode(ctx, code)
	if err != nil {
		s.notifyFailure(ctx, userID, err)
		return nil, err
	}

	long, err := s.graph.ExchangeLongLived(ctx, short.AccessToken)
	if err != nil {
		s.notifyFailure(ctx, userID, err)
		return nil, err
	}

	fbUserID, err := s.graph.Me(ctx, long.AccessToken)
	if err != nil {
		s.notifyFailure(ctx, userID, err)
		return nil, err
	}

	pageID, igID, err := s.ResolveInstagramAccount(ctx, long.AccessToken)
	if err != nil {
		s.notifyFailure(ctx, userID, err)
		return nil, err
	}

	expiresIn := long.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = int64(defaultTokenLifetime / time.Second)
	}
	link := &domain.AccountLink{
		UserID:         userID,
		FBUserID:       fbUserID,
		PageID:         pageID,
		IGID:           igID,
		ShortToken:     short.AccessToken,
		LongToken:      long.AccessToken,
		TokenExpiresAt: s.now().UTC().Unix() + expiresIn,
	}
	if err := s.links.Save(ctx, link); err != nil {
		return nil, fmt.Errorf("linking: save link: %w", err)
	}

	logger.SVCLinking.LogAttrs(ctx, slog.LevelInfo, "link.completed",
		slog.Int64("user_id", userID),
		slog.String("page_id", pageID),
		slog.String("ig_id", igID),
		slog.String("fb_user_id", fbUserID),
		slog.Duration("duration", logger.RoundMS(s.now().Sub(start))),
	)

	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, "✅ Your Instagram Business account is connected. Open the dashboard to see recent comments.")
	}
	return link, nil
}

// ResolveInstagramAccount finds the first page (in listing order) with a
// linked Instagram Business account. When the bulk listing carries no
// populated annotation it falls back to querying each page individually in
// the same order. The bulk endpoint does not always populate the nested
// field even when a linkage exists.
func (s *Service) ResolveInstagramAccount(ctx context.Context, longToken string) (pageID, igID string, err error) {
	pages, err := s.graph.Accounts(ctx, longToken)
	if err != nil {
		return "", "", err
	}

	for _, p := range pages {
		if p.Instagram != nil && p.Instagram.ID != "" {
			return p.ID, p.Instagram.ID, nil
		}
	}

	for _, p := range pages {
		id, lookupErr := s.graph.PageInstagram(ctx, p.ID, longToken)
		if lookupErr != nil {
			return "", "", lookupErr
		}
		if id != "" {
			return p.ID, id, nil
		}
	}

	return "", "", graph.ErrNoLinkedAccount
}

// Link loads the stored account link for the user.
func (s *Service) Link(ctx context.Context, userID int64) (*domain.AccountLink, error) {
	link, err := s.links.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotLinked
		}
		return nil, fmt.Errorf("linking: load link: %w", err)
	}
	return link, nil
}

// Unlink removes the stored account link, if any.
func (s *Service) Unlink(ctx context.Context, userID int64) error {
	if err := s.links.Delete(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotLinked
		}
		return fmt.Errorf("linking: delete link: %w", err)
	}
	return nil
}

func (s *Service) notifyFailure(ctx context.Context, userID int64, cause error) {
	if s.notifier == nil {
		return
	}
	msg := "❌ Connecting your Instagram account failed. Please try again from the menu."
	if errors.Is(cause, graph.ErrNoLinkedAccount) {
		msg = "❌ None of your Facebook Pages has an Instagram Business account connected. Link one in your Instagram settings and try again."
	}
	s.notifier.Notify(ctx, userID, msg)
}

func generateStateToken() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
