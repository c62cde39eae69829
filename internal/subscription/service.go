// Package subscription manages the paid plans sold through Telegram Stars
// and the entitlement checks the rest of the bot relies on.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/arashpm/instabridge/core/logger"
	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/store"
)

// DefaultDuration is how long a purchased plan stays active.
const DefaultDuration = 30 * 24 * time.Hour

// ErrUnknownPlan is returned for plan ids outside the catalog.
var ErrUnknownPlan = errors.New("subscription: unknown plan")

// Plan is a purchasable subscription tier. Prices are in Telegram Stars.
type Plan struct {
	ID        string
	Title     string
	Stars     int
	AIEnabled bool
}

// Catalog lists the purchasable plans in display order.
var Catalog = []Plan{
	{ID: domain.PlanPro, Title: "Pro", Stars: 299},
	{ID: domain.PlanProAI, Title: "Pro + AI", Stars: 599, AIEnabled: true},
}

// UserStore is the persistence surface the service needs.
type UserStore interface {
	Ensure(ctx context.Context, userID int64, username string) error
	Get(ctx context.Context, userID int64) (*domain.User, error)
	SetPlan(ctx context.Context, userID int64, plan string, aiEnabled bool, expiresAt time.Time) error
}

// Service implements plan activation and entitlement checks.
type Service struct {
	users    UserStore
	duration time.Duration
	now      func() time.Time
}

// Options tunes a Service; zero values apply the defaults.
type Options struct {
	Duration time.Duration
	Now      func() time.Time
}

// NewService wires the service to its user store.
func NewService(users UserStore, opts Options) *Service {
	d := opts.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{users: users, duration: d, now: now}
}

// PlanByID looks a plan up in the catalog.
func PlanByID(id string) (Plan, bool) {
	for _, p := range Catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Activate grants the plan to the user for the configured duration and
// returns the new expiry. Called after a successful Stars payment, or by an
// admin grant.
func (s *Service) Activate(ctx context.Context, userID int64, planID string) (time.Time, error) {
	plan, ok := PlanByID(planID)
	if !ok {
		return time.Time{}, ErrUnknownPlan
	}
	expiresAt := s.now().UTC().Add(s.duration)
	if err := s.users.SetPlan(ctx, userID, plan.ID, plan.AIEnabled, expiresAt); err != nil {
		return time.Time{}, fmt.Errorf("subscription: activate %s: %w", plan.ID, err)
	}

	logger.SVCSubs.LogAttrs(ctx, slog.LevelInfo, "subscription.activated",
		slog.Int64("user_id", userID),
		slog.String("plan", plan.ID),
		slog.Time("expires_at", expiresAt),
	)
	return expiresAt, nil
}

// ActivateUntil grants the plan with an explicit expiry, used by admin grants.
func (s *Service) ActivateUntil(ctx context.Context, userID int64, planID string, expiresAt time.Time) error {
	plan, ok := PlanByID(planID)
	if !ok {
		return ErrUnknownPlan
	}
	if err := s.users.SetPlan(ctx, userID, plan.ID, plan.AIEnabled, expiresAt.UTC()); err != nil {
		return fmt.Errorf("subscription: grant %s: %w", plan.ID, err)
	}

	logger.SVCSubs.LogAttrs(ctx, slog.LevelInfo, "subscription.granted",
		slog.Int64("user_id", userID),
		slog.String("plan", plan.ID),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// Status loads the user's subscription record, normalizing a missing row and
// an elapsed expiry to the free plan.
func (s *Service) Status(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &domain.User{UserID: userID, Plan: domain.PlanFree}, nil
		}
		return nil, fmt.Errorf("subscription: status: %w", err)
	}
	if !u.SubscriptionActive(s.now().UTC()) {
		u.Plan = domain.PlanFree
		u.AIEnabled = false
	}
	return u, nil
}

// AIAllowed reports whether the user may use the AI assistant right now.
func (s *Service) AIAllowed(ctx context.Context, userID int64) (bool, error) {
	u, err := s.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.AIEnabled, nil
}
