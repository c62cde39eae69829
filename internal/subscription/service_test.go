package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/store"
)

type memUsers struct {
	mu   sync.Mutex
	rows map[int64]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{rows: make(map[int64]*domain.User)}
}

func (m *memUsers) Ensure(_ context.Context, userID int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.rows[userID]; ok {
		u.Username = username
		return nil
	}
	m.rows[userID] = &domain.User{UserID: userID, Username: username, Plan: domain.PlanFree}
	return nil
}

func (m *memUsers) Get(_ context.Context, userID int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) SetPlan(_ context.Context, userID int64, plan string, aiEnabled bool, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Plan = plan
	u.AIEnabled = aiEnabled
	u.ExpiresAt = &expiresAt
	return nil
}

func TestActivateSetsPlanAndExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	users := newMemUsers()
	require.NoError(t, users.Ensure(context.Background(), 42, "alice"))

	svc := NewService(users, Options{Now: func() time.Time { return now }})

	expiresAt, err := svc.Activate(context.Background(), 42, domain.PlanProAI)
	require.NoError(t, err)
	require.Equal(t, now.Add(DefaultDuration), expiresAt)

	u, err := svc.Status(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, domain.PlanProAI, u.Plan)
	require.True(t, u.AIEnabled)
}

func TestActivateUnknownPlan(t *testing.T) {
	svc := NewService(newMemUsers(), Options{})
	_, err := svc.Activate(context.Background(), 42, "platinum")
	require.ErrorIs(t, err, ErrUnknownPlan)
}

func TestStatusExpiredFallsBackToFree(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	users := newMemUsers()
	require.NoError(t, users.Ensure(context.Background(), 42, "alice"))

	svc := NewService(users, Options{Now: func() time.Time { return now }})
	_, err := svc.Activate(context.Background(), 42, domain.PlanPro)
	require.NoError(t, err)

	now = now.Add(DefaultDuration + time.Hour)

	u, err := svc.Status(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, domain.PlanFree, u.Plan)
	require.False(t, u.AIEnabled)
}

func TestStatusUnknownUserIsFree(t *testing.T) {
	svc := NewService(newMemUsers(), Options{})
	u, err := svc.Status(context.Background(), 99)
	require.NoError(t, err)
	require.Equal(t, domain.PlanFree, u.Plan)
}

func TestAIAllowed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	users := newMemUsers()
	require.NoError(t, users.Ensure(context.Background(), 1, "a"))
	require.NoError(t, users.Ensure(context.Background(), 2, "b"))

	svc := NewService(users, Options{Now: func() time.Time { return now }})
	_, err := svc.Activate(context.Background(), 1, domain.PlanProAI)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), 2, domain.PlanPro)
	require.NoError(t, err)

	ok, err := svc.AIAllowed(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.AIAllowed(context.Background(), 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlanCatalog(t *testing.T) {
	pro, ok := PlanByID(domain.PlanPro)
	require.True(t, ok)
	require.Equal(t, 299, pro.Stars)
	require.False(t, pro.AIEnabled)

	proAI, ok := PlanByID(domain.PlanProAI)
	require.True(t, ok)
	require.Equal(t, 599, proAI.Stars)
	require.True(t, proAI.AIEnabled)

	_, ok = PlanByID("free")
	require.False(t, ok)
}
