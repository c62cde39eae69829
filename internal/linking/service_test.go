package linking

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/graph"
	"github.com/arashpm/instabridge/internal/store"
)

type memStates struct {
	mu   sync.Mutex
	rows map[string]*domain.LinkRequest
}

func newMemStates() *memStates {
	return &memStates{rows: make(map[string]*domain.LinkRequest)}
}

func (m *memStates) Create(_ context.Context, req *domain.LinkRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.rows[req.State] = &cp
	return nil
}

func (m *memStates) Consume(_ context.Context, state string) (*domain.LinkRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.rows[state]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(m.rows, state)
	return req, nil
}

type memLinks struct {
	mu   sync.Mutex
	rows map[int64]*domain.AccountLink
}

func newMemLinks() *memLinks {
	return &memLinks{rows: make(map[int64]*domain.AccountLink)}
}

func (m *memLinks) Save(_ context.Context, link *domain.AccountLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *link
	m.rows[link.UserID] = &cp
	return nil
}

func (m *memLinks) Get(_ context.Context, userID int64) (*domain.AccountLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.rows[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *link
	return &cp, nil
}

func (m *memLinks) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[userID]; !ok {
		return store.ErrNotFound
	}
	delete(m.rows, userID)
	return nil
}

type fakeGraph struct {
	shortTok  graph.TokenResult
	shortErr  error
	longTok   graph.TokenResult
	longErr   error
	meID      string
	meErr     error
	pages     []graph.Page
	pagesErr  error
	perPage   map[string]string
	pageCalls []string
}

func (f *fakeGraph) ExchangeCode(context.Context, string) (graph.TokenResult, error) {
	return f.shortTok, f.shortErr
}

func (f *fakeGraph) ExchangeLongLived(context.Context, string) (graph.TokenResult, error) {
	return f.longTok, f.longErr
}

func (f *fakeGraph) Me(context.Context, string) (string, error) {
	return f.meID, f.meErr
}

func (f *fakeGraph) Accounts(context.Context, string) ([]graph.Page, error) {
	return f.pages, f.pagesErr
}

func (f *fakeGraph) PageInstagram(_ context.Context, pageID, _ string) (string, error) {
	f.pageCalls = append(f.pageCalls, pageID)
	return f.perPage[pageID], nil
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *captureNotifier) Notify(_ context.Context, _ int64, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, message)
}

func (n *captureNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func testOptions() Options {
	return Options{
		AuthURL:     "https://www.facebook.com/v20.0/dialog/oauth",
		ClientID:    "app-id",
		RedirectURI: "https://example.com/auth/instagram",
	}
}

func TestBeginLinkBuildsAuthURL(t *testing.T) {
	states := newMemStates()
	svc := NewService(states, newMemLinks(), &fakeGraph{}, nil, testOptions())

	authURL, err := svc.BeginLink(context.Background(), 42)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "www.facebook.com", u.Host)
	q := u.Query()
	require.Equal(t, "app-id", q.Get("client_id"))
	require.Equal(t, "https://example.com/auth/instagram", q.Get("redirect_uri"))
	require.Contains(t, q.Get("scope"), "instagram_basic")

	state := q.Get("state")
	require.NotEmpty(t, state)
	require.GreaterOrEqual(t, len(state), 22)

	req, err := states.Consume(context.Background(), state)
	require.NoError(t, err)
	require.EqualValues(t, 42, req.UserID)
}

func TestBeginLinkStatesAreUnique(t *testing.T) {
	svc := NewService(newMemStates(), newMemLinks(), &fakeGraph{}, nil, testOptions())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		authURL, err := svc.BeginLink(context.Background(), 1)
		require.NoError(t, err)
		u, _ := url.Parse(authURL)
		state := u.Query().Get("state")
		require.False(t, seen[state], "duplicate state issued")
		seen[state] = true
	}
}

func TestConsumeStateAtMostOnce(t *testing.T) {
	states := newMemStates()
	svc := NewService(states, newMemLinks(), &fakeGraph{}, nil, testOptions())

	authURL, err := svc.BeginLink(context.Background(), 7)
	require.NoError(t, err)
	u, _ := url.Parse(authURL)
	state := u.Query().Get("state")

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan int64, callers)
	misses := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uid, err := svc.ConsumeState(context.Background(), state)
			if err != nil {
				misses <- err
				return
			}
			wins <- uid
		}()
	}
	wg.Wait()
	close(wins)
	close(misses)

	require.Len(t, wins, 1)
	require.EqualValues(t, 7, <-wins)
	for err := range misses {
		require.ErrorIs(t, err, ErrStateNotFound)
	}
}

func TestConsumeStateUnknown(t *testing.T) {
	svc := NewService(newMemStates(), newMemLinks(), &fakeGraph{}, nil, testOptions())
	_, err := svc.ConsumeState(context.Background(), "never-issued")
	require.ErrorIs(t, err, ErrStateNotFound)
}

func TestConsumeStateExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	opts := testOptions()
	opts.StateTTL = 15 * time.Minute
	opts.Now = func() time.Time { return now }

	states := newMemStates()
	svc := NewService(states, newMemLinks(), &fakeGraph{}, nil, opts)

	authURL, err := svc.BeginLink(context.Background(), 9)
	require.NoError(t, err)
	u, _ := url.Parse(authURL)
	state := u.Query().Get("state")

	now = now.Add(16 * time.Minute)
	_, err = svc.ConsumeState(context.Background(), state)
	require.ErrorIs(t, err, ErrStateNotFound)

	// Expired tokens are still consumed; a retry cannot revive them.
	_, err = states.Consume(context.Background(), state)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolvePrefersBulkAnnotation(t *testing.T) {
	g := &fakeGraph{
		pages: []graph.Page{
			{ID: "p1", Name: "First"},
			{ID: "p2", Name: "Second", Instagram: &graph.IGRef{ID: "ig2"}},
			{ID: "p3", Name: "Third", Instagram: &graph.IGRef{ID: "ig3"}},
		},
	}
	svc := NewService(newMemStates(), newMemLinks(), g, nil, testOptions())

	pageID, igID, err := svc.ResolveInstagramAccount(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "p2", pageID)
	require.Equal(t, "ig2", igID)
	require.Empty(t, g.pageCalls, "bulk hit must not trigger per-page lookups")
}

func TestResolveFallsBackPerPageInOrder(t *testing.T) {
	g := &fakeGraph{
		pages: []graph.Page{
			{ID: "p1", Name: "First"},
			{ID: "p2", Name: "Second"},
			{ID: "p3", Name: "Third"},
		},
		perPage: map[string]string{"p2": "ig2", "p3": "ig3"},
	}
	svc := NewService(newMemStates(), newMemLinks(), g, nil, testOptions())

	pageID, igID, err := svc.ResolveInstagramAccount(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "p2", pageID)
	require.Equal(t, "ig2", igID)
	require.Equal(t, []string{"p1", "p2"}, g.pageCalls)
}

func TestResolveNoLinkedAccount(t *testing.T) {
	g := &fakeGraph{
		pages:   []graph.Page{{ID: "p1"}, {ID: "p2"}},
		perPage: map[string]string{},
	}
	svc := NewService(newMemStates(), newMemLinks(), g, nil, testOptions())

	_, _, err := svc.ResolveInstagramAccount(context.Background(), "tok")
	require.ErrorIs(t, err, graph.ErrNoLinkedAccount)
}

func TestCompleteLinkPersistsFullRow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	opts := testOptions()
	opts.Now = func() time.Time { return now }

	g := &fakeGraph{
		shortTok: graph.TokenResult{AccessToken: "short-tok"},
		longTok:  graph.TokenResult{AccessToken: "long-tok", ExpiresIn: 5184000},
		meID:     "fb-123",
		pages:    []graph.Page{{ID: "p1", Instagram: &graph.IGRef{ID: "ig1"}}},
	}
	links := newMemLinks()
	notifier := &captureNotifier{}
	svc := NewService(newMemStates(), links, g, notifier, opts)

	link, err := svc.CompleteLink(context.Background(), 42, "the-code")
	require.NoError(t, err)
	require.Equal(t, &domain.AccountLink{
		UserID:         42,
		FBUserID:       "fb-123",
		PageID:         "p1",
		IGID:           "ig1",
		ShortToken:     "short-tok",
		LongToken:      "long-tok",
		TokenExpiresAt: now.Unix() + 5184000,
	}, link)

	stored, err := svc.Link(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, link, stored)

	msgs := notifier.messages()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0], "connected")
}

func TestCompleteLinkDefaultsTokenExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	opts := testOptions()
	opts.Now = func() time.Time { return now }

	g := &fakeGraph{
		shortTok: graph.TokenResult{AccessToken: "short-tok"},
		longTok:  graph.TokenResult{AccessToken: "long-tok"}, // no expires_in
		meID:     "fb-123",
		pages:    []graph.Page{{ID: "p1", Instagram: &graph.IGRef{ID: "ig1"}}},
	}
	svc := NewService(newMemStates(), newMemLinks(), g, nil, opts)

	link, err := svc.CompleteLink(context.Background(), 42, "the-code")
	require.NoError(t, err)
	require.Equal(t, now.Unix()+60*24*60*60, link.TokenExpiresAt)
}

func TestCompleteLinkReplacesPriorRecord(t *testing.T) {
	g := &fakeGraph{
		shortTok: graph.TokenResult{AccessToken: "short-a"},
		longTok:  graph.TokenResult{AccessToken: "long-a", ExpiresIn: 100},
		meID:     "fb-1",
		pages:    []graph.Page{{ID: "pA", Instagram: &graph.IGRef{ID: "igA"}}},
	}
	links := newMemLinks()
	svc := NewService(newMemStates(), links, g, nil, testOptions())

	_, err := svc.CompleteLink(context.Background(), 42, "code-1")
	require.NoError(t, err)

	g.shortTok = graph.TokenResult{AccessToken: "short-b"}
	g.longTok = graph.TokenResult{AccessToken: "long-b", ExpiresIn: 200}
	g.meID = "fb-2"
	g.pages = []graph.Page{{ID: "pB", Instagram: &graph.IGRef{ID: "igB"}}}

	_, err = svc.CompleteLink(context.Background(), 42, "code-2")
	require.NoError(t, err)

	stored, err := svc.Link(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "pB", stored.PageID)
	require.Equal(t, "igB", stored.IGID)
	require.Equal(t, "fb-2", stored.FBUserID)
	require.Equal(t, "short-b", stored.ShortToken)
	require.Equal(t, "long-b", stored.LongToken)
}

func TestCompleteLinkUpstreamFailureWritesNothing(t *testing.T) {
	g := &fakeGraph{
		shortTok: graph.TokenResult{AccessToken: "short-tok"},
		longErr:  &graph.UpstreamError{Op: "oauth.exchange_long", Body: "response missing access_token"},
	}
	links := newMemLinks()
	notifier := &captureNotifier{}
	svc := NewService(newMemStates(), links, g, notifier, testOptions())

	_, err := svc.CompleteLink(context.Background(), 42, "the-code")
	var ue *graph.UpstreamError
	require.ErrorAs(t, err, &ue)

	_, err = svc.Link(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotLinked)

	msgs := notifier.messages()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0], "failed")
}

func TestCompleteLinkNoLinkedAccountNotifies(t *testing.T) {
	g := &fakeGraph{
		shortTok: graph.TokenResult{AccessToken: "short-tok"},
		longTok:  graph.TokenResult{AccessToken: "long-tok", ExpiresIn: 100},
		meID:     "fb-1",
		pages:    []graph.Page{{ID: "p1"}},
		perPage:  map[string]string{},
	}
	links := newMemLinks()
	notifier := &captureNotifier{}
	svc := NewService(newMemStates(), links, g, notifier, testOptions())

	_, err := svc.CompleteLink(context.Background(), 42, "the-code")
	require.ErrorIs(t, err, graph.ErrNoLinkedAccount)

	_, err = svc.Link(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotLinked)

	msgs := notifier.messages()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0], "Instagram Business account connected")
}

func TestUnlink(t *testing.T) {
	links := newMemLinks()
	svc := NewService(newMemStates(), links, &fakeGraph{}, nil, testOptions())

	require.ErrorIs(t, svc.Unlink(context.Background(), 5), ErrNotLinked)

	require.NoError(t, links.Save(context.Background(), &domain.AccountLink{UserID: 5, IGID: "ig5"}))
	require.NoError(t, svc.Unlink(context.Background(), 5))
	_, err := svc.Link(context.Background(), 5)
	require.ErrorIs(t, err, ErrNotLinked)
}
