package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/graph"
	"github.com/arashpm/instabridge/internal/linking"
)

type fakeLinker struct {
	consumeUser int64
	consumeErr  error
	link        *domain.AccountLink
	completeErr error

	gotState  string
	gotUserID int64
	gotCode   string
	completed bool
}

func (f *fakeLinker) ConsumeState(_ context.Context, state string) (int64, error) {
	f.gotState = state
	if f.consumeErr != nil {
		return 0, f.consumeErr
	}
	return f.consumeUser, nil
}

func (f *fakeLinker) CompleteLink(_ context.Context, userID int64, code string) (*domain.AccountLink, error) {
	f.completed = true
	f.gotUserID = userID
	f.gotCode = code
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.link, nil
}

func callbackRequest(t *testing.T, linker Linker, target string) (*http.Response, string) {
	t.Helper()
	srv := NewServer(linker, Options{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestCallbackMissingParams(t *testing.T) {
	for _, target := range []string{
		"/auth/instagram",
		"/auth/instagram?code=abc",
		"/auth/instagram?state=xyz",
	} {
		linker := &fakeLinker{}
		resp, body := callbackRequest(t, linker, target)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
		require.Contains(t, body, "Missing code or state")
		require.False(t, linker.completed)
	}
}

func TestCallbackUnknownState(t *testing.T) {
	linker := &fakeLinker{consumeErr: linking.ErrStateNotFound}
	resp, body := callbackRequest(t, linker, "/auth/instagram?code=abc&state=never-issued")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body, "invalid or expired")
	require.Equal(t, "never-issued", linker.gotState)
	require.False(t, linker.completed)
}

func TestCallbackUpstreamErrorSurfacesBody(t *testing.T) {
	linker := &fakeLinker{
		consumeUser: 42,
		completeErr: &graph.UpstreamError{
			Op:     "oauth.exchange_code",
			Status: 400,
			Body:   `{"error":{"message":"Invalid verification code format."}}`,
		},
	}
	resp, body := callbackRequest(t, linker, "/auth/instagram?code=bad&state=ok")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, body, `{"error":{"message":"Invalid verification code format."}}`)
}

func TestCallbackNoLinkedAccount(t *testing.T) {
	linker := &fakeLinker{consumeUser: 42, completeErr: graph.ErrNoLinkedAccount}
	resp, body := callbackRequest(t, linker, "/auth/instagram?code=abc&state=ok")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, body, "Instagram Business account")
}

func TestCallbackHappyPath(t *testing.T) {
	linker := &fakeLinker{
		consumeUser: 42,
		link:        &domain.AccountLink{UserID: 42, PageID: "p1", IGID: "ig1"},
	}
	resp, body := callbackRequest(t, linker, "/auth/instagram?code=the-code&state=the-state")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "connected")
	require.EqualValues(t, 42, linker.gotUserID)
	require.Equal(t, "the-code", linker.gotCode)
	require.Equal(t, "the-state", linker.gotState)
}

func TestStaticPages(t *testing.T) {
	for path, want := range map[string]string{
		"/":              "InstaBridge",
		"/healthz":       "ok",
		"/privacy":       "Privacy Policy",
		"/data-deletion": "Data Deletion",
	} {
		resp, body := callbackRequest(t, &fakeLinker{}, path)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Contains(t, body, want, path)
	}
}

func TestRequestIDHeader(t *testing.T) {
	resp, _ := callbackRequest(t, &fakeLinker{}, "/healthz")
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestUnknownRouteIs404(t *testing.T) {
	resp, _ := callbackRequest(t, &fakeLinker{}, "/nope")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
