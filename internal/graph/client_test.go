package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:     srv.URL,
		AppID:       "app-id",
		AppSecret:   "app-secret",
		RedirectURI: "https://example.com/auth/instagram",
	})
}

func TestExchangeCode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/access_token", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "app-id", q.Get("client_id"))
		require.Equal(t, "app-secret", q.Get("client_secret"))
		require.Equal(t, "https://example.com/auth/instagram", q.Get("redirect_uri"))
		require.Equal(t, "the-code", q.Get("code"))
		w.Write([]byte(`{"access_token":"short-tok","token_type":"bearer","expires_in":5183944}`))
	}))

	res, err := c.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	require.Equal(t, "short-tok", res.AccessToken)
	require.EqualValues(t, 5183944, res.ExpiresIn)
}

func TestExchangeCodeMissingToken(t *testing.T) {
	const upstreamBody = `{"token_type":"bearer","error_note":"no token issued"}`
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(upstreamBody))
	}))

	_, err := c.ExchangeCode(context.Background(), "the-code")
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, http.StatusOK, ue.Status)
	require.Equal(t, upstreamBody, ue.Body)
}

func TestExchangeLongLivedUpstreamBodySurfaced(t *testing.T) {
	const upstreamBody = `{"error":{"message":"Invalid OAuth access token.","code":190}}`
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "fb_exchange_token", r.URL.Query().Get("grant_type"))
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(upstreamBody))
	}))

	_, err := c.ExchangeLongLived(context.Background(), "short-tok")
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, http.StatusBadRequest, ue.Status)
	require.Equal(t, upstreamBody, ue.Body)
}

func TestAccountsParsesAnnotations(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/accounts", r.URL.Path)
		w.Write([]byte(`{"data":[
			{"id":"p1","name":"First"},
			{"id":"p2","name":"Second","instagram_business_account":{"id":"ig2"}}
		]}`))
	}))

	pages, err := c.Accounts(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Nil(t, pages[0].Instagram)
	require.NotNil(t, pages[1].Instagram)
	require.Equal(t, "ig2", pages[1].Instagram.ID)
}

func TestPageInstagramEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/p1", r.URL.Path)
		w.Write([]byte(`{"id":"p1"}`))
	}))

	igID, err := c.PageInstagram(context.Background(), "p1", "tok")
	require.NoError(t, err)
	require.Empty(t, igID)
}

func TestReplyToCommentPostsForm(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/c1/replies", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "thanks!", r.PostForm.Get("message"))
		require.Equal(t, "tok", r.PostForm.Get("access_token"))
		w.Write([]byte(`{"id":"new-comment"}`))
	}))

	require.NoError(t, c.ReplyToComment(context.Background(), "c1", "thanks!", "tok"))
}

func TestUpstreamErrorIsNotRetried(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`boom`))
	}))

	_, err := c.Me(context.Background(), "tok")
	require.Error(t, err)
	require.Equal(t, 1, calls)
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
}
