// Package graph is a thin client for the Facebook Graph API covering the
// OAuth token exchange and the Instagram Business endpoints the bot uses.
// Calls are single-shot with a bounded timeout; failures surface the literal
// upstream body and are never retried.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/arashpm/instabridge/core/logger"
)

const (
	// DefaultBaseURL is the Graph API root including the pinned version.
	DefaultBaseURL = "https://graph.facebook.com/v20.0"

	defaultTimeout = 20 * time.Second

	maxErrorBody = 4 * 1024
)

// Config carries the app credentials and endpoint settings for the client.
type Config struct {
	BaseURL     string
	AppID       string
	AppSecret   string
	RedirectURI string
	Timeout     time.Duration
}

// Client performs Graph API calls. Safe for concurrent use.
type Client struct {
	baseURL     string
	appID       string
	appSecret   string
	redirectURI string
	http        *http.Client
}

// New builds a Client from Config, applying defaults for empty fields.
func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:     base,
		appID:       cfg.AppID,
		appSecret:   cfg.AppSecret,
		redirectURI: cfg.RedirectURI,
		http:        &http.Client{Timeout: timeout},
	}
}

// RedirectURI returns the exact redirect URI the client was configured with.
// The authorize URL and the code exchange must use the same value.
func (c *Client) RedirectURI() string { return c.redirectURI }

// AppID returns the configured Facebook app id.
func (c *Client) AppID() string { return c.appID }

// TokenResult is the decoded response of an oauth/access_token call.
type TokenResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Page is one entry of the me/accounts listing.
type Page struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Instagram *IGRef `json:"instagram_business_account"`
}

// IGRef references a linked Instagram Business account.
type IGRef struct {
	ID string `json:"id"`
}

// Media is one Instagram media item.
type Media struct {
	ID        string `json:"id"`
	Caption   string `json:"caption"`
	MediaType string `json:"media_type"`
	Permalink string `json:"permalink"`
	Timestamp string `json:"timestamp"`
}

// Comment is one comment on an Instagram media item.
type Comment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// ExchangeCode exchanges an OAuth authorization code for a short-lived user
// token. The redirect_uri must match the one used to obtain the code.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenResult, error) {
	q := url.Values{}
	q.Set("client_id", c.appID)
	q.Set("client_secret", c.appSecret)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("code", code)

	return c.exchangeToken(ctx, "oauth.exchange_code", q)
}

// ExchangeLongLived trades a short-lived token for a long-lived one.
func (c *Client) ExchangeLongLived(ctx context.Context, shortToken string) (TokenResult, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.appID)
	q.Set("client_secret", c.appSecret)
	q.Set("fb_exchange_token", shortToken)

	return c.exchangeToken(ctx, "oauth.exchange_long", q)
}

// exchangeToken performs an oauth/access_token call. A 200 response without
// an access_token is an upstream failure and carries the literal body.
func (c *Client) exchangeToken(ctx context.Context, op string, q url.Values) (TokenResult, error) {
	var res TokenResult
	body, err := c.getJSON(ctx, op, "/oauth/access_token", q, &res)
	if err != nil {
		return TokenResult{}, err
	}
	if res.AccessToken == "" {
		trimmed := string(body)
		if len(trimmed) > maxErrorBody {
			trimmed = trimmed[:maxErrorBody]
		}
		return TokenResult{}, &UpstreamError{Op: op, Status: http.StatusOK, Body: trimmed}
	}
	return res, nil
}

// Me returns the externally-visible account id of the token holder.
func (c *Client) Me(ctx context.Context, token string) (string, error) {
	q := url.Values{}
	q.Set("fields", "id")
	q.Set("access_token", token)

	var res struct {
		ID string `json:"id"`
	}
	if _, err := c.getJSON(ctx, "me", "/me", q, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// Accounts lists the pages manageable by the token holder, each optionally
// annotated with its linked Instagram Business account.
func (c *Client) Accounts(ctx context.Context, token string) ([]Page, error) {
	q := url.Values{}
	q.Set("fields", "id,name,instagram_business_account")
	q.Set("access_token", token)

	var res struct {
		Data []Page `json:"data"`
	}
	if _, err := c.getJSON(ctx, "me.accounts", "/me/accounts", q, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// PageInstagram queries a single page for its Instagram linkage. Returns an
// empty id when the page has no linked account.
func (c *Client) PageInstagram(ctx context.Context, pageID, token string) (string, error) {
	q := url.Values{}
	q.Set("fields", "instagram_business_account")
	q.Set("access_token", token)

	var res struct {
		Instagram *IGRef `json:"instagram_business_account"`
	}
	if _, err := c.getJSON(ctx, "page.instagram", "/"+url.PathEscape(pageID), q, &res); err != nil {
		return "", err
	}
	if res.Instagram == nil {
		return "", nil
	}
	return res.Instagram.ID, nil
}

// MediaList returns recent media for the given Instagram Business account.
func (c *Client) MediaList(ctx context.Context, igID, token string, limit int) ([]Media, error) {
	q := url.Values{}
	q.Set("fields", "id,caption,media_type,permalink,timestamp")
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	q.Set("access_token", token)

	var res struct {
		Data []Media `json:"data"`
	}
	if _, err := c.getJSON(ctx, "media.list", "/"+url.PathEscape(igID)+"/media", q, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Comments returns comments on the given media item.
func (c *Client) Comments(ctx context.Context, mediaID, token string, limit int) ([]Comment, error) {
	q := url.Values{}
	q.Set("fields", "id,text,username,timestamp")
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	q.Set("access_token", token)

	var res struct {
		Data []Comment `json:"data"`
	}
	if _, err := c.getJSON(ctx, "comments.list", "/"+url.PathEscape(mediaID)+"/comments", q, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// ReplyToComment posts a reply under an existing comment.
func (c *Client) ReplyToComment(ctx context.Context, commentID, message, token string) error {
	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", token)
	return c.postForm(ctx, "comment.reply", "/"+url.PathEscape(commentID)+"/replies", form)
}

// PostComment publishes a new top-level comment on a media item.
func (c *Client) PostComment(ctx context.Context, mediaID, message, token string) error {
	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", token)
	return c.postForm(ctx, "comment.create", "/"+url.PathEscape(mediaID)+"/comments", form)
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("graph %s: build request: %w", op, err)
	}
	return c.do(req, op, out)
}

func (c *Client) postForm(ctx context.Context, op, path string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("graph %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(req, op, nil)
	return err
}

// do executes the request and returns the raw response body alongside any
// decode into out.
func (c *Client) do(req *http.Request, op string, out any) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.GRAPH.Error("graph request failed",
			slog.String("event", "graph.request"),
			slog.String("op", op),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", sanitizeToken(err.Error())),
		)
		return nil, fmt.Errorf("graph %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return nil, fmt.Errorf("graph %s: read response: %w", op, readErr)
	}

	if resp.StatusCode != http.StatusOK {
		trimmed := string(body)
		if len(trimmed) > maxErrorBody {
			trimmed = trimmed[:maxErrorBody]
		}
		logger.GRAPH.Warn("graph upstream error",
			slog.String("event", "graph.request"),
			slog.String("op", op),
			slog.Int("http_code", resp.StatusCode),
			slog.Duration("duration", logger.Took(start)),
		)
		return nil, &UpstreamError{Op: op, Status: resp.StatusCode, Body: trimmed}
	}

	if logger.ShouldSampleDebug() {
		logger.GRAPH.Debug("graph request",
			slog.String("event", "graph.request"),
			slog.String("op", op),
			slog.Int("http_code", resp.StatusCode),
			slog.Duration("duration", logger.Took(start)),
		)
	}

	if out == nil {
		return body, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, &UpstreamError{Op: op, Status: resp.StatusCode, Body: "malformed response: " + logger.SanitizeLimit(string(body), maxErrorBody)}
	}
	return body, nil
}

// sanitizeToken strips access_token query values from error strings before
// they reach the logs.
func sanitizeToken(msg string) string {
	if i := strings.Index(msg, "access_token="); i >= 0 {
		end := i + len("access_token=")
		for end < len(msg) && msg[end] != '&' && msg[end] != '"' && msg[end] != ' ' {
			end++
		}
		return msg[:i] + "access_token=<redacted>" + msg[end:]
	}
	return msg
}
