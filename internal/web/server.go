// Package web hosts the OAuth callback endpoint and the static public pages
// required by the app review process.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/arashpm/instabridge/core/logger"
	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/graph"
	"github.com/arashpm/instabridge/internal/linking"
)

// Linker is the slice of the linking service the callback endpoint drives.
type Linker interface {
	ConsumeState(ctx context.Context, state string) (int64, error)
	CompleteLink(ctx context.Context, userID int64, code string) (*domain.AccountLink, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the OAuth redirect target plus health and policy pages.
type Server struct {
	linker Linker
	opts   Options
	srv    *http.Server
}

// NewServer builds the server and its route table.
func NewServer(linker Linker, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		// The callback performs several upstream Graph calls in sequence.
		opts.WriteTimeout = 90 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{linker: linker, opts: opts}
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/instagram", s.handleAuthCallback)
	mux.HandleFunc("GET /{$}", staticText("InstaBridge — connect your Instagram Business account through Telegram."))
	mux.HandleFunc("GET /healthz", staticText("ok"))
	mux.HandleFunc("GET /privacy", staticText(privacyText))
	mux.HandleFunc("GET /data-deletion", staticText(dataDeletionText))
	return Chain(mux, RequestID, Logging, Recover)
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	logger.WEB.LogAttrs(context.Background(), slog.LevelInfo, "web.listen",
		slog.String("addr", s.opts.Addr),
	)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// handleAuthCallback is the OAuth redirect target. It validates the query,
// consumes the state token, then runs the exchange/resolve/persist pipeline.
// Every outcome is a definitive plain-text page.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")

	if code == "" || state == "" {
		plainText(w, http.StatusBadRequest, "Missing code or state parameter.")
		return
	}

	userID, err := s.linker.ConsumeState(ctx, state)
	if err != nil {
		if errors.Is(err, linking.ErrStateNotFound) {
			plainText(w, http.StatusBadRequest, "State is invalid or expired. Please restart linking from the Telegram bot.")
			return
		}
		logger.WEB.LogAttrs(ctx, slog.LevelError, "callback.state_error",
			slog.String("err", err.Error()),
		)
		plainText(w, http.StatusInternalServerError, "Internal server error. Please try again later.")
		return
	}

	link, err := s.linker.CompleteLink(ctx, userID, code)
	if err != nil {
		s.writeLinkError(ctx, w, err)
		return
	}

	logger.WEB.LogAttrs(ctx, slog.LevelInfo, "callback.completed",
		slog.Int64("user_id", link.UserID),
		slog.String("ig_id", link.IGID),
	)
	plainText(w, http.StatusOK, "Instagram account connected. You can close this tab and return to Telegram.")
}

func (s *Server) writeLinkError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, graph.ErrNoLinkedAccount) {
		plainText(w, http.StatusInternalServerError,
			"None of your Facebook Pages has a connected Instagram Business account. Connect one and restart linking from the bot.")
		return
	}

	var upstream *graph.UpstreamError
	if errors.As(err, &upstream) {
		logger.WEB.LogAttrs(ctx, slog.LevelError, "callback.upstream_error",
			slog.String("op", upstream.Op),
			slog.Int("upstream_status", upstream.Status),
		)
		plainText(w, http.StatusInternalServerError, "Linking failed: "+upstream.Body)
		return
	}

	logger.WEB.LogAttrs(ctx, slog.LevelError, "callback.error",
		slog.String("err", err.Error()),
	)
	plainText(w, http.StatusInternalServerError, "Internal server error. Please try again later.")
}

func staticText(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		plainText(w, http.StatusOK, body)
	}
}

func plainText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))
}

const privacyText = `Privacy Policy

InstaBridge stores the minimum data needed to operate: your Telegram user id,
the identifiers of the Facebook Page and Instagram Business account you
connect, and the access tokens Facebook issues for them. Tokens are used only
to read your media and comments and to publish replies you explicitly request.
Nothing is shared with third parties.`

const dataDeletionText = `Data Deletion

To remove your data, open the bot in Telegram and use the disconnect option
in the menu, or message the bot administrator. This deletes your account link
and stored tokens.`
