// Package app wires configuration, storage, services, the Telegram bot and
// the HTTP callback server into one runnable unit.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/arashpm/instabridge/core/bootstrap"
	"github.com/arashpm/instabridge/core/logger"
	tg "github.com/arashpm/instabridge/core/telegram"
	tghelpers "github.com/arashpm/instabridge/core/telegram/helpers"
	"github.com/arashpm/instabridge/core/telegram/router"
	"github.com/arashpm/instabridge/core/telegram/state"
	"github.com/arashpm/instabridge/internal/ai"
	"github.com/arashpm/instabridge/internal/bot"
	"github.com/arashpm/instabridge/internal/config"
	"github.com/arashpm/instabridge/internal/graph"
	"github.com/arashpm/instabridge/internal/linking"
	"github.com/arashpm/instabridge/internal/store/postgres"
	"github.com/arashpm/instabridge/internal/subscription"
	"github.com/arashpm/instabridge/internal/web"
)

const defaultPurgeInterval = 30 * time.Minute

// App aggregates every component of the running service.
type App struct {
	cfg *config.Config
	db  *sqlx.DB

	states *postgres.StateRepo

	linker   *linking.Service
	notifier *bot.Notifier
	registry *tg.Registry
	fsm      state.Manager
	handlers *bot.Handlers
	web      *web.Server
}

// New bootstraps infrastructure and builds the full service graph.
func New(cfg *config.Config) (*App, error) {
	boot, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	db := boot.DB

	users := postgres.NewUserRepo(db)
	links := postgres.NewLinkRepo(db)
	states := postgres.NewStateRepo(db)

	graphClient := graph.New(graph.Config{
		BaseURL:     cfg.Facebook.GraphBaseURL,
		AppID:       cfg.Facebook.AppID,
		AppSecret:   cfg.Facebook.AppSecret,
		RedirectURI: cfg.Facebook.RedirectURI,
	})

	notifier := bot.NewNotifier()
	linker := linking.NewService(states, links, graphClient, notifier, linking.Options{
		AuthURL:     cfg.Facebook.AuthURL,
		ClientID:    cfg.Facebook.AppID,
		RedirectURI: cfg.Facebook.RedirectURI,
		StateTTL:    cfg.Linking.StateTTL(),
	})

	subs := subscription.NewService(users, subscription.Options{})

	assistant := ai.NewClient(ai.Config{
		BaseURL:      cfg.OpenAI.BaseURL,
		APIKey:       cfg.OpenAI.APIKey,
		Model:        cfg.OpenAI.Model,
		Instructions: cfg.OpenAI.Instructions,
	})

	fsm := state.NewMemoryManager()
	handlers := &bot.Handlers{
		Links:     linker,
		Subs:      subs,
		Instagram: graphClient,
		Users:     users,
		LinkStats: links,
		Assistant: assistant,
		FSM:       fsm,
		AdminID:   cfg.Core.Telegram.AdminID,
	}

	registry := tg.NewRegistry()
	handlers.Register(registry)

	webServer := web.NewServer(linker, web.Options{Addr: cfg.HTTP.Addr})

	return &App{
		cfg:      cfg,
		db:       db,
		states:   states,
		linker:   linker,
		notifier: notifier,
		registry: registry,
		fsm:      fsm,
		handlers: handlers,
		web:      webServer,
	}, nil
}

// TelegramRunOptions assembles the bot runtime: middleware chain, routes and
// lifecycle hooks that start and stop the HTTP server and the state sweeper.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.fsm, a.registry, router.TextOptions{
		UnknownText: func(c tele.Context) error {
			return tghelpers.SendText(c, "I didn't get that. Use the menu buttons or /help.")
		},
	})...)
	routes = append(routes, a.handlers.PaymentRoutes()...)

	var sweeperCancel context.CancelFunc

	return tg.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(core, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.notifier.Bind(rt.Bot, rt.Dispatcher)

			go func() {
				if err := a.web.Start(); err != nil {
					logger.WEB.LogAttrs(ctx, slog.LevelError, "web.failed",
						slog.String("err", err.Error()),
					)
				}
			}()

			var sweepCtx context.Context
			sweepCtx, sweeperCancel = context.WithCancel(context.Background())
			go a.runStateSweeper(sweepCtx)
			return nil
		},
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			if sweeperCancel != nil {
				sweeperCancel()
			}
			if err := a.web.Shutdown(ctx); err != nil {
				logger.WEB.LogAttrs(ctx, slog.LevelWarn, "web.shutdown_error",
					slog.String("err", err.Error()),
				)
			}
			return a.db.Close()
		},
	}, nil
}

// runStateSweeper periodically deletes state tokens that outlived their TTL.
// Consume already rejects expired tokens; the sweeper keeps the table small.
func (a *App) runStateSweeper(ctx context.Context) {
	ttl := a.cfg.Linking.StateTTL()
	if ttl < 0 {
		return
	}
	if ttl == 0 {
		ttl = linking.DefaultStateTTL
	}
	interval := time.Duration(a.cfg.Linking.PurgeIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = defaultPurgeInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.states.PurgeOlderThan(ctx, time.Now().UTC().Add(-ttl))
			if err != nil {
				logger.SVCLinking.LogAttrs(ctx, slog.LevelWarn, "state.purge_failed",
					slog.String("err", err.Error()),
				)
				continue
			}
			if n > 0 {
				logger.SVCLinking.LogAttrs(ctx, slog.LevelInfo, "state.purged",
					slog.Int64("deleted", n),
				)
			}
		}
	}
}

// Run is the whole binary: load config, build the app, run until a signal.
func Run(defaultConfigPath string) error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("app: load config: %w", err)
	}

	application, err := New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return err
	}

	startedAt := time.Now()
	prevStart := runOpts.OnStart
	runOpts.OnStart = func(ctx context.Context, rt tg.Runtime) error {
		if prevStart != nil {
			if err := prevStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.L.With("component", "app").Info("app ready",
			slog.String("event", "ready"),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return tg.RunTelegram(ctx, runOpts)
}
