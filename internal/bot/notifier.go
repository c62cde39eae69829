package bot

import (
	"context"
	"sync"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/arashpm/instabridge/core/logger"
	"github.com/arashpm/instabridge/core/telegram/sender"
)

// Notifier delivers linking-pipeline outcomes into the user's chat through
// the async dispatcher. Delivery is best-effort and never blocks the caller.
// It is created before the bot exists and bound once the runtime is up;
// notifications arriving before Bind are dropped with a log line.
type Notifier struct {
	mu   sync.RWMutex
	bot  tele.API
	disp *sender.Dispatcher
}

// NewNotifier returns an unbound Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Bind attaches the running bot and dispatcher.
func (n *Notifier) Bind(bot tele.API, disp *sender.Dispatcher) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bot = bot
	n.disp = disp
}

// Notify enqueues a message send to the user. Failures are logged and dropped.
func (n *Notifier) Notify(ctx context.Context, userID int64, message string) {
	n.mu.RLock()
	bot, disp := n.bot, n.disp
	n.mu.RUnlock()

	if bot == nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "notify.dropped",
			slog.Int64("user_id", userID),
			slog.String("reason", "bot_not_ready"),
		)
		return
	}

	run := func() error {
		_, err := bot.Send(&tele.User{ID: userID}, message)
		return err
	}

	if disp != nil {
		if err := disp.Enqueue(ctx, "notify.link", "sendMessage", run); err == nil {
			return
		}
	}

	// Queue saturated or absent; deliver off-thread so the caller never waits.
	go func() {
		if err := run(); err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "notify.failed",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
		}
	}()
}
