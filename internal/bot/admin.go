package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/arashpm/instabridge/core/logger"
	tg "github.com/arashpm/instabridge/core/telegram"
	"github.com/arashpm/instabridge/core/telegram/commands"
	tghelpers "github.com/arashpm/instabridge/core/telegram/helpers"
	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/subscription"
)

// AdminGrant extends SubscriptionService for explicit-expiry grants.
type AdminGrant interface {
	ActivateUntil(ctx context.Context, userID int64, planID string, expiresAt time.Time) error
}

func (h *Handlers) registerAdminCommands(reg *tg.Registry) {
	reg.RegisterCommand("/admin", commands.Command{
		Handler:     h.AdminStats,
		Description: "Usage statistics",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/broadcast", commands.Command{
		Handler:     h.StartBroadcast,
		Description: "Message every user",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/grant", commands.Command{
		Handler:     h.GrantPlan,
		Description: "Grant a plan: /grant <user_id> <plan> [until]",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/igstat", commands.Command{
		Handler:     h.LinkStatus,
		Description: "Link status: /igstat <user_id>",
		AdminOnly:   true,
		Hidden:      true,
	})
}

// LinkStatus probes the stored Instagram link of a user.
func (h *Handlers) LinkStatus(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	args := c.Args()
	if len(args) != 1 {
		return tghelpers.SendMD(c, "Usage: `/igstat <user_id>`")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return tghelpers.SendMD(c, "Invalid user id.")
	}

	link, err := h.Links.Link(ctx, userID)
	if err != nil {
		return tghelpers.SendMD(c, fmt.Sprintf("`%d` has no Instagram link.", userID))
	}
	return tghelpers.SendMD(c, fmt.Sprintf(
		"*Link for* `%d`\nFB user: `%s`\nPage: `%s`\nIG: `%s`\nToken expires: %s",
		userID, link.FBUserID, link.PageID, link.IGID,
		time.Unix(link.TokenExpiresAt, 0).UTC().Format("2006-01-02"),
	))
}

// AdminStats reports user and link totals.
func (h *Handlers) AdminStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)

	byPlan, err := h.Users.CountByPlan(ctx)
	if err != nil {
		return err
	}
	links, err := h.LinkStats.Count(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range byPlan {
		total += n
	}
	var sb strings.Builder
	sb.WriteString("*Stats*\n\n")
	fmt.Fprintf(&sb, "Users: %d\n", total)
	for _, plan := range []string{domain.PlanFree, domain.PlanPro, domain.PlanProAI} {
		fmt.Fprintf(&sb, "  %s: %d\n", plan, byPlan[plan])
	}
	fmt.Fprintf(&sb, "Linked Instagram accounts: %d\n", links)
	return tghelpers.SendMD(c, sb.String())
}

// StartBroadcast asks the admin for the broadcast text.
func (h *Handlers) StartBroadcast(c tele.Context) error {
	h.FSM.SetState(c.Sender().ID, StateAwaitBroadcast)
	return tghelpers.SendMD(c, "Send the broadcast text.", cancelMarkup())
}

// SubmitBroadcast sends the typed message to every known user.
func (h *Handlers) SubmitBroadcast(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	adminID := c.Sender().ID
	defer h.FSM.ClearState(adminID)

	text := c.Text()
	ids, err := h.Users.ListIDs(ctx)
	if err != nil {
		return err
	}

	sent, failed := 0, 0
	for _, id := range ids {
		if id == adminID {
			continue
		}
		if _, err := c.Bot().Send(&tele.User{ID: id}, text); err != nil {
			failed++
			continue
		}
		sent++
	}

	logger.TG.LogAttrs(ctx, slog.LevelInfo, "broadcast.done",
		slog.Int("sent", sent),
		slog.Int("failed", failed),
	)
	return tghelpers.SendMD(c, fmt.Sprintf("Broadcast done: %d sent, %d failed.", sent, failed))
}

// GrantPlan activates a plan for a user without payment.
// Usage: /grant <user_id> <plan> [until], where until accepts flexible dates.
func (h *Handlers) GrantPlan(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	args := c.Args()
	if len(args) < 2 {
		return tghelpers.SendMD(c, "Usage: `/grant <user_id> <plan> [until]`")
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return tghelpers.SendMD(c, "Invalid user id.")
	}
	planID := args[1]
	if _, ok := subscription.PlanByID(planID); !ok {
		return tghelpers.SendMD(c, fmt.Sprintf(
			"Unknown plan `%s`. Available: %s, %s.", planID, domain.PlanPro, domain.PlanProAI))
	}

	if len(args) >= 3 {
		until, ok := tghelpers.ParseFlexibleDate(strings.Join(args[2:], " "))
		if !ok {
			return tghelpers.SendMD(c, "Could not parse the date. Try `2026-12-31` or `31.12.2026`.")
		}
		granter, ok := h.Subs.(AdminGrant)
		if !ok {
			return tghelpers.SendMD(c, "Explicit expiry is not supported.")
		}
		if err := granter.ActivateUntil(ctx, userID, planID, until); err != nil {
			return err
		}
		return tghelpers.SendMD(c, fmt.Sprintf(
			"Granted *%s* to `%d` until %s.", planID, userID, until.Format("2006-01-02")))
	}

	expiresAt, err := h.Subs.Activate(ctx, userID, planID)
	if err != nil {
		return err
	}
	return tghelpers.SendMD(c, fmt.Sprintf(
		"Granted *%s* to `%d` until %s.", planID, userID, expiresAt.Format("2006-01-02")))
}
