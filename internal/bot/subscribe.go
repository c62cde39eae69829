package bot

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/arashpm/instabridge/core/telegram"
	"github.com/arashpm/instabridge/core/telegram/callbacks"
	tghelpers "github.com/arashpm/instabridge/core/telegram/helpers"
	"github.com/arashpm/instabridge/core/telegram/keyboard"
	"github.com/arashpm/instabridge/core/telegram/middleware"
	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/subscription"
)

// Subscription shows the current plan and the purchasable tiers.
func (h *Handlers) Subscription(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := h.Subs.Status(ctx, c.Sender().ID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("*Subscription*\n\n")
	switch {
	case u.Plan == domain.PlanFree:
		sb.WriteString("You are on the *free* plan.\n\n")
	case u.ExpiresAt != nil:
		fmt.Fprintf(&sb, "Current plan: *%s*, active until %s.\n\n",
			u.Plan, u.ExpiresAt.Format("2006-01-02"))
	default:
		fmt.Fprintf(&sb, "Current plan: *%s*.\n\n", u.Plan)
	}
	sb.WriteString("• *Pro* — dashboard and comment replies\n")
	sb.WriteString("• *Pro + AI* — everything in Pro plus the AI assistant\n\n")
	sb.WriteString("Plans last 30 days and are paid with Telegram Stars.")

	buttons := make([]keyboard.InlineBtn, 0, len(subscription.Catalog))
	for _, p := range subscription.Catalog {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s — %d ⭐", p.Title, p.Stars),
			Unique: cbBuy,
			Data:   p.ID,
		})
	}
	return tghelpers.SendMD(c, sb.String(), keyboard.InlineButtons(buttons))
}

// SendInvoice issues a Telegram Stars invoice for the chosen plan.
func (h *Handlers) SendInvoice(c tele.Context) error {
	planID := callbacks.CallbackPayload(c)
	plan, ok := subscription.PlanByID(planID)
	if !ok {
		return tghelpers.SendMD(c, "That plan is not available.")
	}

	invoice := tele.Invoice{
		Title:       plan.Title + " — 30 days",
		Description: "InstaBridge " + plan.Title + " subscription, 30 days.",
		Payload:     plan.ID,
		Currency:    "XTR",
		Prices: []tele.Price{
			{Label: plan.Title, Amount: plan.Stars},
		},
	}
	return c.Send(&invoice)
}

// PaymentRoutes returns the raw bot routes for the Stars payment flow.
func (h *Handlers) PaymentRoutes() []tg.Route {
	checkout := func(c tele.Context) error {
		q := c.PreCheckoutQuery()
		if q == nil {
			return nil
		}
		if _, ok := subscription.PlanByID(q.Payload); !ok {
			return c.Accept("This plan is no longer available.")
		}
		return c.Accept()
	}

	paid := func(c tele.Context) error {
		msg := c.Message()
		if msg == nil || msg.Payment == nil {
			return nil
		}
		ctx := tghelpers.BuildContext(c)
		userID := c.Sender().ID

		expiresAt, err := h.Subs.Activate(ctx, userID, msg.Payment.Payload)
		if err != nil {
			// The payment went through; never leave the user without an answer.
			return tghelpers.SendMD(c,
				"Payment received, but activating the plan failed. "+
					"Contact support and mention your Telegram id.")
		}
		return tghelpers.SendMD(c, fmt.Sprintf(
			"⭐ Thank you! Your plan is active until *%s*.",
			expiresAt.Format("2006-01-02")))
	}

	return []tg.Route{
		{Endpoint: tele.OnCheckout, Handler: middleware.RecoverMiddleware(middleware.LoggerMiddleware(checkout))},
		{Endpoint: tele.OnPayment, Handler: middleware.RecoverMiddleware(middleware.LoggerMiddleware(paid))},
	}
}

// StartAssistant enters the AI chat conversation for entitled users.
func (h *Handlers) StartAssistant(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	allowed, err := h.Subs.AIAllowed(ctx, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return tghelpers.SendMD(c,
			"The AI assistant is part of the *Pro + AI* plan. Open *"+BtnSubscription+"* to upgrade.")
	}

	h.FSM.SetState(userID, StateAIChat)
	return tghelpers.SendMD(c,
		"🤖 Assistant mode. Send me anything — a comment you want a reply "+
			"draft for, a caption idea, a question. /menu leaves the chat.")
}

// AssistantTurn forwards one user message to the model and relays the answer.
func (h *Handlers) AssistantTurn(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	// Entitlement can lapse mid-conversation.
	allowed, err := h.Subs.AIAllowed(ctx, userID)
	if err != nil {
		return err
	}
	if !allowed {
		h.FSM.ClearState(userID)
		return tghelpers.SendMD(c, "Your AI access has expired. Open *"+BtnSubscription+"* to renew.")
	}

	answer, err := h.Assistant.Reply(ctx, c.Text())
	if err != nil {
		return tghelpers.SendText(c, "The assistant is unavailable right now. Try again shortly.")
	}
	return tghelpers.SendText(c, answer)
}
