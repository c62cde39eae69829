package bot

import (
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	tg "github.com/arashpm/instabridge/core/telegram"
	"github.com/arashpm/instabridge/core/telegram/commands"
	tghelpers "github.com/arashpm/instabridge/core/telegram/helpers"
	"github.com/arashpm/instabridge/core/telegram/keyboard"
	"github.com/arashpm/instabridge/core/telegram/state"
	"github.com/arashpm/instabridge/internal/linking"
)

// Handlers carries every service the Telegram feature set depends on.
type Handlers struct {
	Links     LinkService
	Subs      SubscriptionService
	Instagram InstagramAPI
	Users     UserDirectory
	LinkStats LinkCounter
	Assistant Assistant
	FSM       state.Manager
	AdminID   int64
}

// Register wires commands, reply-keyboard buttons, callbacks and FSM states
// into the registry. Call once before the bot starts.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.Start,
		Description: "Main menu",
	})
	reg.RegisterCommand("/menu", commands.Command{
		Handler:     h.Menu,
		Description: "Show the menu",
		Aliases:     []string{"cancel"},
	})
	reg.RegisterCommand("/connect", commands.Command{
		Handler:     h.Connect,
		Description: "Connect your Instagram Business account",
	})
	reg.RegisterCommand("/dashboard", commands.Command{
		Handler:     h.Dashboard,
		Description: "Recent media and comments",
	})
	reg.RegisterCommand("/disconnect", commands.Command{
		Handler:     h.Disconnect,
		Description: "Remove the Instagram connection",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.Help,
		Description: "How the bot works",
	})

	h.registerAdminCommands(reg)

	reg.RegisterButton(BtnDashboard, h.Dashboard)
	reg.RegisterButton(BtnConnect, h.Connect)
	reg.RegisterButton(BtnSubscription, h.Subscription)
	reg.RegisterButton(BtnAssistant, h.StartAssistant)
	reg.RegisterButton(BtnHelp, h.Help)

	_ = reg.RegisterCallback(cbMedia, h.ShowComments)
	_ = reg.RegisterCallback(cbReply, h.AskReplyText)
	_ = reg.RegisterCallback(cbComment, h.AskCommentText)
	_ = reg.RegisterCallback(cbBuy, h.SendInvoice)
	_ = reg.RegisterCallback(cbUnlink, h.ConfirmUnlink)
	_ = reg.RegisterCallback(cbCancel, h.CancelConversation)

	state.RegisterHandler(StateAwaitCommentReply, h.SubmitReply)
	state.RegisterHandler(StateAwaitMediaComment, h.SubmitComment)
	state.RegisterHandler(StateAwaitBroadcast, h.SubmitBroadcast)
	state.RegisterHandler(StateAIChat, h.AssistantTurn)
}

// Start greets the user and shows the main menu.
func (h *Handlers) Start(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	sender := c.Sender()
	if err := h.Users.Ensure(ctx, sender.ID, sender.Username); err != nil {
		return err
	}
	h.FSM.Clear(sender.ID)

	text := fmt.Sprintf("Hi %s! 👋\n\n"+
		"I connect your *Instagram Business* account to Telegram so you can "+
		"read and answer comments without leaving the chat.\n\n"+
		"Start with *%s*.", sender.FirstName, BtnConnect)
	return tghelpers.SendMD(c, text, mainMenu())
}

// Menu resets any active conversation and re-shows the keyboard.
func (h *Handlers) Menu(c tele.Context) error {
	h.FSM.Clear(c.Sender().ID)
	return tghelpers.SendMD(c, "Main menu:", mainMenu())
}

// CancelConversation leaves the active FSM state from an inline button.
func (h *Handlers) CancelConversation(c tele.Context) error {
	h.FSM.Clear(c.Sender().ID)
	return tghelpers.EditOrSendMD(c, "Cancelled.")
}

// Help describes the feature set.
func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.SendMD(c, helpText, mainMenu())
}

// Connect issues a fresh linking URL for the user.
func (h *Handlers) Connect(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	if link, err := h.Links.Link(ctx, userID); err == nil {
		return tghelpers.SendMD(c, fmt.Sprintf(
			"You already have Instagram account `%s` connected.\n"+
				"Connecting again replaces it.", link.IGID))
	}

	authURL, err := h.Links.BeginLink(ctx, userID)
	if err != nil {
		return err
	}
	return tghelpers.SendMD(c,
		"Open the link below in a browser and authorize access to the "+
			"Facebook Page your Instagram Business account is connected to.\n\n"+
			authURL+"\n\n"+
			"The link is valid for 15 minutes and works once.")
}

// Disconnect asks for confirmation before removing the link.
func (h *Handlers) Disconnect(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if _, err := h.Links.Link(ctx, c.Sender().ID); err != nil {
		if errors.Is(err, linking.ErrNotLinked) {
			return tghelpers.SendMD(c, "No Instagram account is connected.")
		}
		return err
	}
	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "🗑 Yes, disconnect", Unique: cbUnlink, Data: "confirm"},
	})
	return tghelpers.SendMD(c,
		"This removes the stored connection and tokens. Your Instagram "+
			"account itself is not touched.", markup)
}

// ConfirmUnlink executes the deletion after the inline confirmation.
func (h *Handlers) ConfirmUnlink(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := h.Links.Unlink(ctx, c.Sender().ID); err != nil {
		if errors.Is(err, linking.ErrNotLinked) {
			return tghelpers.EditOrSendMD(c, "Nothing to disconnect.")
		}
		return err
	}
	return tghelpers.EditOrSendMD(c, "Disconnected. Use "+BtnConnect+" to link again.")
}

const helpText = `*What this bot does*

• *` + BtnConnect + `* — authorize via Facebook and link the Instagram Business account behind one of your Pages.
• *` + BtnDashboard + `* — browse your recent posts and their comments, reply straight from Telegram.
• *` + BtnSubscription + `* — Pro unlocks the dashboard and replies, Pro+AI adds the assistant. Paid with Telegram Stars.
• *` + BtnAssistant + `* — chat with an AI that helps you draft replies and captions (Pro+AI).

Use /menu any time to leave a conversation.`
