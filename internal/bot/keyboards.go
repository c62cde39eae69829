package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/arashpm/instabridge/core/telegram/keyboard"
	"github.com/arashpm/instabridge/internal/graph"
)

// Reply-keyboard button labels. Matched verbatim by the message router.
const (
	BtnDashboard    = "📊 Dashboard"
	BtnConnect      = "🔗 Connect Instagram"
	BtnSubscription = "⭐ Subscription"
	BtnAssistant    = "🤖 AI Assistant"
	BtnHelp         = "ℹ️ Help"
)

// Inline callback keys.
const (
	cbMedia   = "media"
	cbReply   = "reply"
	cbComment = "comment"
	cbBuy     = "buy"
	cbUnlink  = "unlink"
	cbCancel  = "cancel"
)

func mainMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{BtnDashboard, BtnConnect},
		[]string{BtnSubscription, BtnAssistant},
		[]string{BtnHelp},
	)
}

func mediaKeyboard(items []mediaEntry) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(items))
	for _, m := range items {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   m.Label,
			Unique: cbMedia,
			Data:   m.ID,
		})
	}
	return keyboard.InlineButtonsNPerRow(buttons, 2)
}

func cancelMarkup() *tele.ReplyMarkup {
	return keyboard.SingleCancelMarkup(cbCancel)
}

func commentKeyboard(mediaID string, comments []graph.Comment) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(comments)+1)
	for _, cm := range comments {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   "↩️ Reply to @" + cm.Username,
			Unique: cbReply,
			Data:   cm.ID,
		})
	}
	buttons = append(buttons, keyboard.InlineBtn{
		Text:   "💬 New comment",
		Unique: cbComment,
		Data:   mediaID,
	})
	return keyboard.InlineButtons(buttons)
}
