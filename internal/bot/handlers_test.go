package bot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arashpm/instabridge/internal/graph"
)

func TestShortCaption(t *testing.T) {
	require.Equal(t, "(no caption)", shortCaption("", 10))
	require.Equal(t, "(no caption)", shortCaption("   ", 10))
	require.Equal(t, "hello", shortCaption("hello", 10))
	require.Equal(t, "one two", shortCaption("one\n two ", 10))
	require.Equal(t, "0123456789a…", shortCaption("0123456789abcdef", 12))
	require.Len(t, []rune(shortCaption("0123456789abcdef", 12)), 12)
}

func TestMediaLabel(t *testing.T) {
	require.Equal(t, "🎬 clip", mediaLabel("VIDEO", "clip"))
	require.Equal(t, "🧩 album", mediaLabel("CAROUSEL_ALBUM", "album"))
	require.Equal(t, "🖼 photo", mediaLabel("IMAGE", "photo"))
}

func TestMediaKeyboard(t *testing.T) {
	kb := mediaKeyboard([]mediaEntry{
		{ID: "m1", Label: "🖼 first"},
		{ID: "m2", Label: "🎬 second"},
		{ID: "m3", Label: "🧩 third"},
	})
	require.Len(t, kb.InlineKeyboard, 2)
	require.Len(t, kb.InlineKeyboard[0], 2)
	require.Len(t, kb.InlineKeyboard[1], 1)
	require.Equal(t, "🖼 first", kb.InlineKeyboard[0][0].Text)
	require.Equal(t, "🎬 second", kb.InlineKeyboard[0][1].Text)
	require.Equal(t, "🧩 third", kb.InlineKeyboard[1][0].Text)
}

func TestCancelMarkup(t *testing.T) {
	kb := cancelMarkup()
	require.Len(t, kb.InlineKeyboard, 1)
	require.Equal(t, "❌ Cancel", kb.InlineKeyboard[0][0].Text)
}

func TestCommentKeyboardAlwaysOffersNewComment(t *testing.T) {
	kb := commentKeyboard("m1", nil)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Equal(t, "💬 New comment", kb.InlineKeyboard[0][0].Text)

	kb = commentKeyboard("m1", []graph.Comment{
		{ID: "c1", Username: "alice"},
		{ID: "c2", Username: "bob"},
	})
	require.Len(t, kb.InlineKeyboard, 3)
	require.Equal(t, "↩️ Reply to @alice", kb.InlineKeyboard[0][0].Text)
	require.Equal(t, "↩️ Reply to @bob", kb.InlineKeyboard[1][0].Text)
	require.Equal(t, "💬 New comment", kb.InlineKeyboard[2][0].Text)
}

func TestMainMenuLayout(t *testing.T) {
	menu := mainMenu()
	require.Len(t, menu.ReplyKeyboard, 3)
	require.Equal(t, BtnDashboard, menu.ReplyKeyboard[0][0].Text)
	require.Equal(t, BtnConnect, menu.ReplyKeyboard[0][1].Text)
	require.Equal(t, BtnSubscription, menu.ReplyKeyboard[1][0].Text)
	require.Equal(t, BtnAssistant, menu.ReplyKeyboard[1][1].Text)
	require.Equal(t, BtnHelp, menu.ReplyKeyboard[2][0].Text)
}
