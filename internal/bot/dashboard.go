package bot

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/arashpm/instabridge/core/telegram/callbacks"
	"github.com/arashpm/instabridge/core/telegram/format"
	tghelpers "github.com/arashpm/instabridge/core/telegram/helpers"
	"github.com/arashpm/instabridge/internal/domain"
	"github.com/arashpm/instabridge/internal/linking"
)

const (
	dashboardMediaLimit   = 6
	dashboardCommentLimit = 10
	captionLabelRunes     = 28
)

type mediaEntry struct {
	ID    string
	Label string
}

// Dashboard lists the user's recent Instagram posts as inline buttons.
func (h *Handlers) Dashboard(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	ok, err := h.requirePro(c)
	if err != nil || !ok {
		return err
	}

	link, err := h.Links.Link(ctx, userID)
	if err != nil {
		if errors.Is(err, linking.ErrNotLinked) {
			return tghelpers.SendMD(c, "Connect your Instagram account first with *"+BtnConnect+"*.")
		}
		return err
	}

	media, err := h.Instagram.MediaList(ctx, link.IGID, link.LongToken, dashboardMediaLimit)
	if err != nil {
		return tghelpers.SendMD(c, "Could not load your media right now. Try again in a minute.")
	}
	if len(media) == 0 {
		return tghelpers.SendMD(c, "Your account has no posts yet.")
	}

	entries := make([]mediaEntry, 0, len(media))
	for _, m := range media {
		entries = append(entries, mediaEntry{ID: m.ID, Label: mediaLabel(m.MediaType, m.Caption)})
	}
	return tghelpers.SendMD(c, "Recent posts — pick one to see its comments:", mediaKeyboard(entries))
}

// ShowComments renders the comments of the selected media item.
func (h *Handlers) ShowComments(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	mediaID := callbacks.CallbackPayload(c)
	if mediaID == "" {
		return nil
	}

	link, err := h.Links.Link(ctx, c.Sender().ID)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Connection lost. Reconnect with *"+BtnConnect+"*.")
	}

	comments, err := h.Instagram.Comments(ctx, mediaID, link.LongToken, dashboardCommentLimit)
	if err != nil {
		return tghelpers.EditOrSendMD(c, "Could not load comments for this post.")
	}
	if len(comments) == 0 {
		return tghelpers.EditOrSendMD(c, "No comments on this post yet.", commentKeyboard(mediaID, nil))
	}

	var sb strings.Builder
	sb.WriteString("*Comments:*\n\n")
	for _, cm := range comments {
		fmt.Fprintf(&sb, "👤 @%s\n%s\n\n",
			format.EscapeMD1(cm.Username),
			format.EscapeMD1(cm.Text),
		)
	}
	return tghelpers.EditOrSendMD(c, sb.String(), commentKeyboard(mediaID, comments))
}

// AskReplyText starts the reply conversation for the chosen comment.
func (h *Handlers) AskReplyText(c tele.Context) error {
	commentID := callbacks.CallbackPayload(c)
	if commentID == "" {
		return nil
	}
	userID := c.Sender().ID
	h.FSM.SetTemp(userID, tempCommentID, commentID)
	h.FSM.SetState(userID, StateAwaitCommentReply)
	return tghelpers.SendMD(c, "Send the reply text.", cancelMarkup())
}

// SubmitReply publishes the reply typed by the user.
func (h *Handlers) SubmitReply(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID
	defer h.FSM.ClearState(userID)

	commentID, ok := h.FSM.GetTempString(userID, tempCommentID)
	if !ok || commentID == "" {
		return tghelpers.SendMD(c, "This reply flow expired. Open the dashboard again.")
	}
	h.FSM.ClearTemp(userID, tempCommentID)

	link, err := h.Links.Link(ctx, userID)
	if err != nil {
		return tghelpers.SendMD(c, "Connection lost. Reconnect with *"+BtnConnect+"*.")
	}
	if err := h.Instagram.ReplyToComment(ctx, commentID, c.Text(), link.LongToken); err != nil {
		return tghelpers.SendMD(c, "Instagram rejected the reply. It may be too long or the comment was deleted.")
	}
	return tghelpers.SendMD(c, "✅ Reply published.")
}

// AskCommentText starts the new-comment conversation for the chosen media.
func (h *Handlers) AskCommentText(c tele.Context) error {
	mediaID := callbacks.CallbackPayload(c)
	if mediaID == "" {
		return nil
	}
	userID := c.Sender().ID
	h.FSM.SetTemp(userID, tempMediaID, mediaID)
	h.FSM.SetState(userID, StateAwaitMediaComment)
	return tghelpers.SendMD(c, "Send the comment text.", cancelMarkup())
}

// SubmitComment publishes a new top-level comment on the stored media item.
func (h *Handlers) SubmitComment(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID
	defer h.FSM.ClearState(userID)

	mediaID, ok := h.FSM.GetTempString(userID, tempMediaID)
	if !ok || mediaID == "" {
		return tghelpers.SendMD(c, "This comment flow expired. Open the dashboard again.")
	}
	h.FSM.ClearTemp(userID, tempMediaID)

	link, err := h.Links.Link(ctx, userID)
	if err != nil {
		return tghelpers.SendMD(c, "Connection lost. Reconnect with *"+BtnConnect+"*.")
	}
	if err := h.Instagram.PostComment(ctx, mediaID, c.Text(), link.LongToken); err != nil {
		return tghelpers.SendMD(c, "Instagram rejected the comment.")
	}
	return tghelpers.SendMD(c, "✅ Comment published.")
}

// requirePro sends an upsell message and returns false when the user has no
// active paid plan.
func (h *Handlers) requirePro(c tele.Context) (bool, error) {
	ctx := tghelpers.BuildContext(c)
	u, err := h.Subs.Status(ctx, c.Sender().ID)
	if err != nil {
		return false, err
	}
	if u.Plan == domain.PlanFree {
		return false, tghelpers.SendMD(c,
			"The dashboard is part of the *Pro* plan. Open *"+BtnSubscription+"* to subscribe.")
	}
	return true, nil
}

// mediaLabel builds a compact one-line button label for a media item.
func mediaLabel(mediaType, caption string) string {
	icon := "🖼"
	switch mediaType {
	case "VIDEO":
		icon = "🎬"
	case "CAROUSEL_ALBUM":
		icon = "🧩"
	}
	return icon + " " + shortCaption(caption, captionLabelRunes)
}

// shortCaption collapses whitespace and truncates to max runes.
func shortCaption(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "(no caption)"
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
