package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"linkshelf/internal/collection"
	"linkshelf/internal/domain"
	"linkshelf/internal/ingest"
)

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot *tgbot.Bot
	svc *ingest.Service
	log logrus.FieldLogger
}

// NewHandler creates a new bot handler instance.
func NewHandler(token string, svc *ingest.Service, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		svc: svc,
		log: log,
	}

	b, err := tgbot.New(token, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	h.registerHandlers()

	log.Info("Telegram bot handler initialized")
	return h, nil
}

// registerHandlers sets up the command and callback handlers.
func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/help", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, "draft:", tgbot.MatchTypePrefix, h.draftCallback)
	h.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbRead, tgbot.MatchTypePrefix, h.linkCallback)
	h.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbDelete, tgbot.MatchTypePrefix, h.linkCallback)
	h.log.Debug("Registered bot handlers")
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	params := &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := h.bot.SendMessage(ctx, params); err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}

// startHandler handles the /start and /help commands.
func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.log.WithField("user_id", update.Message.From.ID).Info("Received /start command")
	h.reply(ctx, update.Message.Chat.ID, helpText, nil)
}

// defaultHandler handles commands with arguments and messages carrying a link.
func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	uid := userKey(msg.From.ID)
	log := h.log.WithField("user_id", uid)

	if cmd, arg, ok := parseCommand(msg.Text); ok {
		log.WithField("command", cmd).Debug("Received command")
		h.command(ctx, msg.Chat.ID, uid, cmd, arg)
		return
	}

	rawURL, ok := ingest.ExtractURL(msg.Text)
	if !ok {
		h.reply(ctx, msg.Chat.ID, "Send me a link to save, or /help.", nil)
		return
	}

	log.WithField("url", rawURL).Info("Analyzing link")
	d, err := h.svc.Analyze(ctx, uid, rawURL)
	if err != nil {
		h.reply(ctx, msg.Chat.ID, "That does not look like a valid link.", nil)
		return
	}
	h.reply(ctx, msg.Chat.ID, formatDraft(d), draftKeyboard())
}

func (h *Handler) command(ctx context.Context, chatID int64, uid, cmd, arg string) {
	switch cmd {
	case "/title", "/category", "/tags":
		if cmd == "/tags" && arg == "" {
			h.sendTags(ctx, chatID, uid)
			return
		}
		h.editDraft(ctx, chatID, uid, cmd, arg)
	case "/categories":
		h.sendDerived(ctx, chatID, uid, collection.Categories)
	case "/sources":
		h.sendDerived(ctx, chatID, uid, collection.Sources)
	case "/list", "/cat", "/src", "/tag", "/search":
		f, err := listFilter(cmd, arg)
		if err != nil {
			h.reply(ctx, chatID, err.Error(), nil)
			return
		}
		h.sendList(ctx, chatID, uid, f)
	default:
		h.reply(ctx, chatID, helpText, nil)
	}
}

func (h *Handler) editDraft(ctx context.Context, chatID int64, uid, cmd, arg string) {
	if arg == "" {
		h.reply(ctx, chatID, fmt.Sprintf("Usage: %s <value>", cmd), nil)
		return
	}

	var e ingest.Edit
	switch cmd {
	case "/title":
		e.Title = &arg
	case "/category":
		e.Category = &arg
	case "/tags":
		e.Tags = splitTags(arg)
	}

	d, err := h.svc.EditDraft(uid, e)
	if errors.Is(err, ingest.ErrNoDraft) {
		h.reply(ctx, chatID, "No pending link. Send me one first.", nil)
		return
	}
	h.reply(ctx, chatID, formatDraft(d), draftKeyboard())
}

func (h *Handler) sendList(ctx context.Context, chatID int64, uid string, f collection.Filter) {
	links, err := h.svc.List(ctx, uid, f)
	if err != nil {
		h.log.WithError(err).WithField("user_id", uid).Error("Failed to list links")
		h.reply(ctx, chatID, "Could not load your links, try again later.", nil)
		return
	}
	if len(links) == 0 {
		h.reply(ctx, chatID, "No links here.", nil)
		return
	}

	shown := links
	if len(shown) > maxListed {
		shown = shown[:maxListed]
	}
	for _, l := range shown {
		h.reply(ctx, chatID, formatLink(l), linkKeyboard(l))
	}
	if rest := len(links) - len(shown); rest > 0 {
		h.reply(ctx, chatID, fmt.Sprintf("…and %d more. Narrow it down with /cat, /tag or /search.", rest), nil)
	}
}

func (h *Handler) sendDerived(ctx context.Context, chatID int64, uid string, derive func([]domain.Link) []string) {
	links, err := h.svc.List(ctx, uid, collection.Filter{})
	if err != nil {
		h.reply(ctx, chatID, "Could not load your links, try again later.", nil)
		return
	}
	values := derive(links)
	if len(values) == 0 {
		h.reply(ctx, chatID, "Nothing yet.", nil)
		return
	}
	h.reply(ctx, chatID, strings.Join(values, "\n"), nil)
}

func (h *Handler) sendTags(ctx context.Context, chatID int64, uid string) {
	links, err := h.svc.List(ctx, uid, collection.Filter{})
	if err != nil {
		h.reply(ctx, chatID, "Could not load your links, try again later.", nil)
		return
	}
	counts := collection.TagCounts(links)
	if len(counts) == 0 {
		h.reply(ctx, chatID, "Nothing yet.", nil)
		return
	}
	h.reply(ctx, chatID, formatTagCounts(counts), nil)
}

func (h *Handler) answer(ctx context.Context, q *models.CallbackQuery, text string) {
	_, err := h.bot.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: q.ID,
		Text:            text,
	})
	if err != nil {
		h.log.WithError(err).Warn("Failed to answer callback query")
	}
}

// draftCallback handles the Save and Cancel buttons of a draft.
func (h *Handler) draftCallback(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	q := update.CallbackQuery
	uid := userKey(q.From.ID)
	chatID := q.From.ID

	switch q.Data {
	case cbSave:
		id, err := h.svc.Confirm(ctx, uid)
		switch {
		case errors.Is(err, ingest.ErrNoDraft):
			h.answer(ctx, q, "Nothing to save.")
		case err != nil:
			h.log.WithError(err).WithField("user_id", uid).Error("Failed to save link")
			h.answer(ctx, q, "Saving failed, try again.")
		default:
			h.log.WithFields(logrus.Fields{"user_id": uid, "link_id": id}).Info("Link saved")
			h.answer(ctx, q, "Saved.")
			h.reply(ctx, chatID, "Saved to your collection.", nil)
		}
	case cbCancel:
		h.svc.Discard(uid)
		h.answer(ctx, q, "Discarded.")
	default:
		h.answer(ctx, q, "")
	}
}

// linkCallback handles the per-link read toggle and delete buttons.
func (h *Handler) linkCallback(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	q := update.CallbackQuery
	uid := userKey(q.From.ID)

	if id, ok := strings.CutPrefix(q.Data, cbDelete); ok {
		h.svc.Delete(ctx, uid, id)
		h.answer(ctx, q, "Deleted.")
		return
	}

	id := strings.TrimPrefix(q.Data, cbRead)
	read, err := h.svc.ToggleRead(ctx, uid, id)
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		h.answer(ctx, q, "This link no longer exists.")
	case err != nil:
		h.log.WithError(err).WithField("user_id", uid).Error("Failed to toggle read state")
		h.answer(ctx, q, "Update failed, try again.")
	case read:
		h.answer(ctx, q, "Marked as read.")
	default:
		h.answer(ctx, q, "Marked as unread.")
	}
}
