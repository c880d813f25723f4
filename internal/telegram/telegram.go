// Package telegram hosts the Telegram client, update routing, and the
// outbound messenger used by the shop flow.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"affiliate_shop_bot/internal/config"
	"affiliate_shop_bot/internal/logging"
)

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	AnswerInlineQuery(ctx context.Context, params *bot.AnswerInlineQueryParams) (bool, error)
}

// ShopHandler receives the chat events the bot understands.
type ShopHandler interface {
	HandleStart(ctx context.Context, userID, chatID int64) error
	HandleShop(ctx context.Context, userID, chatID int64, args []string) error
	HandleText(ctx context.Context, userID, chatID int64, text string) (bool, error)
	HandleCallback(ctx context.Context, userID, chatID int64, data string) error
	HandleInline(ctx context.Context, userID int64, query string) error
}

// StatsProvider exposes counts for the owner-only /stats command.
type StatsProvider interface {
	CountProfiles(ctx context.Context) (int64, error)
	CountMerchants(ctx context.Context) (int64, error)
}

const (
	commandStart = "start"
	commandShop  = "shop"
	commandStats = "stats"
)

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
		"inline_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}

	newRequestID = func() string {
		return uuid.NewString()
	}
)

// Option customizes a Client.
type Option func(*Client)

// WithStatsProvider enables /stats for the configured bot owner.
func WithStatsProvider(provider StatsProvider) Option {
	return func(c *Client) {
		c.stats = provider
	}
}

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	bot     botAPI
	logger  *logrus.Entry
	handler ShopHandler
	ownerID int64
	stats   StatsProvider
}

// NewClient initializes the Telegram bot with long polling and default handlers.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		logger:  logger,
		ownerID: cfg.BotOwnerID,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot

	return client, nil
}

// SetHandler installs the shop handler. It must be called before Start since
// the handler itself sends replies through this client.
func (c *Client) SetHandler(handler ShopHandler) {
	c.handler = handler
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// SendText sends a plain text message to chatID.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
}

// SendURLButton sends text with a single inline button that opens url.
func (c *Client) SendURLButton(ctx context.Context, chatID int64, text, label, url string) error {
	return c.send(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{
					{Text: label, URL: url},
				},
			},
		},
	})
}

// SendCallbackButton sends text with a single inline button carrying data.
func (c *Client) SendCallbackButton(ctx context.Context, chatID int64, text, label, data string) error {
	return c.send(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{
					{Text: label, CallbackData: data},
				},
			},
		},
	})
}

func (c *Client) send(ctx context.Context, params *bot.SendMessageParams) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram client is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if params.ChatID == nil || params.ChatID == int64(0) {
		return errors.New("chat id is required")
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	meta := extractUpdateMeta(update)

	base := logging.WithContext(c.logger, logging.Context{
		UserID:    meta.userID,
		ChatID:    meta.chatID,
		RequestID: newRequestID(),
	})
	ctx = logging.IntoContext(ctx, base)

	fields := logging.Fields{
		"event":       "telegram_update",
		"update_type": meta.updateType,
	}

	if meta.text != "" {
		_, _, isCommand := parseCommand(meta.text)
		if update.Message != nil && !isCommand {
			// Free text may be an email reply.
			fields["text_length"] = len(meta.text)
		} else {
			fields["text"] = meta.text
		}
	}

	logger := base.WithFields(fields)
	logger.Info("telegram update received")

	if c.handler == nil || meta.userID == 0 {
		return
	}

	var err error
	switch {
	case update.Message != nil:
		err = c.routeMessage(ctx, meta, logger)
	case update.CallbackQuery != nil:
		c.answerCallback(ctx, update.CallbackQuery.ID, logger)
		replyTo := meta.chatID
		if replyTo == 0 {
			replyTo = meta.userID
		}
		err = c.handler.HandleCallback(ctx, meta.userID, replyTo, meta.text)
	case update.InlineQuery != nil:
		c.answerInline(ctx, update.InlineQuery.ID, logger)
		err = c.handler.HandleInline(ctx, meta.userID, meta.text)
	}

	if err != nil {
		logger.WithField("event", "telegram_handler_error").WithError(err).Error("failed to handle telegram update")
	}
}

func (c *Client) routeMessage(ctx context.Context, meta updateMeta, logger *logrus.Entry) error {
	if meta.text == "" {
		return nil
	}

	command, args, ok := parseCommand(meta.text)
	if !ok {
		handled, err := c.handler.HandleText(ctx, meta.userID, meta.chatID, meta.text)
		if err == nil && !handled {
			logger.WithField("event", "telegram_text_ignored").Debug("no pending prompt for free text")
		}
		return err
	}

	switch command {
	case commandStart:
		return c.handler.HandleStart(ctx, meta.userID, meta.chatID)
	case commandShop:
		return c.handler.HandleShop(ctx, meta.userID, meta.chatID, args)
	case commandStats:
		return c.handleStats(ctx, meta, logger)
	default:
		logger.WithFields(logging.Fields{
			"event":   "telegram_command_ignored",
			"command": command,
		}).Debug("ignored unknown command")
		return nil
	}
}

func (c *Client) handleStats(ctx context.Context, meta updateMeta, logger *logrus.Entry) error {
	if c.ownerID == 0 || meta.userID != c.ownerID || c.stats == nil {
		logger.WithField("event", "stats_denied").Warn("stats requested by non-owner")
		return nil
	}

	profiles, err := c.stats.CountProfiles(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	merchants, err := c.stats.CountMerchants(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	return c.SendText(ctx, meta.chatID, fmt.Sprintf("Registered users: %d\nMerchants: %d", profiles, merchants))
}

func (c *Client) answerCallback(ctx context.Context, id string, logger *logrus.Entry) {
	if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: id,
	}); err != nil {
		logger.WithField("event", "telegram_callback_answer_error").WithError(err).Warn("failed to answer callback query")
	}
}

func (c *Client) answerInline(ctx context.Context, id string, logger *logrus.Entry) {
	if _, err := c.bot.AnswerInlineQuery(ctx, &bot.AnswerInlineQueryParams{
		InlineQueryID: id,
		Results:       []models.InlineQueryResult{},
		IsPersonal:    true,
	}); err != nil {
		logger.WithField("event", "telegram_inline_answer_error").WithError(err).Warn("failed to answer inline query")
	}
}

// parseCommand splits "/shop@my_bot Shopee" into ("shop", ["Shopee"]).
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}

	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	if command == "" {
		return "", nil, false
	}

	return strings.ToLower(command), fields[1:], true
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			updateType: "callback_query",
		}
	case update.InlineQuery != nil:
		return updateMeta{
			userID:     userID(update.InlineQuery.From),
			text:       strings.TrimSpace(update.InlineQuery.Query),
			updateType: "inline_query",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}
