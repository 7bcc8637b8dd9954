package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Bot sends operator alerts to one chat and answers /status there
type Bot struct {
	bot    *bot.Bot
	chatID int64
	status func() string
	logger *slog.Logger
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Token   string
	ChatID  int64
	Status  func() string // text for /status
	Logger  *slog.Logger
	Options []bot.Option // extra client options
}

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		chatID: deps.ChatID,
		status: deps.Status,
		logger: deps.Logger.With("component", "telegram_bot"),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}
	opts = append(opts, deps.Options...)

	tgBot, err := bot.New(deps.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	b.bot = tgBot
	b.registerHandlers()

	return b, nil
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, b.handleStatus)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
}

// Start polls for commands until ctx is done
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot", "chat_id", b.chatID)
	b.bot.Start(ctx)
}

// Alert sends an HTML message to the operator chat
func (b *Bot) Alert(ctx context.Context, text string) error {
	// Separate deadline, and alerts still go out after shutdown starts
	apiCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := b.sendMessage(apiCtx, b.chatID, text); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", update.Message.Text)
	}
}

// handleHelp handles /start and /help commands
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.allowed(msg) {
		return
	}

	text := `<b>PDF ingest</b>

Alerts about scans that failed to process are posted here.

<b>Commands:</b>
/status - show the ingest state and counters`

	if _, err := b.sendMessage(ctx, msg.Chat.ID, text); err != nil {
		b.logger.Error("failed to send help", "error", err)
	}
}

// handleStatus handles /status command
func (b *Bot) handleStatus(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.allowed(msg) {
		return
	}

	text := "Status is not available"
	if b.status != nil {
		text = b.status()
	}

	if _, err := b.sendMessage(ctx, msg.Chat.ID, text); err != nil {
		b.logger.Error("failed to send status", "error", err)
	}
}

// allowed reports whether a command came from the operator chat
func (b *Bot) allowed(msg *models.Message) bool {
	if msg == nil {
		return false
	}
	if msg.Chat.ID != b.chatID {
		b.logger.Warn("ignoring command from unknown chat", "chat_id", msg.Chat.ID)
		return false
	}
	return true
}

// sendMessage sends an HTML message to a chat
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) (*models.Message, error) {
	return b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
}
