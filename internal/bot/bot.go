// Package bot is the Telegram quoting front-end. Each chat drives one
// configuration session.
package bot

import (
	"context"
	"fmt"
	"sync"

	"printshop-pricing/internal/config"
	"printshop-pricing/internal/pricing"
	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/quote"
	"printshop-pricing/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of the Telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Sessions interface {
	Start(ctx context.Context, chatID int64, productID string) (*session.State, error)
	Get(ctx context.Context, chatID int64) (*session.State, error)
	SetQuantity(ctx context.Context, chatID int64, qty int) (*session.State, error)
	SetDimensions(ctx context.Context, chatID int64, width, height float64) (*session.State, error)
	Choose(ctx context.Context, chatID int64, matrixID, attributeID, value string) (*session.State, error)
	SetModifiers(ctx context.Context, chatID int64, speedPercent, discountPercent float64) (*session.State, error)
	Price(ctx context.Context, chatID int64) (*session.State, pricing.Result, error)
	Reset(ctx context.Context, chatID int64) error
}

type Quotes interface {
	Catalog(ctx context.Context, productID string) (*catalog.Catalog, error)
	Freeze(ctx context.Context, productID string, req quote.Request) (quote.Snapshot, error)
	Invalidate(ctx context.Context, productID string)
}

type SnapshotLister interface {
	ListQuoteSnapshots(ctx context.Context, productID string, limit int) ([]quote.Snapshot, error)
}

var (
	_ Sessions = (*session.Manager)(nil)
	_ Quotes   = (*quote.Service)(nil)
)

type Bot struct {
	api       Sender
	updates   func() tgbotapi.UpdatesChannel
	logger    *zap.Logger
	sessions  Sessions
	quotes    Quotes
	snapshots SnapshotLister
	cfg       *config.Config
	mu        sync.Mutex
}

func New(
	cfg *config.Config,
	sessions Sessions,
	quotes Quotes,
	snapshots SnapshotLister,
	logger *zap.Logger,
) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	botAPI.Debug = cfg.Telegram.Debug

	logger.Info("Bot authorized",
		zap.String("username", botAPI.Self.UserName),
		zap.Int64("id", botAPI.Self.ID))

	b := newBot(botAPI, cfg, sessions, quotes, snapshots, logger)
	b.updates = func() tgbotapi.UpdatesChannel {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Telegram.Timeout
		return botAPI.GetUpdatesChan(u)
	}
	return b, nil
}

func newBot(api Sender, cfg *config.Config, sessions Sessions, quotes Quotes, snapshots SnapshotLister, logger *zap.Logger) *Bot {
	return &Bot{
		api:       api,
		logger:    logger,
		sessions:  sessions,
		quotes:    quotes,
		snapshots: snapshots,
		cfg:       cfg,
	}
}

func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting bot")

	updates := b.updates()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Shutting down bot")
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if update.Message != nil {
		b.processMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.processCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	b.logger.Debug("Processing message",
		zap.Int64("chat_id", chatID),
		zap.String("text", msg.Text))

	if !msg.IsCommand() {
		b.handleDefault(ctx, chatID)
		return
	}

	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	b.handleCommand(ctx, chatID, userID, msg.Command(), msg.CommandArguments())
}

func (b *Bot) processCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID

	b.logger.Debug("Processing callback",
		zap.Int64("chat_id", chatID),
		zap.String("data", callback.Data))

	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err))
	}

	matrixID, attributeID, value, ok := parseChoiceData(callback.Data)
	if !ok {
		b.sendError(chatID, "Unknown button")
		return
	}
	b.handleChoose(ctx, chatID, matrixID, attributeID, value)
}

func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Int64("chat_id", msg.ChatID),
			zap.String("text", msg.Text),
			zap.Error(err))
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendError(chatID int64, text string) {
	b.sendText(chatID, "❌ "+text)
}
