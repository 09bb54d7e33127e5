package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"printshop-pricing/internal/quote"
	"printshop-pricing/internal/report"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const quotesExportLimit = 500

func (b *Bot) handleAdminCommand(ctx context.Context, chatID, userID int64, command string, args []string) {
	if !b.cfg.IsAdmin(userID) {
		b.logger.Warn("Admin command rejected",
			zap.Int64("user_id", userID),
			zap.String("command", command))
		b.sendError(chatID, "Access denied")
		return
	}

	switch command {
	case "freeze":
		b.handleFreeze(ctx, chatID)
	case "export":
		b.handleExport(ctx, chatID, args)
	case "quotes":
		b.handleQuotes(ctx, chatID, args)
	case "invalidate":
		b.handleInvalidate(ctx, chatID, args)
	}
}

func (b *Bot) handleFreeze(ctx context.Context, chatID int64) {
	state, ok := b.session(ctx, chatID)
	if !ok {
		return
	}

	snap, err := b.quotes.Freeze(ctx, state.ProductID, state.Request())
	if err != nil {
		if errors.Is(err, quote.ErrNotPriced) || errors.Is(err, quote.ErrPricingRefused) {
			b.sendError(chatID, "The current configuration has no price")
			return
		}
		b.logger.Error("Failed to freeze quote",
			zap.String("product_id", state.ProductID),
			zap.Error(err))
		b.sendError(chatID, "Failed to store the quote")
		return
	}

	b.sendText(chatID, fmt.Sprintf("✅ Quote %s stored\nNet: %s\nVAT: %s\nGross: %s",
		snap.ID,
		money(snap.Net, snap.Currency),
		money(snap.VAT, snap.Currency),
		money(snap.Gross, snap.Currency)))
}

func (b *Bot) handleExport(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.sendError(chatID, "Usage: /export <product>")
		return
	}

	cat, err := b.quotes.Catalog(ctx, args[0])
	if err != nil {
		b.logger.Error("Failed to load catalog for export",
			zap.String("product_id", args[0]),
			zap.Error(err))
		b.sendError(chatID, "Failed to load the catalog")
		return
	}

	var buf bytes.Buffer
	if err := report.ExportMatrix(&buf, cat); err != nil {
		b.logger.Error("Failed to export matrix", zap.Error(err))
		b.sendError(chatID, "Failed to build the export")
		return
	}

	b.sendDocument(chatID, fmt.Sprintf("matrix_%s.xlsx", args[0]), buf.Bytes())
}

func (b *Bot) handleQuotes(ctx context.Context, chatID int64, args []string) {
	if b.snapshots == nil {
		b.sendError(chatID, "Stored quotes are not available")
		return
	}

	var productID string
	if len(args) > 0 {
		productID = args[0]
	}

	snaps, err := b.snapshots.ListQuoteSnapshots(ctx, productID, quotesExportLimit)
	if err != nil {
		b.logger.Error("Failed to list quotes", zap.Error(err))
		b.sendError(chatID, "Failed to load stored quotes")
		return
	}
	if len(snaps) == 0 {
		b.sendText(chatID, "No stored quotes yet")
		return
	}

	var buf bytes.Buffer
	if err := report.ExportQuotes(&buf, snaps); err != nil {
		b.logger.Error("Failed to export quotes", zap.Error(err))
		b.sendError(chatID, "Failed to build the export")
		return
	}

	b.sendDocument(chatID, fmt.Sprintf("quotes_%s.xlsx", time.Now().Format("20060102_150405")), buf.Bytes())
}

func (b *Bot) handleInvalidate(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.sendError(chatID, "Usage: /invalidate <product>")
		return
	}
	b.quotes.Invalidate(ctx, args[0])
	b.sendText(chatID, fmt.Sprintf("✅ Catalog of %s will be reloaded", args[0]))
}

func (b *Bot) sendDocument(chatID int64, name string, data []byte) {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("Failed to send document",
			zap.Int64("chat_id", chatID),
			zap.String("file", name),
			zap.Error(err))
		b.sendError(chatID, "Failed to send the file")
	}
}
