package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/quote"
	"printshop-pricing/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const helpText = `Available commands:
/product <id> - start configuring a product
/options - show the options of the current product
/qty <n> - set the quantity
/size <width> <height> - set the size in the product unit
/choose <matrix> <attribute> <value> - pick an option
/speed <percent> - production speed surcharge
/discount <percent> - customer discount
/price - show the current price
/reset - drop the current configuration`

const adminHelpText = `
Admin commands:
/freeze - store the current price as a quote
/export <product> - price matrix as Excel
/quotes [product] - stored quotes as Excel
/invalidate <product> - reload a product catalog`

func (b *Bot) handleCommand(ctx context.Context, chatID, userID int64, command, args string) {
	fields := strings.Fields(args)

	switch command {
	case "start", "help":
		b.handleHelp(chatID, userID)
	case "product":
		b.handleProduct(ctx, chatID, fields)
	case "options":
		b.handleOptions(ctx, chatID)
	case "qty":
		b.handleQuantity(ctx, chatID, fields)
	case "size":
		b.handleSize(ctx, chatID, args)
	case "choose":
		if len(fields) != 3 {
			b.sendError(chatID, "Usage: /choose <matrix> <attribute> <value>")
			return
		}
		b.handleChoose(ctx, chatID, fields[0], fields[1], fields[2])
	case "speed", "discount":
		b.handleModifier(ctx, chatID, command, fields)
	case "price":
		b.handlePrice(ctx, chatID)
	case "reset":
		b.handleReset(ctx, chatID)
	case "freeze", "export", "quotes", "invalidate":
		b.handleAdminCommand(ctx, chatID, userID, command, fields)
	default:
		b.handleUnknownCommand(chatID)
	}
}

func (b *Bot) handleDefault(_ context.Context, chatID int64) {
	b.sendError(chatID, "I only understand commands. Send /help for the list.")
}

func (b *Bot) handleUnknownCommand(chatID int64) {
	b.sendError(chatID, "Unknown command. Send /help for the list.")
}

func (b *Bot) handleHelp(chatID, userID int64) {
	text := helpText
	if b.cfg.IsAdmin(userID) {
		text += adminHelpText
	}
	b.sendText(chatID, text)
}

func (b *Bot) handleProduct(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.sendError(chatID, "Usage: /product <id>")
		return
	}

	if _, err := b.sessions.Start(ctx, chatID, args[0]); err != nil {
		b.logger.Error("Failed to start configuration",
			zap.Int64("chat_id", chatID),
			zap.String("product_id", args[0]),
			zap.Error(err))
		b.sendError(chatID, "This product cannot be configured")
		return
	}

	b.handleOptions(ctx, chatID)
	b.handlePrice(ctx, chatID)
}

func (b *Bot) handleOptions(ctx context.Context, chatID int64) {
	state, ok := b.session(ctx, chatID)
	if !ok {
		return
	}

	cat, err := b.quotes.Catalog(ctx, state.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNoCatalog) {
			b.sendText(chatID, "This product has a fixed price. Set the quantity with /qty.")
			return
		}
		b.logger.Error("Failed to load catalog",
			zap.String("product_id", state.ProductID),
			zap.Error(err))
		b.sendError(chatID, "Failed to load product options")
		return
	}

	msg := tgbotapi.NewMessage(chatID, formatOptions(cat, state))
	if kb, ok := optionsKeyboard(cat, state); ok {
		msg.ReplyMarkup = kb
	}
	b.sendMessage(msg)
}

func (b *Bot) handleQuantity(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.sendError(chatID, "Usage: /qty <n>")
		return
	}
	qty, err := strconv.Atoi(args[0])
	if err != nil {
		b.sendError(chatID, "Quantity must be a whole number")
		return
	}
	if _, err := b.sessions.SetQuantity(ctx, chatID, qty); err != nil {
		b.reportSessionError(chatID, err)
		return
	}
	b.handlePrice(ctx, chatID)
}

func (b *Bot) handleSize(ctx context.Context, chatID int64, args string) {
	w, h, err := parseDimensions(args)
	if err != nil {
		b.sendError(chatID, err.Error())
		return
	}
	if _, err := b.sessions.SetDimensions(ctx, chatID, w, h); err != nil {
		b.reportSessionError(chatID, err)
		return
	}
	b.handlePrice(ctx, chatID)
}

func (b *Bot) handleChoose(ctx context.Context, chatID int64, matrixID, attributeID, value string) {
	if _, err := b.sessions.Choose(ctx, chatID, matrixID, attributeID, value); err != nil {
		b.reportSessionError(chatID, err)
		return
	}
	b.handlePrice(ctx, chatID)
}

func (b *Bot) handleModifier(ctx context.Context, chatID int64, command string, args []string) {
	if len(args) != 1 {
		b.sendError(chatID, fmt.Sprintf("Usage: /%s <percent>", command))
		return
	}
	pct, err := parsePercent(args[0])
	if err != nil {
		b.sendError(chatID, err.Error())
		return
	}

	state, ok := b.session(ctx, chatID)
	if !ok {
		return
	}
	speed, discount := state.ProductionSpeedPercent, state.UserDiscountPercent
	if command == "speed" {
		speed = pct
	} else {
		discount = pct
	}

	if _, err := b.sessions.SetModifiers(ctx, chatID, speed, discount); err != nil {
		b.reportSessionError(chatID, err)
		return
	}
	b.handlePrice(ctx, chatID)
}

func (b *Bot) handlePrice(ctx context.Context, chatID int64) {
	_, res, err := b.sessions.Price(ctx, chatID)
	if err != nil {
		if errors.Is(err, quote.ErrPricingRefused) {
			b.sendError(chatID, "This product cannot be priced right now")
			return
		}
		b.reportSessionError(chatID, err)
		return
	}

	for _, w := range res.Warnings {
		b.logger.Warn("Pricing warning shown to chat",
			zap.Int64("chat_id", chatID),
			zap.String("warning", w))
	}
	b.sendText(chatID, formatResult(res))
}

func (b *Bot) handleReset(ctx context.Context, chatID int64) {
	if err := b.sessions.Reset(ctx, chatID); err != nil {
		b.logger.Error("Failed to reset configuration",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Failed to reset")
		return
	}
	b.sendText(chatID, "Configuration cleared. Start again with /product <id>.")
}

func (b *Bot) session(ctx context.Context, chatID int64) (*session.State, bool) {
	state, err := b.sessions.Get(ctx, chatID)
	if err != nil {
		b.reportSessionError(chatID, err)
		return nil, false
	}
	return state, true
}

func (b *Bot) reportSessionError(chatID int64, err error) {
	switch {
	case errors.Is(err, session.ErrNoSession):
		b.sendError(chatID, "No product selected. Start with /product <id>.")
	case errors.Is(err, session.ErrInvalidInput), errors.Is(err, session.ErrUnknownOption):
		b.sendError(chatID, err.Error())
	default:
		b.logger.Error("Configuration update failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Something went wrong, please try again")
	}
}
