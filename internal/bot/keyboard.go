package bot

import (
	"strings"

	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	choicePrefix = "c"
	// Telegram rejects callback data longer than this.
	maxCallbackData = 64
	buttonsPerRow   = 3
)

func choiceData(matrixID, attributeID, value string) (string, bool) {
	data := strings.Join([]string{choicePrefix, matrixID, attributeID, value}, "|")
	if len(data) > maxCallbackData {
		return "", false
	}
	return data, true
}

func parseChoiceData(data string) (matrixID, attributeID, value string, ok bool) {
	parts := strings.SplitN(data, "|", 4)
	if len(parts) != 4 || parts[0] != choicePrefix {
		return "", "", "", false
	}
	for _, p := range parts[1:] {
		if p == "" {
			return "", "", "", false
		}
	}
	return parts[1], parts[2], parts[3], true
}

// optionsKeyboard offers one button per option. The current choice is
// marked. Options whose ids do not fit in callback data are left out and
// remain reachable through /choose.
func optionsKeyboard(cat *catalog.Catalog, state *session.State) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton

	for _, m := range cat.Matrices {
		for _, sel := range m.Selects {
			current := state.Choices[m.ID][sel.AttributeID]

			var row []tgbotapi.InlineKeyboardButton
			for _, opt := range sel.Options {
				data, ok := choiceData(m.ID, sel.AttributeID, opt.Value)
				if !ok {
					continue
				}
				label := opt.Label
				if opt.Value == current {
					label = "• " + label
				}
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, data))
				if len(row) == buttonsPerRow {
					rows = append(rows, row)
					row = nil
				}
			}
			if len(row) > 0 {
				rows = append(rows, row)
			}
		}
	}

	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
