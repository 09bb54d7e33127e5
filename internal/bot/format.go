package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"printshop-pricing/internal/pricing"
	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/session"

	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal, currency string) string {
	return d.StringFixed(2) + " " + currency
}

func formatResult(res pricing.Result) string {
	switch res.Status {
	case pricing.StatusUnresolved:
		return "⚠️ Not all options are set: " + res.Reason
	case pricing.StatusUnavailable:
		return "⚠️ This combination is not available: " + res.Reason
	}

	var sb strings.Builder
	sb.WriteString("💰 Price\n")
	fmt.Fprintf(&sb, "Net: %s\n", money(res.Net, res.Currency))
	fmt.Fprintf(&sb, "VAT: %s\n", money(res.VAT, res.Currency))
	fmt.Fprintf(&sb, "Gross: %s", money(res.Gross, res.Currency))
	if res.Fallback {
		sb.WriteString("\n(fixed product price)")
	}
	return sb.String()
}

func formatOptions(cat *catalog.Catalog, state *session.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🖨 %s\nQuantity: %d\n", cat.ProductID, state.Quantity)

	if cat.NeedsDimensions() {
		unit := cat.Globals.DimensionUnit
		if unit == "" {
			unit = catalog.UnitCentimeter
		}
		if state.Width != nil && state.Height != nil {
			fmt.Fprintf(&sb, "Size: %s × %s %s\n",
				strconv.FormatFloat(*state.Width, 'f', -1, 64),
				strconv.FormatFloat(*state.Height, 'f', -1, 64),
				unit)
		} else {
			fmt.Fprintf(&sb, "Size: not set, use /size <width> <height> (%s)\n", unit)
		}
	}

	for _, m := range cat.Matrices {
		for _, sel := range m.Selects {
			current := state.Choices[m.ID][sel.AttributeID]
			label := "not chosen"
			if opt, ok := sel.Option(current); ok {
				label = opt.Label
			}
			fmt.Fprintf(&sb, "%s [%s %s]: %s\n", sel.Label, m.ID, sel.AttributeID, label)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// parseDimensions accepts "W H", "WxH" and "W×H" with either decimal
// separator.
func parseDimensions(args string) (float64, float64, error) {
	s := strings.NewReplacer("×", " ", "x", " ", "X", " ", "*", " ").Replace(args)
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, errors.New("usage: /size <width> <height>")
	}

	w, err := parseNumber(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width %q", fields[0])
	}
	h, err := parseNumber(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height %q", fields[1])
	}
	return w, h, nil
}

func parsePercent(s string) (float64, error) {
	v, err := parseNumber(strings.TrimSuffix(s, "%"))
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q", s)
	}
	return v, nil
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}
