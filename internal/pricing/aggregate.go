package pricing

import (
	"fmt"
	"strings"

	"printshop-pricing/internal/pricing/catalog"

	"github.com/shopspring/decimal"
)

// Options are caller-level switches that differ between pricing surfaces.
type Options struct {
	// ExtrapolateAboveMax is on for authoritative server pricing and off for
	// the interactive preview.
	ExtrapolateAboveMax bool
}

// Line is the resolved contribution of one matrix.
type Line struct {
	MatrixID  string          `json:"matrix_id"`
	Kind      catalog.Kind    `json:"kind"`
	UnitValue float64         `json:"unit_value"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
}

// Result is the outcome of pricing one selection. Amounts are only set when
// Status is StatusOK.
type Result struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Amounts
	RawTotal decimal.Decimal `json:"raw_total"`
	Lines    []Line          `json:"lines"`
	Warnings []string        `json:"warnings,omitempty"`
	// Fallback is set when the static product price was used.
	Fallback bool `json:"fallback,omitempty"`
}

// Aggregate prices every matrix of cat for sel and folds the result into
// net, VAT and gross. A missing choice makes the result unresolved; a choice
// without a price makes it unavailable. Unresolved wins when both occur.
func Aggregate(cat *catalog.Catalog, sel Selection, mods Modifiers, vat VATSettings, opts Options) Result {
	res := Result{Status: StatusOK}

	// A catalog missing rows would price the product without them.
	if len(cat.Skipped) > 0 {
		res.Status = StatusUnavailable
		res.Reason = fmt.Sprintf("pricing catalog incomplete: %d rows skipped", len(cat.Skipped))
		for _, err := range cat.Skipped {
			res.Warnings = append(res.Warnings, err.Error())
		}
		return res
	}

	if reason := checkDimensions(cat, sel); reason != "" {
		res.Status = StatusUnresolved
		res.Reason = reason
		return res
	}

	prefix := SizePrefix(cat, sel)
	raw := decimal.Zero
	var unresolved, unavailable string

	for _, m := range cat.Matrices {
		line := resolveMatrix(cat, m, sel, prefix, opts, &res.Warnings)
		res.Lines = append(res.Lines, line)

		switch line.Status {
		case StatusUnresolved:
			if unresolved == "" {
				unresolved = line.Reason
			}
		case StatusUnavailable:
			if unavailable == "" {
				unavailable = line.Reason
			}
		default:
			raw = raw.Add(line.Amount)
		}
	}

	switch {
	case unresolved != "":
		res.Status = StatusUnresolved
		res.Reason = unresolved
		return res
	case unavailable != "":
		res.Status = StatusUnavailable
		res.Reason = unavailable
		return res
	}

	res.RawTotal = raw
	res.Amounts = ApplyVAT(mods.Apply(raw), vat)
	return res
}

func resolveMatrix(cat *catalog.Catalog, m *catalog.Matrix, sel Selection, prefix string, opts Options, warnings *[]string) Line {
	line := Line{MatrixID: m.ID, Kind: m.Kind, Amount: decimal.Zero}

	unit, st := ResolveUnitValue(m, cat.Globals, sel.dimensions())
	if st != StatusOK {
		line.Status = st
		if st == StatusUnresolved {
			line.Reason = fmt.Sprintf("matrix %s: quantity and size are required", m.ID)
		} else {
			line.Reason = fmt.Sprintf("matrix %s: dimensions are not finite numbers", m.ID)
		}
		return line
	}
	line.UnitValue = unit
	ro := OptionsFor(m, opts.ExtrapolateAboveMax)

	switch {
	case m.Kind == catalog.KindBase:
		key, ok := catalog.AttributeKey(m.Selects, sel.Choices[m.ID])
		if !ok {
			return fail(line, StatusUnresolved, "matrix %s: every option must be chosen", m.ID)
		}
		price, ok := ResolvePrice(m, key, unit, m.Breakpoints, ro)
		if !ok {
			return fail(line, StatusUnavailable, "matrix %s: no price for %q at %s", m.ID, key, catalog.FormatBreakpoint(unit))
		}
		line.Amount = price

	case m.HasSelects():
		p := matrixPrefix(m, prefix)
		sum := decimal.Zero
		for _, s := range m.Selects {
			v, ok := sel.choice(m.ID, s.AttributeID)
			if !ok {
				return fail(line, StatusUnresolved, "matrix %s: option %s must be chosen", m.ID, s.AttributeID)
			}
			key := p + catalog.Pair(s.AttributeID, v)
			price, ok := ResolvePrice(m, key, unit, m.Breakpoints, ro)
			if !ok {
				return fail(line, StatusUnavailable, "matrix %s: no price for %q at %s", m.ID, key, catalog.FormatBreakpoint(unit))
			}
			sum = sum.Add(price)
		}
		line.Amount = sum

	default:
		imp := ResolveImplicitFinishing(cat, m, sel)
		*warnings = append(*warnings, imp.Warnings...)
		if imp.Status != StatusOK {
			return fail(line, StatusUnavailable, "matrix %s: no implicit finishing option could be inferred", m.ID)
		}
		price, ok := ResolvePrice(m, imp.AttributeKey, unit, m.Breakpoints, ro)
		if !ok {
			return fail(line, StatusUnavailable, "matrix %s: no price for inferred %q at %s", m.ID, imp.AttributeKey, catalog.FormatBreakpoint(unit))
		}
		line.Amount = price
	}

	line.Status = StatusOK
	return line
}

func fail(line Line, st Status, format string, args ...any) Line {
	line.Status = st
	line.Reason = fmt.Sprintf(format, args...)
	line.Amount = decimal.Zero
	return line
}

// matrixPrefix applies the size prefix only to matrices whose own keys use it.
func matrixPrefix(m *catalog.Matrix, prefix string) string {
	if prefix == "" {
		return ""
	}
	for _, k := range m.PriceKeys() {
		if strings.HasPrefix(k, prefix) {
			return prefix
		}
	}
	return ""
}

func checkDimensions(cat *catalog.Catalog, sel Selection) string {
	g := cat.Globals
	unit := string(g.DimensionUnit)
	if (sel.Width != nil && *sel.Width <= 0) || (sel.Height != nil && *sel.Height <= 0) {
		return "width and height must be positive"
	}
	if sel.Width != nil {
		w := *sel.Width
		if g.MinimumWidth > 0 && w < g.MinimumWidth {
			return fmt.Sprintf("width must be at least %s %s", catalog.FormatBreakpoint(g.MinimumWidth), unit)
		}
		if g.MaximumWidth > 0 && w > g.MaximumWidth {
			return fmt.Sprintf("width must be at most %s %s", catalog.FormatBreakpoint(g.MaximumWidth), unit)
		}
	}
	if sel.Height != nil {
		h := *sel.Height
		if g.MinimumHeight > 0 && h < g.MinimumHeight {
			return fmt.Sprintf("height must be at least %s %s", catalog.FormatBreakpoint(g.MinimumHeight), unit)
		}
		if g.MaximumHeight > 0 && h > g.MaximumHeight {
			return fmt.Sprintf("height must be at most %s %s", catalog.FormatBreakpoint(g.MaximumHeight), unit)
		}
	}
	return ""
}
