package pricing

import (
	"sort"

	"printshop-pricing/internal/pricing/catalog"

	"github.com/shopspring/decimal"
)

// PriceLookup is the per-matrix price accessor.
type PriceLookup interface {
	Price(key string) (decimal.Decimal, bool)
}

// ResolveOptions control behavior outside the breakpoint range.
type ResolveOptions struct {
	// ScaleBelowMin scales the minimum breakpoint price linearly down.
	ScaleBelowMin bool
	// ScaleAboveMax extrapolates linearly past the maximum breakpoint.
	ScaleAboveMax bool
}

// OptionsFor returns the resolve options of a matrix. Only area jobs scale
// below the minimum; extrapolation above the maximum is a caller setting.
func OptionsFor(m *catalog.Matrix, extrapolateAboveMax bool) ResolveOptions {
	return ResolveOptions{
		ScaleBelowMin: m.NumericType == catalog.NumericArea,
		ScaleAboveMax: extrapolateAboveMax,
	}
}

// ResolvePrice finds the unit price for attributeKey at unit, interpolating
// between the enclosing breakpoints. It reports false when a needed price is
// missing or the input is not a finite number.
func ResolvePrice(prices PriceLookup, attributeKey string, unit float64, breakpoints []float64, opts ResolveOptions) (decimal.Decimal, bool) {
	bps := catalog.NormalizeBreakpoints(breakpoints)
	if len(bps) == 0 || !finite(unit) {
		return decimal.Zero, false
	}

	first, last := bps[0], bps[len(bps)-1]

	if unit <= first {
		p, ok := prices.Price(catalog.PriceKey(attributeKey, first))
		if !ok {
			return decimal.Zero, false
		}
		if opts.ScaleBelowMin && first > 0 && unit != first {
			return p.Mul(ratio(unit, first)), true
		}
		return p, true
	}

	if unit >= last {
		p, ok := prices.Price(catalog.PriceKey(attributeKey, last))
		if !ok {
			return decimal.Zero, false
		}
		if opts.ScaleAboveMax && last > 0 && unit != last {
			return p.Mul(ratio(unit, last)), true
		}
		return p, true
	}

	idx := sort.SearchFloat64s(bps, unit)
	upper := bps[idx]
	if upper == unit {
		return prices.Price(catalog.PriceKey(attributeKey, upper))
	}
	lower := bps[idx-1]

	lowerPrice, ok := prices.Price(catalog.PriceKey(attributeKey, lower))
	if !ok {
		return decimal.Zero, false
	}
	upperPrice, ok := prices.Price(catalog.PriceKey(attributeKey, upper))
	if !ok {
		return decimal.Zero, false
	}

	u := decimal.NewFromFloat(unit)
	lo := decimal.NewFromFloat(lower)
	hi := decimal.NewFromFloat(upper)
	step := upperPrice.Sub(lowerPrice).Mul(u.Sub(lo)).Div(hi.Sub(lo))

	return lowerPrice.Add(step), true
}

func ratio(unit, bp float64) decimal.Decimal {
	return decimal.NewFromFloat(unit).Div(decimal.NewFromFloat(bp))
}
