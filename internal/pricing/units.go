// Package pricing resolves a live product configuration against a built
// catalog into a net/VAT/gross price.
package pricing

import (
	"math"

	"printshop-pricing/internal/pricing/catalog"
)

// Status is the business outcome of a resolution step.
type Status int

const (
	StatusOK Status = iota
	// StatusUnresolved means a required choice or dimension is missing.
	StatusUnresolved
	// StatusUnavailable means the chosen combination has no price.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnresolved:
		return "unresolved"
	case StatusUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Dimensions is the quantity and optional size of a job, in the product's
// dimension unit.
type Dimensions struct {
	Quantity int
	Width    *float64
	Height   *float64
}

// ResolveUnitValue computes the billable unit value of m: pieces for flat
// matrices, square or running meters (or centimeters) otherwise.
func ResolveUnitValue(m *catalog.Matrix, g catalog.Globals, d Dimensions) (float64, Status) {
	if d.Quantity < 1 {
		return 0, StatusUnresolved
	}
	qty := float64(d.Quantity)
	if g.MinimumQuantity > d.Quantity {
		qty = float64(g.MinimumQuantity)
	}

	if !m.NumericType.NeedsDimensions() {
		return qty, StatusOK
	}
	if d.Width == nil || d.Height == nil {
		return 0, StatusUnresolved
	}

	w, h := *d.Width, *d.Height
	if !finite(w) || !finite(h) {
		return 0, StatusUnavailable
	}
	if w <= 0 || h <= 0 {
		return 0, StatusUnresolved
	}
	if g.DimensionUnit == catalog.UnitMillimeter {
		w, h = w/10, h/10
	}
	if m.AreaInSquareMeters() {
		w, h = w/100, h/100
	}

	var v float64
	switch m.NumericType {
	case catalog.NumericArea:
		v = qty * w * h
	case catalog.NumericPerimeter:
		v = qty * 2 * (w + h)
	case catalog.NumericSingleSide:
		v = qty * 2 * w
	}
	if !finite(v) {
		return 0, StatusUnavailable
	}
	return ceilTenth(v), StatusOK
}

// ceilTenth rounds up to one decimal place the way the legacy shop did,
// float noise included.
func ceilTenth(v float64) float64 {
	return math.Ceil(v*10) / 10
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
