// Package catalog holds the normalized pricing catalog of a configurable
// product: its matrices, their selectable attributes and the breakpoint price
// map behind them.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoCatalog is returned when a product has no matrix catalog at all.
var ErrNoCatalog = errors.New("product has no pricing catalog")

type Kind int

const (
	KindBase Kind = iota
	KindFinishing
)

func (k Kind) String() string {
	if k == KindFinishing {
		return "finishing"
	}
	return "base"
}

// ParseKind accepts the names used by both storage shapes.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "base", "simple", "0":
		return KindBase, nil
	case "finishing", "finish", "1":
		return KindFinishing, nil
	}
	return KindBase, fmt.Errorf("unknown matrix kind %q", s)
}

// NumericType decides how the billable unit value of a matrix is computed.
type NumericType int

const (
	NumericFlat       NumericType = 0
	NumericArea       NumericType = 2
	NumericPerimeter  NumericType = 3
	NumericSingleSide NumericType = 4
)

func (t NumericType) NeedsDimensions() bool {
	return t == NumericArea || t == NumericPerimeter || t == NumericSingleSide
}

func (t NumericType) String() string {
	switch t {
	case NumericFlat:
		return "flat"
	case NumericArea:
		return "area"
	case NumericPerimeter:
		return "perimeter"
	case NumericSingleSide:
		return "single_side"
	}
	return "numeric_type(" + strconv.Itoa(int(t)) + ")"
}

type DimensionUnit string

const (
	UnitCentimeter DimensionUnit = "cm"
	UnitMillimeter DimensionUnit = "mm"
)

type Option struct {
	Value             string  `json:"value"`
	Label             string  `json:"label"`
	Order             float64 `json:"order"`
	IsDefaultSelected bool    `json:"is_default_selected"`
}

type Select struct {
	AttributeID    string   `json:"attribute_id"`
	Label          string   `json:"label"`
	IsSizeSelector bool     `json:"is_size_selector"`
	Options        []Option `json:"options"`
}

// Option returns the option with the given value.
func (s *Select) Option(value string) (Option, bool) {
	for _, o := range s.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// Default returns the preselected option, if the select has any options.
func (s *Select) Default() (Option, bool) {
	for _, o := range s.Options {
		if o.IsDefaultSelected {
			return o, true
		}
	}
	return Option{}, false
}

// Matrix is one priced dimension group. It is immutable once built.
type Matrix struct {
	ID          string
	Kind        Kind
	NumericType NumericType
	NumStyle    string
	AreaUnit    string
	SortOrder   int
	Breakpoints []float64
	Selects     []Select

	prices map[string]decimal.Decimal
	keys   []string
}

// Price looks up a "<attributeKey>-<breakpoint>" entry.
func (m *Matrix) Price(key string) (decimal.Decimal, bool) {
	p, ok := m.prices[key]
	return p, ok
}

// PriceKeys returns every price key of the matrix in lexicographic order.
func (m *Matrix) PriceKeys() []string {
	return m.keys
}

func (m *Matrix) HasSelects() bool {
	return len(m.Selects) > 0
}

// Select returns the select bound to attributeID.
func (m *Matrix) Select(attributeID string) (*Select, bool) {
	for i := range m.Selects {
		if m.Selects[i].AttributeID == attributeID {
			return &m.Selects[i], true
		}
	}
	return nil, false
}

// AreaInSquareMeters reports whether dimensions are billed in meters rather
// than centimeters.
func (m *Matrix) AreaInSquareMeters() bool {
	switch strings.ToLower(strings.TrimSpace(m.AreaUnit)) {
	case "m2", "m²", "qm", "sqm", "m", "1":
		return true
	}
	return false
}

// Globals are the per-product constants shared by all matrices.
type Globals struct {
	DimensionUnit   DimensionUnit        `json:"dimension_unit" yaml:"dimension_unit"`
	MinimumQuantity int                  `json:"minimum_quantity" yaml:"minimum_quantity"`
	MinimumWidth    float64              `json:"minimum_width" yaml:"minimum_width"`
	MinimumHeight   float64              `json:"minimum_height" yaml:"minimum_height"`
	MaximumWidth    float64              `json:"maximum_width" yaml:"maximum_width"`
	MaximumHeight   float64              `json:"maximum_height" yaml:"maximum_height"`
	NumbersByMatrix map[string][]float64 `json:"numbers_by_matrix,omitempty" yaml:"numbers_by_matrix"`
}

// Catalog is the built, read-only pricing catalog of one product.
type Catalog struct {
	ProductID string
	Globals   Globals
	Matrices  []*Matrix

	// Skipped lists rows that could not be built. The rest of the catalog
	// is still usable.
	Skipped []error
}

// Matrix returns the matrix with the given id.
func (c *Catalog) Matrix(id string) (*Matrix, bool) {
	for _, m := range c.Matrices {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

func (c *Catalog) ofKind(k Kind) []*Matrix {
	var out []*Matrix
	for _, m := range c.Matrices {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

func (c *Catalog) Base() []*Matrix      { return c.ofKind(KindBase) }
func (c *Catalog) Finishing() []*Matrix { return c.ofKind(KindFinishing) }

// FinishingPriceKeys is the flat view over every finishing price key of the
// product, sorted and without duplicates.
func (c *Catalog) FinishingPriceKeys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, m := range c.Finishing() {
		for _, k := range m.keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// NeedsDimensions reports whether any matrix bills by width and height.
func (c *Catalog) NeedsDimensions() bool {
	for _, m := range c.Matrices {
		if m.NumericType.NeedsDimensions() {
			return true
		}
	}
	return false
}

// Pair formats one "attributeId:optionValue" segment of an attribute key.
func Pair(attributeID, value string) string {
	return attributeID + ":" + value
}

// AttributeKey joins the chosen value of every select, in select order. It
// fails when a select has no choice.
func AttributeKey(selects []Select, choices map[string]string) (string, bool) {
	parts := make([]string, 0, len(selects))
	for _, s := range selects {
		v, ok := choices[s.AttributeID]
		if !ok || v == "" {
			return "", false
		}
		parts = append(parts, Pair(s.AttributeID, v))
	}
	return strings.Join(parts, "-"), true
}

// FormatBreakpoint renders a breakpoint the way price keys store it.
func FormatBreakpoint(bp float64) string {
	return strconv.FormatFloat(bp, 'f', -1, 64)
}

// PriceKey builds "<attributeKey>-<breakpoint>". Matrices without selects
// key their prices by the breakpoint alone.
func PriceKey(attributeKey string, bp float64) string {
	if attributeKey == "" {
		return FormatBreakpoint(bp)
	}
	return attributeKey + "-" + FormatBreakpoint(bp)
}

// NormalizeBreakpoints sorts, dedupes and drops non-positive or non-finite
// values. Already normalized input is returned as is.
func NormalizeBreakpoints(bps []float64) []float64 {
	if normalized(bps) {
		return bps
	}
	out := make([]float64, 0, len(bps))
	for _, bp := range bps {
		if bp > 0 && !math.IsInf(bp, 0) && !math.IsNaN(bp) {
			out = append(out, bp)
		}
	}
	sort.Float64s(out)
	uniq := out[:0]
	for _, bp := range out {
		if len(uniq) == 0 || bp != uniq[len(uniq)-1] {
			uniq = append(uniq, bp)
		}
	}
	return uniq
}

func normalized(bps []float64) bool {
	for i, bp := range bps {
		if !(bp > 0) || math.IsInf(bp, 0) {
			return false
		}
		if i > 0 && bp <= bps[i-1] {
			return false
		}
	}
	return true
}
