package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"printshop-pricing/internal/pricing/legacyarray"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// DefaultSizeKeywords mark an attribute as a size/format selector when its
// name contains one of them.
var DefaultSizeKeywords = []string{
	"size", "format", "dimension",
	"größe", "groesse", "abmessung", "maße", "endformat",
}

// MatrixRow is one raw matrix row. The serialized fields carry the legacy
// matrix-table shape; the structured fields carry the normalized pricing
// model shape. Serialized fields win when both are set.
type MatrixRow struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	NumericType NumericType `json:"numeric_type"`
	NumStyle    string      `json:"num_style"`
	AreaUnit    string      `json:"area_unit"`
	SortOrder   int         `json:"sort_order"`

	SerializedAttributes     string `json:"serialized_attributes,omitempty"`
	SerializedAttributeTerms string `json:"serialized_attribute_terms,omitempty"`
	SerializedBreakpoints    string `json:"serialized_breakpoints,omitempty"`

	AttributeIDs   []string            `json:"attribute_ids,omitempty"`
	AttributeTerms map[string][]string `json:"attribute_terms,omitempty"`
	Breakpoints    []float64           `json:"breakpoints,omitempty"`
}

// PriceRow is one raw price fact of a matrix.
type PriceRow struct {
	MatrixID     string          `json:"matrix_id"`
	AttributeKey string          `json:"attribute_key"`
	Breakpoint   float64         `json:"breakpoint"`
	Price        decimal.Decimal `json:"price"`
}

type Attribute struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

type Term struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// TermOrders holds explicit option order values, keyed by
// "<attributeId>:<termId>" for attribute-specific orders and by "<termId>"
// for the generic fallback.
type TermOrders map[string]float64

func (o TermOrders) lookup(attributeID, termID string) float64 {
	if v, ok := o[Pair(attributeID, termID)]; ok {
		return v
	}
	if v, ok := o[termID]; ok {
		return v
	}
	return 0
}

// BuildInput is everything the builder needs for one product.
type BuildInput struct {
	ProductID    string               `json:"product_id"`
	Globals      Globals              `json:"globals"`
	Matrices     []MatrixRow          `json:"matrices"`
	Prices       []PriceRow           `json:"prices"`
	Attributes   map[string]Attribute `json:"attributes"`
	Terms        map[string]Term      `json:"terms"`
	TermOrders   TermOrders           `json:"term_orders"`
	SizeKeywords []string             `json:"-"`
}

// MatrixError ties a build failure to the matrix row it came from.
type MatrixError struct {
	MatrixID string
	Field    string
	Err      error
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix %s: %s: %v", e.MatrixID, e.Field, e.Err)
}

func (e *MatrixError) Unwrap() error { return e.Err }

// Build turns raw rows into a catalog. Rows that fail to decode are skipped
// and reported in Catalog.Skipped. When rows exist but none survive, Build
// fails with ErrNoCatalog joined with the row errors.
func Build(in BuildInput) (*Catalog, error) {
	if len(in.Matrices) == 0 {
		return nil, ErrNoCatalog
	}

	keywords := in.SizeKeywords
	if len(keywords) == 0 {
		keywords = DefaultSizeKeywords
	}
	fold := cases.Fold()
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			folded = append(folded, fold.String(k))
		}
	}

	cat := &Catalog{
		ProductID: in.ProductID,
		Globals:   in.Globals,
	}
	cat.Globals.NumbersByMatrix = make(map[string][]float64, len(in.Matrices))
	if cat.Globals.MinimumQuantity < 1 {
		cat.Globals.MinimumQuantity = 1
	}
	if cat.Globals.DimensionUnit == "" {
		cat.Globals.DimensionUnit = UnitCentimeter
	}

	byID := make(map[string]*Matrix, len(in.Matrices))
	for _, row := range in.Matrices {
		m, err := buildMatrix(row, in, folded)
		if err != nil {
			cat.Skipped = append(cat.Skipped, err)
			continue
		}
		if _, dup := byID[m.ID]; dup {
			cat.Skipped = append(cat.Skipped, &MatrixError{MatrixID: m.ID, Field: "id", Err: errors.New("duplicate matrix id")})
			continue
		}
		byID[m.ID] = m
		cat.Matrices = append(cat.Matrices, m)
		cat.Globals.NumbersByMatrix[m.ID] = m.Breakpoints
	}

	if len(cat.Matrices) == 0 {
		return nil, errors.Join(append([]error{ErrNoCatalog}, cat.Skipped...)...)
	}

	unknown := make(map[string]int)
	for _, p := range in.Prices {
		m, ok := byID[p.MatrixID]
		if !ok {
			unknown[p.MatrixID]++
			continue
		}
		if math.IsNaN(p.Breakpoint) || math.IsInf(p.Breakpoint, 0) {
			cat.Skipped = append(cat.Skipped, &MatrixError{MatrixID: p.MatrixID, Field: "price breakpoint", Err: fmt.Errorf("non-finite breakpoint for key %q", p.AttributeKey)})
			continue
		}
		m.prices[PriceKey(p.AttributeKey, p.Breakpoint)] = p.Price
	}
	for _, id := range sortedMapKeys(unknown) {
		cat.Skipped = append(cat.Skipped, &MatrixError{MatrixID: id, Field: "prices", Err: fmt.Errorf("%d price rows reference an unknown matrix", unknown[id])})
	}

	for _, m := range cat.Matrices {
		m.keys = make([]string, 0, len(m.prices))
		for k := range m.prices {
			m.keys = append(m.keys, k)
		}
		sort.Strings(m.keys)
	}

	sort.SliceStable(cat.Matrices, func(i, j int) bool {
		a, b := cat.Matrices[i], cat.Matrices[j]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.ID < b.ID
	})

	return cat, nil
}

func buildMatrix(row MatrixRow, in BuildInput, sizeKeywords []string) (*Matrix, error) {
	attributeIDs := row.AttributeIDs
	if row.SerializedAttributes != "" {
		v, err := legacyarray.Decode(row.SerializedAttributes)
		if err != nil {
			return nil, &MatrixError{MatrixID: row.ID, Field: "attributes", Err: err}
		}
		if attributeIDs, err = legacyarray.Strings(v); err != nil {
			return nil, &MatrixError{MatrixID: row.ID, Field: "attributes", Err: err}
		}
	}

	terms := row.AttributeTerms
	if row.SerializedAttributeTerms != "" {
		v, err := legacyarray.Decode(row.SerializedAttributeTerms)
		if err != nil {
			return nil, &MatrixError{MatrixID: row.ID, Field: "attribute terms", Err: err}
		}
		if terms, err = legacyarray.StringLists(v); err != nil {
			return nil, &MatrixError{MatrixID: row.ID, Field: "attribute terms", Err: err}
		}
	}

	breakpoints := row.Breakpoints
	if row.SerializedBreakpoints != "" {
		var err error
		if breakpoints, err = ParseBreakpoints(row.SerializedBreakpoints); err != nil {
			return nil, &MatrixError{MatrixID: row.ID, Field: "breakpoints", Err: err}
		}
	}
	if override, ok := in.Globals.NumbersByMatrix[row.ID]; ok && len(override) > 0 {
		breakpoints = override
	}

	m := &Matrix{
		ID:          row.ID,
		Kind:        row.Kind,
		NumericType: row.NumericType,
		NumStyle:    row.NumStyle,
		AreaUnit:    row.AreaUnit,
		SortOrder:   row.SortOrder,
		Breakpoints: append([]float64(nil), NormalizeBreakpoints(breakpoints)...),
		prices:      make(map[string]decimal.Decimal),
	}

	fold := cases.Fold()
	for _, attrID := range attributeIDs {
		attr, ok := in.Attributes[attrID]
		label := attrID
		if ok {
			label = attr.Label
			if label == "" {
				label = attr.Name
			}
		}

		sel := Select{
			AttributeID:    attrID,
			Label:          label,
			IsSizeSelector: ok && isSizeName(fold.String(attr.Name), sizeKeywords),
		}
		for _, termID := range terms[attrID] {
			optLabel := termID
			if t, ok := in.Terms[termID]; ok && t.Label != "" {
				optLabel = t.Label
			}
			sel.Options = append(sel.Options, Option{
				Value: termID,
				Label: optLabel,
				Order: in.TermOrders.lookup(attrID, termID),
			})
		}
		sortOptions(sel.Options)
		if len(sel.Options) > 0 {
			sel.Options[0].IsDefaultSelected = true
		}
		m.Selects = append(m.Selects, sel)
	}

	return m, nil
}

func isSizeName(name string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

// sortOptions orders by explicit order, then label, then value so equal
// labels still produce a stable key space.
func sortOptions(opts []Option) {
	sort.SliceStable(opts, func(i, j int) bool {
		a, b := opts[i], opts[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Value < b.Value
	})
}

// ParseBreakpoints reads a breakpoint list stored either as a serialized
// array or as a comma, semicolon or whitespace separated string.
func ParseBreakpoints(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var tokens []string
	if strings.HasPrefix(raw, "a:") {
		v, err := legacyarray.Decode(raw)
		if err != nil {
			return nil, err
		}
		if tokens, err = legacyarray.Strings(v); err != nil {
			return nil, err
		}
	} else {
		tokens = strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
		})
	}

	out := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		f, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid breakpoint %q: %w", tok, err)
		}
		out = append(out, f)
	}
	return NormalizeBreakpoints(out), nil
}

func sortedMapKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
