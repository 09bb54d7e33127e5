package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"printshop-pricing/internal/pricing/catalog"
	"printshop-pricing/internal/pricing/legacyarray"

	"github.com/shopspring/decimal"
)

type productRow struct {
	ID              string              `db:"id"`
	StaticPrice     decimal.NullDecimal `db:"static_price"`
	DimensionUnit   string              `db:"dimension_unit"`
	MinimumQuantity int                 `db:"minimum_quantity"`
	MinimumWidth    float64             `db:"minimum_width"`
	MinimumHeight   float64             `db:"minimum_height"`
	MaximumWidth    float64             `db:"maximum_width"`
	MaximumHeight   float64             `db:"maximum_height"`
	NumbersByMatrix []byte              `db:"numbers_by_matrix"`
}

func (p productRow) globals() (catalog.Globals, error) {
	g := catalog.Globals{
		DimensionUnit:   catalog.DimensionUnit(p.DimensionUnit),
		MinimumQuantity: p.MinimumQuantity,
		MinimumWidth:    p.MinimumWidth,
		MinimumHeight:   p.MinimumHeight,
		MaximumWidth:    p.MaximumWidth,
		MaximumHeight:   p.MaximumHeight,
	}
	if len(p.NumbersByMatrix) > 0 {
		if err := json.Unmarshal(p.NumbersByMatrix, &g.NumbersByMatrix); err != nil {
			return g, fmt.Errorf("numbers_by_matrix: %w", err)
		}
	}
	return g, nil
}

// matrixRow is shared by price_matrices and pricing_models; the serialized
// columns are empty for the normalized shape.
type matrixRow struct {
	ID             string `db:"id"`
	Kind           string `db:"kind"`
	NumericType    int    `db:"numeric_type"`
	NumStyle       string `db:"num_style"`
	AreaUnit       string `db:"area_unit"`
	SortOrder      int    `db:"sort_order"`
	Attributes     string `db:"attributes"`
	AttributeTerms string `db:"attribute_terms"`
	Breakpoints    string `db:"breakpoints"`
}

type priceRow struct {
	MatrixID     string          `db:"matrix_id"`
	AttributeKey string          `db:"attribute_key"`
	Breakpoint   float64         `db:"breakpoint"`
	Price        decimal.Decimal `db:"price"`
}

type modelAttributeRow struct {
	ModelID     string `db:"model_id"`
	AttributeID string `db:"attribute_id"`
	Position    int    `db:"position"`
}

type modelTermRow struct {
	ModelID     string `db:"model_id"`
	AttributeID string `db:"attribute_id"`
	TermID      string `db:"term_id"`
	Position    int    `db:"position"`
}

type modelBreakpointRow struct {
	ModelID string  `db:"model_id"`
	Value   float64 `db:"value"`
}

type attributeRow struct {
	ID    string `db:"id"`
	Name  string `db:"name"`
	Label string `db:"label"`
}

type termRow struct {
	ID    string `db:"id"`
	Label string `db:"label"`
}

type termMetaRow struct {
	TermID      string         `db:"term_id"`
	AttributeID sql.NullString `db:"attribute_id"`
	SortOrder   float64        `db:"sort_order"`
}

// matrixRows converts raw matrix rows. Rows with an unknown kind are
// returned as errors and left out.
func matrixRows(rows []matrixRow) ([]catalog.MatrixRow, []error) {
	out := make([]catalog.MatrixRow, 0, len(rows))
	var errs []error
	for _, r := range rows {
		kind, err := catalog.ParseKind(r.Kind)
		if err != nil {
			errs = append(errs, &catalog.MatrixError{MatrixID: r.ID, Field: "kind", Err: err})
			continue
		}
		out = append(out, catalog.MatrixRow{
			ID:                       r.ID,
			Kind:                     kind,
			NumericType:              catalog.NumericType(r.NumericType),
			NumStyle:                 r.NumStyle,
			AreaUnit:                 r.AreaUnit,
			SortOrder:                r.SortOrder,
			SerializedAttributes:     r.Attributes,
			SerializedAttributeTerms: r.AttributeTerms,
			SerializedBreakpoints:    r.Breakpoints,
		})
	}
	return out, errs
}

// attachModelParts fills the structured select and breakpoint fields of
// normalized pricing model rows.
func attachModelParts(rows []catalog.MatrixRow, attrs []modelAttributeRow, terms []modelTermRow, bps []modelBreakpointRow) {
	byID := make(map[string]*catalog.MatrixRow, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}

	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Position < attrs[j].Position })
	for _, a := range attrs {
		if m, ok := byID[a.ModelID]; ok {
			m.AttributeIDs = append(m.AttributeIDs, a.AttributeID)
		}
	}

	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Position < terms[j].Position })
	for _, t := range terms {
		m, ok := byID[t.ModelID]
		if !ok {
			continue
		}
		if m.AttributeTerms == nil {
			m.AttributeTerms = make(map[string][]string)
		}
		m.AttributeTerms[t.AttributeID] = append(m.AttributeTerms[t.AttributeID], t.TermID)
	}

	for _, b := range bps {
		if m, ok := byID[b.ModelID]; ok {
			m.Breakpoints = append(m.Breakpoints, b.Value)
		}
	}
}

func priceRows(rows []priceRow) []catalog.PriceRow {
	out := make([]catalog.PriceRow, len(rows))
	for i, r := range rows {
		out[i] = catalog.PriceRow{
			MatrixID:     r.MatrixID,
			AttributeKey: r.AttributeKey,
			Breakpoint:   r.Breakpoint,
			Price:        r.Price,
		}
	}
	return out
}

// referencedIDs lists the attribute and term ids used by the matrix rows and
// their price keys. Serialized columns that fail to decode are skipped here;
// the catalog builder reports them.
func referencedIDs(rows []catalog.MatrixRow, prices []catalog.PriceRow) (attrIDs, termIDs []string) {
	attrs := make(map[string]struct{})
	terms := make(map[string]struct{})
	for _, r := range rows {
		ids, termsByAttr := r.AttributeIDs, r.AttributeTerms
		if r.SerializedAttributes != "" {
			if v, err := legacyarray.Decode(r.SerializedAttributes); err == nil {
				ids, _ = legacyarray.Strings(v)
			}
		}
		if r.SerializedAttributeTerms != "" {
			if v, err := legacyarray.Decode(r.SerializedAttributeTerms); err == nil {
				termsByAttr, _ = legacyarray.StringLists(v)
			}
		}
		for _, id := range ids {
			attrs[id] = struct{}{}
		}
		for attr, ts := range termsByAttr {
			attrs[attr] = struct{}{}
			for _, t := range ts {
				terms[t] = struct{}{}
			}
		}
	}
	for _, p := range prices {
		for _, pair := range splitAttributeKey(p.AttributeKey) {
			attrs[pair[0]] = struct{}{}
			terms[pair[1]] = struct{}{}
		}
	}
	return setKeys(attrs), setKeys(terms)
}

// splitAttributeKey breaks "a:x-b:y" into its pairs. Segments without a
// colon are ignored.
func splitAttributeKey(key string) [][2]string {
	var pairs [][2]string
	for _, seg := range strings.Split(key, "-") {
		if attr, term, ok := strings.Cut(seg, ":"); ok {
			pairs = append(pairs, [2]string{attr, term})
		}
	}
	return pairs
}

func attributeMap(rows []attributeRow) map[string]catalog.Attribute {
	out := make(map[string]catalog.Attribute, len(rows))
	for _, r := range rows {
		out[r.ID] = catalog.Attribute{ID: r.ID, Name: r.Name, Label: r.Label}
	}
	return out
}

func termMap(rows []termRow) map[string]catalog.Term {
	out := make(map[string]catalog.Term, len(rows))
	for _, r := range rows {
		out[r.ID] = catalog.Term{ID: r.ID, Label: r.Label}
	}
	return out
}

func termOrders(rows []termMetaRow) catalog.TermOrders {
	out := make(catalog.TermOrders, len(rows))
	for _, r := range rows {
		if r.AttributeID.Valid && r.AttributeID.String != "" {
			out[catalog.Pair(r.AttributeID.String, r.TermID)] = r.SortOrder
			continue
		}
		out[r.TermID] = r.SortOrder
	}
	return out
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
