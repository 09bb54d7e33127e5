package pricing

import (
	"testing"

	"printshop-pricing/internal/pricing/catalog"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(f float64) *float64 {
	return &f
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "got %s, want %s", got.String(), want)
}

func buildCatalog(t *testing.T, g catalog.Globals, rows []catalog.MatrixRow, prices []catalog.PriceRow, attrs map[string]catalog.Attribute) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Build(catalog.BuildInput{
		ProductID:  "test",
		Globals:    g,
		Matrices:   rows,
		Prices:     prices,
		Attributes: attrs,
	})
	require.NoError(t, err)
	require.Empty(t, cat.Skipped)
	return cat
}

func flatCatalog(t *testing.T) *catalog.Catalog {
	return buildCatalog(t, catalog.Globals{},
		[]catalog.MatrixRow{{ID: "1", Kind: catalog.KindBase, NumericType: catalog.NumericFlat, Breakpoints: []float64{100, 500}}},
		[]catalog.PriceRow{
			{MatrixID: "1", Breakpoint: 100, Price: dec("20.00")},
			{MatrixID: "1", Breakpoint: 500, Price: dec("60.00")},
		}, nil)
}

func TestResolvePrice_FlatQuantityScenario(t *testing.T) {
	cat := flatCatalog(t)
	m := cat.Matrices[0]
	opts := ResolveOptions{}

	tests := []struct {
		qty  int
		want string
	}{
		{100, "20.00"},
		{300, "40.00"},
		{1000, "60.00"},
		{10, "20.00"},
	}
	for _, tt := range tests {
		unit, st := ResolveUnitValue(m, cat.Globals, Dimensions{Quantity: tt.qty})
		require.Equal(t, StatusOK, st)

		got, ok := ResolvePrice(m, "", unit, m.Breakpoints, opts)
		require.True(t, ok)
		assertMoney(t, tt.want, got)
	}
}

func TestResolvePrice_ExtrapolatesAboveMaxWhenEnabled(t *testing.T) {
	m := flatCatalog(t).Matrices[0]

	got, ok := ResolvePrice(m, "", 1000, m.Breakpoints, ResolveOptions{ScaleAboveMax: true})
	require.True(t, ok)
	assertMoney(t, "120", got)
}

func TestResolvePrice_BoundaryExactness(t *testing.T) {
	bps := []float64{0.5, 2.5, 10, 100}
	stored := []string{"3.33", "7.77", "19.01", "123.45"}

	var rows []catalog.PriceRow
	for i, bp := range bps {
		rows = append(rows, catalog.PriceRow{MatrixID: "1", AttributeKey: "5:12", Breakpoint: bp, Price: dec(stored[i])})
	}
	cat := buildCatalog(t, catalog.Globals{},
		[]catalog.MatrixRow{{ID: "1", Kind: catalog.KindBase, Breakpoints: bps}}, rows, nil)
	m := cat.Matrices[0]

	for i, bp := range bps {
		for _, opts := range []ResolveOptions{{}, {ScaleBelowMin: true, ScaleAboveMax: true}} {
			got, ok := ResolvePrice(m, "5:12", bp, m.Breakpoints, opts)
			require.True(t, ok)
			assertMoney(t, stored[i], got)
		}
	}
}

func TestResolvePrice_InterpolationIsMonotonicAndLinear(t *testing.T) {
	m := flatCatalog(t).Matrices[0]

	prev := decimal.Zero
	for u := 100; u <= 500; u++ {
		got, ok := ResolvePrice(m, "", float64(u), m.Breakpoints, ResolveOptions{})
		require.True(t, ok)
		assert.True(t, got.GreaterThanOrEqual(prev), "price dropped at %d", u)

		want := dec("20").Add(dec("0.1").Mul(decimal.NewFromInt(int64(u - 100))))
		assertMoney(t, want.String(), got)
		prev = got
	}
}

func TestResolvePrice_Unavailable(t *testing.T) {
	m := flatCatalog(t).Matrices[0]

	_, ok := ResolvePrice(m, "9:9", 300, m.Breakpoints, ResolveOptions{})
	assert.False(t, ok, "unknown key")

	_, ok = ResolvePrice(m, "", 300, nil, ResolveOptions{})
	assert.False(t, ok, "no breakpoints")

	nan := 0.0
	_, ok = ResolvePrice(m, "", nan/nan, m.Breakpoints, ResolveOptions{})
	assert.False(t, ok, "NaN unit")

	gappy := buildCatalog(t, catalog.Globals{},
		[]catalog.MatrixRow{{ID: "1", Breakpoints: []float64{1, 5, 10}}},
		[]catalog.PriceRow{
			{MatrixID: "1", Breakpoint: 1, Price: dec("1")},
			{MatrixID: "1", Breakpoint: 10, Price: dec("10")},
		}, nil).Matrices[0]
	_, ok = ResolvePrice(gappy, "", 3, gappy.Breakpoints, ResolveOptions{})
	assert.False(t, ok, "missing upper breakpoint price")
}

func TestResolveUnitValue(t *testing.T) {
	tests := []struct {
		name   string
		m      catalog.Matrix
		g      catalog.Globals
		d      Dimensions
		want   float64
		status Status
	}{
		{
			name: "flat clamps to minimum quantity",
			m:    catalog.Matrix{NumericType: catalog.NumericFlat},
			g:    catalog.Globals{MinimumQuantity: 50},
			d:    Dimensions{Quantity: 10},
			want: 50,
		},
		{
			name: "area in square meters rounds up",
			m:    catalog.Matrix{NumericType: catalog.NumericArea, AreaUnit: "m2"},
			g:    catalog.Globals{DimensionUnit: catalog.UnitCentimeter},
			d:    Dimensions{Quantity: 1, Width: ptr(50), Height: ptr(50)},
			want: 0.3,
		},
		{
			name: "millimeters convert to centimeters first",
			m:    catalog.Matrix{NumericType: catalog.NumericArea, AreaUnit: "m2"},
			g:    catalog.Globals{DimensionUnit: catalog.UnitMillimeter},
			d:    Dimensions{Quantity: 1, Width: ptr(500), Height: ptr(500)},
			want: 0.3,
		},
		{
			name: "exact tenth is not bumped",
			m:    catalog.Matrix{NumericType: catalog.NumericArea, AreaUnit: "m2"},
			d:    Dimensions{Quantity: 1, Width: ptr(30), Height: ptr(100)},
			want: 0.3,
		},
		{
			name: "float noise rounds up like the legacy shop",
			m:    catalog.Matrix{NumericType: catalog.NumericArea, AreaUnit: "m2"},
			d:    Dimensions{Quantity: 1, Width: ptr(10), Height: ptr(300)},
			want: 0.4,
		},
		{
			name: "area in square centimeters",
			m:    catalog.Matrix{NumericType: catalog.NumericArea},
			d:    Dimensions{Quantity: 2, Width: ptr(10), Height: ptr(20)},
			want: 400,
		},
		{
			name: "perimeter",
			m:    catalog.Matrix{NumericType: catalog.NumericPerimeter, AreaUnit: "m2"},
			d:    Dimensions{Quantity: 2, Width: ptr(100), Height: ptr(50)},
			want: 6,
		},
		{
			name: "single side",
			m:    catalog.Matrix{NumericType: catalog.NumericSingleSide, AreaUnit: "m2"},
			d:    Dimensions{Quantity: 1, Width: ptr(120), Height: ptr(10)},
			want: 2.4,
		},
		{
			name:   "area without height",
			m:      catalog.Matrix{NumericType: catalog.NumericArea},
			d:      Dimensions{Quantity: 1, Width: ptr(10)},
			status: StatusUnresolved,
		},
		{
			name:   "negative width",
			m:      catalog.Matrix{NumericType: catalog.NumericArea, AreaUnit: "m2"},
			d:      Dimensions{Quantity: 1, Width: ptr(-50), Height: ptr(50)},
			status: StatusUnresolved,
		},
		{
			name:   "zero height",
			m:      catalog.Matrix{NumericType: catalog.NumericPerimeter},
			d:      Dimensions{Quantity: 1, Width: ptr(50), Height: ptr(0)},
			status: StatusUnresolved,
		},
		{
			name:   "zero quantity",
			m:      catalog.Matrix{NumericType: catalog.NumericFlat},
			d:      Dimensions{},
			status: StatusUnresolved,
		},
		{
			name:   "infinite width",
			m:      catalog.Matrix{NumericType: catalog.NumericArea},
			d:      Dimensions{Quantity: 1, Width: ptr(1e308), Height: ptr(1e308)},
			status: StatusUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.m
			got, st := ResolveUnitValue(&m, tt.g, tt.d)
			require.Equal(t, tt.status, st)
			if st == StatusOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestAggregate_AreaSubMinimumScaling(t *testing.T) {
	cat := buildCatalog(t, catalog.Globals{DimensionUnit: catalog.UnitCentimeter},
		[]catalog.MatrixRow{{ID: "1", Kind: catalog.KindBase, NumericType: catalog.NumericArea, AreaUnit: "m2", Breakpoints: []float64{1.0}}},
		[]catalog.PriceRow{{MatrixID: "1", Breakpoint: 1.0, Price: dec("10.00")}}, nil)

	res := Aggregate(cat, Selection{Quantity: 1, Width: ptr(50), Height: ptr(50)}, Modifiers{}, VATSettings{Rate: dec("0")}, Options{})
	require.Equal(t, StatusOK, res.Status, res.Reason)
	assertMoney(t, "3.00", res.Net)
	assert.InDelta(t, 0.3, res.Lines[0].UnitValue, 1e-9)
}

func TestAggregate_ModifiersOrder(t *testing.T) {
	cat := buildCatalog(t, catalog.Globals{},
		[]catalog.MatrixRow{
			{ID: "1", Kind: catalog.KindBase, Breakpoints: []float64{1}},
			{ID: "2", Kind: catalog.KindBase, Breakpoints: []float64{1}},
		},
		[]catalog.PriceRow{
			{MatrixID: "1", Breakpoint: 1, Price: dec("10.00")},
			{MatrixID: "2", Breakpoint: 1, Price: dec("5.00")},
		}, nil)

	mods := Modifiers{ProductionSpeedPercent: dec("20"), UserDiscountPercent: dec("10")}
	res := Aggregate(cat, Selection{Quantity: 1}, mods, VATSettings{Rate: dec("0"), Currency: "EUR"}, Options{})

	require.Equal(t, StatusOK, res.Status)
	assertMoney(t, "15.00", res.RawTotal)
	assertMoney(t, "16.20", res.Net)
	assertMoney(t, "16.20", res.Gross)
	assert.Equal(t, "EUR", res.Currency)
	assert.Len(t, res.Lines, 2)
}

func TestAggregate_FlatScenarioWithoutExtrapolation(t *testing.T) {
	cat := flatCatalog(t)
	vat := VATSettings{Rate: dec("0.20")}

	preview := Aggregate(cat, Selection{Quantity: 1000}, Modifiers{}, vat, Options{})
	require.Equal(t, StatusOK, preview.Status)
	assertMoney(t, "60.00", preview.Net)
	assertMoney(t, "12.00", preview.VAT)
	assertMoney(t, "72.00", preview.Gross)

	server := Aggregate(cat, Selection{Quantity: 1000}, Modifiers{}, vat, Options{ExtrapolateAboveMax: true})
	assertMoney(t, "120.00", server.Net)
}

func finishingCatalog(t *testing.T, hiddenPrices []catalog.PriceRow) *catalog.Catalog {
	prices := []catalog.PriceRow{
		{MatrixID: "F1", AttributeKey: "7:12", Breakpoint: 100, Price: dec("1.00")},
		{MatrixID: "F1", AttributeKey: "7:13", Breakpoint: 100, Price: dec("1.50")},
	}
	prices = append(prices, hiddenPrices...)

	return buildCatalog(t, catalog.Globals{},
		[]catalog.MatrixRow{
			{
				ID: "F1", Kind: catalog.KindFinishing, Breakpoints: []float64{100},
				AttributeIDs: []string{"7"}, AttributeTerms: map[string][]string{"7": {"12", "13"}},
			},
			{ID: "F2", Kind: catalog.KindFinishing, Breakpoints: []float64{100}, SortOrder: 1},
		}, prices, nil)
}

func TestResolveImplicitFinishing_UsedAttributeIsNotPicked(t *testing.T) {
	cat := finishingCatalog(t, []catalog.PriceRow{
		{MatrixID: "F2", AttributeKey: "7:12", Breakpoint: 100, Price: dec("2.00")},
		{MatrixID: "F2", AttributeKey: "7:13", Breakpoint: 100, Price: dec("3.00")},
	})
	sel := Selection{Quantity: 100, Choices: map[string]map[string]string{"F1": {"7": "12"}}}

	hidden, _ := cat.Matrix("F2")
	res := ResolveImplicitFinishing(cat, hidden, sel)
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.Empty(t, res.Pair)

	agg := Aggregate(cat, sel, Modifiers{}, VATSettings{}, Options{})
	assert.Equal(t, StatusUnavailable, agg.Status)
}

func TestResolveImplicitFinishing_SingleCandidate(t *testing.T) {
	cat := finishingCatalog(t, []catalog.PriceRow{
		{MatrixID: "F2", AttributeKey: "9:40", Breakpoint: 100, Price: dec("2.50")},
	})
	sel := Selection{Quantity: 100, Choices: map[string]map[string]string{"F1": {"7": "13"}}}

	hidden, _ := cat.Matrix("F2")
	res := ResolveImplicitFinishing(cat, hidden, sel)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "9:40", res.Pair)
	assert.Equal(t, "9:40", res.AttributeKey)
	assert.Empty(t, res.Warnings)

	agg := Aggregate(cat, sel, Modifiers{}, VATSettings{Rate: dec("0")}, Options{})
	require.Equal(t, StatusOK, agg.Status, agg.Reason)
	assertMoney(t, "4.00", agg.Net)
}

func TestResolveImplicitFinishing_AmbiguityIsReported(t *testing.T) {
	cat := finishingCatalog(t, []catalog.PriceRow{
		{MatrixID: "F2", AttributeKey: "9:41", Breakpoint: 100, Price: dec("2.00")},
		{MatrixID: "F2", AttributeKey: "9:40", Breakpoint: 100, Price: dec("2.50")},
	})
	sel := Selection{Quantity: 100, Choices: map[string]map[string]string{"F1": {"7": "12"}}}

	hidden, _ := cat.Matrix("F2")
	res := ResolveImplicitFinishing(cat, hidden, sel)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "9:40", res.Pair)
	assert.Len(t, res.Warnings, 1)
}

func TestResolveImplicitFinishing_SizePrefixedKeys(t *testing.T) {
	cat := buildCatalog(t, catalog.Globals{},
		[]catalog.MatrixRow{
			{
				ID: "B", Kind: catalog.KindBase, Breakpoints: []float64{100},
				AttributeIDs: []string{"5"}, AttributeTerms: map[string][]string{"5": {"11", "12"}},
			},
			{ID: "F", Kind: catalog.KindFinishing, Breakpoints: []float64{100}},
		},
		[]catalog.PriceRow{
			{MatrixID: "B", AttributeKey: "5:11", Breakpoint: 100, Price: dec("10")},
			{MatrixID: "B", AttributeKey: "5:12", Breakpoint: 100, Price: dec("20")},
			{MatrixID: "F", AttributeKey: "5:11-9:41", Breakpoint: 100, Price: dec("1")},
			{MatrixID: "F", AttributeKey: "5:12-9:40", Breakpoint: 100, Price: dec("2")},
		},
		map[string]catalog.Attribute{"5": {ID: "5", Name: "Format"}})

	sel := Selection{Quantity: 100, Choices: map[string]map[string]string{"B": {"5": "12"}}}
	assert.Equal(t, "5:12-", SizePrefix(cat, sel))

	hidden, _ := cat.Matrix("F")
	res := ResolveImplicitFinishing(cat, hidden, sel)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "9:40", res.Pair)
	assert.Equal(t, "5:12-9:40", res.AttributeKey)

	agg := Aggregate(cat, sel, Modifiers{}, VATSettings{Rate: dec("0")}, Options{})
	require.Equal(t, StatusOK, agg.Status, agg.Reason)
	assertMoney(t, "22", agg.Net)
}

func TestAggregate_VisibleFinishingSumsEachSelect(t *testing.T) {
	cat := buildCatalog(t, catalog.Globals{},
		[]catalog.MatrixRow{{
			ID: "F", Kind: catalog.KindFinishing, Breakpoints: []float64{1, 10},
			AttributeIDs:   []string{"7", "8"},
			AttributeTerms: map[string][]string{"7": {"12"}, "8": {"30"}},
		}},
		[]catalog.PriceRow{
			{MatrixID: "F", AttributeKey: "7:12", Breakpoint: 1, Price: dec("1")},
			{MatrixID: "F", AttributeKey: "7:12", Breakpoint: 10, Price: dec("10")},
			{MatrixID: "F", AttributeKey: "8:30", Breakpoint: 1, Price: dec("2")},
			{MatrixID: "F", AttributeKey: "8:30", Breakpoint: 10, Price: dec("20")},
		}, nil)

	sel := Selection{Quantity: 5, Choices: map[string]map[string]string{"F": {"7": "12", "8": "30"}}}
	res := Aggregate(cat, sel, Modifiers{}, VATSettings{Rate: dec("0")}, Options{})
	require.Equal(t, StatusOK, res.Status, res.Reason)
	assertMoney(t, "15", res.Net)

	delete(sel.Choices["F"], "8")
	res = Aggregate(cat, sel, Modifiers{}, VATSettings{}, Options{})
	assert.Equal(t, StatusUnresolved, res.Status)
}

func TestAggregate_UnresolvedWinsOverUnavailable(t *testing.T) {
	cat := buildCatalog(t, catalog.Globals{},
		[]catalog.MatrixRow{
			{
				ID: "1", Kind: catalog.KindBase, Breakpoints: []float64{1},
				AttributeIDs: []string{"5"}, AttributeTerms: map[string][]string{"5": {"12"}},
			},
			{
				ID: "2", Kind: catalog.KindBase, Breakpoints: []float64{1},
				AttributeIDs: []string{"6"}, AttributeTerms: map[string][]string{"6": {"20"}},
			},
		},
		[]catalog.PriceRow{{MatrixID: "2", AttributeKey: "6:20", Breakpoint: 1, Price: dec("1")}}, nil)

	res := Aggregate(cat, Selection{Quantity: 1, Choices: map[string]map[string]string{"1": {"5": "12"}}}, Modifiers{}, VATSettings{}, Options{})
	assert.Equal(t, StatusUnresolved, res.Status)
	assert.True(t, res.Net.IsZero())

	res = Aggregate(cat, Selection{Quantity: 1, Choices: map[string]map[string]string{"1": {"5": "12"}, "2": {"6": "20"}}}, Modifiers{}, VATSettings{}, Options{})
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.Contains(t, res.Reason, "matrix 1")
}

func TestAggregate_DimensionLimits(t *testing.T) {
	cat := buildCatalog(t, catalog.Globals{MaximumWidth: 100, MinimumHeight: 5},
		[]catalog.MatrixRow{{ID: "1", Kind: catalog.KindBase, NumericType: catalog.NumericArea, Breakpoints: []float64{1}}},
		[]catalog.PriceRow{{MatrixID: "1", Breakpoint: 1, Price: dec("1")}}, nil)

	res := Aggregate(cat, Selection{Quantity: 1, Width: ptr(150), Height: ptr(10)}, Modifiers{}, VATSettings{}, Options{})
	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Contains(t, res.Reason, "width")

	res = Aggregate(cat, Selection{Quantity: 1, Width: ptr(50), Height: ptr(2)}, Modifiers{}, VATSettings{}, Options{})
	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Contains(t, res.Reason, "height")

	res = Aggregate(cat, Selection{Quantity: 1}, Modifiers{}, VATSettings{}, Options{})
	assert.Equal(t, StatusUnresolved, res.Status)
}

func TestAggregate_NonPositiveDimensions(t *testing.T) {
	cat := buildCatalog(t, catalog.Globals{},
		[]catalog.MatrixRow{{ID: "1", Kind: catalog.KindBase, NumericType: catalog.NumericArea, AreaUnit: "m2", Breakpoints: []float64{1}}},
		[]catalog.PriceRow{{MatrixID: "1", Breakpoint: 1, Price: dec("10.00")}}, nil)

	for _, d := range [][2]float64{{-50, 50}, {0, 50}, {50, -1}} {
		res := Aggregate(cat, Selection{Quantity: 1, Width: ptr(d[0]), Height: ptr(d[1])}, Modifiers{}, VATSettings{Rate: dec("0.2")}, Options{})
		assert.Equal(t, StatusUnresolved, res.Status, "%v", d)
		assert.Equal(t, "width and height must be positive", res.Reason)
		assert.True(t, res.Gross.IsZero())
	}
}

func TestAggregate_SkippedRowsMakeCatalogUnavailable(t *testing.T) {
	cat, err := catalog.Build(catalog.BuildInput{
		ProductID: "test",
		Matrices: []catalog.MatrixRow{
			{ID: "1", Kind: catalog.KindBase, Breakpoints: []float64{100}},
			{ID: "2", Kind: catalog.KindFinishing, SerializedAttributes: `a:1:{i:0;s:1:"7"`, Breakpoints: []float64{100}},
		},
		Prices: []catalog.PriceRow{
			{MatrixID: "1", Breakpoint: 100, Price: dec("20")},
			{MatrixID: "2", AttributeKey: "7:12", Breakpoint: 100, Price: dec("5")},
		},
	})
	require.NoError(t, err)
	require.Len(t, cat.Matrices, 1)
	require.NotEmpty(t, cat.Skipped)

	res := Aggregate(cat, Selection{Quantity: 100, Choices: map[string]map[string]string{"2": {"7": "12"}}}, Modifiers{}, VATSettings{}, Options{})
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.Contains(t, res.Reason, "incomplete")
	assert.Len(t, res.Warnings, len(cat.Skipped))
	assert.True(t, res.Net.IsZero())
}
