package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyVAT(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		settings VATSettings
		net      string
		vat      string
		gross    string
	}{
		{"net prices", "100", VATSettings{Rate: dec("0.20")}, "100", "20", "120"},
		{"gross prices", "120", VATSettings{Rate: dec("0.20"), PricesIncludeVAT: true}, "100", "20", "120"},
		{"gross residue goes to vat", "10.00", VATSettings{Rate: dec("0.19"), PricesIncludeVAT: true}, "8.40", "1.60", "10.00"},
		{"net rounds half up", "10.005", VATSettings{Rate: dec("0.07")}, "10.01", "0.70", "10.71"},
		{"gross rounded first", "9.995", VATSettings{Rate: dec("0.20"), PricesIncludeVAT: true}, "8.33", "1.67", "10.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyVAT(dec(tt.amount), tt.settings)
			assertMoney(t, tt.net, got.Net)
			assertMoney(t, tt.vat, got.VAT)
			assertMoney(t, tt.gross, got.Gross)
		})
	}
}

func TestApplyVAT_GrossRoundTrip(t *testing.T) {
	settings := VATSettings{Rate: dec("0.20"), PricesIncludeVAT: true}
	cent := dec("0.01")

	step := int64(1)
	if testing.Short() {
		step = 97
	}
	for c := int64(0); c <= 10_000_000; c += step {
		gross := decimal.New(c, -2)
		got := ApplyVAT(gross, settings)

		require.True(t, got.Gross.Equal(gross), "gross %s changed to %s", gross, got.Gross)
		diff := got.Net.Add(got.VAT).Sub(got.Gross).Abs()
		require.True(t, diff.LessThanOrEqual(cent), "net %s + vat %s != gross %s", got.Net, got.VAT, got.Gross)
	}
}

func TestModifiers_Apply(t *testing.T) {
	m := Modifiers{ProductionSpeedPercent: dec("20"), UserDiscountPercent: dec("10")}
	assertMoney(t, "16.2", m.Apply(dec("15")))

	assertMoney(t, "15", Modifiers{}.Apply(dec("15")))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "unresolved", StatusUnresolved.String())
	assert.Equal(t, "unavailable", StatusUnavailable.String())
}
