package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// VATSettings are the shop-wide tax settings.
type VATSettings struct {
	Rate             decimal.Decimal `json:"vat_rate"`
	PricesIncludeVAT bool            `json:"prices_include_vat"`
	Currency         string          `json:"currency"`
}

// Amounts are currency-rounded money figures. Net + VAT == Gross always holds.
type Amounts struct {
	Net      decimal.Decimal `json:"net"`
	VAT      decimal.Decimal `json:"vat"`
	Gross    decimal.Decimal `json:"gross"`
	Currency string          `json:"currency"`
}

// ApplyVAT splits amount into net, VAT and gross. With PricesIncludeVAT the
// amount is gross: gross is rounded first, net derived from it and the
// rounding residue lands on VAT. Otherwise the amount is net.
func ApplyVAT(amount decimal.Decimal, s VATSettings) Amounts {
	out := Amounts{Currency: s.Currency}
	if s.PricesIncludeVAT {
		out.Gross = round2(amount)
		out.Net = round2(out.Gross.Div(decimal.NewFromInt(1).Add(s.Rate)))
		out.VAT = out.Gross.Sub(out.Net)
		return out
	}

	out.Net = round2(amount)
	out.VAT = round2(out.Net.Mul(s.Rate))
	out.Gross = out.Net.Add(out.VAT)
	return out
}

// round2 rounds half up to cents.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Modifiers are percentage adjustments applied to the raw total.
type Modifiers struct {
	ProductionSpeedPercent decimal.Decimal
	UserDiscountPercent    decimal.Decimal
}

// Apply adds the production speed surcharge, then takes the discount off
// the surcharged amount.
func (m Modifiers) Apply(total decimal.Decimal) decimal.Decimal {
	total = total.Add(total.Mul(m.ProductionSpeedPercent).Div(hundred))
	total = total.Sub(total.Mul(m.UserDiscountPercent).Div(hundred))
	return total
}
