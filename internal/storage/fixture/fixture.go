// Package fixture serves pricing catalogs from a YAML file. It backs the
// offline quote CLI and engine tests.
package fixture

import (
	"context"
	"fmt"
	"os"
	"sort"

	"printshop-pricing/internal/pricing"
	"printshop-pricing/internal/pricing/catalog"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type File struct {
	Settings Settings           `yaml:"settings"`
	Products map[string]Product `yaml:"products"`
}

type Settings struct {
	VatRate          string `yaml:"vat_rate"`
	PricesIncludeVAT bool   `yaml:"prices_include_vat"`
	Currency         string `yaml:"currency"`
}

type Product struct {
	StaticPrice string               `yaml:"static_price"`
	Globals     catalog.Globals      `yaml:"globals"`
	Attributes  map[string]Attribute `yaml:"attributes"`
	Terms       map[string]string    `yaml:"terms"`
	TermOrders  map[string]float64   `yaml:"term_orders"`
	Matrices    []Matrix             `yaml:"matrices"`
}

type Attribute struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
}

// Matrix accepts both storage shapes: the serialized columns of the legacy
// matrix table or the structured lists of a pricing model.
type Matrix struct {
	ID          string `yaml:"id"`
	Kind        string `yaml:"kind"`
	NumericType int    `yaml:"numeric_type"`
	NumStyle    string `yaml:"num_style"`
	AreaUnit    string `yaml:"area_unit"`
	SortOrder   int    `yaml:"sort_order"`

	SerializedAttributes     string `yaml:"serialized_attributes"`
	SerializedAttributeTerms string `yaml:"serialized_attribute_terms"`
	SerializedBreakpoints    string `yaml:"serialized_breakpoints"`

	Attributes  []string            `yaml:"attributes"`
	Options     map[string][]string `yaml:"options"`
	Breakpoints []float64           `yaml:"breakpoints"`

	// Prices maps attribute key to breakpoint to price.
	Prices map[string]map[float64]string `yaml:"prices"`
}

// Source is an in-memory catalog source built from a fixture file.
type Source struct {
	file     File
	settings pricing.VATSettings
}

func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture.Load: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Source, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fixture.Parse: %w", err)
	}

	s := &Source{file: f}
	s.settings = pricing.VATSettings{Currency: f.Settings.Currency, PricesIncludeVAT: f.Settings.PricesIncludeVAT}
	if s.settings.Currency == "" {
		s.settings.Currency = "EUR"
	}
	if f.Settings.VatRate != "" {
		rate, err := decimal.NewFromString(f.Settings.VatRate)
		if err != nil {
			return nil, fmt.Errorf("fixture.Parse: vat_rate: %w", err)
		}
		s.settings.Rate = rate
	}

	for id, p := range f.Products {
		if p.StaticPrice != "" {
			if _, err := decimal.NewFromString(p.StaticPrice); err != nil {
				return nil, fmt.Errorf("fixture.Parse: product %s: static_price: %w", id, err)
			}
		}
		for _, m := range p.Matrices {
			if _, err := catalog.ParseKind(m.Kind); err != nil {
				return nil, fmt.Errorf("fixture.Parse: product %s: matrix %s: %w", id, m.ID, err)
			}
			for key, byBreakpoint := range m.Prices {
				for bp, raw := range byBreakpoint {
					if _, err := decimal.NewFromString(raw); err != nil {
						return nil, fmt.Errorf("fixture.Parse: product %s: matrix %s: price %q at %v: %w", id, m.ID, key, bp, err)
					}
				}
			}
		}
	}
	return s, nil
}

// Products lists the product ids in the fixture.
func (s *Source) Products() []string {
	ids := make([]string, 0, len(s.file.Products))
	for id := range s.file.Products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Source) Settings(context.Context) (pricing.VATSettings, error) {
	return s.settings, nil
}

func (s *Source) StaticPrice(_ context.Context, productID string) (decimal.Decimal, bool, error) {
	p, ok := s.file.Products[productID]
	if !ok || p.StaticPrice == "" {
		return decimal.Zero, false, nil
	}
	return decimal.RequireFromString(p.StaticPrice), true, nil
}

func (s *Source) LoadCatalog(_ context.Context, productID string) (catalog.BuildInput, error) {
	p, ok := s.file.Products[productID]
	if !ok || len(p.Matrices) == 0 {
		return catalog.BuildInput{}, catalog.ErrNoCatalog
	}

	in := catalog.BuildInput{
		ProductID:  productID,
		Globals:    p.Globals,
		Attributes: make(map[string]catalog.Attribute, len(p.Attributes)),
		Terms:      make(map[string]catalog.Term, len(p.Terms)),
		TermOrders: catalog.TermOrders(p.TermOrders),
	}
	for id, a := range p.Attributes {
		in.Attributes[id] = catalog.Attribute{ID: id, Name: a.Name, Label: a.Label}
	}
	for id, label := range p.Terms {
		in.Terms[id] = catalog.Term{ID: id, Label: label}
	}

	for _, m := range p.Matrices {
		kind, _ := catalog.ParseKind(m.Kind)
		in.Matrices = append(in.Matrices, catalog.MatrixRow{
			ID:                       m.ID,
			Kind:                     kind,
			NumericType:              catalog.NumericType(m.NumericType),
			NumStyle:                 m.NumStyle,
			AreaUnit:                 m.AreaUnit,
			SortOrder:                m.SortOrder,
			SerializedAttributes:     m.SerializedAttributes,
			SerializedAttributeTerms: m.SerializedAttributeTerms,
			SerializedBreakpoints:    m.SerializedBreakpoints,
			AttributeIDs:             m.Attributes,
			AttributeTerms:           m.Options,
			Breakpoints:              m.Breakpoints,
		})
		for key, byBreakpoint := range m.Prices {
			for bp, raw := range byBreakpoint {
				in.Prices = append(in.Prices, catalog.PriceRow{
					MatrixID:     m.ID,
					AttributeKey: key,
					Breakpoint:   bp,
					Price:        decimal.RequireFromString(raw),
				})
			}
		}
	}
	return in, nil
}
