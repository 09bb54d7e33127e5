package pricing

import (
	"fmt"
	"sort"
	"strings"

	"printshop-pricing/internal/pricing/catalog"
)

// Selection is the live user input for one product.
type Selection struct {
	Quantity int
	Width    *float64
	Height   *float64
	// Choices maps matrix id -> attribute id -> option value.
	Choices map[string]map[string]string
}

func (s Selection) dimensions() Dimensions {
	return Dimensions{Quantity: s.Quantity, Width: s.Width, Height: s.Height}
}

func (s Selection) choice(matrixID, attributeID string) (string, bool) {
	v, ok := s.Choices[matrixID][attributeID]
	return v, ok && v != ""
}

// SizePrefix returns "<sizeAttributeId>:<value>-" when finishing prices of
// the product are keyed by the selected base size, and "" otherwise.
func SizePrefix(cat *catalog.Catalog, sel Selection) string {
	prefix := ""
	for _, base := range cat.Base() {
		for _, s := range base.Selects {
			if !s.IsSizeSelector {
				continue
			}
			if v, ok := sel.choice(base.ID, s.AttributeID); ok {
				prefix = catalog.Pair(s.AttributeID, v) + "-"
			}
			break
		}
		if prefix != "" {
			break
		}
	}
	if prefix == "" {
		return ""
	}
	for _, k := range cat.FinishingPriceKeys() {
		if strings.HasPrefix(k, prefix) {
			return prefix
		}
	}
	return ""
}

// ImplicitResult is the inferred price key of a finishing matrix without
// visible selects.
type ImplicitResult struct {
	Status Status
	// Pair is the inferred "attributeId:termId".
	Pair string
	// AttributeKey is Pair with the size prefix applied, ready for ResolvePrice.
	AttributeKey string
	Warnings     []string
}

// ResolveImplicitFinishing infers the price key of hidden, a finishing
// matrix with no selects. The inferred pair is the first finishing price-key
// pair, in sorted order, that is neither selected nor bound to an attribute
// of a visible finishing select. The rule assumes one hidden step per
// product; anything that makes it ambiguous is reported as a warning.
func ResolveImplicitFinishing(cat *catalog.Catalog, hidden *catalog.Matrix, sel Selection) ImplicitResult {
	var res ImplicitResult

	usedAttributes := make(map[string]struct{})
	usedPairs := make(map[string]struct{})
	hiddenCount := 0
	for _, m := range cat.Finishing() {
		if !m.HasSelects() {
			hiddenCount++
			continue
		}
		for _, s := range m.Selects {
			usedAttributes[s.AttributeID] = struct{}{}
			if v, ok := sel.choice(m.ID, s.AttributeID); ok {
				usedPairs[catalog.Pair(s.AttributeID, v)] = struct{}{}
			}
		}
	}
	if hiddenCount > 1 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d finishing matrices without selects share one inference rule", hiddenCount))
	}

	prefix := SizePrefix(cat, sel)

	seen := make(map[string]struct{})
	var candidates []string
	for _, k := range cat.FinishingPriceKeys() {
		rest := k
		if prefix != "" {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			rest = strings.TrimPrefix(k, prefix)
		}
		pair, _, _ := strings.Cut(rest, "-")
		if !strings.Contains(pair, ":") {
			continue
		}
		if _, ok := usedPairs[pair]; ok {
			continue
		}
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		candidates = append(candidates, pair)
	}
	sort.Strings(candidates)

	var qualifying []string
	for _, c := range candidates {
		attr, _, _ := strings.Cut(c, ":")
		if _, ok := usedAttributes[attr]; ok {
			continue
		}
		qualifying = append(qualifying, c)
	}

	if len(qualifying) == 0 {
		res.Status = StatusUnavailable
		return res
	}
	if len(qualifying) > 1 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("matrix %s: %d candidate pairs for hidden finishing %v, using %s",
			hidden.ID, len(qualifying), qualifying, qualifying[0]))
	}

	res.Status = StatusOK
	res.Pair = qualifying[0]
	res.AttributeKey = prefix + qualifying[0]
	return res
}
