package pricing

import types "github.com/yungbote/quoteflow-backend/internal/domain"

const DefaultContingencyPercent = 10

type Totals struct {
	TotalLow           float64 `json:"total_low"`
	TotalHigh          float64 `json:"total_high"`
	ContingencyPercent float64 `json:"contingency_percent"`
	Contingency        float64 `json:"contingency"`
	GrandLow           float64 `json:"grand_low"`
	GrandHigh          float64 `json:"grand_high"`
	TaxPercent         float64 `json:"tax_percent"`
	TaxLow             float64 `json:"tax_low"`
	TaxHigh            float64 `json:"tax_high"`
}

// ComputeTotals sums the items and adds contingency (a share of the low
// total) to both ends of the range. Tax is reported separately on the grand
// range and never folded into it.
func ComputeTotals(items []types.QuoteItem, contingencyPercent, taxPercent float64) Totals {
	t := Totals{ContingencyPercent: contingencyPercent, TaxPercent: taxPercent}
	for _, it := range items {
		t.TotalLow += it.SubtotalLow
		t.TotalHigh += it.SubtotalHigh
	}
	t.Contingency = t.TotalLow * contingencyPercent / 100
	t.GrandLow = t.TotalLow + t.Contingency
	t.GrandHigh = t.TotalHigh + t.Contingency
	t.TaxLow = t.GrandLow * taxPercent / 100
	t.TaxHigh = t.GrandHigh * taxPercent / 100
	return t
}
