package monitor

import (
	"github.com/shopspring/decimal"

	"sjsage522/pricemonitor/internal/crawler"
	"sjsage522/pricemonitor/services/store"
)

// DefaultThreshold is the smallest absolute percentage move reported
var DefaultThreshold = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// PriceChangeEvent reports a product whose price moved past the threshold
type PriceChangeEvent struct {
	Key           string          `json:"key"`
	Name          string          `json:"name"`
	Source        string          `json:"source,omitempty"`
	Link          string          `json:"link,omitempty"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// DetectChanges compares records against the baseline and returns one event
// per record whose price moved by at least threshold percent, in record
// order. Products missing from the baseline, or recorded there with a
// non-positive price, have nothing to compare against and never emit.
func DetectChanges(records []crawler.ProductRecord, baseline store.Snapshot, threshold decimal.Decimal) []PriceChangeEvent {
	var changes []PriceChangeEvent
	for _, r := range records {
		prev, ok := baseline[r.Key]
		if !ok || !prev.Price.IsPositive() {
			continue
		}

		pct := ChangePercent(prev.Price, r.Price)
		if pct.Abs().LessThan(threshold) {
			continue
		}

		changes = append(changes, PriceChangeEvent{
			Key:           r.Key,
			Name:          r.Name,
			Source:        r.Source,
			Link:          r.Link,
			PreviousPrice: prev.Price,
			CurrentPrice:  r.Price,
			ChangePercent: pct,
		})
	}
	return changes
}

// ChangePercent returns (current - previous) / previous * 100
func ChangePercent(previous, current decimal.Decimal) decimal.Decimal {
	return current.Sub(previous).Div(previous).Mul(hundred)
}
