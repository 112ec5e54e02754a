package crawler

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxNameLength bounds product names kept in records and the baseline
const MaxNameLength = 100

// ProductRecord is one product observed on a catalog page at one point in time
type ProductRecord struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Link       string          `json:"link,omitempty"`
	Source     string          `json:"source"`
	ObservedAt time.Time       `json:"observed_at"`
}

// RawCard is what the extractor resolved from a single product card
type RawCard struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Link  string
}

// FieldSelectors holds the per-field sub-selector cascades tried inside a card
type FieldSelectors struct {
	Name  []string
	Price []string
	Link  []string
	// IDAttributes are read from the card element itself, in order
	IDAttributes []string
}

// SourceConfig binds one catalog listing to its selector cascade and fetch policy
type SourceConfig struct {
	Name       string
	BaseURL    string
	ListingURL string
	// KeyPrefix namespaces product keys when several sources share a baseline
	KeyPrefix string
	Cascade   []CardStrategy
	// Fallback is tried only when no strategy in Cascade matches
	Fallback CardStrategy
	Fields   FieldSelectors
	MaxCards int
	Fetch    FetchOptions
}

// DefaultFieldSelectors returns the sub-selectors that work on most catalog markup
func DefaultFieldSelectors() FieldSelectors {
	return FieldSelectors{
		Name:         []string{".item-name", ".product-name", ".name", "h3", "h4"},
		Price:        []string{".price", ".item-price", ".product-price", "[data-price]"},
		Link:         []string{"a[href]"},
		IDAttributes: []string{"data-product-id", "data-id", "id"},
	}
}
