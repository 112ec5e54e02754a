package crawler

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
)

// hashKeyLength is the number of hex characters kept from the name hash
const hashKeyLength = 10

// ResolveKey returns the card's native identifier from the first non-empty
// attribute in attrs, or a hash of name when the markup carries none.
func ResolveKey(card *goquery.Selection, attrs []string, name string) string {
	for _, attr := range attrs {
		if id, exists := card.Attr(attr); exists {
			if id = strings.TrimSpace(id); id != "" {
				return id
			}
		}
	}
	return HashName(name)
}

// HashName derives a key from a product name. xxhash is unseeded, so the same
// name maps to the same key in every process and on every run.
func HashName(name string) string {
	sum := fmt.Sprintf("%016x", xxhash.Sum64String(strings.TrimSpace(name)))
	return sum[:hashKeyLength]
}
