package crawler

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
)

func TestHashNameIsDeterministic(t *testing.T) {
	first := HashName("Heater X")
	second := HashName("Heater X")

	assert.Equal(t, first, second)
	assert.Len(t, first, 10)
	assert.NotEqual(t, first, HashName("Heater Y"))
	assert.Equal(t, first, HashName("  Heater X  "))
}

func TestHashNameIsStableAcrossProcesses(t *testing.T) {
	// A change here breaks every persisted baseline
	assert.Equal(t, "fe4dc2b5a5", HashName("Heater X"))
	assert.Equal(t, "cb92d0a4fe", HashName("Heater A"))
}

func TestResolveKey(t *testing.T) {
	html := `
		<div class="card" data-product-id="P-100" id="el-1">A</div>
		<div class="card" data-product-id="" id="el-2">B</div>
		<div class="card">C</div>
	`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	assert.NoError(t, err)

	attrs := DefaultFieldSelectors().IDAttributes
	cards := doc.Find("div.card")

	assert.Equal(t, "P-100", ResolveKey(cards.Eq(0), attrs, "A"))
	assert.Equal(t, "el-2", ResolveKey(cards.Eq(1), attrs, "B"))
	assert.Equal(t, HashName("C"), ResolveKey(cards.Eq(2), attrs, "C"))
}
