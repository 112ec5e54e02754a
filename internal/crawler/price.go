package crawler

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizePrice converts raw price text such as "12 990 р." or "1 299,99 руб."
// into a number. A zero result means the text held no usable price.
//
// Only digits and '.'/',' survive; whitespace thousand separators disappear
// with everything else. Commas are read as decimal points. When more than one
// separator remains, only the first two numeric groups are kept.
func NormalizePrice(raw string) decimal.Decimal {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteByte('.')
		}
	}

	var groups []string
	for _, g := range strings.Split(b.String(), ".") {
		if g != "" {
			groups = append(groups, g)
		}
	}

	var cleaned string
	switch len(groups) {
	case 0:
		return decimal.Zero
	case 1:
		cleaned = groups[0]
	default:
		cleaned = groups[0] + "." + groups[1]
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil || price.IsNegative() {
		return decimal.Zero
	}
	return price
}
