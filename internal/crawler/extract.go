package crawler

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"sjsage522/pricemonitor/helpers"
	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/pkg/errors"
)

// DefaultMaxCards caps how many cards are read from one listing page
const DefaultMaxCards = 20

// CardStrategy finds product cards in a listing document
type CardStrategy interface {
	// Name identifies the strategy in logs
	Name() string

	// TryExtract returns the matched cards, or false when nothing matched
	TryExtract(doc *goquery.Document) (*goquery.Selection, bool)
}

// SelectorStrategy matches cards with one CSS selector group
type SelectorStrategy struct {
	Selector string
}

// Name returns the selector group
func (s SelectorStrategy) Name() string {
	return s.Selector
}

// TryExtract implements CardStrategy
func (s SelectorStrategy) TryExtract(doc *goquery.Document) (*goquery.Selection, bool) {
	cards := doc.Find(s.Selector)
	return cards, cards.Length() > 0
}

// ClassKeywordStrategy is the last-resort heuristic: any element whose class
// contains one of the keywords. Matches are grouped by parent and the largest
// sibling group wins, which picks the repeated card element over wrappers and
// over nested ".item-name"-style children.
type ClassKeywordStrategy struct {
	Keywords []string
}

// DefaultFallbackStrategy returns the keyword heuristic used when no cascade group matches
func DefaultFallbackStrategy() ClassKeywordStrategy {
	return ClassKeywordStrategy{Keywords: []string{"item", "card", "product", "goods"}}
}

// Name implements CardStrategy
func (s ClassKeywordStrategy) Name() string {
	return "class~" + strings.Join(s.Keywords, "|")
}

func (s ClassKeywordStrategy) selector() string {
	parts := make([]string, 0, len(s.Keywords))
	for _, kw := range s.Keywords {
		parts = append(parts, fmt.Sprintf(`[class*=%q]`, kw))
	}
	return strings.Join(parts, ", ")
}

// TryExtract implements CardStrategy
func (s ClassKeywordStrategy) TryExtract(doc *goquery.Document) (*goquery.Selection, bool) {
	if len(s.Keywords) == 0 {
		return nil, false
	}

	matches := doc.Find(s.selector())
	if matches.Length() == 0 {
		return nil, false
	}

	counts := make(map[*html.Node]int)
	var best *html.Node
	matches.Each(func(_ int, el *goquery.Selection) {
		parent := elementParent(el)
		if parent == nil {
			return
		}
		counts[parent]++
		if best == nil || counts[parent] > counts[best] {
			best = parent
		}
	})
	if best == nil {
		return nil, false
	}

	cards := matches.FilterFunction(func(_ int, el *goquery.Selection) bool {
		return elementParent(el) == best
	})
	return cards, cards.Length() > 0
}

// elementParent returns the parent element of the selection's node, or nil
// for the document root
func elementParent(el *goquery.Selection) *html.Node {
	n := el.Get(0)
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}

// RunCascade tries each strategy in order and stops at the first one that
// matches; later groups are never consulted. The fallback runs only when the
// whole cascade came up empty.
func RunCascade(doc *goquery.Document, cascade []CardStrategy, fallback CardStrategy) (*goquery.Selection, string) {
	for _, strategy := range cascade {
		if cards, ok := strategy.TryExtract(doc); ok {
			return cards, strategy.Name()
		}
	}

	if fallback != nil {
		if cards, ok := fallback.TryExtract(doc); ok {
			return cards, fallback.Name()
		}
	}

	return nil, ""
}

// ExtractCards finds the product cards of a listing document and resolves
// each one. Cards that cannot be resolved are skipped.
func ExtractCards(doc *goquery.Document, cfg SourceConfig) []RawCard {
	log := logger.ForSource(cfg.Name)

	cards, strategy := RunCascade(doc, cfg.Cascade, cfg.Fallback)
	if cards == nil {
		log.Warn().Msg("No product cards matched any selector group")
		return nil
	}

	maxCards := cfg.MaxCards
	if maxCards <= 0 {
		maxCards = DefaultMaxCards
	}
	if cards.Length() > maxCards {
		cards = cards.Slice(0, maxCards)
	}

	log.Debug().
		Str("strategy", strategy).
		Int("cards", cards.Length()).
		Msg("Product cards matched")

	var result []RawCard
	cards.Each(func(i int, s *goquery.Selection) {
		card, err := parseCard(s, cfg)
		if err != nil {
			log.Debug().Err(err).Int("card", i).Msg("Skipping product card")
			return
		}
		result = append(result, card)
	})

	return result
}

// parseCard resolves name, price, link and identity of a single card
func parseCard(s *goquery.Selection, cfg SourceConfig) (RawCard, error) {
	name := firstText(s, cfg.Fields.Name, "title")
	if name == "" {
		return RawCard{}, errors.NewExtraction(cfg.Name, "card has no name")
	}

	priceText := firstText(s, cfg.Fields.Price, "data-price")
	price := NormalizePrice(priceText)
	if !price.IsPositive() {
		return RawCard{}, errors.NewExtraction(cfg.Name, fmt.Sprintf("no valid price in %q", priceText))
	}

	base := cfg.BaseURL
	if base == "" {
		base = cfg.ListingURL
	}
	link := helpers.ResolveURL(base, firstAttr(s, cfg.Fields.Link, "href"))

	return RawCard{
		ID:    ResolveKey(s, cfg.Fields.IDAttributes, name),
		Name:  helpers.Truncate(name, MaxNameLength),
		Price: price,
		Link:  link,
	}, nil
}

// firstText returns the whitespace-normalized text of the first sub-selector
// that yields any, falling back to attr on the matched element
func firstText(s *goquery.Selection, selectors []string, attr string) string {
	for _, selector := range selectors {
		el := s.Find(selector).First()
		if el.Length() == 0 {
			continue
		}

		text := strings.Join(strings.Fields(el.Text()), " ")
		if text == "" {
			if value, exists := el.Attr(attr); exists {
				text = strings.TrimSpace(value)
			}
		}
		if text != "" {
			return text
		}
	}
	return ""
}

// firstAttr returns attr of the first sub-selector match that carries a non-empty value
func firstAttr(s *goquery.Selection, selectors []string, attr string) string {
	for _, selector := range selectors {
		if value, exists := s.Find(selector).First().Attr(attr); exists {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}
