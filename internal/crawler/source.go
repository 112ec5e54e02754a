package crawler

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/pkg/errors"
	"sjsage522/pricemonitor/services/cache"
)

// PageFetcher retrieves the UTF-8 body of a listing page
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Source turns one catalog listing into product records
type Source struct {
	cfg      SourceConfig
	fetcher  PageFetcher
	cacheSvc cache.CacheService
	cooldown time.Duration
	now      func() time.Time
}

// NewSource creates a source. When cacheSvc is set, a source that ends up
// blocked is not fetched again until cooldown has passed.
func NewSource(cfg SourceConfig, cacheSvc cache.CacheService, cooldown time.Duration) *Source {
	if cfg.Fetch.MaxRetries == 0 {
		cfg.Fetch = DefaultFetchOptions()
	}

	return &Source{
		cfg:      cfg,
		fetcher:  NewFetcher(cfg.Name, cfg.Fetch),
		cacheSvc: cacheSvc,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return s.cfg.Name
}

// Config returns the source configuration
func (s *Source) Config() SourceConfig {
	return s.cfg
}

func (s *Source) cooldownKey() string {
	return s.cfg.Name + "_blocked"
}

// FetchProducts fetches the listing page and returns one record per resolved card
func (s *Source) FetchProducts(ctx context.Context) ([]ProductRecord, error) {
	log := logger.ForSource(s.cfg.Name)

	if s.inCooldown() {
		return nil, errors.NewBlocked(s.cfg.Name, fmt.Sprintf("in cooldown for up to %s after a block", s.cooldown))
	}

	body, err := s.fetcher.Fetch(ctx, s.cfg.ListingURL)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeBlocked) {
			s.startCooldown()
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewExtraction(s.cfg.Name, "could not parse listing page: "+err.Error())
	}

	cards := ExtractCards(doc, s.cfg)
	observedAt := s.now().UTC()

	records := make([]ProductRecord, 0, len(cards))
	for _, card := range cards {
		records = append(records, ProductRecord{
			Key:        s.key(card.ID),
			Name:       card.Name,
			Price:      card.Price,
			Link:       card.Link,
			Source:     s.cfg.Name,
			ObservedAt: observedAt,
		})
	}

	log.Info().Int("products", len(records)).Msg("Listing processed")
	return records, nil
}

func (s *Source) key(id string) string {
	if s.cfg.KeyPrefix == "" {
		return id
	}
	return s.cfg.KeyPrefix + ":" + id
}

func (s *Source) inCooldown() bool {
	if s.cacheSvc == nil || s.cooldown <= 0 {
		return false
	}
	_, err := s.cacheSvc.Get(s.cooldownKey())
	if err != nil && !stderrors.Is(err, cache.ErrCacheMiss) {
		logger.ForSource(s.cfg.Name).Warn().Err(err).Msg("Could not read block cooldown")
	}
	return err == nil
}

func (s *Source) startCooldown() {
	if s.cacheSvc == nil || s.cooldown <= 0 {
		return
	}

	seconds := strconv.Itoa(int(s.cooldown / time.Second))
	if err := s.cacheSvc.Set(s.cooldownKey(), []byte(seconds), s.cooldown); err != nil {
		logger.ForSource(s.cfg.Name).Warn().Err(err).Msg("Could not record block cooldown")
	}
}
