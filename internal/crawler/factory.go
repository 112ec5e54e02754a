package crawler

import (
	"time"

	"sjsage522/pricemonitor/config"
	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/services/cache"
)

// ETMSourceName is the name of the built-in source
const ETMSourceName = "etm"

// CreateSources builds one source per definition, or the built-in ETM source when
// no specs are given
func CreateSources(cfg *config.Config, specs []config.SourceSpec, cacheSvc cache.CacheService) []*Source {
	defaults := FetchOptionsFromConfig(cfg)

	var configs []SourceConfig
	if len(specs) == 0 {
		etm := ETMSourceConfig(cfg.ETMCatalogURL)
		etm.Fetch = defaults
		etm.MaxCards = cfg.MaxCardsPerSource
		configs = append(configs, etm)
	}
	for _, spec := range specs {
		configs = append(configs, SourceConfigFromSpec(spec, defaults, cfg.MaxCardsPerSource))
	}

	sources := make([]*Source, 0, len(configs))
	for _, sc := range configs {
		sources = append(sources, NewSource(sc, cacheSvc, cfg.BlockCooldown))
		logger.ForSource(sc.Name).Info().
			Str("url", sc.ListingURL).
			Int("cascade", len(sc.Cascade)).
			Msg("Source created")
	}

	logger.Info("Created %d sources", len(sources))
	return sources
}

// ETMSourceConfig returns the selector cascade for etm.ru catalog listings
func ETMSourceConfig(listingURL string) SourceConfig {
	return SourceConfig{
		Name:       ETMSourceName,
		BaseURL:    "https://www.etm.ru",
		ListingURL: listingURL,
		Cascade: []CardStrategy{
			SelectorStrategy{Selector: ".catalog-item, .product-card, .item"},
			SelectorStrategy{Selector: "[data-product-id], .js-product"},
		},
		Fallback: DefaultFallbackStrategy(),
		Fields:   DefaultFieldSelectors(),
		MaxCards: DefaultMaxCards,
		Fetch:    DefaultFetchOptions(),
	}
}

// FetchOptionsFromConfig derives the global fetch policy from the environment configuration
func FetchOptionsFromConfig(cfg *config.Config) FetchOptions {
	opts := DefaultFetchOptions()
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryMinDelay > 0 {
		opts.MinDelay = cfg.RetryMinDelay
	}
	if cfg.RetryMaxDelay > 0 {
		opts.MaxDelay = cfg.RetryMaxDelay
	}
	if cfg.FetchTimeout > 0 {
		opts.Timeout = cfg.FetchTimeout
	}
	if len(cfg.UserAgents) > 0 {
		opts.UserAgents = cfg.UserAgents
	}
	if cfg.RequestsPerMinute > 0 {
		opts.RequestsPerMinute = cfg.RequestsPerMinute
	}
	return opts
}

// SourceConfigFromSpec converts a sources-file entry, filling every unset
// field from the defaults
func SourceConfigFromSpec(spec config.SourceSpec, defaults FetchOptions, maxCards int) SourceConfig {
	sc := SourceConfig{
		Name:       spec.Name,
		BaseURL:    spec.BaseURL,
		ListingURL: spec.ListingURL,
		KeyPrefix:  spec.KeyPrefix,
		Fallback:   DefaultFallbackStrategy(),
		Fields:     DefaultFieldSelectors(),
		MaxCards:   maxCards,
		Fetch:      defaults,
	}

	for _, selector := range spec.Cards {
		sc.Cascade = append(sc.Cascade, SelectorStrategy{Selector: selector})
	}
	if len(spec.FallbackKeywords) > 0 {
		sc.Fallback = ClassKeywordStrategy{Keywords: spec.FallbackKeywords}
	}

	if len(spec.NameSelectors) > 0 {
		sc.Fields.Name = spec.NameSelectors
	}
	if len(spec.PriceSelectors) > 0 {
		sc.Fields.Price = spec.PriceSelectors
	}
	if len(spec.LinkSelectors) > 0 {
		sc.Fields.Link = spec.LinkSelectors
	}
	if len(spec.IDAttributes) > 0 {
		sc.Fields.IDAttributes = spec.IDAttributes
	}
	if spec.MaxCards > 0 {
		sc.MaxCards = spec.MaxCards
	}

	f := spec.Fetch
	if f.MaxRetries > 0 {
		sc.Fetch.MaxRetries = f.MaxRetries
	}
	if f.MinDelaySeconds > 0 {
		sc.Fetch.MinDelay = time.Duration(f.MinDelaySeconds) * time.Second
	}
	if f.MaxDelaySeconds > 0 {
		sc.Fetch.MaxDelay = time.Duration(f.MaxDelaySeconds) * time.Second
	}
	if f.TimeoutSeconds > 0 {
		sc.Fetch.Timeout = time.Duration(f.TimeoutSeconds) * time.Second
	}
	if len(f.BlockStatusCodes) > 0 {
		sc.Fetch.BlockStatusCodes = f.BlockStatusCodes
	}
	if len(f.BlockMarkers) > 0 {
		sc.Fetch.BlockMarkers = f.BlockMarkers
	}
	if f.RequestsPerMinute > 0 {
		sc.Fetch.RequestsPerMinute = f.RequestsPerMinute
	}

	return sc
}
