package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sjsage522/pricemonitor/pkg/errors"
)

// SourceSpec describes one catalog listing as written in the sources file
type SourceSpec struct {
	Name             string    `yaml:"name"`
	BaseURL          string    `yaml:"base_url"`
	ListingURL       string    `yaml:"listing_url"`
	KeyPrefix        string    `yaml:"key_prefix"`
	Cards            []string  `yaml:"cards"`
	FallbackKeywords []string  `yaml:"fallback_keywords"`
	NameSelectors    []string  `yaml:"name_selectors"`
	PriceSelectors   []string  `yaml:"price_selectors"`
	LinkSelectors    []string  `yaml:"link_selectors"`
	IDAttributes     []string  `yaml:"id_attributes"`
	MaxCards         int       `yaml:"max_cards"`
	Fetch            FetchSpec `yaml:"fetch"`
}

// FetchSpec overrides fetcher settings for a single source; zero values keep the global defaults
type FetchSpec struct {
	MaxRetries        int      `yaml:"max_retries"`
	MinDelaySeconds   int      `yaml:"min_delay_seconds"`
	MaxDelaySeconds   int      `yaml:"max_delay_seconds"`
	TimeoutSeconds    int      `yaml:"timeout_seconds"`
	BlockStatusCodes  []int    `yaml:"block_status_codes"`
	BlockMarkers      []string `yaml:"block_markers"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
}

type sourcesFile struct {
	Sources []SourceSpec `yaml:"sources"`
}

// LoadSources reads source definitions from a YAML file
func LoadSources(path string) ([]SourceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfiguration("failed to read sources file", err)
	}
	return ParseSources(data)
}

// ParseSources decodes and validates YAML source definitions
func ParseSources(data []byte) ([]SourceSpec, error) {
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.NewConfiguration("failed to parse sources file", err)
	}

	seen := make(map[string]bool, len(file.Sources))
	for i, s := range file.Sources {
		if s.Name == "" || s.ListingURL == "" {
			return nil, errors.NewConfiguration(fmt.Sprintf("source #%d needs name and listing_url", i+1), nil)
		}
		if seen[s.Name] {
			return nil, errors.NewConfiguration(fmt.Sprintf("duplicate source name %q", s.Name), nil)
		}
		seen[s.Name] = true
	}
	return file.Sources, nil
}
