package store

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"sjsage522/pricemonitor/internal/crawler"
)

// ErrCorrupt marks a snapshot that was read but could not be decoded
var ErrCorrupt = stderrors.New("baseline snapshot is corrupt")

// BaselineStore persists the last observed price of every product
type BaselineStore interface {
	// Load returns the persisted snapshot. A missing snapshot is empty and
	// not an error; an unreadable one is empty and a persistence error.
	Load(ctx context.Context) (Snapshot, error)

	// Save replaces the persisted snapshot with one built from records
	Save(ctx context.Context, records []crawler.ProductRecord) (Snapshot, error)

	// Export returns the persisted snapshot as indented JSON
	Export(ctx context.Context) ([]byte, error)

	// Stats summarizes the persisted snapshot
	Stats(ctx context.Context) (Stats, error)
}

// BaselineEntry is the last known state of one product
type BaselineEntry struct {
	Name        string
	Price       decimal.Decimal
	Link        string
	Source      string
	LastUpdated time.Time
}

// Snapshot maps product keys to their baseline entries
type Snapshot map[string]BaselineEntry

// Stats summarizes a snapshot
type Stats struct {
	Count       int        `json:"count"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	ByteSize    int64      `json:"byte_size"`
}

// Naive layouts cover snapshots written without a zone offset
var lastUpdatedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

type entryJSON struct {
	Name        string      `json:"name"`
	Price       json.Number `json:"price"`
	Link        string      `json:"link"`
	Source      string      `json:"source,omitempty"`
	LastUpdated string      `json:"last_updated"`
}

// MarshalJSON writes the price as a bare JSON number and the time in UTC
func (e BaselineEntry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		Name:   e.Name,
		Price:  json.Number(e.Price.String()),
		Link:   e.Link,
		Source: e.Source,
	}
	if !e.LastUpdated.IsZero() {
		out.LastUpdated = e.LastUpdated.UTC().Format(time.RFC3339Nano)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (e *BaselineEntry) UnmarshalJSON(data []byte) error {
	var in entryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	price := decimal.Zero
	if in.Price != "" {
		p, err := decimal.NewFromString(in.Price.String())
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", in.Price, err)
		}
		price = p
	}

	var updated time.Time
	if in.LastUpdated != "" {
		t, err := parseLastUpdated(in.LastUpdated)
		if err != nil {
			return err
		}
		updated = t
	}

	*e = BaselineEntry{
		Name:        in.Name,
		Price:       price,
		Link:        in.Link,
		Source:      in.Source,
		LastUpdated: updated,
	}
	return nil
}

func parseLastUpdated(value string) (time.Time, error) {
	for _, layout := range lastUpdatedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid last_updated %q", value)
}

// Record converts the entry back into a product record under key
func (e BaselineEntry) Record(key string) crawler.ProductRecord {
	return crawler.ProductRecord{
		Key:        key,
		Name:       e.Name,
		Price:      e.Price,
		Link:       e.Link,
		Source:     e.Source,
		ObservedAt: e.LastUpdated,
	}
}

// BuildSnapshot indexes records by key. Later records win over earlier ones
// with the same key; records without a positive price are dropped.
func BuildSnapshot(records []crawler.ProductRecord, now time.Time) Snapshot {
	snap := make(Snapshot, len(records))
	for _, r := range records {
		if !r.Price.IsPositive() {
			continue
		}
		updated := r.ObservedAt
		if updated.IsZero() {
			updated = now
		}
		snap[r.Key] = BaselineEntry{
			Name:        r.Name,
			Price:       r.Price,
			Link:        r.Link,
			Source:      r.Source,
			LastUpdated: updated.UTC(),
		}
	}
	return snap
}

// Keys returns the snapshot keys in sorted order
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Records returns one record per entry, ordered by key
func (s Snapshot) Records() []crawler.ProductRecord {
	records := make([]crawler.ProductRecord, 0, len(s))
	for _, k := range s.Keys() {
		records = append(records, s[k].Record(k))
	}
	return records
}

// Stats summarizes the snapshot; byteSize is the persisted size
func (s Snapshot) Stats(byteSize int64) Stats {
	stats := Stats{Count: len(s), ByteSize: byteSize}
	for _, e := range s {
		if e.LastUpdated.IsZero() {
			continue
		}
		if stats.LastUpdated == nil || e.LastUpdated.After(*stats.LastUpdated) {
			t := e.LastUpdated
			stats.LastUpdated = &t
		}
	}
	return stats
}

// Encode renders the snapshot as indented JSON with keys in sorted order
func (s Snapshot) Encode() ([]byte, error) {
	if s == nil {
		s = Snapshot{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot parses a JSON snapshot. Empty input is an empty snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Snapshot{}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}
