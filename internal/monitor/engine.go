package monitor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"sjsage522/pricemonitor/internal/crawler"
	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/pkg/errors"
	"sjsage522/pricemonitor/services/store"
)

// DefaultConcurrency is how many sources are fetched at once
const DefaultConcurrency = 2

// ErrBusy is returned when a cycle is requested while another is running
var ErrBusy = stderrors.New("a monitoring cycle is already running")

// Source produces the current product records of one catalog
type Source interface {
	Name() string
	FetchProducts(ctx context.Context) ([]crawler.ProductRecord, error)
}

// Options tunes an Engine
type Options struct {
	// Threshold is the minimum absolute change in percent; DefaultThreshold when not positive
	Threshold   decimal.Decimal
	Concurrency int
	// PruneAfter drops baseline entries not observed for this long; zero keeps them forever
	PruneAfter time.Duration
	Now        func() time.Time
}

// SourceError is the failure of one source within a cycle
type SourceError struct {
	Source string
	Err    error
}

// Error implements the error interface
func (e SourceError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e SourceError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler
func (e SourceError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Source string           `json:"source"`
		Type   errors.ErrorType `json:"type,omitempty"`
		Error  string           `json:"error"`
	}{e.Source, errors.TypeOf(e.Err), e.Err.Error()})
}

// CycleResult is the outcome of one monitoring cycle
type CycleResult struct {
	ID         string                  `json:"id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Records    []crawler.ProductRecord `json:"records"`
	Changes    []PriceChangeEvent      `json:"changes"`
	Errors     []SourceError           `json:"errors"`
}

// Engine runs monitoring cycles over a fixed set of sources
type Engine struct {
	sources []Source
	store   store.BaselineStore
	opts    Options
	running atomic.Bool
}

// New creates an engine
func New(sources []Source, st store.BaselineStore, opts Options) *Engine {
	if !opts.Threshold.IsPositive() {
		opts.Threshold = DefaultThreshold
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		sources: sources,
		store:   st,
		opts:    opts,
	}
}

// Busy reports whether a cycle is running
func (e *Engine) Busy() bool {
	return e.running.Load()
}

// Sources returns the configured sources
func (e *Engine) Sources() []Source {
	return e.sources
}

// RunCycle runs one cycle over the configured sources
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	return e.RunCycleWith(ctx, e.sources)
}

// RunCycleWith fetches every source, detects price changes against the
// stored baseline and saves the new observations. Cycles never overlap:
// a call made while another is running returns ErrBusy at once.
//
// A failing source is reported in the result and does not stop the others.
// When ctx is cancelled the records and changes gathered so far are returned
// together with the context error, and the baseline is left untouched.
func (e *Engine) RunCycleWith(ctx context.Context, sources []Source) (*CycleResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.running.Store(false)

	log := logger.ForEngine()
	result := &CycleResult{
		ID:        uuid.NewString(),
		StartedAt: e.opts.Now(),
	}
	log = log.WithField("cycle", result.ID)
	log.Info().Int("sources", len(sources)).Msg("Cycle started")

	// A corrupt baseline is replaced by this cycle's save. Any other read
	// failure leaves the stored snapshot alone so retained entries survive.
	baseline, err := e.store.Load(ctx)
	keepStored := false
	if err != nil {
		keepStored = !stderrors.Is(err, store.ErrCorrupt)
		log.Warn().Err(err).Bool("keep_stored", keepStored).Msg("Baseline unreadable, comparing against an empty one")
		baseline = store.Snapshot{}
	}

	batches, failures := e.collect(ctx, sources)
	for i, src := range sources {
		if failures[i] != nil {
			result.Errors = append(result.Errors, SourceError{Source: src.Name(), Err: failures[i]})
			continue
		}
		result.Records = append(result.Records, batches[i]...)
	}

	result.Changes = DetectChanges(result.Records, baseline, e.opts.Threshold)

	if err := ctx.Err(); err != nil {
		result.FinishedAt = e.opts.Now()
		log.Warn().
			Err(err).
			Int("records", len(result.Records)).
			Int("changes", len(result.Changes)).
			Msg("Cycle cancelled, baseline not saved")
		return result, err
	}

	switch {
	case keepStored:
		log.Warn().Msg("Baseline could not be read, not overwriting it")
	case len(result.Records) > 0:
		merged := e.merge(baseline, result.Records, result.StartedAt)
		if _, err := e.store.Save(ctx, merged); err != nil {
			result.FinishedAt = e.opts.Now()
			log.Error().Err(err).Msg("Failed to save baseline")
			return result, err
		}
	default:
		log.Warn().Msg("No source returned data, baseline left as is")
	}

	result.FinishedAt = e.opts.Now()
	log.Info().
		Int("records", len(result.Records)).
		Int("changes", len(result.Changes)).
		Int("errors", len(result.Errors)).
		Dur("took", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Cycle finished")
	return result, nil
}

// collect fetches all sources with bounded parallelism. Results are indexed
// by source position so the merge order never depends on timing.
func (e *Engine) collect(ctx context.Context, sources []Source) ([][]crawler.ProductRecord, []error) {
	batches := make([][]crawler.ProductRecord, len(sources))
	failures := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)

	for i, src := range sources {
		g.Go(func() error {
			log := logger.ForSource(src.Name())
			if ctx.Err() != nil {
				log.Debug().Msg("Cycle cancelled before source started")
				return nil
			}

			records, err := src.FetchProducts(ctx)
			if err != nil {
				if ctx.Err() != nil {
					log.Debug().Err(err).Msg("Source interrupted by cancellation")
					return nil
				}
				log.Error().Err(err).Msg("Source failed")
				failures[i] = err
				return nil
			}
			batches[i] = records
			return nil
		})
	}
	_ = g.Wait()

	return batches, failures
}

// merge lays the new records over the previous baseline so products missing
// from this cycle keep their last known price
func (e *Engine) merge(baseline store.Snapshot, records []crawler.ProductRecord, now time.Time) []crawler.ProductRecord {
	previous := baseline.Records()
	merged := make([]crawler.ProductRecord, 0, len(previous)+len(records))

	pruned := 0
	for _, r := range previous {
		if e.opts.PruneAfter > 0 && !r.ObservedAt.IsZero() && now.Sub(r.ObservedAt) > e.opts.PruneAfter {
			pruned++
			continue
		}
		merged = append(merged, r)
	}
	if pruned > 0 {
		logger.ForEngine().Info().Int("pruned", pruned).Msg("Dropped stale baseline entries")
	}

	return append(merged, records...)
}

// ExportSnapshot returns the persisted baseline in its JSON form
func (e *Engine) ExportSnapshot(ctx context.Context) ([]byte, error) {
	return e.store.Export(ctx)
}

// SnapshotStats summarizes the persisted baseline
func (e *Engine) SnapshotStats(ctx context.Context) (store.Stats, error) {
	return e.store.Stats(ctx)
}
