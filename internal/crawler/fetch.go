package crawler

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"sjsage522/pricemonitor/helpers"
	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/pkg/errors"
)

// FetchOptions is the retry and soft-block policy of one source
type FetchOptions struct {
	MaxRetries int
	// MinDelay and MaxDelay bound the randomized pause between attempts
	MinDelay time.Duration
	MaxDelay time.Duration
	// Timeout applies to a single attempt
	Timeout    time.Duration
	UserAgents []string
	// BlockStatusCodes are answered as soft blocks rather than transport errors
	BlockStatusCodes []int
	// BlockMarkers are matched case-insensitively against the page body
	BlockMarkers []string
	// RequestsPerMinute spaces out requests of one source, retries included; zero disables pacing
	RequestsPerMinute int
}

// DefaultFetchOptions returns the policy used when a source sets none
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		MaxRetries:       3,
		MinDelay:         2 * time.Second,
		MaxDelay:         5 * time.Second,
		Timeout:          15 * time.Second,
		UserAgents:       helpers.DefaultUserAgents,
		BlockStatusCodes: []int{403, 429, 444},
		BlockMarkers: []string{
			"access denied",
			"checking your browser",
			"attention required! | cloudflare",
			"cf-browser-verification",
			"just a moment...",
		},
	}
}

// Fetcher retrieves listing pages, retrying transport failures and soft blocks
type Fetcher struct {
	source  string
	opts    FetchOptions
	client  *resty.Client
	next    atomic.Uint64
	limiter *rate.Limiter
	markers [][]byte
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher for the named source
func NewFetcher(source string, opts FetchOptions) *Fetcher {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = helpers.DefaultUserAgents
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetLogger(restyLogger{source: source})

	markers := make([][]byte, 0, len(opts.BlockMarkers))
	for _, m := range opts.BlockMarkers {
		if m != "" {
			markers = append(markers, bytes.ToLower([]byte(m)))
		}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &Fetcher{
		source:  source,
		opts:    opts,
		client:  client,
		limiter: limiter,
		markers: markers,
		sleep:   sleepContext,
	}
}

// Fetch returns the UTF-8 body of url. Transport errors and soft blocks are
// retried up to MaxRetries attempts with a fresh identity each time; the last
// error is returned once attempts run out. Cancellation aborts immediately
// and returns the context error.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	log := logger.ForSource(f.source)

	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := f.pace(ctx); err != nil {
			return nil, err
		}

		body, err := f.attempt(ctx, url, f.nextUserAgent())
		if err == nil {
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("Fetch succeeded after retry")
			}
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		if attempt == f.opts.MaxRetries {
			break
		}

		delay := f.delay()
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Fetch failed, retrying")

		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, errors.New(
		errors.TypeOf(lastErr),
		f.source,
		fmt.Sprintf("giving up after %d attempts", f.opts.MaxRetries),
		lastErr,
	)
}

// pace waits for the source's request slot. A wait that cannot finish before
// the context ends fails at once and is not retried.
func (f *Fetcher) pace(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.NewTransport(f.source, "request slot is past the deadline", err)
	}
	return nil
}

func (f *Fetcher) attempt(ctx context.Context, url, userAgent string) ([]byte, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeaders(helpers.BrowserHeaders(userAgent)).
		Get(url)
	if err != nil {
		return nil, errors.NewTransport(f.source, "request failed", err)
	}

	status := resp.StatusCode()
	if f.isBlockStatus(status) {
		return nil, errors.NewBlocked(f.source, fmt.Sprintf("blocking status %d", status))
	}

	body, decodeErr := helpers.DecodeUTF8(resp.Body(), resp.Header().Get("Content-Type"))
	if decodeErr != nil {
		body = resp.Body()
	}

	// Challenge pages are often served with 5xx codes
	if marker := f.blockMarker(body); marker != "" {
		return nil, errors.NewBlocked(f.source, fmt.Sprintf("status %d page contains block marker %q", status, marker))
	}
	if status < 200 || status >= 300 {
		return nil, errors.NewTransport(f.source, fmt.Sprintf("unexpected status %d", status), nil)
	}
	if decodeErr != nil {
		return nil, errors.NewTransport(f.source, "could not decode body", decodeErr)
	}

	return body, nil
}

func (f *Fetcher) isBlockStatus(status int) bool {
	for _, code := range f.opts.BlockStatusCodes {
		if code == status {
			return true
		}
	}
	return false
}

func (f *Fetcher) blockMarker(body []byte) string {
	if len(f.markers) == 0 {
		return ""
	}
	lower := bytes.ToLower(body)
	for _, m := range f.markers {
		if bytes.Contains(lower, m) {
			return string(m)
		}
	}
	return ""
}

// nextUserAgent rotates through the configured identities round-robin
func (f *Fetcher) nextUserAgent() string {
	i := f.next.Add(1) - 1
	return f.opts.UserAgents[i%uint64(len(f.opts.UserAgents))]
}

func (f *Fetcher) delay() time.Duration {
	span := f.opts.MaxDelay - f.opts.MinDelay
	if span <= 0 {
		return f.opts.MinDelay
	}
	return f.opts.MinDelay + rand.N(span+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// restyLogger routes resty's internal messages into the source logger
type restyLogger struct {
	source string
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	logger.ForSource(l.source).Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	logger.ForSource(l.source).Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	logger.ForSource(l.source).Debug().Msgf(format, v...)
}
