// Package slots serves upstream slot availability through a browser session,
// caching each date for a short time and collapsing concurrent requests for
// the same date into a single upstream fetch.
package slots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"padelslots-backend/lib/browser"
	"padelslots-backend/lib/chrono"
	"padelslots-backend/lib/scrapers/eversports"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("services/slots")

var meter = otel.Meter("services/slots")
var cacheHitCounter, _ = meter.Int64Counter("slots.cache_hits")
var coalescedCounter, _ = meter.Int64Counter("slots.coalesced")
var fetchCounter, _ = meter.Int64Counter("slots.upstream_fetches")
var failureCounter, _ = meter.Int64Counter("slots.upstream_failures")

const (
	DefaultTTL          = time.Second * 10
	DefaultFetchTimeout = time.Second * 45
	DefaultCacheSize    = 1024
)

type Options struct {
	Launcher browser.Launcher
	Endpoint eversports.Endpoint
	// UserAgent defaults to eversports.DefaultUserAgent.
	UserAgent string
	// Policy defaults to browser.DefaultResourcePolicy.
	Policy       browser.ResourcePolicy
	TTL          time.Duration
	FetchTimeout time.Duration
	// CacheSize bounds the number of dates kept, stale entries are only
	// dropped when they are overwritten or pushed out by newer dates.
	CacheSize int
	Time      chrono.TimeAPI
}

type cacheEntry struct {
	value     json.RawMessage
	fetchedAt time.Time
}

// call is a fetch that callers can wait on, value and err are only
// written before done is closed.
type call struct {
	done  chan struct{}
	value json.RawMessage
	err   error
	// waiters counts callers that joined after the fetch started, guarded by Coordinator.mu.
	waiters int
}

func (c *call) wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type Coordinator struct {
	opts Options

	// mu guards cache and inflight together, a date is looked up and
	// registered as in-flight under the same lock.
	mu       sync.Mutex
	cache    *lru.Cache[string, cacheEntry]
	inflight map[string]*call

	browserMu sync.Mutex
	browser   browser.Browser
	closed    bool
	launches  singleflight.Group
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Launcher == nil {
		return nil, fmt.Errorf("a browser launcher is required")
	}
	if opts.Endpoint.BaseUrl == "" {
		opts.Endpoint = eversports.DefaultEndpoint()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = eversports.DefaultUserAgent
	}
	if opts.Policy == nil {
		opts.Policy = browser.DefaultResourcePolicy
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Time == nil {
		opts.Time = chrono.NewStandardTime()
	}

	cache, err := lru.New[string, cacheEntry](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		opts:     opts,
		cache:    cache,
		inflight: make(map[string]*call),
	}, nil
}

// Init starts the browser session ahead of the first request.
func (c *Coordinator) Init(ctx context.Context) error {
	_, err := c.ensureBrowser(ctx)
	return err
}

// Shutdown releases the browser session, fetches started afterwards fail.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.browserMu.Lock()
	c.closed = true
	b := c.browser
	c.browser = nil
	c.browserMu.Unlock()

	if b == nil {
		return nil
	}
	slog.InfoContext(ctx, "closing browser session")
	return b.Close()
}

// FetchSlots returns the upstream slot json for dateKey. Fresh cached
// results are returned as-is, a fetch already running for dateKey is
// shared, otherwise a new upstream fetch is started.
//
// The fetch is not bound to ctx: it keeps running for other waiters when
// the caller gives up, and is only limited by the fetch timeout.
func (c *Coordinator) FetchSlots(ctx context.Context, dateKey string) (json.RawMessage, error) {
	if dateKey == "" {
		return nil, ErrMissingKey
	}

	ctx, span := tracer.Start(ctx, "coordinator:FetchSlots", trace.WithAttributes(
		attribute.String("slots.date", dateKey),
	))
	defer span.End()

	c.mu.Lock()
	entry, ok := c.cache.Peek(dateKey)
	if ok && c.opts.Time.Now().Sub(entry.fetchedAt) < c.opts.TTL {
		c.mu.Unlock()

		cacheHitCounter.Add(ctx, 1)
		span.SetAttributes(attribute.String("slots.outcome", "cache"))
		slog.DebugContext(ctx, "serving cached slots", "date", dateKey)
		return entry.value, nil
	}

	pending, ok := c.inflight[dateKey]
	if ok {
		pending.waiters++
		c.mu.Unlock()

		coalescedCounter.Add(ctx, 1)
		span.SetAttributes(attribute.String("slots.outcome", "coalesced"))
		slog.InfoContext(ctx, "waiting for in-flight fetch", "date", dateKey)

		value, err := pending.wait(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "coalesced fetch failed")
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, &CoalescedError{Err: err}
		}
		return value, nil
	}

	pending = &call{done: make(chan struct{})}
	c.inflight[dateKey] = pending
	c.mu.Unlock()

	go c.fetch(context.WithoutCancel(ctx), dateKey, pending)

	value, err := pending.wait(ctx)
	if err != nil {
		span.SetAttributes(attribute.String("slots.outcome", "failed"))
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("slots.outcome", "fetched"))
	return value, nil
}

// fetch runs one upstream fetch for dateKey and releases everyone waiting on pending.
func (c *Coordinator) fetch(ctx context.Context, dateKey string, pending *call) {
	ctx, span := tracer.Start(ctx, "coordinator:fetch", trace.WithAttributes(
		attribute.String("slots.date", dateKey),
	))
	defer span.End()

	fetchCounter.Add(ctx, 1)
	value, err := c.fetchUpstream(ctx, dateKey)

	c.mu.Lock()
	if err == nil {
		c.cache.Add(dateKey, cacheEntry{
			value:     value,
			fetchedAt: c.opts.Time.Now(),
		})
	}
	if c.inflight[dateKey] == pending {
		delete(c.inflight, dateKey)
	}
	waiters := pending.waiters
	c.mu.Unlock()

	if err != nil {
		failureCounter.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream fetch failed")
		slog.ErrorContext(ctx, "failed to fetch slots", "date", dateKey, "waiters", waiters, "err", err)
	} else {
		slog.InfoContext(ctx, "fetched slots", "date", dateKey, "waiters", waiters, "bytes", len(value))
	}

	pending.value = value
	pending.err = err
	close(pending.done)
}

func (c *Coordinator) fetchUpstream(ctx context.Context, dateKey string) (value json.RawMessage, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	defer func() {
		if err == nil {
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &UpstreamTimeoutError{After: c.opts.FetchTimeout, Err: err}
		}
		err = &UpstreamFetchError{DateKey: dateKey, Err: err}
	}()

	b, err := c.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	page, err := b.NewPage(ctx, browser.PageOptions{
		UserAgent: c.opts.UserAgent,
		Policy:    c.opts.Policy,
	})
	if err != nil {
		if ctx.Err() == nil {
			c.discardBrowser(ctx, b)
		}
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		closeErr := page.Close()
		if closeErr != nil {
			slog.WarnContext(ctx, "failed to close page", "date", dateKey, "err", closeErr)
		}
	}()

	res, err := page.Navigate(ctx, c.opts.Endpoint.SlotUrl(dateKey))
	if err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	return eversports.DecodeResponse(res)
}

// ensureBrowser returns the shared browser session, launching it if there
// is none. Concurrent callers share a single launch.
func (c *Coordinator) ensureBrowser(ctx context.Context) (browser.Browser, error) {
	c.browserMu.Lock()
	b, closed := c.browser, c.closed
	c.browserMu.Unlock()
	if closed {
		return nil, &BrowserInitError{Err: errClosed}
	}
	if b != nil {
		return b, nil
	}

	launch := c.launches.DoChan("browser", func() (any, error) {
		c.browserMu.Lock()
		existing := c.browser
		c.browserMu.Unlock()
		if existing != nil {
			return existing, nil
		}

		slog.InfoContext(ctx, "launching browser session")
		launched, err := c.opts.Launcher.Launch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.browserMu.Lock()
		defer c.browserMu.Unlock()
		if c.closed {
			launched.Close()
			return nil, errClosed
		}
		c.browser = launched
		return launched, nil
	})

	select {
	case res := <-launch:
		if res.Err != nil {
			return nil, &BrowserInitError{Err: res.Err}
		}
		return res.Val.(browser.Browser), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// discardBrowser drops a session that can no longer open pages so that the
// next fetch launches a new one.
func (c *Coordinator) discardBrowser(ctx context.Context, b browser.Browser) {
	c.browserMu.Lock()
	if c.browser != b {
		c.browserMu.Unlock()
		return
	}
	c.browser = nil
	c.browserMu.Unlock()

	slog.WarnContext(ctx, "discarding browser session")
	err := b.Close()
	if err != nil {
		slog.WarnContext(ctx, "failed to close discarded browser session", "err", err)
	}
}
