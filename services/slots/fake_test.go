package slots

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"padelslots-backend/lib/browser"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeBrowser counts navigations and answers them with respond, which
// defaults to a json body echoing the navigated url.
type fakeBrowser struct {
	respond    func(ctx context.Context, url string) (browser.Response, error)
	newPageErr error
	closeErr   error
	// stallNewPage makes NewPage hang until its ctx is done.
	stallNewPage atomic.Bool

	navigations atomic.Int32
	pagesOpened atomic.Int32
	pagesClosed atomic.Int32
	closed      atomic.Bool

	mu       sync.Mutex
	lastOpts browser.PageOptions
	lastUrl  string
}

func (b *fakeBrowser) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, error) {
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	if b.stallNewPage.Load() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b.mu.Lock()
	b.lastOpts = opts
	b.mu.Unlock()
	b.pagesOpened.Add(1)
	return fakePage{browser: b}, nil
}

func (b *fakeBrowser) Close() error {
	b.closed.Store(true)
	return nil
}

type fakePage struct {
	browser *fakeBrowser
}

func (p fakePage) Navigate(ctx context.Context, url string) (browser.Response, error) {
	b := p.browser
	n := b.navigations.Add(1)
	b.mu.Lock()
	b.lastUrl = url
	b.mu.Unlock()

	if b.respond != nil {
		return b.respond(ctx, url)
	}
	return browser.Response{
		Status:      200,
		Url:         url,
		ContentType: "application/json",
		Body:        []byte(fmt.Sprintf(`{"slots":[],"navigation":%d}`, n)),
	}, nil
}

func (p fakePage) Close() error {
	p.browser.pagesClosed.Add(1)
	return p.browser.closeErr
}

type fakeLauncher struct {
	browser *fakeBrowser
	// err fails every launch while set.
	err error
	// gate, when not nil, holds launches until it is closed.
	gate     chan struct{}
	launches atomic.Int32
}

func (l *fakeLauncher) Launch(ctx context.Context) (browser.Browser, error) {
	l.launches.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

// gatedResponder blocks every navigation until the returned release
// function is called, entered receives a value when a navigation starts.
func gatedResponder(res browser.Response, err error) (respond func(context.Context, string) (browser.Response, error), entered chan struct{}, release func()) {
	gate := make(chan struct{})
	entered = make(chan struct{}, 16)
	var once sync.Once
	respond = func(ctx context.Context, url string) (browser.Response, error) {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return browser.Response{}, ctx.Err()
		}
		return res, err
	}
	return respond, entered, func() { once.Do(func() { close(gate) }) }
}
