// Package scrapertest provides in-memory pages for testing code that drives
// scraper.Surface and scraper.PageProvider.
package scrapertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hotel-price-tracker/scraper"

	"github.com/PuerkitoBio/goquery"
)

// Page is a scraper.Page backed by a mutable HTML string
type Page struct {
	mu          sync.Mutex
	handle      scraper.PageHandle
	url         string
	html        string
	subs        map[int]chan struct{}
	nextSub     int
	subscribed  int
	snapshotErr error
	snapshots   int
}

func NewPage(handle scraper.PageHandle, url, html string) *Page {
	return &Page{handle: handle, url: url, html: html, subs: make(map[int]chan struct{})}
}

func (p *Page) Handle() scraper.PageHandle { return p.handle }

func (p *Page) URL() string { return p.url }

// SetHTML replaces the document and signals every subscriber
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	p.html = html
	subs := make([]chan struct{}, 0, len(p.subs))
	for _, ch := range p.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// FailSnapshots makes Snapshot return err until called again with nil
func (p *Page) FailSnapshots(err error) {
	p.mu.Lock()
	p.snapshotErr = err
	p.mu.Unlock()
}

func (p *Page) Snapshot(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	html, err := p.html, p.snapshotErr
	p.snapshots++
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *Page) Subscribe(ctx context.Context) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.subscribed++
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// ActiveSubscriptions is the number of subscriptions not yet released
func (p *Page) ActiveSubscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Subscriptions is the total number of Subscribe calls
func (p *Page) Subscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribed
}

func (p *Page) Snapshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshots
}

// ErrOpenFailed is returned by Provider.Open when FailOpen is set
var ErrOpenFailed = errors.New("open failed")

// Provider is a scraper.PageProvider serving pages from a render function
type Provider struct {
	mu      sync.Mutex
	render  func(url string) string
	pages   map[scraper.PageHandle]*Page
	opened  []string
	closed  []scraper.PageHandle
	next     int
	failing  bool
	onOpen   func(*Page)
	delay    time.Duration
	closedAt map[scraper.PageHandle]time.Time
}

// NewProvider serves render(url) as the initial HTML of each opened page
func NewProvider(render func(url string) string) *Provider {
	return &Provider{
		render:   render,
		pages:    make(map[scraper.PageHandle]*Page),
		closedAt: make(map[scraper.PageHandle]time.Time),
	}
}

// SlowOpen makes every Open take d before the page exists
func (p *Provider) SlowOpen(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// OnOpen registers a hook run for each page after it is opened
func (p *Provider) OnOpen(fn func(*Page)) {
	p.mu.Lock()
	p.onOpen = fn
	p.mu.Unlock()
}

func (p *Provider) FailOpen(fail bool) {
	p.mu.Lock()
	p.failing = fail
	p.mu.Unlock()
}

func (p *Provider) Open(ctx context.Context, url string) (scraper.Page, error) {
	p.mu.Lock()
	delay := p.delay
	p.mu.Unlock()
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.failing {
		p.mu.Unlock()
		return nil, ErrOpenFailed
	}
	p.next++
	handle := scraper.PageHandle(fmt.Sprintf("page-%d", p.next))
	page := NewPage(handle, url, p.render(url))
	p.pages[handle] = page
	p.opened = append(p.opened, url)
	hook := p.onOpen
	p.mu.Unlock()

	if hook != nil {
		hook(page)
	}
	return page, nil
}

func (p *Provider) Close(handle scraper.PageHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pages[handle]; !ok {
		return fmt.Errorf("page %s not open", handle)
	}
	delete(p.pages, handle)
	p.closed = append(p.closed, handle)
	p.closedAt[handle] = time.Now()
	return nil
}

func (p *Provider) ListOpen() []scraper.PageHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]scraper.PageHandle, 0, len(p.pages))
	for h := range p.pages {
		out = append(out, h)
	}
	return out
}

// Adopt registers an already-open page, e.g. one left by a previous process
func (p *Provider) Adopt(page *Page) {
	p.mu.Lock()
	p.pages[page.Handle()] = page
	p.mu.Unlock()
}

// Page returns an open page by handle
func (p *Provider) Page(handle scraper.PageHandle) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pages[handle]
}

func (p *Provider) OpenedURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.opened...)
}

func (p *Provider) Closed() []scraper.PageHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]scraper.PageHandle(nil), p.closed...)
}

// ClosedAt reports when handle was closed
func (p *Provider) ClosedAt(handle scraper.PageHandle) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	at, ok := p.closedAt[handle]
	return at, ok
}
