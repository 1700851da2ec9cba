package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"hotel-price-tracker/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// annotateStylesJS marks elements whose computed style hides or strikes them,
// so the rules can see it in the serialized HTML
const annotateStylesJS = `(function() {
	var n = 0;
	document.querySelectorAll('span, div, strong, b, s, del').forEach(function(el) {
		if (el.childElementCount > 4) return;
		var cs = window.getComputedStyle(el);
		var deco = cs.textDecorationLine || cs.textDecoration || '';
		if (deco.indexOf('line-through') !== -1) { el.setAttribute('` + AttrStruck + `', '1'); n++; }
		if (cs.display === 'none' || cs.visibility === 'hidden') { el.setAttribute('` + AttrHidden + `', '1'); n++; }
	});
	return n;
})()`

// BrowserOptions configures the headless browser
type BrowserOptions struct {
	Headless  bool
	Incognito bool
	UserAgent string
	// Heartbeat re-signals subscribers periodically, since CDP only reports
	// mutations for nodes the client has already requested
	Heartbeat time.Duration
}

// ChromePool implements PageProvider with one chromedp browser and one tab per page
type ChromePool struct {
	opts   BrowserOptions
	logger *utils.Logger

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc

	mu    sync.Mutex
	pages map[PageHandle]*ChromePage
}

// NewChromePool starts the browser. Pages are opened off-screen and never focused.
func NewChromePool(opts BrowserOptions, logger *utils.Logger) (*ChromePool, error) {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 500 * time.Millisecond
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("incognito", opts.Incognito),
		chromedp.Flag("log-level", "3"), // suppress Chrome logs
		chromedp.WindowSize(1280, 900),
	)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("window-position", "-32000,-32000"))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Start the browser now so startup failures surface here
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromePool{
		opts:          opts,
		logger:        logger,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		pages:         make(map[PageHandle]*ChromePage),
	}, nil
}

// Open creates a new tab and navigates it to url
func (p *ChromePool) Open(ctx context.Context, url string) (Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(p.browserCtx)

	// The first Run on a tab context starts the tab's event loop, and the loop
	// lives only as long as that Run's context. It must run on tabCtx itself;
	// ctx can only abort it by closing the tab.
	stop := context.AfterFunc(ctx, cancelTab)
	err := chromedp.Run(tabCtx)
	if !stop() {
		err = ctx.Err()
	}
	if err != nil {
		cancelTab()
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}

	pg := &ChromePage{
		ctx:       tabCtx,
		cancel:    cancelTab,
		url:       url,
		heartbeat: p.opts.Heartbeat,
	}
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		cancelTab()
		return nil, fmt.Errorf("tab for %s has no target", url)
	}
	pg.handle = PageHandle(c.Target.TargetID)

	if err := pg.run(ctx, chromedp.Navigate(url)); err != nil {
		cancelTab()
		return nil, fmt.Errorf("navigate failed: %w", err)
	}

	p.mu.Lock()
	p.pages[pg.handle] = pg
	p.mu.Unlock()

	p.logger.Debug("Opened page %s for %s", pg.handle, url)
	return pg, nil
}

// Close closes the tab. Handles not opened by this pool (e.g. left over from
// a previous run sharing the browser) are attached to and closed.
func (p *ChromePool) Close(handle PageHandle) error {
	p.mu.Lock()
	pg, ok := p.pages[handle]
	delete(p.pages, handle)
	p.mu.Unlock()

	if ok {
		pg.cancel()
		return nil
	}

	ctx, cancel := chromedp.NewContext(p.browserCtx, chromedp.WithTargetID(target.ID(handle)))
	defer cancel()
	if err := chromedp.Run(ctx); err != nil {
		return fmt.Errorf("failed to attach to %s: %w", handle, err)
	}
	return nil
}

// ListOpen lists the page targets currently open in the browser
func (p *ChromePool) ListOpen() []PageHandle {
	infos, err := chromedp.Targets(p.browserCtx)
	if err != nil {
		p.logger.Warn("Failed to list browser targets: %v", err)
		return nil
	}
	handles := make([]PageHandle, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			handles = append(handles, PageHandle(info.TargetID))
		}
	}
	return handles
}

// Shutdown closes every tab and the browser
func (p *ChromePool) Shutdown() {
	p.mu.Lock()
	for h, pg := range p.pages {
		pg.cancel()
		delete(p.pages, h)
	}
	p.mu.Unlock()
	p.cancelBrowser()
	p.cancelAlloc()
}

// ChromePage is one chromedp tab
type ChromePage struct {
	ctx       context.Context
	cancel    context.CancelFunc
	handle    PageHandle
	url       string
	heartbeat time.Duration
}

func (pg *ChromePage) Handle() PageHandle { return pg.handle }

func (pg *ChromePage) URL() string { return pg.url }

// run executes actions on the tab, aborting when ctx is done without closing
// the tab. Only valid once Open has started the tab on its own context.
func (pg *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(pg.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Snapshot annotates computed styles and parses the serialized DOM
func (pg *ChromePage) Snapshot(ctx context.Context) (*goquery.Document, error) {
	var (
		marked int
		html   string
	)
	err := pg.run(ctx,
		chromedp.Evaluate(annotateStylesJS, &marked),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot failed: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return doc, nil
}

// Subscribe listens for DOM and lifecycle events on the tab
func (pg *ChromePage) Subscribe(ctx context.Context) (<-chan struct{}, func()) {
	subCtx, cancel := context.WithCancel(pg.ctx)
	ch := make(chan struct{}, 1)
	signal := func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	chromedp.ListenTarget(subCtx, func(ev interface{}) {
		switch ev.(type) {
		case *dom.EventChildNodeInserted,
			*dom.EventChildNodeRemoved,
			*dom.EventChildNodeCountUpdated,
			*dom.EventCharacterDataModified,
			*dom.EventAttributeModified,
			*dom.EventDocumentUpdated,
			*dom.EventSetChildNodes,
			*page.EventDomContentEventFired,
			*page.EventLoadEventFired:
			signal()
		}
	})

	// Request the whole tree so CDP starts reporting mutations below the root
	_ = pg.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		_, err := dom.GetDocument().WithDepth(-1).Do(c)
		return err
	}))

	go func() {
		ticker := time.NewTicker(pg.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ctx.Done():
				cancel()
				return
			case <-ticker.C:
				signal()
			}
		}
	}()

	return ch, cancel
}
