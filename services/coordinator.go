package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hotel-price-tracker/config"
	"hotel-price-tracker/models"
	"hotel-price-tracker/scraper"
	"hotel-price-tracker/scraper/sites"
	"hotel-price-tracker/storage"
	"hotel-price-tracker/utils"
)

var (
	ErrNoPriceFound   = errors.New("no prices found on the page")
	ErrAlreadyTracked = errors.New("listing is already tracked")
	ErrNotTracked     = errors.New("listing is not tracked")
	ErrInvalidDates   = errors.New("invalid stay dates")
	ErrInvalidURL     = errors.New("invalid listing url")

	// Re-exported so callers only need this package
	ErrDatesNotSet     = scraper.ErrDatesNotSet
	ErrUnsupportedSite = sites.ErrUnsupportedSite
)

const dateLayout = "2006-01-02"

// PendingKind tells what to do with a page once its snapshot arrives
type PendingKind string

const (
	PendingRefresh PendingKind = "refresh"
	PendingTrack   PendingKind = "track"
)

// PendingPage is an in-flight page context, checkpointed to the store
type PendingPage struct {
	Kind         PendingKind   `json:"kind"`
	Site         models.SiteID `json:"site"`
	CanonicalURL string        `json:"canonicalUrl"`
	URL          string        `json:"url"`

	opened bool // opened by this process
}

// CoordinatorOptions tunes refresh cycles
type CoordinatorOptions struct {
	MaxConcurrency        int
	OpenRatePerSec        float64
	PageCeiling           time.Duration
	RetryBudget           int
	DeliveryBackoff       time.Duration
	Timings               map[string]config.SiteTiming
	NameRetry             scraper.NameRetry
	FreeMaxListings       int
	DefaultRefreshMinutes int
}

// OptionsFromConfig maps the application config onto coordinator options
func OptionsFromConfig(cfg *config.Config) CoordinatorOptions {
	return CoordinatorOptions{
		MaxConcurrency:        cfg.MaxConcurrency,
		OpenRatePerSec:        cfg.OpenRatePerSec,
		PageCeiling:           cfg.PageCeiling,
		RetryBudget:           cfg.RetryBudget,
		DeliveryBackoff:       cfg.DeliveryBackoff,
		Timings:               config.SiteTimings(),
		NameRetry:             scraper.DefaultNameRetry,
		FreeMaxListings:       cfg.FreeMaxListings,
		DefaultRefreshMinutes: cfg.DefaultRefreshMinutes,
	}
}

// Deps are the collaborators of the Coordinator
type Deps struct {
	Store         storage.Store
	Provider      scraper.PageProvider
	Sites         *sites.Registry
	Channel       Channel
	Notifier      Notifier
	Subscriptions *SubscriptionClient
	Metrics       *utils.Metrics
	Logger        *utils.Logger
}

// Coordinator owns the watch list and the in-flight page registry. It opens
// page contexts, receives the snapshots their agents deliver, persists them,
// runs change detection and closes the pages.
type Coordinator struct {
	store      storage.Store
	provider   scraper.PageProvider
	sites      *sites.Registry
	channel    Channel
	notifier   Notifier
	subs       *SubscriptionClient
	metrics    *utils.Metrics
	logger     *utils.Logger
	opts       CoordinatorOptions
	normalizer *Normalizer
	detector   *ChangeDetector

	sem     chan struct{}
	limiter *utils.RateLimiter
	runCtx  context.Context
	wg      sync.WaitGroup

	// mu serializes handling of delivered updates and watch list edits
	mu sync.Mutex

	regMu    sync.Mutex
	registry map[scraper.PageHandle]PendingPage

	resetSchedule func(ctx context.Context) error
	unsubscribe   func()
}

func NewCoordinator(deps Deps, opts CoordinatorOptions) *Coordinator {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.DefaultRefreshMinutes < 1 {
		opts.DefaultRefreshMinutes = 30
	}
	if opts.PageCeiling <= 0 {
		opts.PageCeiling = 30 * time.Second
	}
	return &Coordinator{
		store:      deps.Store,
		provider:   deps.Provider,
		sites:      deps.Sites,
		channel:    deps.Channel,
		notifier:   deps.Notifier,
		subs:       deps.Subscriptions,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		opts:       opts,
		normalizer: NewNormalizer(deps.Logger),
		detector:   NewChangeDetector(),
		sem:        make(chan struct{}, opts.MaxConcurrency),
		limiter:    utils.NewRateLimiter(opts.OpenRatePerSec),
		runCtx:     context.Background(),
		registry:   make(map[scraper.PageHandle]PendingPage),
	}
}

// Start registers the message handler and restores the page registry.
// Cycles started later run under ctx.
func (c *Coordinator) Start(ctx context.Context) error {
	c.runCtx = ctx
	c.unsubscribe = c.channel.OnMessage(c.handleMessage)
	kept, dropped, err := c.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore page registry: %w", err)
	}
	if kept+dropped > 0 {
		c.logger.Info("Restored %d pending pages, dropped %d orphans", kept, dropped)
	}
	return nil
}

// Stop unregisters the handler and waits for running cycles
func (c *Coordinator) Stop() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.wg.Wait()
}

// Wait blocks until every started cycle has finished
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// OnResetSchedule installs the hook run for ResetSchedule messages
func (c *Coordinator) OnResetSchedule(fn func(ctx context.Context) error) {
	c.resetSchedule = fn
}

func (c *Coordinator) handleMessage(ctx context.Context, msg Message) (Response, error) {
	switch msg.Kind {
	case KindPriceUpdate:
		return c.handleUpdate(ctx, msg)
	case KindForceRefresh:
		n, err := c.ForceRefresh(ctx)
		if err != nil {
			return Response{}, err
		}
		return Response{OK: true, Started: n}, nil
	case KindTrackURL:
		if err := c.TrackURL(ctx, msg.URL); err != nil {
			return Response{}, err
		}
		return Response{OK: true, Started: 1}, nil
	case KindResetSchedule:
		if c.resetSchedule == nil {
			return Response{}, ErrReceiverNotReady
		}
		if err := c.resetSchedule(ctx); err != nil {
			return Response{}, err
		}
		return Response{OK: true}, nil
	}
	return Response{}, fmt.Errorf("unknown message kind %q", msg.Kind)
}

// handleUpdate persists a delivered snapshot, alerts on price changes and
// closes the page that produced it
func (c *Coordinator) handleUpdate(ctx context.Context, msg Message) (Response, error) {
	if msg.Snapshot == nil {
		return Response{}, errors.New("price update without snapshot")
	}
	// The sender may be close to its ceiling; persistence must not be cut short
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := *msg.Snapshot
	events, err := c.persistSnapshot(ctx, snap)
	if err != nil {
		return Response{}, err
	}
	for _, ev := range events {
		c.metrics.PriceChanges.WithLabelValues(string(ev.Site), string(ev.Direction)).Inc()
		title, body := FormatChange(ev)
		c.notifier.Notify(ctx, title, body)
	}

	entry, pending := c.take(ctx, msg.Handle)
	if !pending {
		c.logger.Debug("Update from unregistered page %s for %s", msg.Handle, snap.CanonicalURL)
		return Response{OK: true}, nil
	}
	if entry.Kind == PendingTrack {
		added, err := c.addListingLocked(ctx, snap, entry.URL)
		switch {
		case errors.Is(err, ErrTierLimit):
			c.logger.Warn("Not tracking %s: %v", snap.CanonicalURL, err)
		case err != nil:
			c.logger.Error("Failed to track %s: %v", snap.CanonicalURL, err)
		case added:
			title, body := FormatTracked(snap.ListingName)
			c.notifier.Notify(ctx, title, body)
		}
	}
	c.closePage(msg.Handle, entry)
	return Response{OK: true}, nil
}

// persistSnapshot replaces the snapshot record of the listing, records change
// events and refreshes the watch list entry, all in one store write
func (c *Coordinator) persistSnapshot(ctx context.Context, snap models.HotelSnapshot) ([]models.PriceChangeEvent, error) {
	key := storage.SnapshotKey(snap.Site, snap.CanonicalURL)
	values, err := c.store.Get(ctx, key, storage.KeyPriceChanges, storage.KeyHotels)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	old, hadOld, err := decodeValue[models.SnapshotRecord](values, key)
	if err != nil {
		c.logger.Warn("Discarding unreadable record %s: %v", key, err)
		hadOld = false
	}

	record := models.SnapshotRecord{
		Name:          snap.ListingName,
		Rooms:         snap.Rooms,
		PreviousRooms: snap.Rooms,
		FetchedAt:     snap.CapturedAt,
	}
	writes := map[string]any{key: record}

	var events []models.PriceChangeEvent
	if hadOld {
		record.PreviousRooms = old.Rooms
		writes[key] = record
		events = c.detector.Detect(snap, old.Rooms)
		if len(events) > 0 {
			changes, _, err := decodeValue[[]models.PriceChangeEvent](values, storage.KeyPriceChanges)
			if err != nil {
				c.logger.Warn("Resetting unreadable change log: %v", err)
			}
			writes[storage.KeyPriceChanges] = AppendToLog(changes, events, MaxChangeLog)
		}
	}

	listings, _, err := decodeValue[[]models.TrackedListing](values, storage.KeyHotels)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch list: %w", err)
	}
	for i := range listings {
		if listings[i].Key() == snap.Key() {
			listings[i].Rooms = snap.Rooms
			listings[i].LastChecked = snap.CapturedAt
			writes[storage.KeyHotels] = DedupeListings(listings)
			break
		}
	}

	if err := storage.SetJSON(ctx, c.store, writes); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", key, err)
	}
	c.logger.Debug("Saved %d rooms for %s (%d changes)", len(snap.Rooms), snap.CanonicalURL, len(events))
	return events, nil
}

// RefreshAll opens one page per tracked listing. Cycles run in the background;
// it returns the number started.
func (c *Coordinator) RefreshAll(ctx context.Context) (int, error) {
	listings, err := c.Listings(ctx)
	if err != nil {
		return 0, err
	}
	dates, err := c.Dates(ctx)
	if err != nil {
		return 0, err
	}

	c.logger.Info("Starting refresh for %d listings", len(listings))
	started := 0
	for _, l := range listings {
		strategy, err := c.sites.For(l.Site)
		if err != nil {
			c.logger.Warn("Skipping %s: %v", l.URL, err)
			continue
		}
		fetchURL, err := strategy.ApplyDates(l.URL, dates)
		if err != nil {
			c.logger.Warn("Skipping %s: %v", l.URL, err)
			continue
		}
		c.startCycle(strategy, fetchURL, PendingPage{
			Kind:         PendingRefresh,
			Site:         l.Site,
			CanonicalURL: l.CanonicalURL,
			URL:          l.URL,
		})
		started++
	}
	return started, nil
}

// ForceRefresh is the user-triggered refresh; it needs stay dates
func (c *Coordinator) ForceRefresh(ctx context.Context) (int, error) {
	dates, err := c.Dates(ctx)
	if err != nil {
		return 0, err
	}
	if !dates.IsSet() {
		return 0, ErrDatesNotSet
	}
	return c.RefreshAll(ctx)
}

// TrackURL opens rawURL in the background and adds the listing once its
// snapshot arrives
func (c *Coordinator) TrackURL(ctx context.Context, rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ErrInvalidURL
	}
	site := models.DetectSite(rawURL)
	strategy, err := c.sites.For(site)
	if err != nil {
		return err
	}
	dates, err := c.Dates(ctx)
	if err != nil {
		return err
	}
	if !dates.IsSet() {
		return ErrDatesNotSet
	}
	if err := c.checkCanTrack(ctx, site, Canonicalize(rawURL)); err != nil {
		return err
	}
	fetchURL, err := strategy.ApplyDates(rawURL, dates)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	c.startCycle(strategy, fetchURL, PendingPage{
		Kind:         PendingTrack,
		Site:         site,
		CanonicalURL: Canonicalize(rawURL),
		URL:          rawURL,
	})
	return nil
}

// Scrape runs one cycle on rawURL and returns the snapshot without storing it
func (c *Coordinator) Scrape(ctx context.Context, rawURL string) (*models.HotelSnapshot, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrInvalidURL
	}
	strategy, err := c.sites.For(models.DetectSite(rawURL))
	if err != nil {
		return nil, err
	}
	dates, err := c.Dates(ctx)
	if err != nil {
		return nil, err
	}
	fetchURL, err := strategy.ApplyDates(rawURL, dates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	capture := NewLocalChannel()
	var snap *models.HotelSnapshot
	capture.OnMessage(func(_ context.Context, msg Message) (Response, error) {
		snap = msg.Snapshot
		return Response{OK: true}, nil
	})

	outcome, err := c.runCycle(ctx, strategy, fetchURL, PendingPage{}, capture)
	if err != nil {
		return nil, err
	}
	if !outcome.Delivered || snap == nil || len(snap.Rooms) == 0 {
		return nil, ErrNoPriceFound
	}
	snap.SourceURL = rawURL
	return snap, nil
}

// TrackSnapshot adds a listing from a snapshot taken by the caller
func (c *Coordinator) TrackSnapshot(ctx context.Context, snap models.HotelSnapshot, originalURL string) error {
	if len(snap.Rooms) == 0 {
		return ErrNoPriceFound
	}
	if _, err := c.sites.For(snap.Site); err != nil {
		return err
	}
	dates, err := c.Dates(ctx)
	if err != nil {
		return err
	}
	if !dates.IsSet() {
		return ErrDatesNotSet
	}
	if snap.CanonicalURL == "" {
		snap.CanonicalURL = Canonicalize(originalURL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkCanTrack(ctx, snap.Site, snap.CanonicalURL); err != nil {
		return err
	}
	if _, err := c.addListingLocked(ctx, snap, originalURL); err != nil {
		return err
	}
	_, err = c.persistSnapshot(ctx, snap)
	return err
}

func (c *Coordinator) checkCanTrack(ctx context.Context, site models.SiteID, canonical string) error {
	listings, err := c.Listings(ctx)
	if err != nil {
		return err
	}
	key := models.ListingKey(site, canonical)
	for _, l := range listings {
		if l.Key() == key {
			return ErrAlreadyTracked
		}
	}
	return LimitsFor(c.subs.Check(ctx), c.opts.FreeMaxListings).Allow(site, len(listings))
}

// addListingLocked appends the listing unless it is already tracked. The tier
// limit is checked again here since requests admitted concurrently may have
// filled the list meanwhile. c.mu must be held.
func (c *Coordinator) addListingLocked(ctx context.Context, snap models.HotelSnapshot, originalURL string) (bool, error) {
	listings, err := c.Listings(ctx)
	if err != nil {
		return false, err
	}
	for _, l := range listings {
		if l.Key() == snap.Key() {
			return false, nil
		}
	}
	if err := LimitsFor(c.subs.Check(ctx), c.opts.FreeMaxListings).Allow(snap.Site, len(listings)); err != nil {
		return false, err
	}
	if originalURL == "" {
		originalURL = snap.SourceURL
	}
	listings = append(listings, models.TrackedListing{
		Site:         snap.Site,
		Name:         snap.ListingName,
		URL:          originalURL,
		CanonicalURL: snap.CanonicalURL,
		Rooms:        snap.Rooms,
		AddedAt:      time.Now(),
		LastChecked:  snap.CapturedAt,
	})
	if err := storage.SetJSON(ctx, c.store, map[string]any{storage.KeyHotels: DedupeListings(listings)}); err != nil {
		return false, err
	}
	c.logger.Info("Now tracking %q (%s)", snap.ListingName, snap.Site.Title())
	return true, nil
}

// Remove drops a listing and its snapshot record
func (c *Coordinator) Remove(ctx context.Context, site models.SiteID, rawURL string) error {
	canonical := Canonicalize(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	listings, err := c.Listings(ctx)
	if err != nil {
		return err
	}
	kept := listings[:0]
	for _, l := range listings {
		if l.Site == site && l.CanonicalURL == canonical {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == len(listings) {
		return ErrNotTracked
	}
	if err := storage.SetJSON(ctx, c.store, map[string]any{storage.KeyHotels: kept}); err != nil {
		return err
	}
	return c.store.Delete(ctx, storage.SnapshotKey(site, canonical))
}

// SetDates stores the stay dates used for every fetch
func (c *Coordinator) SetDates(ctx context.Context, dates scraper.StayDates) error {
	if !dates.IsSet() {
		return ErrDatesNotSet
	}
	in, err := time.Parse(dateLayout, dates.Checkin)
	if err != nil {
		return fmt.Errorf("%w: check-in %q", ErrInvalidDates, dates.Checkin)
	}
	out, err := time.Parse(dateLayout, dates.Checkout)
	if err != nil {
		return fmt.Errorf("%w: check-out %q", ErrInvalidDates, dates.Checkout)
	}
	if !out.After(in) {
		return fmt.Errorf("%w: check-out must be after check-in", ErrInvalidDates)
	}
	return storage.SetJSON(ctx, c.store, map[string]any{
		storage.KeyCheckin:  dates.Checkin,
		storage.KeyCheckout: dates.Checkout,
	})
}

// SetInterval stores the auto refresh interval in minutes
func (c *Coordinator) SetInterval(ctx context.Context, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("refresh interval must be at least 1 minute, got %d", minutes)
	}
	return storage.SetJSON(ctx, c.store, map[string]any{storage.KeyAutoRefresh: minutes})
}

// Interval returns the stored refresh interval, or the default
func (c *Coordinator) Interval(ctx context.Context) (int, error) {
	minutes, found, err := storage.GetJSON[int](ctx, c.store, storage.KeyAutoRefresh)
	if err != nil {
		return 0, err
	}
	if !found || minutes < 1 {
		return c.opts.DefaultRefreshMinutes, nil
	}
	return minutes, nil
}

func (c *Coordinator) Dates(ctx context.Context) (scraper.StayDates, error) {
	values, err := c.store.Get(ctx, storage.KeyCheckin, storage.KeyCheckout)
	if err != nil {
		return scraper.StayDates{}, err
	}
	checkin, _, err := decodeValue[string](values, storage.KeyCheckin)
	if err != nil {
		return scraper.StayDates{}, err
	}
	checkout, _, err := decodeValue[string](values, storage.KeyCheckout)
	if err != nil {
		return scraper.StayDates{}, err
	}
	return scraper.StayDates{Checkin: checkin, Checkout: checkout}, nil
}

// NextFetch returns when the scheduler will refresh next
func (c *Coordinator) NextFetch(ctx context.Context) (time.Time, bool, error) {
	return NextFetch(ctx, c.store)
}

// Listings returns the watch list
func (c *Coordinator) Listings(ctx context.Context) ([]models.TrackedListing, error) {
	listings, _, err := storage.GetJSON[[]models.TrackedListing](ctx, c.store, storage.KeyHotels)
	return listings, err
}

// Changes returns the change log, newest first
func (c *Coordinator) Changes(ctx context.Context) ([]models.PriceChangeEvent, error) {
	changes, _, err := storage.GetJSON[[]models.PriceChangeEvent](ctx, c.store, storage.KeyPriceChanges)
	return changes, err
}

// Record returns the stored snapshot record of a listing
func (c *Coordinator) Record(ctx context.Context, site models.SiteID, rawURL string) (models.SnapshotRecord, bool, error) {
	return storage.GetJSON[models.SnapshotRecord](ctx, c.store, storage.SnapshotKey(site, Canonicalize(rawURL)))
}

// DedupeListings keeps the first entry per site + canonical URL, filling in
// the site and canonical URL of legacy entries
func DedupeListings(listings []models.TrackedListing) []models.TrackedListing {
	seen := utils.NewSeenSet()
	out := make([]models.TrackedListing, 0, len(listings))
	for _, l := range listings {
		if l.Site == "" {
			l.Site = models.DetectSite(l.URL)
		}
		if l.CanonicalURL == "" {
			l.CanonicalURL = Canonicalize(l.URL)
		} else {
			l.CanonicalURL = Canonicalize(l.CanonicalURL)
		}
		if seen.Add(l.Key()) {
			out = append(out, l)
		}
	}
	return out
}

// startCycle runs a cycle in the background under the coordinator context
func (c *Coordinator) startCycle(strategy scraper.Strategy, fetchURL string, entry PendingPage) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.runCycle(c.runCtx, strategy, fetchURL, entry, c.channel); err != nil {
			c.logger.Warn("Cycle for %s not run: %v", fetchURL, err)
		}
	}()
}

// runCycle opens a page, runs the orchestrator on it and force-closes the page
// if it is still registered afterwards. Pages with an empty entry Kind are not
// registered and always closed.
func (c *Coordinator) runCycle(ctx context.Context, strategy scraper.Strategy, fetchURL string, entry PendingPage, channel Channel) (Outcome, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	if err := c.limiter.Wait(ctx); err != nil {
		return Outcome{}, err
	}

	site := string(strategy.Site())
	// The ceiling counts from the moment the page is requested
	deadline := time.Now().Add(c.opts.PageCeiling)
	openCtx, cancel := context.WithDeadline(ctx, deadline)
	page, err := c.provider.Open(openCtx, fetchURL)
	cancel()
	if err != nil {
		c.metrics.CyclesTotal.WithLabelValues(site, "open_failed").Inc()
		return Outcome{}, fmt.Errorf("failed to open page: %w", err)
	}
	c.metrics.OpenPages.Inc()
	entry.opened = true
	handle := page.Handle()
	if entry.Kind != "" {
		c.register(ctx, handle, entry)
	}

	var finishOnce sync.Once
	finish := func(timedOut bool) {
		finishOnce.Do(func() {
			if entry.Kind == "" {
				c.closePage(handle, entry)
				return
			}
			leftover, pending := c.take(ctx, handle)
			if !pending {
				return
			}
			if timedOut {
				c.logger.Warn("Page %s for %s reached the %v ceiling, force closing", handle, fetchURL, c.opts.PageCeiling)
			} else {
				c.logger.Warn("Page %s for %s sent no update, force closing", handle, fetchURL)
			}
			c.closePage(handle, leftover)
		})
	}
	timer := time.AfterFunc(time.Until(deadline), func() { finish(true) })

	orch := NewOrchestrator(strategy, c.normalizer, channel, c.metrics, c.logger, OrchestratorOptions{
		Timing:          c.opts.Timings[site],
		RetryBudget:     c.opts.RetryBudget,
		DeliveryBackoff: c.opts.DeliveryBackoff,
		Deadline:        deadline,
		NameRetry:       c.opts.NameRetry,
	})
	outcome := orch.Run(ctx, page)

	timer.Stop()
	finish(false)
	return outcome, nil
}

func (c *Coordinator) closePage(handle scraper.PageHandle, entry PendingPage) {
	if err := c.provider.Close(handle); err != nil {
		c.logger.Debug("Page %s already closed: %v", handle, err)
	}
	if entry.opened {
		c.metrics.OpenPages.Dec()
	}
}

func (c *Coordinator) register(ctx context.Context, handle scraper.PageHandle, entry PendingPage) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	c.registry[handle] = entry
	c.checkpointLocked(ctx)
}

// take removes handle from the registry, reporting whether it was pending
func (c *Coordinator) take(ctx context.Context, handle scraper.PageHandle) (PendingPage, bool) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	entry, ok := c.registry[handle]
	if !ok {
		return PendingPage{}, false
	}
	delete(c.registry, handle)
	c.checkpointLocked(ctx)
	return entry, true
}

// Pending returns a copy of the in-flight registry
func (c *Coordinator) Pending() map[scraper.PageHandle]PendingPage {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	out := make(map[scraper.PageHandle]PendingPage, len(c.registry))
	for h, e := range c.registry {
		out[h] = e
	}
	return out
}

func (c *Coordinator) checkpointLocked(ctx context.Context) {
	list := make(map[string]PendingPage, len(c.registry))
	for h, e := range c.registry {
		list[string(h)] = e
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := storage.SetJSON(ctx, c.store, map[string]any{storage.KeyRefreshTabs: list}); err != nil {
		c.logger.Warn("Failed to checkpoint page registry: %v", err)
	}
}

// Restore rebuilds the registry from the checkpoint, keeping only pages the
// provider still has open. Kept pages are force-closed after the page
// ceiling unless their update arrives first.
func (c *Coordinator) Restore(ctx context.Context) (kept, dropped int, err error) {
	list, _, err := storage.GetJSON[map[string]PendingPage](ctx, c.store, storage.KeyRefreshTabs)
	if err != nil {
		return 0, 0, err
	}
	if len(list) == 0 {
		return 0, 0, nil
	}

	open := make(map[scraper.PageHandle]bool)
	for _, h := range c.provider.ListOpen() {
		open[h] = true
	}

	c.regMu.Lock()
	for h, entry := range list {
		handle := scraper.PageHandle(h)
		if !open[handle] {
			dropped++
			continue
		}
		c.registry[handle] = entry
		kept++
		time.AfterFunc(c.opts.PageCeiling, func() {
			if leftover, pending := c.take(context.Background(), handle); pending {
				c.logger.Warn("Restored page %s timed out, force closing", handle)
				c.closePage(handle, leftover)
			}
		})
	}
	c.checkpointLocked(ctx)
	c.regMu.Unlock()
	return kept, dropped, nil
}

func decodeValue[T any](values map[string][]byte, key string) (T, bool, error) {
	var v T
	raw, ok := values[key]
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return v, true, nil
}
