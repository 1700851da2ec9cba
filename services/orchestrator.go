package services

import (
	"context"
	"errors"
	"time"

	"hotel-price-tracker/config"
	"hotel-price-tracker/models"
	"hotel-price-tracker/scraper"
	"hotel-price-tracker/utils"

	"github.com/PuerkitoBio/goquery"
)

// State of one extraction cycle
type State string

const (
	StateIdle             State = "idle"
	StateWaitingForRender State = "waiting_for_render"
	StateExtracting       State = "extracting"
	StateSucceeded        State = "succeeded"
	StateNoRoomsFound     State = "no_rooms_found"
	StateGiveUp           State = "give_up"
)

// Transition is reported to OnTransition for every state change
type Transition struct {
	From    State
	To      State
	Attempt int // 1-based extraction attempt
}

// Outcome summarizes a finished cycle
type Outcome struct {
	State     State
	Attempts  int
	Snapshot  *models.HotelSnapshot
	Delivered bool
}

// OrchestratorOptions tunes one cycle
type OrchestratorOptions struct {
	Timing          config.SiteTiming
	RetryBudget     int           // retries after the first attempt, shared with delivery
	DeliveryBackoff time.Duration // fixed wait between delivery attempts
	Ceiling         time.Duration // hard limit for the whole cycle, counted from Run
	Deadline        time.Time     // absolute limit, takes precedence over Ceiling
	NameRetry       scraper.NameRetry
}

// Orchestrator drives one page through wait, extract, normalize and deliver
type Orchestrator struct {
	strategy   scraper.Strategy
	normalizer *Normalizer
	channel    Channel
	metrics    *utils.Metrics
	logger     *utils.Logger
	opts       OrchestratorOptions

	// OnTransition, when set, observes every state change
	OnTransition func(Transition)
}

func NewOrchestrator(strategy scraper.Strategy, normalizer *Normalizer, channel Channel, metrics *utils.Metrics, logger *utils.Logger, opts OrchestratorOptions) *Orchestrator {
	return &Orchestrator{
		strategy:   strategy,
		normalizer: normalizer,
		channel:    channel,
		metrics:    metrics,
		logger:     logger.With("site", string(strategy.Site())),
		opts:       opts,
	}
}

// Run executes the cycle on page. It never returns an error: giving up is an
// outcome, logged and counted but not surfaced.
func (o *Orchestrator) Run(ctx context.Context, page scraper.Page) Outcome {
	switch {
	case !o.opts.Deadline.IsZero():
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, o.opts.Deadline)
		defer cancel()
	case o.opts.Ceiling > 0:
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Ceiling)
		defer cancel()
	}

	start := time.Now()
	site := string(o.strategy.Site())
	logger := o.logger.With("page", string(page.Handle()))
	state := StateIdle
	attempt := 0
	move := func(to State) {
		if o.OnTransition != nil {
			o.OnTransition(Transition{From: state, To: to, Attempt: attempt})
		}
		state = to
	}
	giveUp := func(reason string) Outcome {
		move(StateGiveUp)
		logger.Warn("Giving up on %s after %d attempts: %s", page.URL(), attempt, reason)
		o.metrics.CyclesTotal.WithLabelValues(site, "give_up").Inc()
		return Outcome{State: state, Attempts: attempt}
	}

	if err := utils.Sleep(ctx, o.opts.Timing.InitialDelay); err != nil {
		return giveUp("cancelled before first attempt")
	}

	retries := 0
	for {
		attempt++
		move(StateWaitingForRender)
		spec := o.strategy.WaitSpec()
		if o.opts.Timing.RenderBudget > 0 {
			spec.Budget = o.opts.Timing.RenderBudget
		}
		wait := scraper.WaitForRender(ctx, page, spec)
		if wait.Found {
			logger.Debug("Rendered via %s in %v", wait.Via, wait.Elapsed)
		}

		move(StateExtracting)
		o.metrics.ExtractionAttempts.WithLabelValues(site).Inc()
		if res, ok := o.extract(ctx, page, wait); ok {
			move(StateSucceeded)
			o.metrics.CascadeHits.WithLabelValues(site, res.Method).Inc()

			res.Name = scraper.ExtractName(ctx, page, o.strategy, o.opts.NameRetry, logger)
			snap := o.normalizer.Normalize(res)
			logger.Info("Extracted %d rooms for %q via %s", len(snap.Rooms), snap.ListingName, res.Method)

			delivered := o.deliver(ctx, page, &snap, &retries, logger)
			outcome := "delivered"
			if !delivered {
				outcome = "dropped"
			}
			o.metrics.CyclesTotal.WithLabelValues(site, outcome).Inc()
			o.metrics.CycleDuration.WithLabelValues(site).Observe(time.Since(start).Seconds())
			return Outcome{State: state, Attempts: attempt, Snapshot: &snap, Delivered: delivered}
		}

		move(StateNoRoomsFound)
		if ctx.Err() != nil {
			return giveUp("ceiling reached")
		}
		if retries >= o.opts.RetryBudget {
			return giveUp("retry budget exhausted")
		}
		retries++
		logger.Debug("No rooms found, retrying (%d/%d)", retries, o.opts.RetryBudget)
		if err := utils.Sleep(ctx, o.opts.Timing.RetryDelay); err != nil {
			return giveUp("ceiling reached")
		}
	}
}

// extract runs the cascade over the rendered document, taking a fresh
// snapshot when the wait resolved without one
func (o *Orchestrator) extract(ctx context.Context, page scraper.Page, wait scraper.WaitResult) (models.ExtractionResult, bool) {
	var doc *goquery.Document
	if wait.Found {
		doc = wait.Doc
	}
	if doc == nil {
		fresh, err := page.Snapshot(ctx)
		if err != nil {
			o.logger.Debug("Snapshot failed: %v", err)
			doc = wait.Doc
		} else {
			doc = fresh
		}
	}
	if doc == nil {
		return models.ExtractionResult{}, false
	}
	res := o.strategy.Extract(doc, page.URL())
	return res, len(res.Rooms) > 0
}

// deliver sends the snapshot to the coordinator, drawing retries from the
// same budget as extraction
func (o *Orchestrator) deliver(ctx context.Context, page scraper.Page, snap *models.HotelSnapshot, retries *int, logger *utils.Logger) bool {
	msg := Message{Kind: KindPriceUpdate, Handle: page.Handle(), Snapshot: snap}
	for {
		_, err := o.channel.Send(ctx, msg)
		if err == nil {
			return true
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || *retries >= o.opts.RetryBudget {
			logger.Warn("Dropping update for %s: %v", snap.CanonicalURL, err)
			return false
		}
		*retries++
		o.metrics.DeliveryRetries.Inc()
		logger.Debug("Delivery failed (%v), retrying in %v", err, o.opts.DeliveryBackoff)
		if err := utils.Sleep(ctx, o.opts.DeliveryBackoff); err != nil {
			logger.Warn("Dropping update for %s: %v", snap.CanonicalURL, err)
			return false
		}
	}
}
