package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hotel-price-tracker/config"
	"hotel-price-tracker/scraper"
	"hotel-price-tracker/scraper/booking"
	"hotel-price-tracker/scraper/scrapertest"
	"hotel-price-tracker/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptyPage = `<html><body><h1>Grand Hotel</h1><p>Loading rates</p></body></html>`

func bookingPage(name, price string) string {
	return fmt.Sprintf(`<html><body><h1>%s</h1><table id="hprt-table"><tr>`+
		`<td><a class="hprt-roomtype-link">Deluxe King Room</a></td>`+
		`<td><span class="bui-price-display__value">%s</span></td>`+
		`</tr></table></body></html>`, name, price)
}

func fastOptions() OrchestratorOptions {
	return OrchestratorOptions{
		Timing:          config.SiteTiming{RenderBudget: 20 * time.Millisecond, RetryDelay: 5 * time.Millisecond},
		RetryBudget:     6,
		DeliveryBackoff: 5 * time.Millisecond,
		Ceiling:         5 * time.Second,
		NameRetry:       scraper.NameRetry{Attempts: 1},
	}
}

// flakyChannel rejects the first fails sends, then records the rest
type flakyChannel struct {
	mu    sync.Mutex
	fails int
	sent  []Message
}

func (c *flakyChannel) Send(_ context.Context, msg Message) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails > 0 {
		c.fails--
		return Response{}, ErrReceiverNotReady
	}
	c.sent = append(c.sent, msg)
	return Response{OK: true}, nil
}

func (c *flakyChannel) OnMessage(Handler) func() { return func() {} }

func newTestOrchestrator(ch Channel, opts OrchestratorOptions) (*Orchestrator, *utils.Metrics) {
	metrics := utils.NewMetrics("test")
	logger := utils.NewNopLogger()
	strategy := booking.New(scraper.DefaultPolicy())
	return NewOrchestrator(strategy, NewNormalizer(logger), ch, metrics, logger, opts), metrics
}

func TestOrchestrator_Success(t *testing.T) {
	ch := &flakyChannel{}
	orch, metrics := newTestOrchestrator(ch, fastOptions())
	var states []State
	orch.OnTransition = func(tr Transition) { states = append(states, tr.To) }

	page := scrapertest.NewPage("page-1", "https://www.booking.com/hotel/my/grand.html?checkin=2026-06-01", bookingPage("Grand Hotel", "RM 250"))
	out := orch.Run(context.Background(), page)

	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, out.Delivered)
	assert.Equal(t, []State{StateWaitingForRender, StateExtracting, StateSucceeded}, states)

	require.NotNil(t, out.Snapshot)
	assert.Equal(t, "Grand Hotel", out.Snapshot.ListingName)
	assert.Equal(t, "https://www.booking.com/hotel/my/grand.html", out.Snapshot.CanonicalURL)
	require.Len(t, out.Snapshot.Rooms, 1)
	assert.Equal(t, "RM 250", out.Snapshot.Rooms[0].Price.Display)

	require.Len(t, ch.sent, 1)
	assert.Equal(t, KindPriceUpdate, ch.sent[0].Kind)
	assert.Equal(t, scraper.PageHandle("page-1"), ch.sent[0].Handle)
	assert.Equal(t, 0, page.ActiveSubscriptions())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CyclesTotal.WithLabelValues("booking", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CascadeHits.WithLabelValues("booking", "table-rows")))
}

func TestOrchestrator_RetriesUntilRoomsRender(t *testing.T) {
	ch := &flakyChannel{}
	orch, metrics := newTestOrchestrator(ch, fastOptions())
	page := scrapertest.NewPage("page-1", "https://www.booking.com/hotel/my/grand.html", emptyPage)

	var states []State
	orch.OnTransition = func(tr Transition) {
		states = append(states, tr.To)
		if tr.To == StateNoRoomsFound {
			page.SetHTML(bookingPage("Grand Hotel", "RM 300"))
		}
	}

	out := orch.Run(context.Background(), page)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, []State{
		StateWaitingForRender, StateExtracting, StateNoRoomsFound,
		StateWaitingForRender, StateExtracting, StateSucceeded,
	}, states)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ExtractionAttempts.WithLabelValues("booking")))
}

func TestOrchestrator_GivesUpAfterBudget(t *testing.T) {
	ch := &flakyChannel{}
	opts := fastOptions()
	opts.Ceiling = 500 * time.Millisecond
	orch, metrics := newTestOrchestrator(ch, opts)
	page := scrapertest.NewPage("page-1", "https://www.booking.com/hotel/my/grand.html", emptyPage)

	start := time.Now()
	out := orch.Run(context.Background(), page)
	assert.Less(t, time.Since(start), opts.Ceiling, "every attempt finishes inside the ceiling")
	assert.Equal(t, StateGiveUp, out.State)
	assert.Equal(t, 7, out.Attempts, "first attempt plus six retries")
	assert.False(t, out.Delivered)
	assert.Nil(t, out.Snapshot)
	assert.Empty(t, ch.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CyclesTotal.WithLabelValues("booking", "give_up")))
}

func TestOrchestrator_CeilingStopsRetries(t *testing.T) {
	opts := fastOptions()
	opts.Ceiling = 50 * time.Millisecond
	opts.Timing.RenderBudget = time.Second
	orch, _ := newTestOrchestrator(&flakyChannel{}, opts)
	page := scrapertest.NewPage("page-1", "https://www.booking.com/hotel/my/grand.html", emptyPage)

	start := time.Now()
	out := orch.Run(context.Background(), page)
	assert.Equal(t, StateGiveUp, out.State)
	assert.Equal(t, 1, out.Attempts)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOrchestrator_DeadlineTakesPrecedence(t *testing.T) {
	opts := fastOptions()
	opts.Ceiling = 5 * time.Second
	opts.Deadline = time.Now().Add(60 * time.Millisecond)
	opts.Timing.RenderBudget = time.Second
	orch, _ := newTestOrchestrator(&flakyChannel{}, opts)
	page := scrapertest.NewPage("page-1", "https://www.booking.com/hotel/my/grand.html", emptyPage)

	out := orch.Run(context.Background(), page)
	assert.Equal(t, StateGiveUp, out.State)
	assert.Equal(t, 1, out.Attempts)
	assert.WithinDuration(t, opts.Deadline, time.Now(), 300*time.Millisecond)
}

func TestOrchestrator_DeliveryRetries(t *testing.T) {
	ch := &flakyChannel{fails: 2}
	orch, metrics := newTestOrchestrator(ch, fastOptions())
	page := scrapertest.NewPage("page-1", "https://www.booking.com/hotel/my/grand.html", bookingPage("Grand Hotel", "RM 250"))

	out := orch.Run(context.Background(), page)
	assert.True(t, out.Delivered)
	assert.Len(t, ch.sent, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DeliveryRetries))
}

func TestOrchestrator_DeliverySharesRetryBudget(t *testing.T) {
	opts := fastOptions()
	opts.RetryBudget = 2
	ch := &flakyChannel{fails: 10}
	orch, metrics := newTestOrchestrator(ch, opts)
	page := scrapertest.NewPage("page-1", "https://www.booking.com/hotel/my/grand.html", emptyPage)
	orch.OnTransition = func(tr Transition) {
		if tr.To == StateNoRoomsFound {
			page.SetHTML(bookingPage("Grand Hotel", "RM 250"))
		}
	}

	out := orch.Run(context.Background(), page)
	assert.Equal(t, StateSucceeded, out.State)
	assert.False(t, out.Delivered, "update is dropped once the budget is spent")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DeliveryRetries), "one retry went to extraction")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CyclesTotal.WithLabelValues("booking", "dropped")))
}
