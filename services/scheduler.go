package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"hotel-price-tracker/storage"
	"hotel-price-tracker/utils"

	"github.com/robfig/cron/v3"
)

// Refresher is what the scheduler drives
type Refresher interface {
	RefreshAll(ctx context.Context) (int, error)
	Interval(ctx context.Context) (int, error)
}

// Scheduler refreshes every tracked listing on the stored interval and
// reschedules itself whenever the interval changes in the store
type Scheduler struct {
	refresher Refresher
	store     storage.Store
	logger    *utils.Logger
	cron      *cron.Cron
	now       func() time.Time

	mu          sync.Mutex
	entry       cron.EntryID
	scheduled   bool
	interval    time.Duration
	unsubscribe func()
}

func NewScheduler(refresher Refresher, store storage.Store, logger *utils.Logger) *Scheduler {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(logger)),
		cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
	))
	return &Scheduler{
		refresher: refresher,
		store:     store,
		logger:    logger,
		cron:      c,
		now:       time.Now,
	}
}

// Start schedules the refresh job and watches the interval key
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reset(ctx); err != nil {
		return err
	}
	s.unsubscribe = s.store.OnChange(func(keys []string) {
		if slices.Contains(keys, storage.KeyAutoRefresh) {
			if err := s.Reset(ctx); err != nil {
				s.logger.Error("Failed to reschedule refresh: %v", err)
			}
		}
	})
	s.cron.Start()
	return nil
}

// Stop cancels the job and waits for a running refresh to return
func (s *Scheduler) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	<-s.cron.Stop().Done()
}

// Reset replaces the refresh job using the stored interval
func (s *Scheduler) Reset(ctx context.Context) error {
	minutes, err := s.refresher.Interval(ctx)
	if err != nil {
		return fmt.Errorf("failed to read refresh interval: %w", err)
	}
	interval := time.Duration(minutes) * time.Minute

	s.mu.Lock()
	if s.scheduled {
		s.cron.Remove(s.entry)
	}
	entry, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", minutes), func() { s.fire(ctx) })
	if err != nil {
		s.scheduled = false
		s.mu.Unlock()
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	s.entry, s.scheduled, s.interval = entry, true, interval
	s.mu.Unlock()

	s.logger.Info("Auto refresh every %d minutes", minutes)
	return s.storeNextFetch(ctx, interval)
}

func (s *Scheduler) fire(ctx context.Context) {
	n, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		s.logger.Error("Scheduled refresh failed: %v", err)
	} else {
		s.logger.Info("Scheduled refresh started %d cycles", n)
	}

	s.mu.Lock()
	interval := s.interval
	s.mu.Unlock()
	if err := s.storeNextFetch(ctx, interval); err != nil {
		s.logger.Warn("Failed to store next fetch time: %v", err)
	}
}

func (s *Scheduler) storeNextFetch(ctx context.Context, interval time.Duration) error {
	next := s.now().Add(interval).UnixMilli()
	return storage.SetJSON(ctx, s.store, map[string]any{storage.KeyNextBackgroundFetch: next})
}

// NextFetch returns the time of the next scheduled refresh, if any
func NextFetch(ctx context.Context, store storage.Store) (time.Time, bool, error) {
	ms, found, err := storage.GetJSON[int64](ctx, store, storage.KeyNextBackgroundFetch)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}
