package cmd

import (
	"context"
	"fmt"

	"hotel-price-tracker/config"
	"hotel-price-tracker/scraper"
	"hotel-price-tracker/scraper/sites"
	"hotel-price-tracker/services"
	"hotel-price-tracker/storage"
	"hotel-price-tracker/utils"
)

// app holds the wired components shared by the commands
type app struct {
	cfg     *config.Config
	logger  *utils.Logger
	metrics *utils.Metrics
	store   storage.Store
	channel *services.LocalChannel
	subs    *services.SubscriptionClient
	coord   *services.Coordinator
	browser *scraper.ChromePool
}

// newApp loads the config and opens the store. The browser is only started
// when withBrowser is set; commands that just read or edit the watch list
// never open a page.
func newApp(ctx context.Context, withBrowser bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	logger := utils.NewLogger(level)

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: utils.NewMetrics("hotel_tracker"),
		store:   store,
		channel: services.NewLocalChannel(),
	}

	var provider scraper.PageProvider
	if withBrowser {
		a.browser, err = scraper.NewChromePool(browserOptions(cfg), logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		provider = a.browser
	}

	a.subs = services.NewSubscriptionClient(cfg.BillingURL, store, cfg.SubscriptionCacheTTL, logger)
	policy := scraper.DefaultPolicy().WithBounds(cfg.MinPrice, cfg.MaxPrice)
	a.coord = services.NewCoordinator(services.Deps{
		Store:         store,
		Provider:      provider,
		Sites:         sites.NewRegistry(policy),
		Channel:       a.channel,
		Notifier:      a.notifier(),
		Subscriptions: a.subs,
		Metrics:       a.metrics,
		Logger:        logger,
	}, services.OptionsFromConfig(cfg))
	return a, nil
}

// notifier logs every alert and, on the redis backend, also publishes it
func (a *app) notifier() services.Notifier {
	notifiers := services.MultiNotifier{services.NewLogNotifier(a.logger)}
	if rs, ok := a.store.(*storage.RedisStore); ok {
		notifiers = append(notifiers, services.NewRedisNotifier(rs.Client(), services.DefaultAlertChannel, a.logger))
	}
	return notifiers
}

func (a *app) Close() {
	a.coord.Stop()
	if a.browser != nil {
		a.browser.Shutdown()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store: %v", err)
	}
	a.logger.Sync()
}

// withApp runs fn with a wired app and closes it afterwards
func withApp(ctx context.Context, withBrowser bool, fn func(a *app) error) error {
	a, err := newApp(ctx, withBrowser)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// browserOptions maps the browser settings; tracking pages open incognito
// unless disabled
func browserOptions(cfg *config.Config) scraper.BrowserOptions {
	return scraper.BrowserOptions{
		Headless:  cfg.Headless,
		Incognito: cfg.Incognito,
		UserAgent: cfg.UserAgent,
	}
}
