package storage

import (
	"context"
	"fmt"

	"hotel-price-tracker/config"
	"hotel-price-tracker/utils"
)

// Open builds the Store selected by cfg.StoreBackend
func Open(ctx context.Context, cfg *config.Config, logger *utils.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("Using in-memory store, nothing will survive a restart")
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
	case "postgres":
		return NewPostgresStore(cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
