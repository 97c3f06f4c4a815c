package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/swasthya/homeo-assistant/internal/config"
	"github.com/swasthya/homeo-assistant/internal/resilience"
)

// Open returns the store selected by cfg.HistoryBackend. Remote backends are
// dialed with the reconnect loop so the service tolerates a slow dependency.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	reconnect := &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	var store Store
	switch cfg.HistoryBackend {
	case config.HistoryMemory, "":
		store = NewMemoryStore(cfg.HistoryCapacity)

	case config.HistoryRedis:
		err := resilience.Reconnect(ctx, "redis", func(ctx context.Context) error {
			s, err := NewRedisStore(ctx, cfg.RedisURL, cfg.HistoryCapacity)
			if err != nil {
				return err
			}
			store = s
			return nil
		}, reconnect, logger)
		if err != nil {
			return nil, err
		}

	case config.HistoryPostgres:
		err := resilience.Reconnect(ctx, "postgres", func(ctx context.Context) error {
			s, err := NewPostgresStore(ctx, cfg.DatabaseURL, cfg.HistoryCapacity)
			if err != nil {
				return err
			}
			store = s
			return nil
		}, reconnect, logger)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}

	logger.Info().
		Str("backend", cfg.HistoryBackend).
		Int("capacity", capacityOrDefault(cfg.HistoryCapacity)).
		Msg("History store ready")
	return store, nil
}
