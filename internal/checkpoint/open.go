package checkpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/shopkeep/internal/config"
)

// Open returns the Saver selected by cfg.Backend.
func Open(ctx context.Context, cfg config.CheckpointConfig, logger *slog.Logger) (Saver, error) {
	switch cfg.Backend {
	case "", "sqlite":
		s, err := OpenSQLite(ctx, cfg.Path, cfg.Keep)
		if err != nil {
			return nil, err
		}
		logger.Info("checkpoint store ready", "backend", "sqlite", "path", cfg.Path, "keep", cfg.Keep)
		return s, nil
	case "redis":
		s, err := OpenRedis(ctx, cfg.RedisURL, cfg.Keep)
		if err != nil {
			return nil, err
		}
		logger.Info("checkpoint store ready", "backend", "redis", "keep", cfg.Keep)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
