// Package bootstrap builds the storage backend both commands share.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"projectstore/internal/config"
	"projectstore/internal/keys"
	"projectstore/internal/storage"
	"projectstore/internal/storage/memstore"
)

// OpenBackend returns the configured storage backend, or nil when storage is
// not configured. A nil backend is not an error: listings then degrade to
// sample data.
func OpenBackend(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.Backend, error) {
	if !cfg.Configured() {
		log.Warn("storage_not_configured", zap.String("driver", cfg.Driver))
		return nil, nil
	}

	presign := time.Duration(cfg.PresignExpirySec) * time.Second
	var (
		b   storage.Backend
		err error
	)
	switch cfg.Driver {
	case config.DriverMinIO:
		b, err = storage.NewMinIO(cfg.MinIO, presign)
	case config.DriverGCS:
		b, err = storage.NewGCS(ctx, cfg.GCS, presign)
	case config.DriverMemory:
		b = memstore.New()
	default:
		err = fmt.Errorf("%w: unknown driver %q", storage.ErrNotConfigured, cfg.Driver)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			log.Warn("storage_not_configured", zap.String("driver", cfg.Driver), zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	log.Info("storage_ready", zap.String("driver", b.Name()), zap.String("namespace", cfg.Namespace))
	return b, nil
}

// Resolver returns the key resolver for the configured namespace.
func Resolver(cfg config.StorageConfig) *keys.Resolver {
	return keys.NewResolver(cfg.Namespace)
}
