package storage

import (
	"context"
	"fmt"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/sirupsen/logrus"
)

// New builds the storage backend selected by the configuration
func New(ctx context.Context, cfg *config.Config) (StorageInterface, error) {
	logrus.Infof("Using %s storage backend", cfg.StorageBackend)

	switch cfg.StorageBackend {
	case config.BackendAzure:
		return NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	case config.BackendRedis:
		return NewRedisStorage(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
	case config.BackendFile:
		return NewFileStorage(cfg.DataDir)
	case config.BackendMemory:
		logrus.Warn("Memory storage does not survive restarts; processed messages will be seen again")
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
