package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// buildTenantConfigService assembles the resolver: Redis or in-process cache, Postgres store
// and a local or GCS file source. The returned func releases the clients it opened.
func buildTenantConfigService(ctx context.Context, cfg config, pool *pgxpool.Pool, metrics *tenantconfig.Metrics, logger *zap.Logger) (*tenantconfig.Service, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := persistence.NewTenantConfigStore(pool)
	if err != nil {
		return nil, nil, fmt.Errorf("init tenant config store: %w", err)
	}

	var cache tenantconfig.Cache
	if cfg.RedisURL != "" {
		client, err := tenantconfig.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			// The resolver works without a shared cache; only latency suffers.
			logger.Warn("redis unavailable; using in-process tenant config cache", zap.Error(err))
			cache = tenantconfig.NewMemoryCache(cfg.TenantCacheTTL)
		} else {
			closers = append(closers, func() { _ = client.Close() })
			cache = tenantconfig.NewRedisCache(client, "")
		}
	} else {
		cache = tenantconfig.NewMemoryCache(cfg.TenantCacheTTL)
	}

	var files tenantconfig.FileSource
	switch cfg.TenantConfigBackend {
	case "local":
		files = tenantconfig.NewLocalFileSource(cfg.TenantConfigDir)
	case "gcs":
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("init gcs client: %w", err)
		}
		closers = append(closers, func() { _ = gcsClient.Close() })
		gcsFiles, err := tenantconfig.NewGCSFileSource(gcsClient, cfg.TenantConfigBucket, cfg.TenantConfigPrefix)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = gcsFiles
	default:
		closeAll()
		return nil, nil, fmt.Errorf("invalid TENANT_CONFIG_BACKEND %q (use local or gcs)", cfg.TenantConfigBackend)
	}

	validator, err := tenantconfig.NewValidator()
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	svc := tenantconfig.NewService(tenantconfig.Options{
		Store:        store,
		Files:        files,
		Cache:        cache,
		CacheTTL:     cfg.TenantCacheTTL,
		StoreTimeout: cfg.TenantStoreTimeout,
		YAMLOnly:     cfg.YAMLOnlyTenants,
		Validator:    validator,
		Metrics:      metrics,
		Logger:       logger.Named("tenant-config"),
	})
	return svc, closeAll, nil
}
