// Package cliconfig wires the tenant configuration resolver for CLI commands from the same
// environment variables the API server reads.
package cliconfig

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// Settings mirrors the API server's tenant configuration variables.
type Settings struct {
	DatabaseURL         string   `env:"DATABASE_URL"`
	RedisURL            string   `env:"REDIS_URL"`
	TenantConfigBackend string   `env:"TENANT_CONFIG_BACKEND" envDefault:"local"`
	TenantConfigDir     string   `env:"TENANT_CONFIG_DIR" envDefault:"./clients"`
	TenantConfigBucket  string   `env:"TENANT_CONFIG_BUCKET"`
	TenantConfigPrefix  string   `env:"TENANT_CONFIG_PREFIX" envDefault:"clients/"`
	YAMLOnlyTenants     []string `env:"YAML_ONLY_TENANTS" envSeparator:","`
	LogLevel            string   `env:"LOG_LEVEL" envDefault:"warn"`
}

// Load parses Settings from the environment.
func Load() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// BindFlags registers the persistent flags that override the environment.
func BindFlags(cmd *cobra.Command, s *Settings) {
	cmd.PersistentFlags().StringVar(&s.DatabaseURL, "database-url", "", "PostgreSQL connection string (default $DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&s.RedisURL, "redis-url", "", "Redis URL of the shared tenant config cache (default $REDIS_URL)")
	cmd.PersistentFlags().StringVar(&s.TenantConfigDir, "config-dir", "", "Directory holding <client_id>/client.yaml (default $TENANT_CONFIG_DIR)")
}

// Resolve fills s from the environment, keeping values of flags set on the command line.
// It runs at execution time so a .env loaded by main is honoured.
func Resolve(cmd *cobra.Command, s *Settings) error {
	loaded, err := Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("database-url") {
		loaded.DatabaseURL = s.DatabaseURL
	}
	if flags.Changed("redis-url") {
		loaded.RedisURL = s.RedisURL
	}
	if flags.Changed("config-dir") {
		loaded.TenantConfigDir = s.TenantConfigDir
	}
	*s = loaded
	return nil
}

// Deps are the clients a CLI command works with.
type Deps struct {
	Pool     *pgxpool.Pool
	Store    *persistence.TenantConfigStore
	Resolver *tenantconfig.Service
	Logger   *zap.Logger
	close    []func()
}

// Close releases every client opened by Open.
func (d *Deps) Close() {
	for i := len(d.close) - 1; i >= 0; i-- {
		d.close[i]()
	}
}

// Open connects to Postgres (and Redis when configured) and builds the resolver.
func Open(ctx context.Context, s Settings) (*Deps, error) {
	if s.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required (--database-url or DATABASE_URL)")
	}

	logger, err := logging.NewLogger(logging.Config{Component: "cli", Level: s.LogLevel, Output: os.Stderr})
	if err != nil {
		return nil, err
	}
	d := &Deps{Logger: logger}

	d.Pool, err = persistence.NewPool(ctx, persistence.PoolConfig{ConnString: s.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}
	d.close = append(d.close, func() { persistence.ClosePool(d.Pool) })

	d.Store, err = persistence.NewTenantConfigStore(d.Pool)
	if err != nil {
		d.Close()
		return nil, err
	}

	var cache tenantconfig.Cache
	if s.RedisURL != "" {
		client, err := tenantconfig.ConnectRedis(ctx, s.RedisURL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.close = append(d.close, func() { _ = client.Close() })
		cache = tenantconfig.NewRedisCache(client, "")
	}

	var files tenantconfig.FileSource
	switch s.TenantConfigBackend {
	case "local":
		files = tenantconfig.NewLocalFileSource(s.TenantConfigDir)
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		d.close = append(d.close, func() { _ = client.Close() })
		gcsFiles, err := tenantconfig.NewGCSFileSource(client, s.TenantConfigBucket, s.TenantConfigPrefix)
		if err != nil {
			d.Close()
			return nil, err
		}
		files = gcsFiles
	default:
		d.Close()
		return nil, fmt.Errorf("invalid TENANT_CONFIG_BACKEND %q (use local or gcs)", s.TenantConfigBackend)
	}

	validator, err := tenantconfig.NewValidator()
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Resolver = tenantconfig.NewService(tenantconfig.Options{
		Store:     d.Store,
		Files:     files,
		Cache:     cache,
		YAMLOnly:  s.YAMLOnlyTenants,
		Validator: validator,
		Logger:    logger,
	})
	return d, nil
}
