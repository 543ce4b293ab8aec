package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/contracts"
	recordshandler "github.com/tourdesk/tourdesk-saas/domains/records/be/handler"
	recordsservice "github.com/tourdesk/tourdesk-saas/domains/records/be/service"
	tenantconfighandler "github.com/tourdesk/tourdesk-saas/domains/tenantconfig/be/handler"
	tenantconfigservice "github.com/tourdesk/tourdesk-saas/domains/tenantconfig/be/service"
	usershandler "github.com/tourdesk/tourdesk-saas/domains/users/be/handler"
	usersrepo "github.com/tourdesk/tourdesk-saas/domains/users/be/repo"
	usersservice "github.com/tourdesk/tourdesk-saas/domains/users/be/service"
	platformauth "github.com/tourdesk/tourdesk-saas/platform/go/auth"
	platformlogging "github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv          string        `env:"APP_ENV" envDefault:"development"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`

	RedisURL           string        `env:"REDIS_URL"`
	TenantCacheTTL     time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
	TenantStoreTimeout time.Duration `env:"TENANT_STORE_TIMEOUT" envDefault:"3s"`
	UserCacheTTL       time.Duration `env:"USER_CACHE_TTL" envDefault:"60s"`

	TenantConfigBackend string   `env:"TENANT_CONFIG_BACKEND" envDefault:"local"` // local | gcs
	TenantConfigDir     string   `env:"TENANT_CONFIG_DIR" envDefault:"./clients"`
	TenantConfigBucket  string   `env:"TENANT_CONFIG_BUCKET"` // required when TENANT_CONFIG_BACKEND=gcs
	TenantConfigPrefix  string   `env:"TENANT_CONFIG_PREFIX" envDefault:"clients/"`
	YAMLOnlyTenants     []string `env:"YAML_ONLY_TENANTS" envSeparator:","`

	AuthProvider        string `env:"AUTH_PROVIDER" envDefault:"supabase"` // supabase | firebase
	JWTSecret           string `env:"SUPABASE_JWT_SECRET"`
	JWTIssuer           string `env:"JWT_ISSUER"`
	JWTAudience         string `env:"JWT_AUDIENCE" envDefault:"authenticated"`
	JWTSkipVerification bool   `env:"JWT_SKIP_VERIFICATION" envDefault:"false"`

	PlatformClientID string `env:"PLATFORM_CLIENT_ID" envDefault:"tourdesk"`
}

func main() {
	if !platformauth.IsProductionEnv(os.Getenv("APP_ENV")) {
		// Local runs pick up .env; missing file is fine.
		_ = godotenv.Load()
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component:   "api-server",
		Level:       cfg.LogLevel,
		Environment: cfg.AppEnv,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Lazy so that file-backed tenants keep resolving while the database is unreachable.
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL, Lazy: true})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tenantConfigs, closeTenantConfigs, err := buildTenantConfigService(ctx, cfg, pool, tenantconfig.NewMetrics(registry), logger)
	if err != nil {
		logger.Fatal("init tenant config resolver", zap.Error(err))
	}
	defer closeTenantConfigs()

	verify, err := buildTokenVerifier(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init token verifier", zap.Error(err))
	}

	appUsers, err := persistence.NewAppUserStore(pool)
	if err != nil {
		logger.Fatal("init app user store", zap.Error(err))
	}
	userLookup := platformauth.NewUserLookup(appUsers, platformauth.UserLookupOptions{
		TTL:    cfg.UserCacheTTL,
		Logger: logger.Named("user-lookup"),
	})

	router, err := newRouter(routerDeps{
		Logger:           logger,
		Tenants:          tenantConfigs,
		Verify:           verify,
		Users:            userLookup,
		TenantConfig:     tenantconfighandler.New(tenantconfigservice.New(tenantConfigs), logger),
		Records:          recordshandler.New(recordsservice.New(persistence.NewPostgresBackend(pool)), logger),
		AppUsers:         usershandler.New(usersservice.New(usersrepo.NewPostgresRepository(appUsers)), logger),
		PlatformClientID: cfg.PlatformClientID,
		RequestTimeout:   cfg.RequestTimeout,
		Registry:         registry,
		Ready: func(ctx context.Context) error {
			return persistence.Ping(ctx, pool, 2*time.Second)
		},
		Contracts: contracts.Load,
	})
	if err != nil {
		logger.Fatal("build router", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server",
			zap.String("port", cfg.Port),
			zap.String("auth_provider", cfg.AuthProvider),
			zap.String("platform_client_id", cfg.PlatformClientID),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("api server stopped")
}
