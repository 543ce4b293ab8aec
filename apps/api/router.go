package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	recordshandler "github.com/tourdesk/tourdesk-saas/domains/records/be/handler"
	tenantconfighandler "github.com/tourdesk/tourdesk-saas/domains/tenantconfig/be/handler"
	usershandler "github.com/tourdesk/tourdesk-saas/domains/users/be/handler"
	platformauth "github.com/tourdesk/tourdesk-saas/platform/go/auth"
	platformlogging "github.com/tourdesk/tourdesk-saas/platform/go/logging"
	platformmiddleware "github.com/tourdesk/tourdesk-saas/platform/go/middleware"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	tenantmiddleware "github.com/tourdesk/tourdesk-saas/platform/go/tenant/middleware"
)

// routerDeps carries everything the HTTP surface needs. main wires production values; tests
// wire in-memory ones.
type routerDeps struct {
	Logger           *zap.Logger
	Tenants          tenantmiddleware.Resolver
	Verify           platformauth.VerifyFunc
	Users            platformauth.UserResolver
	TenantConfig     *tenantconfighandler.Handler
	Records          *recordshandler.Handler
	AppUsers         *usershandler.Handler
	PlatformClientID string
	RequestTimeout   time.Duration
	Registry         *prometheus.Registry
	Ready            func(ctx context.Context) error
	Contracts        contractLoader
}

func newRouter(d routerDeps) (http.Handler, error) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 15 * time.Second
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.PlatformClientID == "" {
		return nil, errors.New("platform client id is required")
	}

	validators := make(map[string]func(http.Handler) http.Handler, 3)
	for _, name := range []string{"records", "tenant-config", "users"} {
		doc, err := d.Contracts(name)
		if err != nil {
			return nil, fmt.Errorf("load %s contract: %w", name, err)
		}
		logSecuritySchemes(d.Logger, name, doc)
		validators[name] = platformmiddleware.ContractValidator(doc)
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(d.RequestTimeout),
		platformmiddleware.DefaultCORS(),
		platformmiddleware.HTTPMetrics(d.Registry),
	)
	rootRouter.Use(platformlogging.RequestLogger(d.Logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", readyHandler(d.Ready, d.Logger))
	rootRouter.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{Registry: d.Registry}))

	registerDocsRoutes(rootRouter, d.Contracts, d.Logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(tenantmiddleware.WithTenantSpace(d.Tenants, d.Logger))
	apiRouter.Use(platformauth.Authenticate(platformauth.MiddlewareConfig{
		Verify: d.Verify,
		Users:  d.Users,
		Logger: d.Logger,
	}))
	apiRouter.Use(platformmiddleware.RequestTrace)

	apiRouter.Group(func(r chi.Router) {
		r.Use(validators["records"])
		d.Records.ReadRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(platformauth.RequireRole(persistence.RoleConsultant))
			d.Records.WriteRoutes(r)
		})
	})

	apiRouter.Group(func(r chi.Router) {
		r.Use(validators["users"])
		d.AppUsers.Routes(r)
		r.Group(func(r chi.Router) {
			r.Use(platformauth.RequireRole(persistence.RoleAdmin))
			d.AppUsers.AdminRoutes(r)
		})
	})

	// Tenant configuration is operated by admins of the platform tenant only.
	apiRouter.Group(func(r chi.Router) {
		r.Use(tenantmiddleware.RequireTenant(d.PlatformClientID))
		r.Use(platformauth.RequireRole(persistence.RoleAdmin))
		r.Use(validators["tenant-config"])
		d.TenantConfig.Routes(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)
	return rootRouter, nil
}

func readyHandler(ready func(ctx context.Context) error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func logSecuritySchemes(logger *zap.Logger, name string, doc *openapi3.T) {
	names := make([]string, 0, len(doc.Components.SecuritySchemes))
	for scheme := range doc.Components.SecuritySchemes {
		names = append(names, scheme)
	}
	logger.Debug("loaded contract", zap.String("contract", name), zap.Strings("security_schemes", names))
}
