package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenant"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// Resolver produces the effective configuration of a tenant.
// Implemented by tenantconfig.Service.
type Resolver interface {
	GetConfig(ctx context.Context, clientID string) (tenantconfig.TenantConfig, error)
}

// WithTenantSpace resolves the request's client id and attaches tenant.Space to the context.
// A missing id is a 400, an unknown tenant a 404.
func WithTenantSpace(resolver Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, ok := tenant.ClientIDFromRequest(r)
			if !ok {
				http.Error(w, "client id required", http.StatusBadRequest)
				return
			}

			r = logging.AddRequestFields(r, zap.String("client_id", clientID))
			reqLogger := logging.FromRequest(r, logger.With(zap.String("client_id", clientID)))

			cfg, err := resolver.GetConfig(r.Context(), clientID)
			if err != nil {
				if errors.Is(err, tenantconfig.ErrNotFound) {
					reqLogger.Info("unknown tenant")
					http.Error(w, "tenant not found", http.StatusNotFound)
					return
				}
				reqLogger.Error("resolve tenant failed", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			ctx := tenant.WithSpace(r.Context(), tenant.Space{ClientID: clientID, Config: cfg})
			ctx = logging.WithLogger(ctx, reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant restricts a route group to requests acting for clientID.
func RequireTenant(clientID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			space, ok := tenant.FromContext(r.Context())
			if !ok || space.ClientID != clientID {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
