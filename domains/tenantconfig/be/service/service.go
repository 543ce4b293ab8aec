package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/requesttrace"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// Resolver is the subset of tenantconfig.Service the admin API drives.
type Resolver interface {
	GetConfig(ctx context.Context, clientID string) (tenantconfig.TenantConfig, error)
	SaveConfig(ctx context.Context, clientID string, cfg tenantconfig.TenantConfig) error
	ListTenants(ctx context.Context, includeFiles bool) []string
	Invalidate(ctx context.Context, clientID string)
	InvalidateAllCache(ctx context.Context)
}

// Service exposes tenant configuration to platform administrators. Secrets never leave it
// unmasked.
type Service interface {
	List(ctx context.Context, includeFiles bool) []string
	Get(ctx context.Context, clientID string) (map[string]any, error)
	Save(ctx context.Context, audit requesttrace.AuditInfo, clientID string, cfg tenantconfig.TenantConfig) error
	Invalidate(ctx context.Context, audit requesttrace.AuditInfo, clientID string)
	InvalidateAll(ctx context.Context, audit requesttrace.AuditInfo)
}

type service struct {
	resolver Resolver
}

// New constructs the admin service.
func New(resolver Resolver) Service {
	if resolver == nil {
		panic("tenant config resolver is required")
	}
	return &service{resolver: resolver}
}

func (s *service) List(ctx context.Context, includeFiles bool) []string {
	return s.resolver.ListTenants(ctx, includeFiles)
}

func (s *service) Get(ctx context.Context, clientID string) (map[string]any, error) {
	cfg, err := s.resolver.GetConfig(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return cfg.Redacted()
}

func (s *service) Save(ctx context.Context, audit requesttrace.AuditInfo, clientID string, cfg tenantconfig.TenantConfig) error {
	if err := s.resolver.SaveConfig(ctx, clientID, cfg); err != nil {
		return err
	}
	auditLogger(ctx, audit).Info("tenant config saved", zap.String("target_client_id", clientID))
	return nil
}

func (s *service) Invalidate(ctx context.Context, audit requesttrace.AuditInfo, clientID string) {
	s.resolver.Invalidate(ctx, clientID)
	auditLogger(ctx, audit).Info("tenant config cache invalidated", zap.String("target_client_id", clientID))
}

func (s *service) InvalidateAll(ctx context.Context, audit requesttrace.AuditInfo) {
	s.resolver.InvalidateAllCache(ctx)
	auditLogger(ctx, audit).Info("tenant config cache flushed")
}

func auditLogger(ctx context.Context, audit requesttrace.AuditInfo) *zap.Logger {
	logger, ok := logging.FromContext(ctx)
	if !ok {
		logger = zap.NewNop()
	}
	return logger.With(audit.Fields()...)
}
