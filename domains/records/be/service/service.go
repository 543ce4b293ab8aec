package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tourdesk/tourdesk-saas/platform/go/logging"
	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/requesttrace"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenant"
)

// ErrNoTenant is returned when a call reaches the service without a resolved tenant.
var ErrNoTenant = errors.New("tenant space missing from context")

const maxPageSize = 200

// ListOptions filters and pages a table listing. Filters are column equality matches.
type ListOptions struct {
	Filters map[string]any
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Service is tenant-scoped CRUD over the operational tables.
type Service interface {
	List(ctx context.Context, table string, opts ListOptions) ([]persistence.Row, error)
	Get(ctx context.Context, table, id string) (persistence.Row, error)
	Create(ctx context.Context, audit requesttrace.AuditInfo, table string, values persistence.Row) (persistence.Row, error)
	Update(ctx context.Context, audit requesttrace.AuditInfo, table, id string, patch persistence.Row) (persistence.Row, error)
	Delete(ctx context.Context, audit requesttrace.AuditInfo, table, id string) error
}

type service struct {
	backend persistence.Backend
}

// New constructs the records service. A TenantStore is bound per call to the tenant on the
// context, so a store can never outlive the request it was built for.
func New(backend persistence.Backend) Service {
	if backend == nil {
		panic("records backend is required")
	}
	return &service{backend: backend}
}

func (s *service) storeFor(ctx context.Context, table string) (*persistence.TenantStore, persistence.Table, error) {
	space, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, "", ErrNoTenant
	}
	t, err := persistence.ParseTable(table)
	if err != nil {
		return nil, "", err
	}
	store, err := persistence.NewTenantStore(s.backend, space.Config)
	if err != nil {
		return nil, "", err
	}
	return store, t, nil
}

func (s *service) List(ctx context.Context, table string, opts ListOptions) ([]persistence.Row, error) {
	store, t, err := s.storeFor(ctx, table)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	return store.List(ctx, t, persistence.ListParams{
		Filters: opts.Filters,
		OrderBy: opts.OrderBy,
		Desc:    opts.Desc,
		Limit:   uint64(limit),
		Offset:  uint64(offset),
	})
}

func (s *service) Get(ctx context.Context, table, id string) (persistence.Row, error) {
	store, t, err := s.storeFor(ctx, table)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, t, id)
}

func (s *service) Create(ctx context.Context, audit requesttrace.AuditInfo, table string, values persistence.Row) (persistence.Row, error) {
	store, t, err := s.storeFor(ctx, table)
	if err != nil {
		return nil, err
	}
	row, err := store.Create(ctx, t, values)
	if err != nil {
		return nil, err
	}
	auditLogger(ctx, audit).Info("record created", zap.String("table", string(t)), zap.Any("record_id", row["id"]))
	return row, nil
}

func (s *service) Update(ctx context.Context, audit requesttrace.AuditInfo, table, id string, patch persistence.Row) (persistence.Row, error) {
	store, t, err := s.storeFor(ctx, table)
	if err != nil {
		return nil, err
	}
	row, err := store.Update(ctx, t, id, patch)
	if err != nil {
		return nil, err
	}
	auditLogger(ctx, audit).Info("record updated", zap.String("table", string(t)), zap.String("record_id", id))
	return row, nil
}

func (s *service) Delete(ctx context.Context, audit requesttrace.AuditInfo, table, id string) error {
	store, t, err := s.storeFor(ctx, table)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, t, id); err != nil {
		return err
	}
	auditLogger(ctx, audit).Info("record deleted", zap.String("table", string(t)), zap.String("record_id", id))
	return nil
}

func auditLogger(ctx context.Context, audit requesttrace.AuditInfo) *zap.Logger {
	logger, ok := logging.FromContext(ctx)
	if !ok {
		logger = zap.NewNop()
	}
	return logger.With(audit.Fields()...)
}
