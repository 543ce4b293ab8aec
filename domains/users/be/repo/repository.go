package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tourdesk/tourdesk-saas/platform/go/persistence"
	"github.com/tourdesk/tourdesk-saas/platform/go/tenant"
)

// ErrNoTenant is returned when a call reaches the repository without a tenant on the context.
var ErrNoTenant = errors.New("tenant space missing from context")

// Repository defines the persistence operations required by the users service.
// Every call is scoped to the tenant on the context.
type Repository interface {
	List(ctx context.Context, params persistence.ListAppUsersParams) (persistence.ListAppUsersResult, error)
	Create(ctx context.Context, params persistence.CreateAppUserParams) (persistence.AppUser, error)
	Deactivate(ctx context.Context, id uuid.UUID) (persistence.AppUser, error)
}

type postgresRepository struct {
	store *persistence.AppUserStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.AppUserStore) Repository {
	if store == nil {
		panic("app user store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) List(ctx context.Context, params persistence.ListAppUsersParams) (persistence.ListAppUsersResult, error) {
	space, err := requireTenantSpace(ctx)
	if err != nil {
		return persistence.ListAppUsersResult{}, err
	}
	return r.store.ListUsers(ctx, space.ClientID, params)
}

func (r *postgresRepository) Create(ctx context.Context, params persistence.CreateAppUserParams) (persistence.AppUser, error) {
	space, err := requireTenantSpace(ctx)
	if err != nil {
		return persistence.AppUser{}, err
	}
	return r.store.CreateUser(ctx, space.ClientID, params)
}

func (r *postgresRepository) Deactivate(ctx context.Context, id uuid.UUID) (persistence.AppUser, error) {
	space, err := requireTenantSpace(ctx)
	if err != nil {
		return persistence.AppUser{}, err
	}
	return r.store.DeactivateUser(ctx, space.ClientID, id)
}

func requireTenantSpace(ctx context.Context) (tenant.Space, error) {
	space, ok := tenant.FromContext(ctx)
	if !ok || space.ClientID == "" {
		return tenant.Space{}, ErrNoTenant
	}
	return space, nil
}
