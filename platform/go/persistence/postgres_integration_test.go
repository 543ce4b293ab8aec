package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

func startPostgres(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tourdesk"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	require.NoError(t, BootstrapSchema(ctx, pool))
	// Running twice must be harmless.
	require.NoError(t, BootstrapSchema(ctx, pool))

	return ctx, pool
}

func TestPostgresStores(t *testing.T) {
	t.Parallel()

	ctx, pool := startPostgres(t)

	t.Run("tenant config store", func(t *testing.T) {
		store, err := NewTenantConfigStore(pool)
		require.NoError(t, err)

		_, found, err := store.GetTenant(ctx, "acme-co")
		require.NoError(t, err)
		require.False(t, found)

		cfg := tenantconfig.TenantConfig{ClientID: "acme-co", DisplayName: "Acme", Currency: "ZAR"}
		cfg.Infrastructure.VAPI.APIKey = "vapi-secret"
		cfg.Infrastructure.VAPI.AssistantID = "asst-1"
		rec, err := tenantconfig.ToStored(cfg)
		require.NoError(t, err)
		require.NoError(t, store.UpsertTenant(ctx, rec))

		got, found, err := store.GetTenant(ctx, "acme-co")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, tenantconfig.SourceDatabase, got.Source)
		require.Equal(t, tenantconfig.StatusActive, got.Status)
		require.NotContains(t, string(got.Config), "vapi-secret")
		require.Contains(t, string(got.Config), "asst-1")

		rec.DisplayName = "Acme Travel"
		require.NoError(t, store.UpsertTenant(ctx, rec))
		got, _, err = store.GetTenant(ctx, "acme-co")
		require.NoError(t, err)
		require.Equal(t, "Acme Travel", got.DisplayName)

		ids, err := store.ListActiveTenantIDs(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"acme-co"}, ids)

		require.NoError(t, store.SetStatus(ctx, "acme-co", "inactive"))
		ids, err = store.ListActiveTenantIDs(ctx)
		require.NoError(t, err)
		require.Empty(t, ids)
		require.ErrorIs(t, store.SetStatus(ctx, "ghost", "inactive"), ErrTenantNotFound)
	})

	t.Run("app user store", func(t *testing.T) {
		users, err := NewAppUserStore(pool)
		require.NoError(t, err)

		created, err := users.CreateUser(ctx, "acme-co", CreateAppUserParams{
			AuthUserID: "auth-123",
			Email:      "jo@acme.example",
			FullName:   "Jo Acme",
			Role:       RoleAdmin,
		})
		require.NoError(t, err)
		require.True(t, created.IsActive)

		_, err = users.CreateUser(ctx, "acme-co", CreateAppUserParams{AuthUserID: "auth-123", Email: "other@acme.example"})
		require.ErrorIs(t, err, ErrUserConflict)

		found, ok, err := users.FindActiveByAuthID(ctx, "acme-co", "auth-123")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, created.UserID, found.UserID)

		_, ok, err = users.FindActiveByAuthID(ctx, "beta-tours", "auth-123")
		require.NoError(t, err)
		require.False(t, ok)

		_, err = users.DeactivateUser(ctx, "beta-tours", created.UserID)
		require.ErrorIs(t, err, ErrUserNotFound)

		_, err = users.DeactivateUser(ctx, "acme-co", created.UserID)
		require.NoError(t, err)

		_, ok, err = users.FindActiveByAuthID(ctx, "acme-co", "auth-123")
		require.NoError(t, err)
		require.False(t, ok)

		listed, err := users.ListUsers(ctx, "acme-co", ListAppUsersParams{IncludeInactive: true})
		require.NoError(t, err)
		require.Equal(t, 1, listed.TotalItems)
	})

	t.Run("tenant store on postgres", func(t *testing.T) {
		backend := NewPostgresBackend(pool)
		storeA := mustTenantStore(t, backend, "acme-co")
		storeB := mustTenantStore(t, backend, "beta-tours")

		quote, err := storeA.Create(ctx, TableQuotes, Row{
			"destination":  "Victoria Falls",
			"total_amount": 12500.50,
			"currency":     "ZAR",
			"data":         map[string]any{"nights": 4},
		})
		require.NoError(t, err)
		require.Equal(t, "acme-co", quote["tenant_id"])
		require.Equal(t, "draft", quote["status"])

		id := quote["id"].(string)

		rows, err := storeB.List(ctx, TableQuotes, ListParams{})
		require.NoError(t, err)
		require.Empty(t, rows)

		_, err = storeB.Update(ctx, TableQuotes, id, Row{"status": "sent"})
		require.ErrorIs(t, err, ErrRecordNotFound)

		updated, err := storeA.Update(ctx, TableQuotes, id, Row{"status": "sent"})
		require.NoError(t, err)
		require.Equal(t, "sent", updated["status"])

		rows, err = storeA.List(ctx, TableQuotes, ListParams{Filters: map[string]any{"status": "sent"}, OrderBy: "destination"})
		require.NoError(t, err)
		require.Len(t, rows, 1)

		require.ErrorIs(t, storeB.Delete(ctx, TableQuotes, id), ErrRecordNotFound)
		require.NoError(t, storeA.Delete(ctx, TableQuotes, id))
	})
}
