package persistence

import (
	"context"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// recordingBackend wraps a Backend and remembers every predicate it was handed.
type recordingBackend struct {
	Backend
	wheres  []sq.Eq
	inserts []Row
}

func (r *recordingBackend) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	r.wheres = append(r.wheres, q.Where)
	return r.Backend.Select(ctx, table, q)
}

func (r *recordingBackend) Insert(ctx context.Context, table string, values Row) (Row, error) {
	r.inserts = append(r.inserts, values)
	return r.Backend.Insert(ctx, table, values)
}

func (r *recordingBackend) Update(ctx context.Context, table string, set Row, where sq.Eq) ([]Row, error) {
	r.wheres = append(r.wheres, where)
	return r.Backend.Update(ctx, table, set, where)
}

func (r *recordingBackend) Delete(ctx context.Context, table string, where sq.Eq) (int64, error) {
	r.wheres = append(r.wheres, where)
	return r.Backend.Delete(ctx, table, where)
}

func mustTenantStore(t *testing.T, backend Backend, clientID string) *TenantStore {
	t.Helper()
	store, err := NewTenantStore(backend, tenantconfig.TenantConfig{ClientID: clientID})
	require.NoError(t, err)
	return store
}

func TestTenantStoreIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	shared := NewMemoryBackend()
	storeA := mustTenantStore(t, shared, "acme-co")
	storeB := mustTenantStore(t, shared, "beta-tours")

	quoteA, err := storeA.Create(ctx, TableQuotes, Row{"destination": "Zanzibar", "status": "draft"})
	require.NoError(t, err)
	_, err = storeB.Create(ctx, TableQuotes, Row{"destination": "Kruger", "status": "draft"})
	require.NoError(t, err)

	rowsA, err := storeA.List(ctx, TableQuotes, ListParams{})
	require.NoError(t, err)
	require.Len(t, rowsA, 1)
	require.Equal(t, "acme-co", rowsA[0]["tenant_id"])

	rowsB, err := storeB.List(ctx, TableQuotes, ListParams{Filters: map[string]any{"status": "draft"}})
	require.NoError(t, err)
	require.Len(t, rowsB, 1)
	require.Equal(t, "Kruger", rowsB[0]["destination"])

	idA := quoteA["id"].(string)

	_, err = storeB.Get(ctx, TableQuotes, idA)
	require.ErrorIs(t, err, ErrRecordNotFound)

	_, err = storeB.Update(ctx, TableQuotes, idA, Row{"status": "sent"})
	require.ErrorIs(t, err, ErrRecordNotFound)

	require.ErrorIs(t, storeB.Delete(ctx, TableQuotes, idA), ErrRecordNotFound)

	still, err := storeA.Get(ctx, TableQuotes, idA)
	require.NoError(t, err)
	require.Equal(t, "draft", still["status"])
}

func TestTenantStoreEveryStatementIsScoped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := &recordingBackend{Backend: NewMemoryBackend()}
	store := mustTenantStore(t, backend, "acme-co")

	created, err := store.Create(ctx, TableTickets, Row{"subject": "Lost luggage"})
	require.NoError(t, err)
	id := created["id"].(string)

	_, err = store.List(ctx, TableTickets, ListParams{Filters: map[string]any{"priority": "normal"}})
	require.NoError(t, err)
	_, err = store.Get(ctx, TableTickets, id)
	require.NoError(t, err)
	_, err = store.Update(ctx, TableTickets, id, Row{"priority": "high"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, TableTickets, id))

	require.Len(t, backend.wheres, 4)
	for _, where := range backend.wheres {
		require.Equal(t, "acme-co", where["tenant_id"])
	}
	require.Len(t, backend.inserts, 1)
	require.Equal(t, "acme-co", backend.inserts[0]["tenant_id"])
}

func TestTenantStoreRejectsTenantOverride(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mustTenantStore(t, NewMemoryBackend(), "acme-co")

	_, err := store.Create(ctx, TableClients, Row{"full_name": "Jo", "tenant_id": "beta-tours"})
	require.ErrorIs(t, err, ErrTenantOverride)

	_, err = store.List(ctx, TableClients, ListParams{Filters: map[string]any{"tenant_id": "beta-tours"}})
	require.ErrorIs(t, err, ErrTenantOverride)

	created, err := store.Create(ctx, TableClients, Row{"full_name": "Jo", "tenant_id": "acme-co"})
	require.NoError(t, err)

	_, err = store.Update(ctx, TableClients, created["id"].(string), Row{"tenant_id": "beta-tours"})
	require.ErrorIs(t, err, ErrTenantOverride)
}

func TestTenantStoreValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mustTenantStore(t, NewMemoryBackend(), "acme-co")

	_, err := store.List(ctx, Table("users; drop table quotes"), ListParams{})
	require.ErrorIs(t, err, ErrUnknownTable)

	_, err = store.Create(ctx, TableQuotes, Row{"destination = 'x' --": "y"})
	require.ErrorIs(t, err, ErrUnknownColumn)

	_, err = store.List(ctx, TableQuotes, ListParams{OrderBy: "1; select"})
	require.ErrorIs(t, err, ErrUnknownColumn)

	_, err = store.Get(ctx, TableQuotes, "not-a-uuid")
	require.ErrorIs(t, err, ErrInvalidRecordID)

	_, err = store.Create(ctx, TableQuotes, Row{"id": "nope"})
	require.ErrorIs(t, err, ErrInvalidRecordID)

	id := uuid.NewString()
	created, err := store.Create(ctx, TableQuotes, Row{"id": id, "currency": "ZAR"})
	require.NoError(t, err)
	require.Equal(t, id, created["id"])

	_, err = NewTenantStore(NewMemoryBackend(), tenantconfig.TenantConfig{})
	require.Error(t, err)
}

func TestParseTable(t *testing.T) {
	t.Parallel()

	tbl, err := ParseTable(" Call_Records ")
	require.NoError(t, err)
	require.Equal(t, TableCallRecords, tbl)

	_, err = ParseTable("app_users")
	require.ErrorIs(t, err, ErrUnknownTable)

	require.Equal(t, []Table{TableCallRecords, TableClients, TableInvoices, TableQuotes, TableTickets}, Tables())
}
