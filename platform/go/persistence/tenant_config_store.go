package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

const tenantsTable = "tenants"

// ErrTenantNotFound is returned by status changes on an unknown tenant.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantConfigStore persists tenant configurations in the tenants table.
type TenantConfigStore struct {
	pool *pgxpool.Pool
}

// NewTenantConfigStore wires the store to an existing pool.
func NewTenantConfigStore(pool *pgxpool.Pool) (*TenantConfigStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TenantConfigStore{pool: pool}, nil
}

// GetTenant loads one record. A missing row yields found=false with a nil error.
func (s *TenantConfigStore) GetTenant(ctx context.Context, clientID string) (tenantconfig.StoredTenant, bool, error) {
	query := fmt.Sprintf(`
		SELECT client_id, display_name, short_name, timezone, currency, config, config_source, status
		FROM %s
		WHERE client_id = $1
	`, tenantsTable)

	rec, err := scanStoredTenant(s.pool.QueryRow(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tenantconfig.StoredTenant{}, false, nil
		}
		return tenantconfig.StoredTenant{}, false, fmt.Errorf("get tenant %s: %w", clientID, err)
	}
	return rec, true, nil
}

// UpsertTenant writes the full record keyed by client_id. Existing rows are reactivated and
// flagged as database-sourced.
func (s *TenantConfigStore) UpsertTenant(ctx context.Context, rec tenantconfig.StoredTenant) error {
	config := rec.Config
	if len(config) == 0 {
		config = []byte("{}")
	}
	source := rec.Source
	if source == "" {
		source = tenantconfig.SourceDatabase
	}
	status := rec.Status
	if status == "" {
		status = tenantconfig.StatusActive
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (client_id, display_name, short_name, timezone, currency, config, config_source, status)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		ON CONFLICT (client_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			short_name = EXCLUDED.short_name,
			timezone = EXCLUDED.timezone,
			currency = EXCLUDED.currency,
			config = EXCLUDED.config,
			config_source = EXCLUDED.config_source,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, tenantsTable)

	if _, err := s.pool.Exec(ctx, query,
		rec.ClientID,
		rec.DisplayName,
		rec.ShortName,
		rec.Timezone,
		rec.Currency,
		string(config),
		string(source),
		status,
	); err != nil {
		return fmt.Errorf("upsert tenant %s: %w", rec.ClientID, err)
	}
	return nil
}

// ListActiveTenantIDs returns the ids of active tenants ordered by id.
func (s *TenantConfigStore) ListActiveTenantIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT client_id FROM %s WHERE status = $1 ORDER BY client_id`, tenantsTable)

	rows, err := s.pool.Query(ctx, query, tenantconfig.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan tenants: %w", err)
	}
	return ids, nil
}

// SetStatus flips a tenant between active and inactive. Rows are never deleted.
func (s *TenantConfigStore) SetStatus(ctx context.Context, clientID, status string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = NOW() WHERE client_id = $1`, tenantsTable)
	tag, err := s.pool.Exec(ctx, query, clientID, status)
	if err != nil {
		return fmt.Errorf("set tenant status %s: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func scanStoredTenant(row pgx.Row) (tenantconfig.StoredTenant, error) {
	var (
		rec    tenantconfig.StoredTenant
		config []byte
		source string
	)
	if err := row.Scan(
		&rec.ClientID,
		&rec.DisplayName,
		&rec.ShortName,
		&rec.Timezone,
		&rec.Currency,
		&config,
		&source,
		&rec.Status,
	); err != nil {
		return tenantconfig.StoredTenant{}, err
	}
	rec.Config = config
	rec.Source = tenantconfig.Source(source)
	return rec, nil
}

var _ tenantconfig.Store = (*TenantConfigStore)(nil)
