package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/tourdesk/tourdesk-saas/platform/go/tenantconfig"
)

// Table names an operational table that carries tenant_id.
type Table string

const (
	TableQuotes      Table = "quotes"
	TableInvoices    Table = "invoices"
	TableClients     Table = "clients"
	TableTickets     Table = "tickets"
	TableCallRecords Table = "call_records"
)

const (
	tenantColumn    = "tenant_id"
	idColumn        = "id"
	updatedAtColumn = "updated_at"
	createdAtColumn = "created_at"
)

var (
	ErrUnknownTable    = errors.New("unknown table")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrRecordNotFound  = errors.New("record not found")
	ErrTenantOverride  = errors.New("tenant_id cannot be set by the caller")
	ErrInvalidRecordID = errors.New("invalid record id")
)

var commonColumns = []string{idColumn, tenantColumn, "status", "data", createdAtColumn, updatedAtColumn}

// tableColumns is the catalogue of writable and filterable columns per table.
var tableColumns = map[Table][]string{
	TableClients:     {"full_name", "email", "phone"},
	TableQuotes:      {"client_id", "quote_number", "destination", "total_amount", "currency"},
	TableInvoices:    {"quote_id", "invoice_number", "total_amount", "currency", "due_date"},
	TableTickets:     {"client_id", "subject", "priority"},
	TableCallRecords: {"call_id", "direction", "from_number", "to_number", "duration_seconds"},
}

// ParseTable maps a user supplied name onto the catalogue.
func ParseTable(name string) (Table, error) {
	t := Table(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := tableColumns[t]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

// Tables lists the catalogue in name order.
func Tables() []Table {
	out := make([]Table, 0, len(tableColumns))
	for t := range tableColumns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t Table) hasColumn(column string) bool {
	for _, c := range commonColumns {
		if c == column {
			return true
		}
	}
	for _, c := range tableColumns[t] {
		if c == column {
			return true
		}
	}
	return false
}

// ListParams narrows TenantStore.List.
type ListParams struct {
	Filters map[string]any
	OrderBy string
	Desc    bool
	Limit   uint64
	Offset  uint64
}

// TenantStore is the data access handle for one tenant. The tenant id is fixed at construction
// and every statement it issues carries tenant_id = <bound tenant>.
type TenantStore struct {
	backend  Backend
	tenantID string
	now      func() time.Time
}

// NewTenantStore binds a store to the tenant of a resolved config.
func NewTenantStore(backend Backend, cfg tenantconfig.TenantConfig) (*TenantStore, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("tenant config has no client_id")
	}
	return &TenantStore{backend: backend, tenantID: cfg.ClientID, now: time.Now}, nil
}

// TenantID returns the bound tenant.
func (s *TenantStore) TenantID() string {
	return s.tenantID
}

func (s *TenantStore) scope() sq.Eq {
	return sq.Eq{tenantColumn: s.tenantID}
}

// List returns the tenant's rows of table t.
func (s *TenantStore) List(ctx context.Context, t Table, p ListParams) ([]Row, error) {
	if _, err := ParseTable(string(t)); err != nil {
		return nil, err
	}

	where := s.scope()
	for column, value := range p.Filters {
		if err := s.checkTenantValue(column, value); err != nil {
			return nil, err
		}
		if column == tenantColumn {
			continue
		}
		if !t.hasColumn(column) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t, column)
		}
		where[column] = value
	}

	orderBy := createdAtColumn + " DESC"
	if p.OrderBy != "" {
		if !t.hasColumn(p.OrderBy) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t, p.OrderBy)
		}
		direction := " ASC"
		if p.Desc {
			direction = " DESC"
		}
		orderBy = p.OrderBy + direction
	}

	return s.backend.Select(ctx, string(t), Query{
		Where:   where,
		OrderBy: []string{orderBy},
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
}

// Get returns one row by id or ErrRecordNotFound.
func (s *TenantStore) Get(ctx context.Context, t Table, id string) (Row, error) {
	if _, err := ParseTable(string(t)); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidRecordID
	}

	where := s.scope()
	where[idColumn] = id

	rows, err := s.backend.Select(ctx, string(t), Query{Where: where, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrRecordNotFound
	}
	return rows[0], nil
}

// Create inserts values into t. tenant_id is always the bound tenant; id defaults to a new uuid.
func (s *TenantStore) Create(ctx context.Context, t Table, values Row) (Row, error) {
	if _, err := ParseTable(string(t)); err != nil {
		return nil, err
	}

	insert := Row{}
	for column, value := range values {
		if err := s.checkTenantValue(column, value); err != nil {
			return nil, err
		}
		if !t.hasColumn(column) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t, column)
		}
		insert[column] = value
	}

	if id, ok := insert[idColumn]; ok {
		str, _ := id.(string)
		if _, err := uuid.Parse(str); err != nil {
			return nil, ErrInvalidRecordID
		}
	} else {
		insert[idColumn] = uuid.NewString()
	}
	delete(insert, createdAtColumn)
	delete(insert, updatedAtColumn)
	insert[tenantColumn] = s.tenantID

	return s.backend.Insert(ctx, string(t), insert)
}

// Update applies patch to the row id of the bound tenant. id and tenant_id cannot change.
func (s *TenantStore) Update(ctx context.Context, t Table, id string, patch Row) (Row, error) {
	if _, err := ParseTable(string(t)); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidRecordID
	}

	set := Row{}
	for column, value := range patch {
		if err := s.checkTenantValue(column, value); err != nil {
			return nil, err
		}
		switch column {
		case tenantColumn, idColumn, createdAtColumn, updatedAtColumn:
			continue
		}
		if !t.hasColumn(column) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t, column)
		}
		set[column] = value
	}
	set[updatedAtColumn] = s.now().UTC()

	where := s.scope()
	where[idColumn] = id

	rows, err := s.backend.Update(ctx, string(t), set, where)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrRecordNotFound
	}
	return rows[0], nil
}

// Delete removes the row id of the bound tenant.
func (s *TenantStore) Delete(ctx context.Context, t Table, id string) error {
	if _, err := ParseTable(string(t)); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidRecordID
	}

	where := s.scope()
	where[idColumn] = id

	n, err := s.backend.Delete(ctx, string(t), where)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// checkTenantValue rejects any attempt to name a tenant other than the bound one.
func (s *TenantStore) checkTenantValue(column string, value any) error {
	if column != tenantColumn {
		return nil
	}
	if str, ok := value.(string); ok && str == s.tenantID {
		return nil
	}
	return ErrTenantOverride
}
