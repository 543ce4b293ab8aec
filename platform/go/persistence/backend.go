package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is one operational record keyed by column name.
type Row map[string]any

// Query narrows a Select.
type Query struct {
	Where   sq.Eq
	OrderBy []string
	Limit   uint64
	Offset  uint64
}

// Backend executes the generic statements behind TenantStore. Table and column names reaching
// a Backend have already been checked against the table catalogue.
type Backend interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, values Row) (Row, error)
	Update(ctx context.Context, table string, set Row, where sq.Eq) ([]Row, error)
	Delete(ctx context.Context, table string, where sq.Eq) (int64, error)
}

// PostgresBackend builds statements with squirrel and runs them on a pgx pool.
// Rows come back through to_jsonb so uuids, numerics and timestamps decode as JSON scalars.
type PostgresBackend struct {
	pool    *pgxpool.Pool
	builder sq.StatementBuilderType
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	if pool == nil {
		panic("PostgresBackend requires pool")
	}
	return &PostgresBackend{
		pool:    pool,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (b *PostgresBackend) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	stmt := b.builder.
		Select("to_jsonb(t)").
		From(table + " AS t").
		Where(q.Where).
		OrderBy(q.OrderBy...)
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}
	if q.Offset > 0 {
		stmt = stmt.Offset(q.Offset)
	}

	sql, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s: %w", table, err)
	}
	return b.queryRows(ctx, table, sql, args)
}

func (b *PostgresBackend) Insert(ctx context.Context, table string, values Row) (Row, error) {
	sql, args, err := b.builder.
		Insert(table).
		SetMap(map[string]any(values)).
		Suffix(returningJSON(table)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert %s: %w", table, err)
	}

	rows, err := b.queryRows(ctx, table, sql, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s returned no row", table)
	}
	return rows[0], nil
}

func (b *PostgresBackend) Update(ctx context.Context, table string, set Row, where sq.Eq) ([]Row, error) {
	sql, args, err := b.builder.
		Update(table).
		SetMap(map[string]any(set)).
		Where(where).
		Suffix(returningJSON(table)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update %s: %w", table, err)
	}
	return b.queryRows(ctx, table, sql, args)
}

func (b *PostgresBackend) Delete(ctx context.Context, table string, where sq.Eq) (int64, error) {
	sql, args, err := b.builder.Delete(table).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete %s: %w", table, err)
	}
	tag, err := b.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (b *PostgresBackend) queryRows(ctx context.Context, table, sql string, args []any) ([]Row, error) {
	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}

	raw, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}

	out := make([]Row, 0, len(raw))
	for _, doc := range raw {
		var row Row
		if err := json.Unmarshal(doc, &row); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func returningJSON(table string) string {
	return fmt.Sprintf("RETURNING to_jsonb(%s.*)", table)
}

var _ Backend = (*PostgresBackend)(nil)
