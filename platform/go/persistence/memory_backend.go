package persistence

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	sq "github.com/Masterminds/squirrel"
)

// MemoryBackend is an in-process Backend for tests and local demos. It honours Where, Limit
// and Offset; ordering is insertion order.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string][]Row)}
}

func (m *MemoryBackend) Select(_ context.Context, table string, q Query) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Row
	skipped := uint64(0)
	for _, row := range m.tables[table] {
		if !matches(row, q.Where) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, copyRow(row))
		if q.Limit > 0 && uint64(len(out)) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryBackend) Insert(_ context.Context, table string, values Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.tables[table] {
		if row[idColumn] == values[idColumn] {
			return nil, fmt.Errorf("insert %s: duplicate id %v", table, values[idColumn])
		}
	}
	stored := copyRow(values)
	m.tables[table] = append(m.tables[table], stored)
	return copyRow(stored), nil
}

func (m *MemoryBackend) Update(_ context.Context, table string, set Row, where sq.Eq) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Row
	for i, row := range m.tables[table] {
		if !matches(row, where) {
			continue
		}
		updated := copyRow(row)
		for k, v := range set {
			updated[k] = v
		}
		m.tables[table][i] = updated
		out = append(out, copyRow(updated))
	}
	return out, nil
}

func (m *MemoryBackend) Delete(_ context.Context, table string, where sq.Eq) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.tables[table][:0]
	var removed int64
	for _, row := range m.tables[table] {
		if matches(row, where) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	m.tables[table] = kept
	return removed, nil
}

func matches(row Row, where sq.Eq) bool {
	for column, want := range where {
		got, ok := row[column]
		if !ok {
			return false
		}
		if !valueMatches(got, want) {
			return false
		}
	}
	return true
}

func valueMatches(got, want any) bool {
	rv := reflect.ValueOf(want)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			if fmt.Sprint(got) == fmt.Sprint(rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func copyRow(in Row) Row {
	out := make(Row, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Backend = (*MemoryBackend)(nil)
