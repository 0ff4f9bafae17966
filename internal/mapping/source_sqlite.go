package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteSource serves mappings from the process_mappings table. Intended for
// self-contained deployments that have no external mapping service.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource wraps an opened database (see storage.OpenSQLite).
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

func (s *SQLiteSource) FetchMapping(ctx context.Context, key Key) (Mapping, error) {
	var m Mapping
	err := s.db.QueryRowContext(ctx,
		`SELECT process_id, process_version FROM process_mappings
		 WHERE tenant_id = ? AND operation_id = ? AND product_id = ? AND channel = ?;`,
		key.TenantID, key.OperationID, key.ProductID, key.Channel,
	).Scan(&m.ProcessID, &m.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Mapping{}, ErrNoMapping
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("read process mapping: %w", err)
	}
	return m, nil
}

// Upsert writes one mapping row. Used by tests and operational tooling.
func (s *SQLiteSource) Upsert(ctx context.Context, key Key, m Mapping) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO process_mappings (tenant_id, operation_id, product_id, channel, process_id, process_version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (tenant_id, operation_id, product_id, channel)
		 DO UPDATE SET process_id = excluded.process_id,
		               process_version = excluded.process_version,
		               updated_at = excluded.updated_at;`,
		key.TenantID, key.OperationID, key.ProductID, key.Channel, m.ProcessID, m.Version)
	if err != nil {
		return fmt.Errorf("upsert process mapping: %w", err)
	}
	return nil
}
