package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore backs the registry with the tcp_commands table. The upsert
// runs as a single INSERT ... ON CONFLICT statement, so a crash mid-ingest
// never leaves a partially written row visible to readers.
//
// Schema:
//
//	CREATE TABLE tcp_commands (
//	    command_hash     TEXT PRIMARY KEY,
//	    command_name     TEXT NOT NULL,
//	    descriptor       BYTEA NOT NULL,
//	    family           TEXT NOT NULL DEFAULT '',
//	    source           TEXT NOT NULL,
//	    confidence       DOUBLE PRECISION NOT NULL,
//	    validation_count INTEGER NOT NULL,
//	    provenance       JSONB NOT NULL DEFAULT '[]',
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, key string, entry *Entry) error {
	prov, err := json.Marshal(entry.Provenance)
	if err != nil {
		return fmt.Errorf("PostgresStore.Put: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tcp_commands (
			command_hash, command_name, descriptor, family, source,
			confidence, validation_count, provenance, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (command_hash) DO UPDATE SET
			descriptor       = EXCLUDED.descriptor,
			family           = EXCLUDED.family,
			source           = EXCLUDED.source,
			confidence       = EXCLUDED.confidence,
			validation_count = EXCLUDED.validation_count,
			provenance       = EXCLUDED.provenance,
			updated_at       = EXCLUDED.updated_at
	`, key, entry.Command, entry.Descriptor, entry.Family, entry.Source,
		entry.Confidence, entry.ValidationCount, prov, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("PostgresStore.Put: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT command_name, descriptor, family, source, confidence,
		       validation_count, provenance, created_at, updated_at
		FROM tcp_commands
		WHERE command_hash = $1
	`, key)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("PostgresStore.Get: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Entry, error) {
	// A single statement reads at one MVCC snapshot, which is what keeps
	// Export deterministic under concurrent ingestion.
	rows, err := s.db.QueryContext(ctx, `
		SELECT command_name, descriptor, family, source, confidence,
		       validation_count, provenance, created_at, updated_at
		FROM tcp_commands
		ORDER BY command_name
	`)
	if err != nil {
		return nil, fmt.Errorf("PostgresStore.List: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("PostgresStore.List: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PostgresStore.List: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tcp_commands`).Scan(&n); err != nil {
		return 0, fmt.Errorf("PostgresStore.Count: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e    Entry
		prov []byte
	)
	if err := row.Scan(
		&e.Command, &e.Descriptor, &e.Family, &e.Source, &e.Confidence,
		&e.ValidationCount, &prov, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(prov) > 0 {
		if err := json.Unmarshal(prov, &e.Provenance); err != nil {
			return nil, fmt.Errorf("scanEntry: provenance: %w", err)
		}
	}
	return &e, nil
}
