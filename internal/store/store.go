// Package store persists the corpus in libSQL: the append-only artifact
// table with vector-searchable embedding columns, ingredients with
// their join rows, relations, the seeded type taxonomy, sessions, and
// the per-session checkpoint log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/model"
)

// Store wraps the libSQL connection. All writers go through
// transactions here; the corpus index is a read-only view refreshed
// from this store.
type Store struct {
	db   *sql.DB
	dims int
}

// Open connects to the database, applies the schema, and seeds the
// taxonomy. dims fixes the F32_BLOB width of every embedding column.
func Open(ctx context.Context, cfg model.StoreConfig, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, errs.NewFatal("store", fmt.Errorf("embedding dimensions must be positive, got %d", dims))
	}

	url := cfg.URL
	if cfg.AuthToken != "" && !strings.HasPrefix(url, "file:") {
		url += "?authToken=" + cfg.AuthToken
	}
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, errs.NewFatal("open store", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.NewFatal("store unreachable", err)
	}

	s := &Store{db: db, dims: dims}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.dims) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errs.NewFatal("apply schema", err)
		}
	}
	return s.seedTaxonomy(ctx)
}

// seedTaxonomy inserts the built-in structure types, leaving existing
// rows untouched.
func (s *Store) seedTaxonomy(ctx context.Context) error {
	for _, entry := range model.SeedTaxonomy() {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO structure_types (name, description, parent, is_proposed) VALUES (?, ?, ?, 0)`,
			entry.Name, entry.Description, entry.Parent)
		if err != nil {
			return errs.NewFatal("seed taxonomy", err)
		}
	}
	return nil
}

// ListTaxonomy returns every structure type, seeded and proposed.
func (s *Store) ListTaxonomy(ctx context.Context) ([]model.StructureTypeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, COALESCE(parent, ''), is_proposed FROM structure_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list taxonomy: %w", err)
	}
	defer rows.Close()

	var out []model.StructureTypeEntry
	for rows.Next() {
		var entry model.StructureTypeEntry
		var proposed int
		if err := rows.Scan(&entry.Name, &entry.Description, &entry.Parent, &proposed); err != nil {
			return nil, fmt.Errorf("scan taxonomy row: %w", err)
		}
		entry.IsProposed = proposed != 0
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ProposeType adds a curated taxonomy entry flagged is_proposed.
func (s *Store) ProposeType(ctx context.Context, entry model.StructureTypeEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO structure_types (name, description, parent, is_proposed) VALUES (?, ?, ?, 1)`,
		entry.Name, entry.Description, entry.Parent)
	if err != nil {
		return fmt.Errorf("propose type %q: %w", entry.Name, err)
	}
	return nil
}
