package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kirimku/coverage-analyzer/internal/coverage"
)

// SQLiteCatalog is a coverage.PartLookup backed by a part_catalog
// table in a SQLite database, for catalogs too large to comfortably
// hold in memory. Schema:
//
//	CREATE TABLE part_catalog (
//	    part_number TEXT PRIMARY KEY,
//	    system TEXT NOT NULL,
//	    component TEXT NOT NULL,
//	    component_description TEXT,
//	    covered INTEGER, -- NULL unknown, 0 false, 1 true
//	    note TEXT
//	);
type SQLiteCatalog struct {
	db *sql.DB
}

// OpenSQLiteCatalog opens (or creates) the database at dsn using the
// pure-Go modernc.org/sqlite driver, avoiding a cgo dependency for a
// read-mostly lookup table.
func OpenSQLiteCatalog(dsn string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite catalog %q: %w", dsn, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS part_catalog (
		part_number TEXT PRIMARY KEY,
		system TEXT NOT NULL,
		component TEXT NOT NULL,
		component_description TEXT,
		covered INTEGER,
		note TEXT
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating part_catalog table: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// Upsert inserts or replaces one catalog entry.
func (c *SQLiteCatalog) Upsert(e Entry) error {
	var covered interface{}
	if e.Covered != nil {
		if *e.Covered {
			covered = 1
		} else {
			covered = 0
		}
	}
	_, err := c.db.Exec(
		`INSERT INTO part_catalog (part_number, system, component, component_description, covered, note)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(part_number) DO UPDATE SET
		   system=excluded.system, component=excluded.component,
		   component_description=excluded.component_description,
		   covered=excluded.covered, note=excluded.note`,
		normalizePartNumber(e.PartNumber), e.System, e.Component, e.ComponentDescription, covered, e.Note,
	)
	if err != nil {
		return fmt.Errorf("upserting part catalog entry %q: %w", e.PartNumber, err)
	}
	return nil
}

// Lookup implements coverage.PartLookup.
func (c *SQLiteCatalog) Lookup(itemCode string) (*coverage.PartLookupResult, error) {
	row := c.db.QueryRow(
		`SELECT system, component, component_description, covered, note FROM part_catalog WHERE part_number = ?`,
		normalizePartNumber(itemCode),
	)

	var system, component, description, note string
	var covered sql.NullInt64
	if err := row.Scan(&system, &component, &description, &covered, &note); err != nil {
		if err == sql.ErrNoRows {
			return &coverage.PartLookupResult{Found: false}, nil
		}
		return nil, fmt.Errorf("querying part catalog for %q: %w", itemCode, err)
	}

	result := &coverage.PartLookupResult{
		Found:                true,
		System:               system,
		Component:            component,
		ComponentDescription: description,
		PartNumber:           itemCode,
		LookupSource:         "sqlite_catalog",
		Note:                 note,
	}
	if covered.Valid {
		v := covered.Int64 != 0
		result.Covered = &v
	}
	return result, nil
}
