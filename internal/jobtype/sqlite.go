package jobtype

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite is a Source backed by a read-only translation database with a
// job_type table. The table is maintained out of band; this source never
// writes.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the translation database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open translate db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS job_type (
		vendor TEXT NOT NULL,
		job_type TEXT NOT NULL,
		generic_type TEXT NOT NULL,
		predetermined INTEGER NOT NULL DEFAULT 0,
		item_uuid TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (vendor, job_type)
	) STRICT`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure job_type table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Lookup(ctx context.Context, vendor, jobType string) (*Type, error) {
	var t Type
	var predetermined int
	err := s.db.QueryRowContext(ctx, `
		SELECT vendor, job_type, generic_type, predetermined, item_uuid
		FROM job_type WHERE vendor = ? AND job_type = ?
	`, vendor, jobType).Scan(&t.Vendor, &t.JobType, &t.GenericType, &predetermined, &t.ItemUUID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup job type %s/%s: %w", vendor, jobType, err)
	}
	t.Predetermined = predetermined != 0
	return &t, nil
}

// Put inserts or replaces a type. Exposed for provisioning and tests.
func (s *SQLite) Put(ctx context.Context, t Type) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_type (vendor, job_type, generic_type, predetermined, item_uuid)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(vendor, job_type) DO UPDATE SET
			generic_type = excluded.generic_type,
			predetermined = excluded.predetermined,
			item_uuid = excluded.item_uuid
	`, t.Vendor, t.JobType, t.GenericType, boolInt(t.Predetermined), t.ItemUUID)
	if err != nil {
		return fmt.Errorf("put job type %s/%s: %w", t.Vendor, t.JobType, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
