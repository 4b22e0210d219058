package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the shared database handle
type DB struct {
	*sql.DB
}

// NewDB connects to Postgres and ensures the schema exists
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &DB{db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS image_records (
	id              BIGSERIAL PRIMARY KEY,
	timestamp       TIMESTAMPTZ NOT NULL DEFAULT now(),
	filename        VARCHAR(255) NOT NULL,
	filepath        VARCHAR(512) NOT NULL,
	label           VARCHAR(50) NOT NULL DEFAULT 'unlabeled',
	cable_id        VARCHAR(100) NOT NULL DEFAULT '',
	file_size_bytes BIGINT NOT NULL DEFAULT 0,
	score           DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_image_records_filename ON image_records (filename);
CREATE INDEX IF NOT EXISTS idx_image_records_label ON image_records (label);
CREATE INDEX IF NOT EXISTS idx_image_records_cable_id ON image_records (cable_id);
CREATE INDEX IF NOT EXISTS idx_image_records_timestamp ON image_records (timestamp);
`
