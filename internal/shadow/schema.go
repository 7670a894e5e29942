// Package shadow mirrors ledger and artefact writes into SQLite. The
// mirror is best-effort and never authoritative: the git commit is the
// sole source of truth, and shadow failures are logged, not propagated.
package shadow

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	project_id TEXT NOT NULL,
	node_id    TEXT NOT NULL,
	branch     TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	parent     TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (project_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_nodes_branch ON nodes(project_id, branch);

CREATE TABLE IF NOT EXISTS artefacts (
	project_id TEXT NOT NULL,
	branch     TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (project_id, branch)
);

CREATE TABLE IF NOT EXISTS ledgers (
	project_id TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT ''
);
`

// DB wraps a sql.DB with mirror-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("shadow: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("shadow: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("shadow: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("shadow: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
