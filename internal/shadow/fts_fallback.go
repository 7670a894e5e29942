//go:build !sqlite_fts5

package shadow

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback over nodes.content.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _, _ string) error {
	// Content is already stored in the nodes table; nothing extra to do.
	return nil
}

func ftsDeleteProject(_ *sql.Tx, _ string) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT project_id, node_id, branch, substr(content, 1, 200)
		FROM nodes
		WHERE type = 'message' AND content LIKE ?
		LIMIT ?
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("shadow: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ProjectID, &r.NodeID, &r.Branch, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
