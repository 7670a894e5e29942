//go:build sqlite_fts5

package shadow

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			project_id UNINDEXED,
			node_id UNINDEXED,
			branch UNINDEXED,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, projectID, nodeID, branch, content string) error {
	_, _ = tx.Exec(`DELETE FROM messages_fts WHERE project_id = ? AND node_id = ?`, projectID, nodeID)
	_, err := tx.Exec(`INSERT INTO messages_fts (project_id, node_id, branch, content) VALUES (?, ?, ?, ?)`,
		projectID, nodeID, branch, content)
	if err != nil {
		return fmt.Errorf("shadow: upsert fts: %w", err)
	}
	return nil
}

func ftsDeleteProject(tx *sql.Tx, projectID string) {
	_, _ = tx.Exec(`DELETE FROM messages_fts WHERE project_id = ?`, projectID)
}

// Search performs an FTS5 full-text search over mirrored message content.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT project_id,
		       node_id,
		       branch,
		       snippet(messages_fts, 3, '<b>', '</b>', '...', 64)
		FROM messages_fts
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
