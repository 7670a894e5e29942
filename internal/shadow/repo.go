package shadow

import (
	"fmt"

	"github.com/starford/eihwaz/internal/checksum"
	"github.com/starford/eihwaz/internal/models"
)

// SearchResult represents one search hit over mirrored message content.
type SearchResult struct {
	ProjectID string
	NodeID    string
	Branch    string
	Snippet   string
}

// MirrorNode inserts or replaces one node row and its FTS entry.
func (db *DB) MirrorNode(projectID, branch string, n models.NodeRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var parent any
	if n.Parent != nil {
		parent = *n.Parent
	}
	_, err = tx.Exec(`
		INSERT INTO nodes (project_id, node_id, branch, type, role, content, parent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, node_id) DO UPDATE SET
			branch  = excluded.branch,
			type    = excluded.type,
			role    = excluded.role,
			content = excluded.content,
			parent  = excluded.parent
	`, projectID, n.ID, branch, n.Type, n.Role, n.Content, parent, n.Timestamp)
	if err != nil {
		return fmt.Errorf("shadow: upsert node: %w", err)
	}
	if n.Type == models.NodeMessage {
		if err := ftsUpsert(tx, projectID, n.ID, branch, n.Content); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MirrorArtefact inserts or replaces the artefact row for a branch.
func (db *DB) MirrorArtefact(projectID, branch, content string) error {
	_, err := db.conn.Exec(`
		INSERT INTO artefacts (project_id, branch, content, checksum, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(project_id, branch) DO UPDATE SET
			content    = excluded.content,
			checksum   = excluded.checksum,
			updated_at = CURRENT_TIMESTAMP
	`, projectID, branch, content, checksum.Sum([]byte(content)))
	if err != nil {
		return fmt.Errorf("shadow: upsert artefact: %w", err)
	}
	return nil
}

// BranchView is one branch's full ledger and artefact content, the unit
// reconciliation rebuilds the mirror from.
type BranchView struct {
	Branch   string
	Records  []models.NodeRecord
	Artefact string
}

// ReplaceProject rebuilds a project's mirrored rows from per-branch
// views, so nodes reachable only from non-current branches stay
// searchable. A node shared by several branches keeps the label of the
// first view that carries it; callers put the current branch first.
func (db *DB) ReplaceProject(projectID string, views []BranchView, ledgerChecksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteProject(tx, projectID)
	if _, err := tx.Exec(`DELETE FROM nodes WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("shadow: clear nodes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM artefacts WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("shadow: clear artefacts: %w", err)
	}

	seen := make(map[string]struct{})
	for _, v := range views {
		for _, n := range v.Records {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			var parent any
			if n.Parent != nil {
				parent = *n.Parent
			}
			if _, err := tx.Exec(`
				INSERT INTO nodes (project_id, node_id, branch, type, role, content, parent, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, projectID, n.ID, v.Branch, n.Type, n.Role, n.Content, parent, n.Timestamp); err != nil {
				return fmt.Errorf("shadow: insert node: %w", err)
			}
			if n.Type == models.NodeMessage {
				if err := ftsUpsert(tx, projectID, n.ID, v.Branch, n.Content); err != nil {
					return err
				}
			}
		}

		if _, err := tx.Exec(`
			INSERT INTO artefacts (project_id, branch, content, checksum, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		`, projectID, v.Branch, v.Artefact, checksum.Sum([]byte(v.Artefact))); err != nil {
			return fmt.Errorf("shadow: insert artefact: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO ledgers (project_id, checksum) VALUES (?, ?)
		ON CONFLICT(project_id) DO UPDATE SET checksum = excluded.checksum
	`, projectID, ledgerChecksum); err != nil {
		return fmt.Errorf("shadow: record ledger checksum: %w", err)
	}

	return tx.Commit()
}

// DeleteProject removes every mirrored row for a project.
func (db *DB) DeleteProject(projectID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteProject(tx, projectID)
	_, _ = tx.Exec(`DELETE FROM nodes WHERE project_id = ?`, projectID)
	_, _ = tx.Exec(`DELETE FROM artefacts WHERE project_id = ?`, projectID)
	_, _ = tx.Exec(`DELETE FROM ledgers WHERE project_id = ?`, projectID)

	return tx.Commit()
}

// CountNodes returns the number of mirrored nodes for a project, filtered
// by branch when branch is non-empty.
func (db *DB) CountNodes(projectID, branch string) (int, error) {
	var n int
	var err error
	if branch == "" {
		err = db.conn.QueryRow(`SELECT count(*) FROM nodes WHERE project_id = ?`, projectID).Scan(&n)
	} else {
		err = db.conn.QueryRow(`SELECT count(*) FROM nodes WHERE project_id = ? AND branch = ?`, projectID, branch).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("shadow: count nodes: %w", err)
	}
	return n, nil
}

// AllLedgerChecksums returns the recorded ledger checksum per project.
func (db *DB) AllLedgerChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT project_id, checksum FROM ledgers`)
	if err != nil {
		return nil, fmt.Errorf("shadow: ledger checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
