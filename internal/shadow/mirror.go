package shadow

import "github.com/starford/eihwaz/internal/models"

// Mirror defines the shadow-write operations. Consumers should depend on
// this interface rather than the concrete *DB type to facilitate testing
// with mocks.
type Mirror interface {
	MirrorNode(projectID, branch string, n models.NodeRecord) error
	MirrorArtefact(projectID, branch, content string) error
	ReplaceProject(projectID string, views []BranchView, ledgerChecksum string) error
	DeleteProject(projectID string) error
	CountNodes(projectID, branch string) (int, error)
	AllLedgerChecksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Mirror at compile time.
var _ Mirror = (*DB)(nil)
