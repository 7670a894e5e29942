// Package models defines the domain types for Eihwaz.
package models

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Node types. The set is closed: every consumer that switches on NodeType
// must handle all three and reject anything else.
const (
	NodeMessage = "message"
	NodeState   = "state"
	NodeMerge   = "merge"
)

// NodeRecord is one entry in a project's ledger. Records are append-only:
// once written they are never mutated or removed. Parent points at the id
// of the preceding node on the branch the record was created on, or is nil
// for the first node.
//
// Only the field set matching Type is populated:
//   - message: Role, Content
//   - state:   ArtefactSnapshot (git blob hash of the artefact content)
//   - merge:   MergeFrom, MergeSummary, SourceCommit, SourceNodeIDs
type NodeRecord struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Parent    *string   `json:"parent"`
	Timestamp time.Time `json:"timestamp"`

	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	ArtefactSnapshot string `json:"artefactSnapshot,omitempty"`

	MergeFrom     string   `json:"mergeFrom,omitempty"`
	MergeSummary  string   `json:"mergeSummary,omitempty"`
	SourceCommit  string   `json:"sourceCommit,omitempty"`
	SourceNodeIDs []string `json:"sourceNodeIds,omitempty"`
}

// NewNodeID returns a new unique node id (ULID: sortable, never reused).
func NewNodeID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewMessageNode constructs a message record without parent linkage;
// the ledger assigns ID, Parent, and Timestamp on append.
func NewMessageNode(role, content string) NodeRecord {
	return NodeRecord{Type: NodeMessage, Role: role, Content: content}
}

// NewStateNode constructs a state record carrying an artefact snapshot hash.
func NewStateNode(snapshot string) NodeRecord {
	return NodeRecord{Type: NodeState, ArtefactSnapshot: snapshot}
}

// NewMergeNode constructs a merge record: a manifest of which source-branch
// node ids became reachable, not a replay of their content.
func NewMergeNode(from, summary, sourceCommit string, sourceNodeIDs []string) NodeRecord {
	if sourceNodeIDs == nil {
		sourceNodeIDs = []string{}
	}
	return NodeRecord{
		Type:          NodeMerge,
		MergeFrom:     from,
		MergeSummary:  summary,
		SourceCommit:  sourceCommit,
		SourceNodeIDs: sourceNodeIDs,
	}
}

// Validate checks that the record's payload matches its type.
func (n NodeRecord) Validate() error {
	switch n.Type {
	case NodeMessage:
		if n.Role == "" || n.Content == "" {
			return fmt.Errorf("models: message node requires role and content")
		}
	case NodeState:
		if n.ArtefactSnapshot == "" {
			return fmt.Errorf("models: state node requires artefactSnapshot")
		}
	case NodeMerge:
		if n.MergeFrom == "" || n.MergeSummary == "" {
			return fmt.Errorf("models: merge node requires mergeFrom and mergeSummary")
		}
	default:
		return fmt.Errorf("models: unknown node type %q", n.Type)
	}
	return nil
}

// Summary returns a short human-readable description of the record,
// used as the first line of commit messages.
func (n NodeRecord) Summary() string {
	switch n.Type {
	case NodeMessage:
		return fmt.Sprintf("%s(%s): %s", n.Type, n.Role, n.Content)
	case NodeState:
		return fmt.Sprintf("%s: artefact %s", n.Type, shortHash(n.ArtefactSnapshot))
	case NodeMerge:
		return fmt.Sprintf("%s(%s): %s", n.Type, n.MergeFrom, n.MergeSummary)
	default:
		return n.Type
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// BranchSummary is the derived per-branch listing item. It is recomputed on
// every listing call and never cached.
type BranchSummary struct {
	Name       string `json:"name"`
	HeadCommit string `json:"headCommit"`
	NodeCount  int    `json:"nodeCount"`
	IsTrunk    bool   `json:"isTrunk"`
}

// ProjectMeta is the per-project metadata file. Its absence is the
// authoritative signal that a project does not exist.
type ProjectMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
