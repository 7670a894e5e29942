package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		node    NodeRecord
		wantErr bool
	}{
		{"valid message", NewMessageNode("user", "hello"), false},
		{"message without role", NodeRecord{Type: NodeMessage, Content: "hi"}, true},
		{"message without content", NodeRecord{Type: NodeMessage, Role: "user"}, true},
		{"valid state", NewStateNode("abc123"), false},
		{"state without snapshot", NodeRecord{Type: NodeState}, true},
		{"valid merge", NewMergeNode("feature", "merged ideas", "deadbeef", []string{"a"}), false},
		{"merge without summary", NodeRecord{Type: NodeMerge, MergeFrom: "feature"}, true},
		{"unknown type", NodeRecord{Type: "snapshot"}, true},
		{"empty type", NodeRecord{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewNodeIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewNodeID()
		if len(id) != 26 {
			t.Fatalf("id length = %d, want 26", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestNewMergeNodeEmptyManifest(t *testing.T) {
	n := NewMergeNode("side", "nothing new", "deadbeef", nil)
	if n.SourceNodeIDs == nil {
		t.Error("SourceNodeIDs should be empty, not nil")
	}
	if len(n.SourceNodeIDs) != 0 {
		t.Errorf("SourceNodeIDs = %v, want empty", n.SourceNodeIDs)
	}
}

func TestSummary(t *testing.T) {
	msg := NewMessageNode("assistant", "the answer is 42")
	if got := msg.Summary(); got != "message(assistant): the answer is 42" {
		t.Errorf("message summary = %q", got)
	}

	st := NewStateNode("0123456789abcdef0123")
	if got := st.Summary(); got != "state: artefact 0123456789ab" {
		t.Errorf("state summary = %q", got)
	}

	mg := NewMergeNode("side", "folded", "deadbeef", nil)
	if got := mg.Summary(); got != "merge(side): folded" {
		t.Errorf("merge summary = %q", got)
	}
}

func TestNodeRecordJSON(t *testing.T) {
	parent := "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	n := NodeRecord{
		ID:     "01BX5ZZKBKACTAV9WEVGEMMVRZ",
		Type:   NodeMessage,
		Parent: &parent,
		Role:   "user",
		Content: "hi",
	}
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, key := range []string{`"id"`, `"type"`, `"parent"`, `"role"`, `"content"`} {
		if !strings.Contains(s, key) {
			t.Errorf("marshalled record missing %s: %s", key, s)
		}
	}
	// Type-specific fields of other variants must be omitted.
	for _, key := range []string{`"artefactSnapshot"`, `"mergeFrom"`, `"sourceNodeIds"`} {
		if strings.Contains(s, key) {
			t.Errorf("message record should omit %s: %s", key, s)
		}
	}

	var back NodeRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Parent == nil || *back.Parent != parent {
		t.Errorf("parent = %v, want %s", back.Parent, parent)
	}
}

func TestFirstNodeParentNull(t *testing.T) {
	n := NewMessageNode("user", "first")
	n.ID = NewNodeID()
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"parent":null`) {
		t.Errorf("first node should serialize parent as null: %s", data)
	}
}
