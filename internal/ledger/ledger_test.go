package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/repo"
	"github.com/starford/eihwaz/internal/testutil"
)

func newTestStore(t *testing.T) (*repo.Resolver, *Store) {
	t.Helper()
	r := testutil.TestProject(t, "p1")
	return r, NewStore(r)
}

func TestAppendAssignsIDAndParent(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Append(ctx, "p1", models.NewMessageNode("user", "one"), AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.ID == "" {
		t.Error("first node has no id")
	}
	if first.Parent != nil {
		t.Errorf("first node parent = %v, want nil", first.Parent)
	}

	second, err := store.Append(ctx, "p1", models.NewMessageNode("assistant", "two"), AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.Parent == nil || *second.Parent != first.ID {
		t.Errorf("second node parent = %v, want %s", second.Parent, first.ID)
	}
}

func TestReadPreservesOrder(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		n, err := store.Append(ctx, "p1", models.NewMessageNode("user", fmt.Sprintf("msg %d", i)), AppendOptions{})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, n.ID)
	}

	records, err := store.Read(ctx, "p1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 5 {
		t.Fatalf("len = %d, want 5", len(records))
	}
	for i, r := range records {
		if r.ID != ids[i] {
			t.Errorf("records[%d].ID = %s, want %s", i, r.ID, ids[i])
		}
		if i > 0 && (r.Parent == nil || *r.Parent != ids[i-1]) {
			t.Errorf("records[%d].Parent = %v, want %s", i, r.Parent, ids[i-1])
		}
	}
}

func TestReadEmptyLedger(t *testing.T) {
	_, store := newTestStore(t)

	records, err := store.Read(context.Background(), "p1", "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("records = %v, want empty non-nil slice", records)
	}
}

func TestReadAtHistoricalRef(t *testing.T) {
	r, store := newTestStore(t)
	ctx := context.Background()

	// The initial commit predates any ledger line: an empty view, not an error.
	records, err := store.Read(ctx, "p1", r.Trunk())
	if err != nil {
		t.Fatalf("read at trunk: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len = %d, want 0", len(records))
	}

	if _, err := store.Append(ctx, "p1", models.NewMessageNode("user", "hello"), AppendOptions{}); err != nil {
		t.Fatal(err)
	}
	run, _ := r.Runner("p1")
	afterFirst, err := repo.ResolveRef(ctx, run, "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(ctx, "p1", models.NewMessageNode("user", "later"), AppendOptions{}); err != nil {
		t.Fatal(err)
	}

	// Reading at the older commit must not see the later node.
	records, err = store.Read(ctx, "p1", afterFirst)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("len at old commit = %d, want 1", len(records))
	}
	records, err = store.Read(ctx, "p1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("live len = %d, want 2", len(records))
	}
}

func TestAppendToOtherBranchRestoresCurrent(t *testing.T) {
	r, store := newTestStore(t)
	ctx := context.Background()
	run, _ := r.Runner("p1")

	if _, err := run.Run(ctx, "checkout", "-q", "-b", "side"); err != nil {
		t.Fatal(err)
	}
	if _, err := run.Run(ctx, "checkout", "-q", "main"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Append(ctx, "p1", models.NewMessageNode("user", "on side"), AppendOptions{Branch: "side"}); err != nil {
		t.Fatalf("append to side: %v", err)
	}

	current, err := repo.CurrentBranch(ctx, run)
	if err != nil {
		t.Fatal(err)
	}
	if current != "main" {
		t.Errorf("current branch = %q, want main (restored)", current)
	}

	// The node landed on side, not main.
	sideRecords, err := store.Read(ctx, "p1", "side")
	if err != nil {
		t.Fatal(err)
	}
	if len(sideRecords) != 1 {
		t.Errorf("side len = %d, want 1", len(sideRecords))
	}
	mainRecords, err := store.Read(ctx, "p1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(mainRecords) != 0 {
		t.Errorf("main len = %d, want 0", len(mainRecords))
	}
}

func TestFailedAppendToOtherBranchRestoresCurrent(t *testing.T) {
	r, store := newTestStore(t)
	ctx := context.Background()
	run, _ := r.Runner("p1")

	if _, err := run.Run(ctx, "checkout", "-q", "-b", "side"); err != nil {
		t.Fatal(err)
	}
	if _, err := run.Run(ctx, "checkout", "-q", "main"); err != nil {
		t.Fatal(err)
	}

	// Validation fails after the checkout; the prior branch must still
	// come back.
	_, err := store.Append(ctx, "p1", models.NodeRecord{Type: "bogus"}, AppendOptions{Branch: "side"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	current, err := repo.CurrentBranch(ctx, run)
	if err != nil {
		t.Fatal(err)
	}
	if current != "main" {
		t.Errorf("current branch = %q, want main (restored after failure)", current)
	}
}

func TestAppendToMissingBranch(t *testing.T) {
	_, store := newTestStore(t)
	_, err := store.Append(context.Background(), "p1", models.NewMessageNode("user", "x"), AppendOptions{Branch: "ghost"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendInvalidNode(t *testing.T) {
	_, store := newTestStore(t)
	_, err := store.Append(context.Background(), "p1", models.NodeRecord{Type: "bogus"}, AppendOptions{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAppendUnknownProject(t *testing.T) {
	r := testutil.TestProject(t, "p1")
	store := NewStore(r)
	_, err := store.Append(context.Background(), "ghost", models.NewMessageNode("user", "x"), AppendOptions{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestParseRecordsSkipsBlankLines(t *testing.T) {
	input := `{"id":"a","type":"message","parent":null,"role":"user","content":"hi"}

{"id":"b","type":"message","parent":"a","role":"assistant","content":"yo"}
`
	records, err := parseRecords(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[1].Parent == nil || *records[1].Parent != "a" {
		t.Errorf("parent = %v", records[1].Parent)
	}
}

func TestParseRecordsRejectsGarbage(t *testing.T) {
	_, err := parseRecords(strings.NewReader("not json\n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
