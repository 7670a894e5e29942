// Package shadowtest provides test helpers for the shadow database. It
// lives apart from testutil so that packages the shadow store depends
// on can use testutil without an import cycle in their tests.
package shadowtest

import (
	"os"
	"testing"

	"github.com/starford/eihwaz/internal/shadow"
)

// TestDB creates a temporary shadow database that is automatically
// cleaned up.
func TestDB(t *testing.T) *shadow.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "eihwaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := shadow.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
