//go:build sqlite_fts5

package index

import (
	"testing"

	"github.com/starford/lattice/internal/graphstore"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes_fts`).Scan(&count); err != nil {
		t.Fatalf("notes_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	if err := db.SaveNote(textNote("fts", "FTS Note", "Lattice provides powerful full-text search capabilities.", "s")); err != nil {
		t.Fatalf("SaveNote: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].NoteID != "fts" {
		t.Errorf("id = %q", results[0].NoteID)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.SaveNote(textNote("gone", "Gone", "vanishing content", "s"))
	_ = db.DeleteNote("gone")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.NoteID == "gone" {
			t.Error("deleted note still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.SaveNote(textNote("u", "U", "original phrase", "s"))
	_ = db.SaveNote(textNote("u", "U", "replacement phrase", "s"))

	if results, _ := db.Search("original", 10); len(results) != 0 {
		t.Errorf("stale content still indexed: %+v", results)
	}
	if results, _ := db.Search("replacement", 10); len(results) != 1 {
		t.Errorf("expected 1 result for new content, got %d", len(results))
	}
}

func TestFTS5_QueryOperatorsAreQuoted(t *testing.T) {
	db := testDB(t)
	_ = db.SaveNote(textNote("q", "Q", "alpha beta", "s"))
	if _, err := db.Search(`alpha OR "beta`, 10); err != nil {
		t.Fatalf("Search with operators: %v", err)
	}
}

func TestFTS5_ReplaceAllRebuildsIndex(t *testing.T) {
	db := testDB(t)
	_ = db.SaveNote(textNote("old", "Old", "obsolete", "s"))
	if err := db.ReplaceAll(graphstore.Seed()); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if results, _ := db.Search("obsolete", 10); len(results) != 0 {
		t.Errorf("replaced note still indexed: %+v", results)
	}
	if results, _ := db.Search("Kanban", 10); len(results) != 1 {
		t.Errorf("expected seeded note to be searchable, got %d", len(results))
	}
}
