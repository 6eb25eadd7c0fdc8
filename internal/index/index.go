package index

import "github.com/starford/lattice/internal/graphstore"

// NoteIndex is the durable mirror of the store. Consumers depend on this
// interface rather than *DB so they can be tested with fakes.
type NoteIndex interface {
	graphstore.Persister
	LoadSnapshot() (graphstore.Snapshot, error)
	ReplaceAll(snap graphstore.Snapshot) error
	SaveActive(id string) error
	Checksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// SearchResult is one search hit.
type SearchResult struct {
	NoteID  string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
