// Package testutil provides shared test helpers for setting up databases,
// inboxes and seeded stores.
package testutil

import (
	"os"
	"sync"
	"testing"

	"github.com/starford/lattice/internal/graphstore"
	"github.com/starford/lattice/internal/index"
	"github.com/starford/lattice/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lattice-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInbox creates a temporary inbox directory with a storage.Provider.
func TestInbox(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, files
}

// SeededStore returns a store loaded with the initial workspace.
func SeededStore(t *testing.T, opts ...graphstore.Option) *graphstore.Store {
	t.Helper()
	s := graphstore.New(opts...)
	if r := s.Load(graphstore.Seed()); r.Repaired() {
		t.Fatalf("seed needed repair: %+v", r)
	}
	return s
}

// Event is one captured emission.
type Event struct {
	Name string
	Data any
}

// Recorder captures store changes and emitted events. It satisfies the
// view.Sink interface and the noteservice publisher.
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	changes []graphstore.Change
}

// Emit records a projection.
func (r *Recorder) Emit(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: event, Data: data})
}

// PublishChange records a store change.
func (r *Recorder) PublishChange(c graphstore.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

// Count returns how many events named name were emitted.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Last returns the data of the latest event named name.
func (r *Recorder) Last(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name == name {
			return r.events[i].Data, true
		}
	}
	return nil, false
}

// Changes returns a copy of the recorded store changes.
func (r *Recorder) Changes() []graphstore.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]graphstore.Change(nil), r.changes...)
}
