package graphstore

import (
	"log/slog"
	"slices"

	"github.com/starford/lattice/internal/models"
)

// Snapshot is a point-in-time copy of the whole graph.
type Snapshot struct {
	Spaces   []models.Space `json:"spaces"`
	Notes    []models.Note  `json:"notes"`
	Links    []models.Link  `json:"links"`
	ActiveID string         `json:"activeId,omitempty"`
}

// LoadReport counts what Load had to repair.
type LoadReport struct {
	Notes            int
	Links            int
	DuplicateNotes   int
	RemappedNotes    int
	DanglingLinks    int
	SelfLinks        int
	DuplicateLinks   int
	ActiveReassigned bool
}

// Repaired reports whether any record was dropped or changed.
func (r LoadReport) Repaired() bool {
	return r.DuplicateNotes+r.RemappedNotes+r.DanglingLinks+r.SelfLinks+r.DuplicateLinks > 0 || r.ActiveReassigned
}

// Snapshot copies the current graph.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Spaces:   slices.Clone(s.spaces),
		Notes:    slices.Clone(s.notes),
		Links:    slices.Clone(s.links),
		ActiveID: s.active,
	}
}

// Load replaces the graph with snap, repairing it so every store invariant
// holds: duplicate note ids keep the first, notes in unknown spaces move to
// the default space, dangling, self and duplicate links are dropped and an
// unknown active id falls back to the first note. The persister is not
// called; snap is assumed to come from it.
func (s *Store) Load(snap Snapshot) LoadReport {
	var rep LoadReport

	s.begin()
	s.spaces = s.spaces[:0]
	clear(s.spaceIdx)
	for _, sp := range snap.Spaces {
		if _, dup := s.spaceIdx[sp.ID]; dup || sp.ID == "" {
			continue
		}
		s.spaceIdx[sp.ID] = len(s.spaces)
		s.spaces = append(s.spaces, sp)
	}
	fallback, hasFallback := s.defaultSpaceLocked()

	s.notes = s.notes[:0]
	clear(s.noteIdx)
	for _, n := range snap.Notes {
		if _, dup := s.noteIdx[n.ID]; dup || n.ID == "" {
			rep.DuplicateNotes++
			continue
		}
		if _, ok := s.spaceIdx[n.SpaceID]; !ok {
			if !hasFallback {
				rep.RemappedNotes++
				continue
			}
			n.SpaceID = fallback.ID
			rep.RemappedNotes++
		}
		s.noteIdx[n.ID] = len(s.notes)
		s.notes = append(s.notes, n)
	}

	s.links = s.links[:0]
	clear(s.pairs)
	for _, l := range snap.Links {
		switch {
		case l.Source == l.Target:
			rep.SelfLinks++
			continue
		case !s.hasNoteLocked(l.Source) || !s.hasNoteLocked(l.Target):
			rep.DanglingLinks++
			continue
		}
		if _, dup := s.pairs[l.Pair()]; dup {
			rep.DuplicateLinks++
			continue
		}
		s.pairs[l.Pair()] = len(s.links)
		s.links = append(s.links, l)
	}

	s.active = snap.ActiveID
	if s.active != "" && !s.hasNoteLocked(s.active) {
		s.active = ""
		rep.ActiveReassigned = true
		if len(s.notes) > 0 {
			s.active = s.notes[0].ID
		}
	}
	rep.Notes = len(s.notes)
	rep.Links = len(s.links)
	active := s.active
	s.commit(Change{Kind: Reloaded}, Change{Kind: SelectionChanged, NoteID: active})

	if rep.Repaired() {
		s.logger.Warn("store: snapshot repaired on load",
			slog.Int("duplicate_notes", rep.DuplicateNotes),
			slog.Int("remapped_notes", rep.RemappedNotes),
			slog.Int("dangling_links", rep.DanglingLinks),
			slog.Int("self_links", rep.SelfLinks),
			slog.Int("duplicate_links", rep.DuplicateLinks))
	}
	return rep
}

func (s *Store) hasNoteLocked(id string) bool {
	_, ok := s.noteIdx[id]
	return ok
}
