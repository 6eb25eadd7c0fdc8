// Package models defines the domain types for Lattice.
package models

// Space is a named grouping every note belongs to.
type Space struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Note is a single document in the knowledge graph. Content holds the
// serialized block-document tree.
type Note struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	SpaceID string `json:"spaceId"`
}

// Link is an undirected relation between two notes. Source and Target record
// the orientation it was created with; equality is by unordered pair.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

// Pair returns the canonical key of the link's unordered endpoint pair.
func (l Link) Pair() PairKey {
	return MakePair(l.Source, l.Target)
}

// Touches reports whether id is either endpoint of the link.
func (l Link) Touches(id string) bool {
	return l.Source == id || l.Target == id
}

// Other returns the endpoint opposite id, or "" when id is not an endpoint.
func (l Link) Other(id string) string {
	switch id {
	case l.Source:
		return l.Target
	case l.Target:
		return l.Source
	}
	return ""
}

// PairKey identifies an unordered pair of note ids. A is always <= B.
type PairKey struct {
	A, B string
}

// MakePair builds the canonical key for {x, y}.
func MakePair(x, y string) PairKey {
	if y < x {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

// Heading is a structural landmark extracted from note content.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id"`
}

// Topic is a proposed new note returned by the suggestion provider.
type Topic struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
