package parser

import (
	"maps"

	"github.com/google/uuid"
)

// Walk visits n and its descendants depth-first in pre-order. Returning
// false from fn skips the children of the node just visited.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Content {
		Walk(child, fn)
	}
}

// AssignHeadingIDs returns a copy of doc in which every heading without an
// id carries a fresh one. doc itself is not modified. The boolean reports
// whether any id was added.
func AssignHeadingIDs(doc Node) (Node, bool) {
	return assignHeadingIDs(doc, uuid.NewString)
}

func assignHeadingIDs(n Node, newID func() string) (Node, bool) {
	out := n
	changed := false
	if n.Attrs != nil {
		out.Attrs = maps.Clone(n.Attrs)
	}
	if n.Type == TypeHeading && n.ID() == "" {
		if out.Attrs == nil {
			out.Attrs = map[string]any{}
		}
		out.Attrs["id"] = newID()
		changed = true
	}
	if n.Content != nil {
		out.Content = make([]Node, len(n.Content))
		for i, child := range n.Content {
			c, ch := assignHeadingIDs(child, newID)
			out.Content[i] = c
			changed = changed || ch
		}
	}
	return out, changed
}

// NormalizeContent decodes raw, assigns missing heading ids and re-encodes.
// Malformed content is returned unchanged.
func NormalizeContent(raw string) string {
	doc, err := Decode(raw)
	if err != nil {
		return raw
	}
	withIDs, changed := AssignHeadingIDs(doc)
	if !changed {
		return raw
	}
	return Encode(withIDs)
}
