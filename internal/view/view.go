// Package view derives read-only projections of the knowledge graph: the
// node/edge graph, the outline of a note and the graph focus command.
// Projections are recomputed from scratch and never written back.
package view

import (
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

// GraphNode is a graph vertex. Weight is 1 + degree.
type GraphNode struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Weight int    `json:"weight"`
}

// GraphEdge is an undirected edge in its stored orientation.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// GraphData is the renderer input.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Has reports whether id is a node of g.
func (g GraphData) Has(id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// Focus actions.
const (
	ActionFocus = "focus"
	ActionFit   = "fit"
)

// FocusCommand tells the renderer to centre on a node or fit everything.
type FocusCommand struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// Graph builds one node per note and one edge per link. Links whose
// endpoints are not among notes are skipped.
func Graph(notes []models.Note, links []models.Link) GraphData {
	degree := make(map[string]int, len(notes))
	for _, n := range notes {
		degree[n.ID] = 0
	}
	edges := make([]GraphEdge, 0, len(links))
	for _, l := range links {
		_, okS := degree[l.Source]
		_, okT := degree[l.Target]
		if !okS || !okT {
			continue
		}
		degree[l.Source]++
		degree[l.Target]++
		edges = append(edges, GraphEdge{Source: l.Source, Target: l.Target})
	}
	nodes := make([]GraphNode, 0, len(notes))
	for _, n := range notes {
		nodes = append(nodes, GraphNode{ID: n.ID, Label: n.Title, Weight: 1 + degree[n.ID]})
	}
	return GraphData{Nodes: nodes, Edges: edges}
}

// Outline returns the headings of note, or an empty slice for nil.
func Outline(note *models.Note) []models.Heading {
	if note == nil {
		return []models.Heading{}
	}
	return parser.Headings(note.Content)
}

// Focus centres on activeID when it is drawn, otherwise fits the graph.
func Focus(activeID string, g GraphData) FocusCommand {
	if activeID != "" && g.Has(activeID) {
		return FocusCommand{Action: ActionFocus, ID: activeID}
	}
	return FocusCommand{Action: ActionFit}
}
