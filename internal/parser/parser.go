// Package parser reads and builds block-document trees: the JSON content
// format notes are stored in. It extracts plain text and heading landmarks
// and never fails a caller that only wants extraction.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/models"
)

// Node types the extractors care about. Any other type passes through.
const (
	TypeDoc       = "doc"
	TypeParagraph = "paragraph"
	TypeHeading   = "heading"
	TypeText      = "text"
)

const untitledHeading = "Untitled Heading"

var blankLineRe = regexp.MustCompile(`\n[ \t]*\n`)

// Node is one block of a document tree.
type Node struct {
	Type    string           `json:"type,omitempty"`
	Attrs   map[string]any   `json:"attrs,omitempty"`
	Content []Node           `json:"content,omitempty"`
	Text    string           `json:"text,omitempty"`
	Marks   []map[string]any `json:"marks,omitempty"`
}

// Result holds the output of parsing serialized note content.
type Result struct {
	Doc      Node
	Text     string
	Headings []models.Heading
}

// Parse decodes raw content and extracts its text and headings.
func Parse(raw string) (*Result, error) {
	doc, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return &Result{
		Doc:      doc,
		Text:     textOf(doc),
		Headings: headingsOf(doc),
	}, nil
}

// Decode parses serialized content into a tree.
func Decode(raw string) (Node, error) {
	var doc Node
	if strings.TrimSpace(raw) == "" {
		return doc, fmt.Errorf("parser: empty content: %w", apperr.ErrParse)
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Node{}, fmt.Errorf("parser: decode: %v: %w", err, apperr.ErrParse)
	}
	return doc, nil
}

// Encode serializes a tree. Node holds only JSON-safe values, so the
// marshal cannot fail for trees produced by this package.
func Encode(doc Node) string {
	data, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return string(data)
}

// PlainText returns the space-joined text of every text node in reading
// order. Content that is not a valid tree is returned as plain text.
func PlainText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := Decode(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return textOf(doc)
}

// Headings returns the addressable headings of raw content in document
// order. Malformed content yields an empty slice.
func Headings(raw string) []models.Heading {
	doc, err := Decode(raw)
	if err != nil {
		return []models.Heading{}
	}
	return headingsOf(doc)
}

func textOf(doc Node) string {
	var parts []string
	Walk(doc, func(n Node) bool {
		if n.Type == TypeText && n.Text != "" {
			parts = append(parts, n.Text)
		}
		return true
	})
	return strings.TrimSpace(strings.Join(parts, " "))
}

func headingsOf(doc Node) []models.Heading {
	out := []models.Heading{}
	Walk(doc, func(n Node) bool {
		if n.Type != TypeHeading {
			return true
		}
		id := n.ID()
		if id == "" {
			return true
		}
		var sb strings.Builder
		for _, child := range n.Content {
			sb.WriteString(child.Text)
		}
		text := sb.String()
		if text == "" {
			text = untitledHeading
		}
		out = append(out, models.Heading{Level: n.Level(), Text: text, ID: id})
		return true
	})
	return out
}

// ID returns attrs.id when it is a non-empty string.
func (n Node) ID() string {
	if s, ok := n.Attrs["id"].(string); ok {
		return s
	}
	return ""
}

// Level returns attrs.level, defaulting to 1.
func (n Node) Level() int {
	switch v := n.Attrs["level"].(type) {
	case float64:
		if v >= 1 {
			return int(v)
		}
	case int:
		if v >= 1 {
			return v
		}
	case json.Number:
		if i, err := v.Int64(); err == nil && i >= 1 {
			return int(i)
		}
	}
	return 1
}

// DefaultDoc is the content of a freshly created note: one empty paragraph.
func DefaultDoc() Node {
	return Node{Type: TypeDoc, Content: []Node{{Type: TypeParagraph}}}
}

// DefaultContent is DefaultDoc serialized.
func DefaultContent() string {
	return Encode(DefaultDoc())
}

// FromText wraps text in a document with a single paragraph.
func FromText(text string) Node {
	return Node{Type: TypeDoc, Content: []Node{paragraph(strings.TrimSpace(text))}}
}

// FromParagraphs splits text on blank lines and builds one paragraph per
// non-empty segment. Text with no segments yields DefaultDoc.
func FromParagraphs(text string) Node {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []Node
	for _, seg := range blankLineRe.Split(text, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		blocks = append(blocks, paragraph(seg))
	}
	if len(blocks) == 0 {
		return DefaultDoc()
	}
	return Node{Type: TypeDoc, Content: blocks}
}

func paragraph(text string) Node {
	if text == "" {
		return Node{Type: TypeParagraph}
	}
	return Node{Type: TypeParagraph, Content: []Node{{Type: TypeText, Text: text}}}
}
