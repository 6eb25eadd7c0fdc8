package parser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/starford/lattice/internal/apperr"
)

const threeHeadings = `{"type":"doc","content":[
	{"type":"heading","attrs":{"level":1,"id":"h-a"},"content":[{"type":"text","text":"Intro"}]},
	{"type":"paragraph","content":[{"type":"text","text":"body"}]},
	{"type":"heading","attrs":{"level":2,"id":"h-b"},"content":[{"type":"text","text":"Deta"},{"type":"text","text":"ils"}]},
	{"type":"heading","attrs":{"level":3},"content":[{"type":"text","text":"no id"}]},
	{"type":"heading","attrs":{"level":1,"id":"h-c"}}
]}`

func TestPlainText_NestedDocument(t *testing.T) {
	raw := `{"type":"doc","content":[
		{"type":"paragraph","content":[{"type":"text","text":"Hello"},{"type":"text","text":"world"}]},
		{"type":"bulletList","content":[{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"item"}]}]}]}
	]}`
	if got := PlainText(raw); got != "Hello world item" {
		t.Errorf("PlainText = %q, want %q", got, "Hello world item")
	}
}

func TestPlainText_MalformedFallsBackToRaw(t *testing.T) {
	if got := PlainText("  just some text  "); got != "just some text" {
		t.Errorf("PlainText = %q", got)
	}
	if got := PlainText(""); got != "" {
		t.Errorf("PlainText(empty) = %q", got)
	}
}

func TestHeadings_DocumentOrder(t *testing.T) {
	hs := Headings(threeHeadings)
	if len(hs) != 3 {
		t.Fatalf("len(headings) = %d, want 3: %+v", len(hs), hs)
	}
	want := []struct {
		level int
		text  string
		id    string
	}{
		{1, "Intro", "h-a"},
		{2, "Details", "h-b"},
		{1, "Untitled Heading", "h-c"},
	}
	for i, w := range want {
		if hs[i].Level != w.level || hs[i].Text != w.text || hs[i].ID != w.id {
			t.Errorf("heading[%d] = %+v, want %+v", i, hs[i], w)
		}
	}
}

func TestHeadings_NoneAndMalformed(t *testing.T) {
	if hs := Headings(DefaultContent()); len(hs) != 0 {
		t.Errorf("expected no headings, got %+v", hs)
	}
	hs := Headings("{not json")
	if hs == nil || len(hs) != 0 {
		t.Errorf("malformed content should yield an empty, non-nil slice, got %#v", hs)
	}
}

func TestParse_MalformedIsParseError(t *testing.T) {
	_, err := Parse("{broken")
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}

func TestFromParagraphs_SplitsOnBlankLines(t *testing.T) {
	doc := FromParagraphs("Para one\n\nPara two")
	if len(doc.Content) != 2 {
		t.Fatalf("blocks = %d, want 2", len(doc.Content))
	}
	for i, want := range []string{"Para one", "Para two"} {
		b := doc.Content[i]
		if b.Type != TypeParagraph || len(b.Content) != 1 || b.Content[0].Text != want {
			t.Errorf("block[%d] = %+v, want paragraph %q", i, b, want)
		}
	}
}

func TestFromParagraphs_CRLFAndEmptySegments(t *testing.T) {
	doc := FromParagraphs("a\r\n\r\n\n\n  \n\nb\nc")
	if len(doc.Content) != 2 {
		t.Fatalf("blocks = %d, want 2: %+v", len(doc.Content), doc.Content)
	}
	if doc.Content[1].Content[0].Text != "b\nc" {
		t.Errorf("second block = %q", doc.Content[1].Content[0].Text)
	}
	if empty := FromParagraphs("   "); len(empty.Content) != 1 || empty.Content[0].Content != nil {
		t.Errorf("blank text should give the default doc, got %+v", empty)
	}
}

func TestAssignHeadingIDs_IsPure(t *testing.T) {
	doc, err := Decode(threeHeadings)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	out, changed := assignHeadingIDs(doc, func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	})
	if !changed {
		t.Fatal("expected a change")
	}
	if doc.Content[3].ID() != "" {
		t.Error("input tree was mutated")
	}
	if got := out.Content[3].ID(); got != "gen-1" {
		t.Errorf("assigned id = %q, want gen-1", got)
	}
	if out.Content[0].ID() != "h-a" {
		t.Error("existing id must be kept")
	}
	if _, changed := assignHeadingIDs(out, func() string { return "x" }); changed {
		t.Error("second pass should be a no-op")
	}
}

func TestNormalizeContent_RoundTrip(t *testing.T) {
	raw := `{"type":"doc","content":[{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"T"}]}]}`
	out := NormalizeContent(raw)
	hs := Headings(out)
	if len(hs) != 1 || hs[0].ID == "" || hs[0].Level != 2 {
		t.Errorf("headings after normalize = %+v", hs)
	}
	if NormalizeContent("plain") != "plain" {
		t.Error("malformed content must pass through")
	}
}
