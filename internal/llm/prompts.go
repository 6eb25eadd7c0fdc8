// Package llm implements suggestion providers: an OpenAI-compatible chat
// model and an offline keyword-overlap fallback.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

const systemPrompt = "You are a research assistant that organises a personal knowledge base. Answer with JSON only when asked for JSON."

func describe(n models.Note) string {
	return fmt.Sprintf("Title: %s\nContent: %s", n.Title, parser.PlainText(n.Content))
}

func relatedPrompt(note models.Note, corpus []models.Note) string {
	var sb strings.Builder
	for i, n := range corpus {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "ID: %s\n%s", n.ID, describe(n))
	}
	return fmt.Sprintf(`Here is a main note:
---
%s
---

Here is a list of other notes:
---
%s
---

Based on the content of the main note, identify which of the other notes are strongly related.
Return a JSON object of the form {"ids": ["note-id-1", "note-id-2"]}.
Only include IDs from the provided list of other notes. Do not include the main note's ID.
If no notes are related, return {"ids": []}.`, describe(note), sb.String())
}

func topicsPrompt(note models.Note) string {
	return fmt.Sprintf(`Based on the following note:
---
%s
---
Suggest 2-3 new, related topics or questions that could be explored in new notes.
For each suggestion, provide a concise title and a short paragraph for the content.
Return a JSON object of the form {"topics": [{"title": "New Topic", "content": "This is a new note about..."}]}.`, describe(note))
}

func reasonPrompt(a, b models.Note) string {
	return fmt.Sprintf(`Here are two notes:

Note A:
---
%s
---

Note B:
---
%s
---

Briefly explain, in one sentence, the relationship or connection between Note A and Note B.`, describe(a), describe(b))
}

// decodeIDs accepts {"ids": [...]} or a bare array. Non-string entries are
// dropped.
func decodeIDs(raw string) ([]string, error) {
	raw = stripFence(raw)
	var wrapped struct {
		IDs []any `json:"ids"`
	}
	var items []any
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.IDs != nil {
		items = wrapped.IDs
	} else if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("llm: decode related ids: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// decodeTopics accepts {"topics": [...]} or a bare array.
func decodeTopics(raw string) ([]models.Topic, error) {
	raw = stripFence(raw)
	var wrapped struct {
		Topics []models.Topic `json:"topics"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Topics != nil {
		return wrapped.Topics, nil
	}
	var topics []models.Topic
	if err := json.Unmarshal([]byte(raw), &topics); err != nil {
		return nil, fmt.Errorf("llm: decode topics: %w", err)
	}
	return topics, nil
}

// stripFence removes a surrounding markdown code fence some models add.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
