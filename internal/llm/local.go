package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"

	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

// Local suggests links by shared keywords. It needs no network and is used
// when no API key is configured.
type Local struct {
	isStopword func(string) bool
	minOverlap int
	maxResults int
}

// NewLocal returns a provider that relates notes sharing at least
// minOverlap non-stopword terms.
func NewLocal(minOverlap int) *Local {
	if minOverlap < 1 {
		minOverlap = 2
	}
	words := stopwords.MustGet("en")
	return &Local{isStopword: words.Contains, minOverlap: minOverlap, maxResults: 5}
}

// keywords returns the distinct lowercase terms of n minus stopwords and
// very short tokens.
func (l *Local) keywords(n models.Note) map[string]int {
	text := n.Title + " " + parser.PlainText(n.Content)
	out := map[string]int{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(tok)) < 3 || l.isStopword(tok) {
			continue
		}
		out[tok]++
	}
	return out
}

// RelatedNotes ranks corpus by shared keywords with note.
func (l *Local) RelatedNotes(ctx context.Context, note models.Note, corpus []models.Note) ([]string, error) {
	base := l.keywords(note)
	type scored struct {
		id    string
		score int
	}
	var hits []scored
	for _, other := range corpus {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if other.ID == note.ID {
			continue
		}
		score := 0
		for w := range l.keywords(other) {
			if base[w] > 0 {
				score++
			}
		}
		if score >= l.minOverlap {
			hits = append(hits, scored{other.ID, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := make([]string, 0, len(hits))
	for i, h := range hits {
		if i == l.maxResults {
			break
		}
		out = append(out, h.id)
	}
	return out, nil
}

// NewTopics proposes a note for each of the note's most frequent keywords.
func (l *Local) NewTopics(_ context.Context, note models.Note) ([]models.Topic, error) {
	kw := l.keywords(note)
	terms := make([]string, 0, len(kw))
	for w := range kw {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if kw[terms[i]] != kw[terms[j]] {
			return kw[terms[i]] > kw[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > 3 {
		terms = terms[:3]
	}
	out := make([]models.Topic, 0, len(terms))
	for _, t := range terms {
		r := []rune(t)
		title := string(unicode.ToUpper(r[0])) + string(r[1:])
		out = append(out, models.Topic{
			Title:   title,
			Content: fmt.Sprintf("Explore %s in more depth as it relates to %q.", t, note.Title),
		})
	}
	return out, nil
}

// ExplainRelation names the shared keywords of a and b.
func (l *Local) ExplainRelation(_ context.Context, a, b models.Note) (string, error) {
	ka, kb := l.keywords(a), l.keywords(b)
	var shared []string
	for w := range ka {
		if kb[w] > 0 {
			shared = append(shared, w)
		}
	}
	if len(shared) == 0 {
		return "", fmt.Errorf("llm: %q and %q share no keywords", a.Title, b.Title)
	}
	sort.Strings(shared)
	if len(shared) > 3 {
		shared = shared[:3]
	}
	return fmt.Sprintf("Both notes discuss %s.", strings.Join(shared, ", ")), nil
}
