// Package search ranks parsed documents against a free-text query.
package search

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/mfenderov/protokb/internal/keywords"
	"github.com/mfenderov/protokb/pkg/models"
)

// Scoring constants.
const (
	MinQueryLen     = 3
	MaxResults      = 10
	MaxSections     = 3
	MaxSectionLen   = 300
	NameMatchScore  = 10
	KeywordScore    = 5
	minQueryWordLen = 3
)

// QueryWords lower-cases query and returns its whitespace-separated tokens
// longer than two characters.
func QueryWords(query string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(w) >= minQueryWordLen {
			words = append(words, w)
		}
	}
	return words
}

// Score computes the additive relevance of doc for query and returns the
// sections that mention any query word.
//
//   - +10 once if the file name contains the query or any query word
//   - +5 per document keyword overlapping a query word in either direction
//   - +1 per whole-word occurrence of each query word in the content
func Score(query string, doc *models.ParsedDocument) (int, []string) {
	m, ok := newMatcher(query)
	if !ok {
		return 0, nil
	}
	return m.score(doc)
}

// matcher holds a normalised query and its compiled word patterns so a
// ranking pass compiles them once.
type matcher struct {
	query    string
	words    []string
	patterns []*regexp.Regexp
}

func newMatcher(query string) (*matcher, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(query) < MinQueryLen {
		return nil, false
	}
	m := &matcher{query: query, words: QueryWords(query)}
	for _, w := range m.words {
		m.patterns = append(m.patterns, wordPattern(w))
	}
	return m, true
}

func (m *matcher) score(doc *models.ParsedDocument) (int, []string) {
	if doc == nil {
		return 0, nil
	}

	score := 0
	name := strings.ToLower(doc.Metadata.Name)
	if strings.Contains(name, m.query) || containsAny(name, m.words) {
		score += NameMatchScore
	}

	for _, kw := range doc.Keywords {
		kw = strings.ToLower(kw)
		for _, w := range m.words {
			if strings.Contains(kw, w) || strings.Contains(w, kw) {
				score += KeywordScore
				break
			}
		}
	}

	content := strings.ToLower(doc.Content)
	for _, p := range m.patterns {
		score += len(p.FindAllStringIndex(content, -1))
	}

	return score, relevantSections(doc.Sections, m.words)
}

func wordPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
}

func relevantSections(sections, words []string) []string {
	var out []string
	for _, s := range sections {
		if len(out) == MaxSections {
			break
		}
		if containsAny(strings.ToLower(s), words) {
			out = append(out, keywords.Truncate(s, MaxSectionLen))
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// RankAll scores every document, drops zero scores and sorts by descending
// score. Equal scores keep their input order.
func RankAll(query string, docs []*models.ParsedDocument) []models.SearchResult {
	m, ok := newMatcher(query)
	if !ok {
		return []models.SearchResult{}
	}

	results := make([]models.SearchResult, 0, len(docs))
	for _, doc := range docs {
		score, sections := m.score(doc)
		if score <= 0 {
			continue
		}
		if sections == nil {
			sections = []string{}
		}
		results = append(results, models.SearchResult{
			Document:         doc.Metadata,
			RelevantSections: sections,
			MatchScore:       score,
		})
	}

	slices.SortStableFunc(results, func(a, b models.SearchResult) int {
		return cmp.Compare(b.MatchScore, a.MatchScore)
	})
	return results
}

// Rank is RankAll truncated to MaxResults.
func Rank(query string, docs []*models.ParsedDocument) []models.SearchResult {
	results := RankAll(query, docs)
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results
}
