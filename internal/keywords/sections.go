package keywords

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxHeadingLen   = 100
	minSectionLen   = 100
	minParagraphLen = 50
)

var (
	listMarker     = regexp.MustCompile(`^(?:\d+[.)]|[-*•]|#{1,6})\s+\S`)
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
)

// IsHeading reports whether a line looks like a section heading: short and
// upper-case, a bullet or numbered item, a Markdown heading, or wrapped in '='.
func IsHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) >= maxHeadingLen {
		return false
	}
	if isUpper(line) || listMarker.MatchString(line) {
		return true
	}
	return len(line) > 1 && strings.HasPrefix(line, "=") && strings.HasSuffix(line, "=")
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

// Sections splits text at heading lines. A section is kept only when it is
// longer than 100 characters. When no heading yields a section, blank-line
// separated paragraphs longer than 50 characters are returned instead.
func Sections(text string) []string {
	var (
		sections []string
		buf      strings.Builder
		headings int
	)
	flush := func() {
		if s := strings.TrimSpace(buf.String()); len(s) > minSectionLen {
			sections = append(sections, s)
		}
		buf.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if IsHeading(line) {
			flush()
			headings++
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()

	if headings > 0 && len(sections) > 0 {
		return sections
	}
	return Paragraphs(text, minParagraphLen)
}

// Paragraphs returns the trimmed blank-line separated paragraphs of text
// longer than minLen.
func Paragraphs(text string, minLen int) []string {
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); len(p) > minLen {
			out = append(out, p)
		}
	}
	return out
}
