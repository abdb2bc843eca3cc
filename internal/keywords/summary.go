package keywords

import (
	"fmt"
	"strings"
)

const excerptLen = 200

var (
	dosageTerms   = []string{"dosaggio", "dosage", "dose", "protocollo", "protocol", "posologia"}
	researchTerms = []string{"ricerca", "research", "studio", "study", "studies", "clinico", "clinical", "pubmed"}
)

// Summary builds a short fixed-format description of a document.
func Summary(content, fileName string) string {
	lower := strings.ToLower(content)

	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", fileName)
	fmt.Fprintf(&b, "Words: %d\n", len(strings.Fields(content)))
	if containsAny(lower, dosageTerms) {
		b.WriteString("Contains dosage or protocol information\n")
	}
	if containsAny(lower, researchTerms) {
		b.WriteString("Contains research references\n")
	}
	if excerpt := firstParagraph(content); excerpt != "" {
		fmt.Fprintf(&b, "Excerpt: %s", Truncate(excerpt, excerptLen))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func firstParagraph(content string) string {
	for _, p := range paragraphBreak.Split(content, -1) {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			return p
		}
	}
	return ""
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
