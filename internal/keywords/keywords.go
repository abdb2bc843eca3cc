// Package keywords derives keyword sets, sections and summaries from
// extracted document text.
package keywords

import (
	"regexp"
	"strings"
)

// Limits on the number of keywords returned.
const (
	DocumentLimit = 20
	QueryLimit    = 10
)

// vocabulary is matched by case-insensitive containment, in this order.
var vocabulary = []string{
	"protocollo", "protocol",
	"dosaggio", "dosage", "dose",
	"sintomi", "sintomo", "symptom",
	"sostanza", "substance",
	"integratore", "supplement",
	"vitamina", "vitamin",
	"minerali", "mineral",
	"cds", "mms", "dmso",
	"biossido di cloro", "chlorine dioxide",
	"ozono", "ozone",
	"magnesio", "magnesium",
	"zinco", "zinc",
	"iodio", "iodine",
	"curcuma", "turmeric",
	"detox", "disintossicazione",
	"parassiti", "parasite",
	"candida",
	"infiammazione", "inflammation",
	"sistema immunitario", "immune",
	"gocce", "drops",
	"terapia", "therapy",
	"trattamento", "treatment",
	"controindicazioni", "contraindication",
	"effetti collaterali", "side effect",
	"ricerca", "research",
	"studio", "study",
}

// technicalTerm matches words with internal capitalisation (pH, CoQ10) and
// alphanumeric tokens containing digits (B12, omega3, 500mg). Bare numbers
// are not terms.
var technicalTerm = regexp.MustCompile(`\b(?:[A-Za-z]*[a-z][A-Z][A-Za-z0-9]*|[A-Za-z]+\d[A-Za-z0-9]*|\d+[A-Za-z][A-Za-z0-9]*)\b`)

// Extract returns up to limit distinct keywords found in text, vocabulary
// terms first, then technical terms in order of appearance. A limit outside
// 1..DocumentLimit is treated as DocumentLimit.
func Extract(text string, limit int) []string {
	if limit <= 0 || limit > DocumentLimit {
		limit = DocumentLimit
	}

	var (
		out  []string
		seen = make(map[string]struct{})
	)
	add := func(k string) bool {
		if _, ok := seen[k]; ok {
			return len(out) < limit
		}
		seen[k] = struct{}{}
		out = append(out, k)
		return len(out) < limit
	}

	lower := strings.ToLower(text)
	for _, term := range vocabulary {
		if strings.Contains(lower, term) && !add(term) {
			return out
		}
	}
	for _, m := range technicalTerm.FindAllString(text, -1) {
		if !add(strings.ToLower(m)) {
			return out
		}
	}
	return out
}
