package keywords

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{
			name:  "vocabulary in list order",
			text:  "Il DOSAGGIO del protocollo CDS",
			limit: DocumentLimit,
			want:  []string{"protocollo", "protocol", "dosaggio", "cds"},
		},
		{
			name:  "technical terms lower-cased",
			text:  "Assumere B12 e CoQ10, controllare il pH",
			limit: DocumentLimit,
			want:  []string{"b12", "coq10", "ph"},
		},
		{
			name:  "dosage tokens starting with digits",
			text:  "Assumere 500mg al giorno, poi 10ml e B12 per 30 giorni",
			limit: DocumentLimit,
			want:  []string{"500mg", "10ml", "b12"},
		},
		{
			name:  "no duplicates",
			text:  "B12 b12 B12",
			limit: DocumentLimit,
			want:  []string{"b12"},
		},
		{
			name:  "respects limit",
			text:  "magnesio zinco iodio curcuma",
			limit: 2,
			want:  []string{"magnesio", "zinco"},
		},
		{
			name:  "nothing found",
			text:  "hello world",
			limit: QueryLimit,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtract_NeverExceedsDocumentLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString(strings.Join(vocabulary, " "))
	for i := 0; i < 50; i++ {
		b.WriteString(" X")
		b.WriteString(strings.Repeat("a", i+1))
		b.WriteString("1")
	}

	for _, limit := range []int{0, DocumentLimit, 100} {
		got := Extract(b.String(), limit)
		if len(got) > DocumentLimit {
			t.Errorf("Extract(limit=%d) returned %d keywords", limit, len(got))
		}
		seen := make(map[string]bool)
		for _, k := range got {
			if seen[k] {
				t.Errorf("duplicate keyword %q", k)
			}
			seen[k] = true
		}
	}
}

func TestIsHeading(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"PROTOCOLLO BASE", true},
		{"1. Preparazione", true},
		{"2) Dosaggio", true},
		{"- punto elenco", true},
		{"## Titolo", true},
		{"=== SHEET: Mar ===", true},
		{"Una frase normale.", false},
		{"", false},
		{"123", false},
		{strings.Repeat("A", 100), false},
	}

	for _, tt := range tests {
		if got := IsHeading(tt.line); got != tt.want {
			t.Errorf("IsHeading(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestSections_SplitsAtHeadings(t *testing.T) {
	body := strings.Repeat("testo del protocollo ", 8)
	text := "INTRODUZIONE\n" + body + "\nDOSAGGIO\n" + body + "\nNOTE\nbreve"

	got := Sections(text)

	if len(got) != 2 {
		t.Fatalf("Sections() returned %d sections, want 2: %q", len(got), got)
	}
	if !strings.HasPrefix(got[0], "INTRODUZIONE") || !strings.HasPrefix(got[1], "DOSAGGIO") {
		t.Errorf("sections should start with their heading, got %q", got)
	}
}

func TestSections_FallsBackToParagraphs(t *testing.T) {
	long := strings.Repeat("parola ", 10)
	text := long + "\n\ncorto\n\n" + long

	got := Sections(text)

	if len(got) != 2 {
		t.Fatalf("Sections() = %q, want two long paragraphs", got)
	}
}

func TestSummary(t *testing.T) {
	content := "Il dosaggio consigliato secondo lo studio clinico.\n\nSecondo paragrafo."

	got := Summary(content, "Protocollo_CDS.pdf")

	for _, want := range []string{
		"Document: Protocollo_CDS.pdf",
		"Words: 9",
		"Contains dosage or protocol information",
		"Contains research references",
		"Excerpt: Il dosaggio consigliato secondo lo studio clinico.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Secondo paragrafo") {
		t.Errorf("excerpt should stop at the first paragraph:\n%s", got)
	}
}

func TestSummary_TruncatesExcerpt(t *testing.T) {
	got := Summary(strings.Repeat("a", 300), "x.txt")

	if !strings.Contains(got, "Excerpt: "+strings.Repeat("a", 200)+"...") {
		t.Errorf("excerpt should be cut at 200 characters:\n%s", got)
	}
	if strings.Contains(got, "dosage") || strings.Contains(got, "research") {
		t.Errorf("flags should be absent:\n%s", got)
	}
}
