package models

// Substance is a catalog entry from the substances table.
type Substance struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Dosage      string   `json:"dosage,omitempty"`
	Warnings    string   `json:"warnings,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Protocol is a catalog entry from the protocols table.
type Protocol struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Dosage      string   `json:"dosage,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Substances  []string `json:"substances,omitempty"`
	Symptoms    []string `json:"symptoms,omitempty"`
}

// Symptom is a catalog entry from the symptoms table, with the protocols
// it is correlated with.
type Symptom struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Severity    int      `json:"severity,omitempty"`
	Protocols   []string `json:"protocols,omitempty"`
}
