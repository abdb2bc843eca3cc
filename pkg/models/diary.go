package models

import (
	"fmt"
	"time"
)

// DiaryDateLayout is the key format of diary entries.
const DiaryDateLayout = "2006-01-02"

// DiaryEntry is one day of the journal.
type DiaryEntry struct {
	Date      string       `json:"date"`
	Mood      int          `json:"mood"`
	Energy    int          `json:"energy"`
	Notes     string       `json:"notes,omitempty"`
	Symptoms  []SymptomLog `json:"symptoms,omitempty"`
	Intakes   []IntakeLog  `json:"intakes,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// SymptomLog records a symptom felt on a diary day.
type SymptomLog struct {
	Name      string `json:"name"`
	Intensity int    `json:"intensity"`
	Notes     string `json:"notes,omitempty"`
}

// IntakeLog records one protocol intake on a diary day.
type IntakeLog struct {
	Substance string `json:"substance"`
	Dosage    string `json:"dosage,omitempty"`
	Time      string `json:"time,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
}

// Validate checks the entry's date and scalar ranges.
func (e DiaryEntry) Validate() error {
	if _, err := time.Parse(DiaryDateLayout, e.Date); err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD", e.Date)
	}
	if e.Mood < 1 || e.Mood > 10 {
		return fmt.Errorf("mood must be between 1 and 10, got %d", e.Mood)
	}
	if e.Energy < 1 || e.Energy > 10 {
		return fmt.Errorf("energy must be between 1 and 10, got %d", e.Energy)
	}
	for _, s := range e.Symptoms {
		if s.Name == "" {
			return fmt.Errorf("symptom name is required")
		}
		if s.Intensity < 1 || s.Intensity > 10 {
			return fmt.Errorf("symptom %q intensity must be between 1 and 10", s.Name)
		}
	}
	for _, in := range e.Intakes {
		if in.Substance == "" {
			return fmt.Errorf("intake substance is required")
		}
	}
	return nil
}
