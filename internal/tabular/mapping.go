package tabular

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/pkg/models"
)

// fields is a record's field map with normalised names.
type fields map[string]any

// normalizeFields lower-cases and trims every field name. It is the only
// place field-name spelling is reconciled.
func normalizeFields(raw map[string]any) fields {
	out := make(fields, len(raw))
	for k, v := range raw {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// Accepted spellings per logical field, Italian first.
var (
	nameKeys        = []string{"nome", "name"}
	descriptionKeys = []string{"descrizione", "description"}
	dosageKeys      = []string{"dosaggio", "dosage", "posologia"}
	durationKeys    = []string{"durata", "duration"}
	categoryKeys    = []string{"categoria", "category"}
	warningKeys     = []string{"avvertenze", "controindicazioni", "warnings"}
	tagKeys         = []string{"tag", "tags"}
	substanceKeys   = []string{"sostanze", "substances"}
	symptomKeys     = []string{"sintomi", "symptoms"}
	protocolKeys    = []string{"protocolli", "protocols"}
	severityKeys    = []string{"gravità", "gravita", "severity"}
)

type mapper struct {
	table string
	rec   Record
	f     fields
}

func newMapper(table string, rec Record) *mapper {
	return &mapper{table: table, rec: rec, f: normalizeFields(rec.Fields)}
}

func (m *mapper) fail(field, reason string) error {
	return &apperr.MappingError{Table: m.table, RecordID: m.rec.ID, Field: field, Reason: reason}
}

func (m *mapper) lookup(keys []string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := m.f[k]; ok && v != nil {
			return v, k, true
		}
	}
	return nil, keys[0], false
}

func (m *mapper) requiredString(keys []string) (string, error) {
	s, err := m.optionalString(keys)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", m.fail(keys[0], "is required")
	}
	return s, nil
}

func (m *mapper) optionalString(keys []string) (string, error) {
	v, key, ok := m.lookup(keys)
	if !ok {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case []any:
		// single-select lookups arrive as one-element arrays
		parts, err := m.stringList(key, t)
		if err != nil {
			return "", err
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", m.fail(key, fmt.Sprintf("has unsupported type %T", v))
	}
}

func (m *mapper) optionalList(keys []string) ([]string, error) {
	v, key, ok := m.lookup(keys)
	if !ok {
		return nil, nil
	}
	switch t := v.(type) {
	case []any:
		return m.stringList(key, t)
	case string:
		var out []string
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return nil, m.fail(key, fmt.Sprintf("has unsupported type %T", v))
	}
}

func (m *mapper) stringList(key string, items []any) ([]string, error) {
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, m.fail(key, fmt.Sprintf("contains %T, want text", item))
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mapper) optionalInt(keys []string, lo, hi int) (int, error) {
	v, key, ok := m.lookup(keys)
	if !ok {
		return 0, nil
	}
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, m.fail(key, "is not a number")
		}
		n = parsed
	default:
		return 0, m.fail(key, fmt.Sprintf("has unsupported type %T", v))
	}
	if n != math.Trunc(n) || int(n) < lo || int(n) > hi {
		return 0, m.fail(key, fmt.Sprintf("must be an integer between %d and %d", lo, hi))
	}
	return int(n), nil
}

// MapSubstance maps a record of the substances table. Name is required.
func MapSubstance(table string, rec Record) (models.Substance, error) {
	m := newMapper(table, rec)
	s := models.Substance{ID: rec.ID}

	var err error
	if s.Name, err = m.requiredString(nameKeys); err != nil {
		return models.Substance{}, err
	}
	if s.Category, err = m.optionalString(categoryKeys); err != nil {
		return models.Substance{}, err
	}
	if s.Description, err = m.optionalString(descriptionKeys); err != nil {
		return models.Substance{}, err
	}
	if s.Dosage, err = m.optionalString(dosageKeys); err != nil {
		return models.Substance{}, err
	}
	if s.Warnings, err = m.optionalString(warningKeys); err != nil {
		return models.Substance{}, err
	}
	if s.Tags, err = m.optionalList(tagKeys); err != nil {
		return models.Substance{}, err
	}
	return s, nil
}

// MapProtocol maps a record of the protocols table. Name is required.
func MapProtocol(table string, rec Record) (models.Protocol, error) {
	m := newMapper(table, rec)
	p := models.Protocol{ID: rec.ID}

	var err error
	if p.Name, err = m.requiredString(nameKeys); err != nil {
		return models.Protocol{}, err
	}
	if p.Description, err = m.optionalString(descriptionKeys); err != nil {
		return models.Protocol{}, err
	}
	if p.Dosage, err = m.optionalString(dosageKeys); err != nil {
		return models.Protocol{}, err
	}
	if p.Duration, err = m.optionalString(durationKeys); err != nil {
		return models.Protocol{}, err
	}
	if p.Substances, err = m.optionalList(substanceKeys); err != nil {
		return models.Protocol{}, err
	}
	if p.Symptoms, err = m.optionalList(symptomKeys); err != nil {
		return models.Protocol{}, err
	}
	return p, nil
}

// MapSymptom maps a record of the symptoms table. Name is required and
// severity, when present, must be 1..10.
func MapSymptom(table string, rec Record) (models.Symptom, error) {
	m := newMapper(table, rec)
	s := models.Symptom{ID: rec.ID}

	var err error
	if s.Name, err = m.requiredString(nameKeys); err != nil {
		return models.Symptom{}, err
	}
	if s.Description, err = m.optionalString(descriptionKeys); err != nil {
		return models.Symptom{}, err
	}
	if s.Severity, err = m.optionalInt(severityKeys, 1, 10); err != nil {
		return models.Symptom{}, err
	}
	if s.Protocols, err = m.optionalList(protocolKeys); err != nil {
		return models.Symptom{}, err
	}
	return s, nil
}
