package normalizer

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

type statusEntry struct {
	label string
	code  int
}

type dictionaryEntry struct {
	words string
	code  int
}

// minPartialMatch is the shortest text that may resolve to a longer label.
const minPartialMatch = 4

// StatusDictionary resolves free-text status labels to backend status codes.
// Exact matches win; otherwise the first entry whose words appear in the text,
// or that contains the text as whole words, is used, in insertion order.
type StatusDictionary struct {
	entries []dictionaryEntry
	exact   map[string]int
}

var defaultStatusEntries = []statusEntry{
	{"nuevo", domain.StatusNew},
	{"new", domain.StatusNew},
	{"en curso", domain.StatusAssigned},
	{"en curso (asignada)", domain.StatusAssigned},
	{"en curso (planificada)", domain.StatusPlanned},
	{"en progreso", domain.StatusAssigned},
	{"in progress", domain.StatusAssigned},
	{"assigned", domain.StatusAssigned},
	{"planned", domain.StatusPlanned},
	{"en espera", domain.StatusPending},
	{"pendiente", domain.StatusPending},
	{"pending", domain.StatusPending},
	{"waiting", domain.StatusPending},
	{"resuelto", domain.StatusSolved},
	{"solucionado", domain.StatusSolved},
	{"solved", domain.StatusSolved},
	{"cerrado", domain.StatusClosed},
	{"closed", domain.StatusClosed},
}

// DefaultStatusDictionary returns the built-in Spanish/English dictionary.
func DefaultStatusDictionary() *StatusDictionary {
	return newStatusDictionary(nil)
}

func newStatusDictionary(extra []statusEntry) *StatusDictionary {
	d := &StatusDictionary{exact: make(map[string]int)}
	for _, e := range append(extra, defaultStatusEntries...) {
		label := normalizeLabel(e.label)
		if label == "" {
			continue
		}
		if _, dup := d.exact[label]; dup {
			continue
		}
		d.exact[label] = e.code
		d.entries = append(d.entries, dictionaryEntry{words: wordForm(label), code: e.code})
	}
	return d
}

type statusFile struct {
	Statuses []struct {
		Label string `yaml:"label"`
		Code  int    `yaml:"code"`
	} `yaml:"statuses"`
}

// LoadStatusDictionary extends the default dictionary with the labels listed in
// a YAML file. File entries take precedence over built-in ones.
func LoadStatusDictionary(path string) (*StatusDictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status dictionary: %w", err)
	}
	return ParseStatusDictionary(data)
}

// ParseStatusDictionary builds a dictionary from YAML content.
func ParseStatusDictionary(data []byte) (*StatusDictionary, error) {
	var file statusFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse status dictionary: %w", err)
	}
	extra := make([]statusEntry, 0, len(file.Statuses))
	for i, s := range file.Statuses {
		if !domain.ValidStatus(s.Code) {
			return nil, fmt.Errorf("status dictionary entry %d (%q): invalid code %d", i, s.Label, s.Code)
		}
		extra = append(extra, statusEntry{label: s.Label, code: s.Code})
	}
	return newStatusDictionary(extra), nil
}

// Lookup resolves text to a status code.
func (d *StatusDictionary) Lookup(text string) (int, bool) {
	if d == nil {
		return 0, false
	}
	normalized := normalizeLabel(text)
	if normalized == "" {
		return 0, false
	}
	if code, ok := d.exact[normalized]; ok {
		return code, true
	}
	words := wordForm(normalized)
	partial := utf8.RuneCountInString(words) >= minPartialMatch
	for _, e := range d.entries {
		if containsPhrase(words, e.words) || (partial && containsPhrase(e.words, words)) {
			return e.code, true
		}
	}
	return 0, false
}

// Len reports the number of known labels.
func (d *StatusDictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// wordForm keeps letters and digits, joining the words with single spaces.
func wordForm(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}), " ")
}

func containsPhrase(haystack, needle string) bool {
	if needle == "" || haystack == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}
