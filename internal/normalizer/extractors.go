package normalizer

import (
	"regexp"
	"strconv"
	"strings"
)

// Extractor finds a ticket id in unstructured text.
type Extractor interface {
	Name() string
	Extract(raw string) (int, bool)
}

type regexpExtractor struct {
	name string
	re   *regexp.Regexp
}

// NewRegexpExtractor builds an extractor whose first capture group is the id.
func NewRegexpExtractor(name, pattern string) Extractor {
	return &regexpExtractor{name: name, re: regexp.MustCompile(pattern)}
}

func (e *regexpExtractor) Name() string { return e.name }

func (e *regexpExtractor) Extract(raw string) (int, bool) {
	m := e.re.FindStringSubmatch(raw)
	if len(m) < 2 {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// DefaultExtractors returns the ordered chain applied to text payloads.
// Order matters: the first match wins.
func DefaultExtractors() []Extractor {
	return []Extractor{
		NewRegexpExtractor("url-query", `[?&]id=(\d+)`),
		NewRegexpExtractor("hash", `#(\d+)`),
		NewRegexpExtractor("ticket-label", `(?i)(?:Ticket|Caso|Case)\s*[:#]?\s*(\d+)`),
		NewRegexpExtractor("id-field", `(?i)\bID\s*:\s*(\d+)`),
		NewRegexpExtractor("numero-field", `(?i)N[úu]mero\s*:\s*(\d+)`),
		NewRegexpExtractor("generic", `(?i)(?:ticket|caso|case)[^\d]*(\d+)`),
	}
}

var (
	statusLinePattern     = regexp.MustCompile(`(?i)(?:Estados?|Status|State)\s*:\s*(.+?)(?:\r?\n|$)`)
	titleLinePattern      = regexp.MustCompile(`(?i)T[ií]tulo\s*:\s*(.+?)(?:\r?\n|$)`)
	technicianLinePattern = regexp.MustCompile(`(?i)Asignado a t[ée]cnicos?\s*:\s*(.+?)(?:\r?\n|$)`)
	groupLinePattern      = regexp.MustCompile(`(?i)Asignad[ao] al grupo\s*:\s*(.+?)(?:\r?\n|$)`)
)

type labeledFields struct {
	status     string
	title      string
	technician string
	group      string
}

func extractLabeledFields(raw string) labeledFields {
	return labeledFields{
		status:     firstGroup(statusLinePattern, raw),
		title:      firstGroup(titleLinePattern, raw),
		technician: firstGroup(technicianLinePattern, raw),
		group:      firstGroup(groupLinePattern, raw),
	}
}

func firstGroup(re *regexp.Regexp, raw string) string {
	m := re.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
