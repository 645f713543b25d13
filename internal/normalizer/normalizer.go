// Package normalizer turns heterogeneous backend change notifications into
// canonical ticket updates.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// ErrNoTicketID is returned when no ticket identifier can be found.
var ErrNoTicketID = errors.New("normalizer: no ticket id found")

// ErrEmptyPayload is returned for blank input.
var ErrEmptyPayload = errors.New("normalizer: empty payload")

// DefaultExcerpt is used when a payload carries no message text.
const DefaultExcerpt = "Actualización de ticket"

// Payload sources.
const (
	SourceTemplate = "json-template"
	SourceJSON     = "json"
	SourceText     = "text"
)

// Parsed is the result of normalizing one payload.
type Parsed struct {
	Update domain.TicketUpdate
	// StatusText is the free-text status found in the payload, if any. It
	// overrides structured status codes, including backend-fetched ones.
	StatusText string
	// TextAssignee and TextGroup come from labeled text lines and win over
	// structured assignee fields.
	TextAssignee string
	TextGroup    string
	// PayloadStatus is the structured status code carried by the payload.
	PayloadStatus int
	// Override is set when StatusText replaced the structured status.
	Override  *StatusOverride
	Source    string
	Extractor string
}

// Normalizer parses raw payloads. It is safe for concurrent use.
type Normalizer struct {
	statuses   *StatusDictionary
	extractors []Extractor
	now        func() time.Time
	loc        *time.Location
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithStatusDictionary replaces the status text dictionary.
func WithStatusDictionary(d *StatusDictionary) Option {
	return func(n *Normalizer) {
		if d != nil {
			n.statuses = d
		}
	}
}

// WithExtractors replaces the text extractor chain.
func WithExtractors(extractors ...Extractor) Option {
	return func(n *Normalizer) {
		if len(extractors) > 0 {
			n.extractors = extractors
		}
	}
}

// WithClock overrides the time source used for OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithLocation sets the zone of backend timestamps that carry no offset.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// New returns a Normalizer with the default dictionary and extractor chain.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		statuses:   DefaultStatusDictionary(),
		extractors: DefaultExtractors(),
		now:        time.Now,
		loc:        time.UTC,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize parses raw into a canonical update or returns ErrNoTicketID.
func (n *Normalizer) Normalize(raw []byte) (Parsed, error) {
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return Parsed{}, ErrEmptyPayload
	}

	p := Parsed{Update: domain.TicketUpdate{Kind: domain.UpdateKindUpdate, OccurredAt: n.now()}}

	fields, ok := decodeEmbeddedJSON(raw)
	if ok {
		n.applyJSON(&p, fields)
	}

	if p.Update.TicketID <= 0 {
		p.Source = SourceText
		for _, ex := range n.extractors {
			if id, found := ex.Extract(text); found {
				p.Update.TicketID = id
				p.Extractor = ex.Name()
				break
			}
		}
		labeled := extractLabeledFields(text)
		if labeled.status != "" {
			p.StatusText = labeled.status
		}
		if labeled.title != "" {
			p.Update.Title = labeled.title
		}
		p.TextAssignee = labeled.technician
		p.TextGroup = labeled.group
	}

	if p.Update.TicketID <= 0 {
		return p, ErrNoTicketID
	}

	if domain.ValidStatus(p.PayloadStatus) {
		p.Update.SetStatus(p.PayloadStatus)
	} else if p.StatusText != "" {
		p.Update.StatusLabel = p.StatusText
	}
	if p.TextAssignee != "" {
		p.Update.AssignedTo = p.TextAssignee
	}
	if p.TextGroup != "" {
		p.Update.Group = p.TextGroup
	}
	if p.Update.LastMessageExcerpt == "" {
		p.Update.LastMessageExcerpt = DefaultExcerpt
	}
	p.Override = n.applyStatusText(&p.Update, p.StatusText)
	return p, nil
}

// StatusOverride records a status replaced by a free-text label.
type StatusOverride struct {
	From int
	To   int
	Text string
}

// Suspicious reports transitions that leave a terminal state.
func (o StatusOverride) Suspicious() bool {
	return o.From == domain.StatusClosed && o.To != domain.StatusClosed
}

// applyStatusText lets a recognised free-text status override the structured
// code. It returns the override applied, if any.
func (n *Normalizer) applyStatusText(u *domain.TicketUpdate, statusText string) *StatusOverride {
	if statusText == "" {
		return nil
	}
	code, ok := n.statuses.Lookup(statusText)
	if !ok || code == u.Status() {
		return nil
	}
	override := &StatusOverride{From: u.Status(), To: code, Text: statusText}
	u.SetStatus(code)
	return override
}

// LookupStatus exposes the dictionary used for free-text statuses.
func (n *Normalizer) LookupStatus(text string) (int, bool) {
	return n.statuses.Lookup(text)
}

func decodeEmbeddedJSON(raw []byte) (map[string]any, bool) {
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw[start : end+1]))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, false
	}
	return fields, true
}

func (n *Normalizer) applyJSON(p *Parsed, body map[string]any) {
	u := &p.Update
	if ticket, ok := body["ticket"].(map[string]any); ok {
		p.Source = SourceTemplate
		u.TicketID, _ = asInt(ticket["id"])
		if code, ok := asInt(firstPresent(ticket, "estado_db", "estado")); ok {
			p.PayloadStatus = code
		}
		p.StatusText = asString(ticket["estado"])
		if code, ok := asInt(ticket["prioridad"]); ok && domain.ValidPriority(code) {
			u.SetPriority(code)
		}
		u.LastMessageExcerpt = StripMarkup(asString(ticket["descripcion"]))
		u.Title = DecodeEntities(asString(ticket["titulo"]))
		u.CreatedAt = n.parseTime(asString(ticket["fecha_creacion"]))
		u.Kind = kindFromEvent(asString(body["evento"]))
		return
	}

	p.Source = SourceJSON
	u.TicketID, _ = asInt(firstPresent(body, "id", "ticket_id", "items_id"))
	if code, ok := asInt(body["status"]); ok {
		p.PayloadStatus = code
	} else if s := asString(body["status"]); s != "" {
		p.StatusText = s
	}
	if s := asString(body["statusText"]); s != "" {
		p.StatusText = s
	}
	if code, ok := asInt(body["priority"]); ok && domain.ValidPriority(code) {
		u.SetPriority(code)
	}
	u.LastMessageExcerpt = StripMarkup(asString(firstPresent(body, "content", "followup_content")))
	u.Title = DecodeEntities(asString(firstPresent(body, "name", "title")))
	u.AssignedTo = asString(firstPresent(body, "users_id_assign_name", "assigned_to"))
	if u.AssignedTo == "" {
		u.AssignedTo = firstNestedName(body["_users_id_assign"])
	}
	u.Group = asString(body["groups_id_assign_name"])
	if u.Group == "" {
		u.Group = firstNestedName(body["_groups_id_assign"])
	}
	u.Category = DecodeEntities(asString(body["category"]))
	u.CreatedAt = n.parseTime(asString(firstPresent(body, "date_creation", "date")))
	u.Kind = kindFromEvent(asString(firstPresent(body, "event_type", "evento")))
}

var payloadTimeLayouts = []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}

// parseTime reads a backend timestamp, returning nil when it is absent or
// unreadable.
func (n *Normalizer) parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	for _, layout := range payloadTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return &t
		}
	}
	return nil
}

func kindFromEvent(event string) domain.UpdateKind {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case "new", "create", "add", "creation":
		return domain.UpdateKindCreate
	case "delete", "purge":
		return domain.UpdateKindDelete
	default:
		return domain.UpdateKindUpdate
	}
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func firstNestedName(v any) string {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	entry, ok := list[0].(map[string]any)
	if !ok {
		return ""
	}
	return asString(entry["name"])
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), i > 0
		}
		if f, err := t.Float64(); err == nil && f == float64(int(f)) {
			return int(f), f > 0
		}
	case float64:
		return int(t), t > 0 && t == float64(int(t))
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil && i > 0
	}
	return 0, false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}
