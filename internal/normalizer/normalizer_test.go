package normalizer

import (
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

var fixedNow = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func newTestNormalizer(t *testing.T, opts ...Option) *Normalizer {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(opts...)
}

func TestNormalizeTemplatePayloadTextStatusWins(t *testing.T) {
	n := newTestNormalizer(t)
	raw := `{"evento":"update","ticket":{"id":"42","estado_db":"2","estado":"Cerrado","prioridad":"4","descripcion":"&lt;p&gt;Hola&lt;/p&gt;"}}`

	p, err := n.Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	u := p.Update
	if u.TicketID != 42 {
		t.Fatalf("ticket id = %d, want 42", u.TicketID)
	}
	if u.Status() != domain.StatusClosed || u.StatusLabel != "cerrado" {
		t.Fatalf("status = %d/%s, want closed", u.Status(), u.StatusLabel)
	}
	if u.PriorityCode == nil || *u.PriorityCode != 4 || u.PriorityLabel != "alta" {
		t.Fatalf("priority = %v/%s", u.PriorityCode, u.PriorityLabel)
	}
	if u.LastMessageExcerpt != "Hola" {
		t.Fatalf("excerpt = %q", u.LastMessageExcerpt)
	}
	if p.Source != SourceTemplate {
		t.Fatalf("source = %s", p.Source)
	}
	if p.Override == nil || p.Override.From != domain.StatusAssigned || p.Override.To != domain.StatusClosed {
		t.Fatalf("override = %+v", p.Override)
	}
	if !u.OccurredAt.Equal(fixedNow) {
		t.Fatalf("occurredAt = %v", u.OccurredAt)
	}
}

func TestNormalizeTemplateCreationDate(t *testing.T) {
	bogota, err := time.LoadLocation("America/Bogota")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	n := newTestNormalizer(t, WithLocation(bogota))

	p, err := n.Normalize([]byte(`{"ticket":{"id":"55","estado_db":"6","fecha_creacion":"2024-05-01 08:30:00"}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := time.Date(2024, 5, 1, 8, 30, 0, 0, bogota)
	if p.Update.CreatedAt == nil || !p.Update.CreatedAt.Equal(want) {
		t.Fatalf("createdAt = %v, want %v", p.Update.CreatedAt, want)
	}
	if !p.Update.OccurredAt.Equal(fixedNow) {
		t.Fatalf("creation date must not replace occurredAt: %v", p.Update.OccurredAt)
	}

	p, err = n.Normalize([]byte(`{"ticket":{"id":"55","fecha_creacion":"ayer"}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if p.Update.CreatedAt != nil {
		t.Fatalf("unreadable date should be dropped, got %v", p.Update.CreatedAt)
	}
}

func TestNormalizeFlatJSON(t *testing.T) {
	n := newTestNormalizer(t)
	cases := []struct {
		name    string
		raw     string
		id      int
		status  int
		excerpt string
		kind    domain.UpdateKind
	}{
		{"numeric id", `{"id": 7, "status": 5, "content": "Done<br>now"}`, 7, domain.StatusSolved, "Done now", domain.UpdateKindUpdate},
		{"ticket_id string", `{"ticket_id": "12", "event_type": "new"}`, 12, 0, DefaultExcerpt, domain.UpdateKindCreate},
		{"items_id", `{"items_id": 300, "followup_content": "ok", "event_type": "purge"}`, 300, 0, "ok", domain.UpdateKindDelete},
		{"noise around json", "payload follows:\n {\"id\": \"9\", \"status\": \"4\"} -- end", 9, domain.StatusPending, DefaultExcerpt, domain.UpdateKindUpdate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := n.Normalize([]byte(tc.raw))
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if p.Update.TicketID != tc.id {
				t.Fatalf("id = %d, want %d", p.Update.TicketID, tc.id)
			}
			if p.Update.Status() != tc.status {
				t.Fatalf("status = %d, want %d", p.Update.Status(), tc.status)
			}
			if p.Update.LastMessageExcerpt != tc.excerpt {
				t.Fatalf("excerpt = %q, want %q", p.Update.LastMessageExcerpt, tc.excerpt)
			}
			if p.Update.Kind != tc.kind {
				t.Fatalf("kind = %s, want %s", p.Update.Kind, tc.kind)
			}
		})
	}
}

func TestNormalizeFlatJSONAssignees(t *testing.T) {
	n := newTestNormalizer(t)
	raw := `{"id": 3, "_users_id_assign": [{"name": "Ana Pérez"}], "_groups_id_assign": [{"name": "Soporte N1"}]}`
	p, err := n.Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if p.Update.AssignedTo != "Ana Pérez" || p.Update.Group != "Soporte N1" {
		t.Fatalf("assignee/group = %q/%q", p.Update.AssignedTo, p.Update.Group)
	}
}

func TestNormalizeTextExtractorOrder(t *testing.T) {
	n := newTestNormalizer(t)
	cases := []struct {
		name      string
		raw       string
		id        int
		extractor string
	}{
		{"url wins over hash", "Nuevo seguimiento Ticket #99\nURL : https://glpi/front/ticket.form.php?id=123", 123, "url-query"},
		{"hash", "Ticket #55 actualizado", 55, "hash"},
		{"ticket label", "Caso: 808 actualizado", 808, "ticket-label"},
		{"id field", "Datos\nID : 4410\n", 4410, "id-field"},
		{"numero field", "Número: 77", 77, "numero-field"},
		{"generic", "el ticket fue movido al 3 piso", 3, "generic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := n.Normalize([]byte(tc.raw))
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if p.Update.TicketID != tc.id || p.Extractor != tc.extractor {
				t.Fatalf("got %d via %s, want %d via %s", p.Update.TicketID, p.Extractor, tc.id, tc.extractor)
			}
			if p.Source != SourceText {
				t.Fatalf("source = %s", p.Source)
			}
		})
	}
}

func TestNormalizeTextLabeledFields(t *testing.T) {
	n := newTestNormalizer(t)
	raw := "Ticket #55\nEstados : En espera\nTítulo : Impresora sin tóner\nAsignado a técnicos : Ana\nAsignado al grupo : Soporte\n"

	p, err := n.Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	u := p.Update
	if u.TicketID != 55 {
		t.Fatalf("id = %d", u.TicketID)
	}
	if u.Status() != domain.StatusPending || u.StatusLabel != "pendiente" {
		t.Fatalf("status = %d/%s", u.Status(), u.StatusLabel)
	}
	if u.Title != "Impresora sin tóner" || u.AssignedTo != "Ana" || u.Group != "Soporte" {
		t.Fatalf("fields = %+v", u)
	}
}

func TestNormalizeWithoutIdentifier(t *testing.T) {
	n := newTestNormalizer(t)
	if _, err := n.Normalize([]byte("hello world")); !errors.Is(err, ErrNoTicketID) {
		t.Fatalf("expected ErrNoTicketID, got %v", err)
	}
	if _, err := n.Normalize([]byte(`{"id": 0}`)); !errors.Is(err, ErrNoTicketID) {
		t.Fatalf("expected ErrNoTicketID for zero id, got %v", err)
	}
	if _, err := n.Normalize([]byte("   ")); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestNormalizeInvalidJSONFallsBackToText(t *testing.T) {
	n := newTestNormalizer(t)
	p, err := n.Normalize([]byte(`{"id": 5,, broken} Ticket #18`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if p.Update.TicketID != 18 || p.Source != SourceText {
		t.Fatalf("got %d from %s", p.Update.TicketID, p.Source)
	}
}

func TestStatusDictionaryLookup(t *testing.T) {
	d := DefaultStatusDictionary()
	cases := []struct {
		text string
		code int
		ok   bool
	}{
		{"En curso (planificada)", domain.StatusPlanned, true},
		{"  CERRADO ", domain.StatusClosed, true},
		{"Ticket cerrado definitivamente", domain.StatusClosed, true},
		{"desconocido", 0, false},
		{"", 0, false},
		{"en", 0, false},
		{"es", 0, false},
		{"renewed", 0, false},
		{"curso", domain.StatusAssigned, true},
		{"Estado: en espera del cliente", domain.StatusPending, true},
	}
	for _, tc := range cases {
		code, ok := d.Lookup(tc.text)
		if code != tc.code || ok != tc.ok {
			t.Errorf("Lookup(%q) = %d,%v want %d,%v", tc.text, code, ok, tc.code, tc.ok)
		}
	}
}

func TestParseStatusDictionary(t *testing.T) {
	d, err := ParseStatusDictionary([]byte("statuses:\n  - label: \"En validación\"\n    code: 4\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if code, ok := d.Lookup("en validación"); !ok || code != domain.StatusPending {
		t.Fatalf("custom label not resolved: %d %v", code, ok)
	}
	if code, ok := d.Lookup("cerrado"); !ok || code != domain.StatusClosed {
		t.Fatalf("default labels lost: %d %v", code, ok)
	}
	if _, err := ParseStatusDictionary([]byte("statuses:\n  - label: x\n    code: 9\n")); err == nil {
		t.Fatalf("expected invalid code error")
	}
}

func TestEnrichBackendThenTextOverride(t *testing.T) {
	n := newTestNormalizer(t)
	p, err := n.Normalize([]byte(`{"ticket":{"id":"10","estado_db":"5","estado":"Cerrado"}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	snap := Snapshot{
		Ticket:         &domain.TicketRecord{ID: 10, Status: domain.StatusAssigned, Priority: 3, Title: "VPN &amp; correo", Category: "Redes &gt; VPN"},
		LastFollowup:   "<p>Revisando&nbsp;ahora</p>",
		RequesterEmail: "user@example.com",
	}

	u, override := n.Enrich(p, snap)
	if u.Status() != domain.StatusClosed {
		t.Fatalf("status = %d, want text override", u.Status())
	}
	if override == nil || override.From != domain.StatusAssigned {
		t.Fatalf("override = %+v", override)
	}
	if u.Title != "VPN & correo" || u.Category != "Redes > VPN" {
		t.Fatalf("title/category = %q/%q", u.Title, u.Category)
	}
	if u.LastMessageExcerpt != "Revisando ahora" {
		t.Fatalf("excerpt = %q", u.LastMessageExcerpt)
	}
	if u.RequesterEmail != "user@example.com" || u.PriorityLabel != "media" {
		t.Fatalf("enrichment lost: %+v", u)
	}
}

func TestEnrichBackendReplacesPayloadStatus(t *testing.T) {
	n := newTestNormalizer(t)
	p, err := n.Normalize([]byte(`{"id": 10, "status": 5}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	u, override := n.Enrich(p, Snapshot{Ticket: &domain.TicketRecord{ID: 10, Status: domain.StatusPending}})
	if u.Status() != domain.StatusPending || override != nil {
		t.Fatalf("status = %d override = %+v", u.Status(), override)
	}
}

func TestStatusOverrideSuspicious(t *testing.T) {
	if !(StatusOverride{From: domain.StatusClosed, To: domain.StatusNew}).Suspicious() {
		t.Fatalf("closed -> new should be suspicious")
	}
	if (StatusOverride{From: domain.StatusAssigned, To: domain.StatusClosed}).Suspicious() {
		t.Fatalf("assigned -> closed is a normal transition")
	}
}

func TestStripMarkup(t *testing.T) {
	got := StripMarkup("Hola&nbsp;<b>mundo</b><br/>adiós &amp; más\n\n")
	if got != "Hola mundo adiós & más" {
		t.Fatalf("StripMarkup = %q", got)
	}
}
