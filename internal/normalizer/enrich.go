package normalizer

import (
	"github.com/spec-kit/ticket-portal/internal/domain"
)

// Snapshot is the backend's current view of a ticket, fetched synchronously
// while ingesting a notification.
type Snapshot struct {
	Ticket         *domain.TicketRecord
	LastFollowup   string
	RequesterEmail string
}

// Enrich merges a backend snapshot into a parsed update. Structured backend
// fields replace payload fields; a free-text status from the payload is then
// applied again so it takes precedence over both.
func (n *Normalizer) Enrich(p Parsed, snap Snapshot) (domain.TicketUpdate, *StatusOverride) {
	u := p.Update
	if t := snap.Ticket; t != nil {
		u.StatusCode, u.StatusLabel = nil, ""
		if domain.ValidStatus(t.Status) {
			u.SetStatus(t.Status)
		}
		u.PriorityCode, u.PriorityLabel = nil, ""
		if domain.ValidPriority(t.Priority) {
			u.SetPriority(t.Priority)
		}
		if t.Title != "" {
			u.Title = DecodeEntities(t.Title)
		}
		if t.Category != "" {
			u.Category = DecodeEntities(t.Category)
		}
		if u.CreatedAt == nil && !t.CreatedAt.IsZero() {
			created := t.CreatedAt
			u.CreatedAt = &created
		}
	}
	if excerpt := StripMarkup(snap.LastFollowup); excerpt != "" {
		u.LastMessageExcerpt = excerpt
	}
	if snap.RequesterEmail != "" {
		u.RequesterEmail = snap.RequesterEmail
	}
	if p.TextAssignee != "" {
		u.AssignedTo = p.TextAssignee
	}
	if p.TextGroup != "" {
		u.Group = p.TextGroup
	}
	return u, n.applyStatusText(&u, p.StatusText)
}
