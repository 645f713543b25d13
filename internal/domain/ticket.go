package domain

import (
	"strconv"
	"time"
)

// Backend ticket status codes.
const (
	StatusNew        = 1
	StatusAssigned   = 2
	StatusPlanned    = 3
	StatusPending    = 4
	StatusSolved     = 5
	StatusClosed     = 6
	minStatus        = StatusNew
	maxStatus        = StatusClosed
	minPriorityLevel = 1
	maxPriorityLevel = 6
)

var statusLabels = map[int]string{
	StatusNew:      "nuevo",
	StatusAssigned: "en-progreso",
	StatusPlanned:  "en-progreso",
	StatusPending:  "pendiente",
	StatusSolved:   "resuelto",
	StatusClosed:   "cerrado",
}

var statusDisplayNames = map[int]string{
	StatusNew:      "Nuevo",
	StatusAssigned: "En Progreso (Asignado)",
	StatusPlanned:  "En Progreso (Planificado)",
	StatusPending:  "Pendiente",
	StatusSolved:   "Resuelto",
	StatusClosed:   "Cerrado",
}

var priorityLabels = map[int]string{
	1: "muy-baja",
	2: "baja",
	3: "media",
	4: "alta",
	5: "muy-alta",
	6: "mayor",
}

// ValidStatus reports whether code is a known backend status.
func ValidStatus(code int) bool {
	return code >= minStatus && code <= maxStatus
}

// ValidPriority reports whether code is a known backend priority.
func ValidPriority(code int) bool {
	return code >= minPriorityLevel && code <= maxPriorityLevel
}

// StatusLabel returns the portal slug for a status code.
func StatusLabel(code int) string {
	if label, ok := statusLabels[code]; ok {
		return label
	}
	return "desconocido"
}

// StatusDisplayName returns the human readable status used in notifications.
func StatusDisplayName(code int) string {
	if name, ok := statusDisplayNames[code]; ok {
		return name
	}
	return "Estado " + strconv.Itoa(code)
}

// PriorityLabel returns the portal slug for a priority code.
func PriorityLabel(code int) string {
	if label, ok := priorityLabels[code]; ok {
		return label
	}
	return "media"
}

// UpdateKind classifies a ticket change notification.
type UpdateKind string

const (
	UpdateKindCreate UpdateKind = "create"
	UpdateKindUpdate UpdateKind = "update"
	UpdateKindDelete UpdateKind = "delete"
)

// TicketUpdate is the canonical change notification distributed to clients.
// It is treated as an immutable value once published.
type TicketUpdate struct {
	TicketID           int        `json:"ticketId"`
	StatusCode         *int       `json:"statusCode,omitempty"`
	StatusLabel        string     `json:"statusLabel,omitempty"`
	PriorityCode       *int       `json:"priorityCode,omitempty"`
	PriorityLabel      string     `json:"priorityLabel,omitempty"`
	Title              string     `json:"title,omitempty"`
	AssignedTo         string     `json:"assignedTo,omitempty"`
	Group              string     `json:"group,omitempty"`
	Category           string     `json:"category,omitempty"`
	LastMessageExcerpt string     `json:"lastMessageExcerpt,omitempty"`
	RequesterEmail     string     `json:"-"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
	OccurredAt         time.Time  `json:"occurredAt"`
	Kind               UpdateKind `json:"kind"`
}

// SetStatus assigns the status code and its derived label.
func (u *TicketUpdate) SetStatus(code int) {
	c := code
	u.StatusCode = &c
	u.StatusLabel = StatusLabel(code)
}

// SetPriority assigns the priority code and its derived label.
func (u *TicketUpdate) SetPriority(code int) {
	c := code
	u.PriorityCode = &c
	u.PriorityLabel = PriorityLabel(code)
}

// Status returns the status code or zero when unknown.
func (u TicketUpdate) Status() int {
	if u.StatusCode == nil {
		return 0
	}
	return *u.StatusCode
}
