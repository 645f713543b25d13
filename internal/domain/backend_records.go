package domain

import "time"

// ParentType names the owner kind of a polymorphic document link.
type ParentType string

const (
	ParentTicket   ParentType = "Ticket"
	ParentFollowup ParentType = "ITILFollowup"
	ParentSolution ParentType = "ITILSolution"
)

// TicketRecord is the backend's view of a ticket.
type TicketRecord struct {
	ID            int
	Title         string
	Content       string
	Status        int
	Priority      int
	Category      string
	RequesterID   int
	LastUpdaterID int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FollowupRecord is a conversational reply on a ticket.
type FollowupRecord struct {
	ID        int
	TicketID  int
	UserID    int
	Content   string
	IsPrivate bool
	CreatedAt time.Time
}

// SolutionRecord is a proposed resolution.
type SolutionRecord struct {
	ID         int
	TicketID   int
	UserID     int
	Content    string
	StatusCode int
	CreatedAt  time.Time
}

// DocumentRecord is an attachment with its polymorphic parent.
type DocumentRecord struct {
	ID         int
	LinkID     int
	ParentType ParentType
	ParentID   int
	UserID     int
	Name       string
	Filename   string
	MimeType   string
	AddedAt    time.Time
}

// Actor types used by ticket/user and ticket/group links.
const (
	ActorRequester = 1
	ActorAssigned  = 2
)

// ActorLink ties a user or group to a ticket with an actor type.
type ActorLink struct {
	ID   int
	Type int
}
