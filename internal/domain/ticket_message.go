package domain

import "time"

// MessageType differentiates timeline entries.
type MessageType string

const (
	MessageTypeInitial  MessageType = "initial"
	MessageTypeFollowup MessageType = "followup"
	MessageTypeSolution MessageType = "solution"
	MessageTypeDocument MessageType = "document"
)

// SolutionState is the approval state of a proposed solution.
type SolutionState string

const (
	SolutionPending  SolutionState = "pending"
	SolutionApproved SolutionState = "approved"
	SolutionRejected SolutionState = "rejected"
)

// Backend status codes of an approval decision on a solution.
const (
	SolutionStatusApproved = 3
	SolutionStatusRejected = 4
)

// SolutionStateFromCode maps the backend numeric status, defaulting to pending.
func SolutionStateFromCode(code int) SolutionState {
	switch code {
	case SolutionStatusApproved:
		return SolutionApproved
	case SolutionStatusRejected:
		return SolutionRejected
	default:
		return SolutionPending
	}
}

// Author identifies who wrote a timeline message.
type Author struct {
	ID          int    `json:"id"`
	DisplayName string `json:"displayName"`
	Initials    string `json:"initials"`
}

// Document is an attachment reference exposed to clients.
type Document struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Filename string    `json:"filename"`
	MimeType string    `json:"mimeType"`
	URL      string    `json:"url"`
	AddedAt  time.Time `json:"addedAt"`
}

// SolutionInfo carries solution specific state.
type SolutionInfo struct {
	ID     int           `json:"id"`
	State  SolutionState `json:"state"`
	Active bool          `json:"active"`
}

// TimelineMessage is one entry of the reconciled ticket conversation.
type TimelineMessage struct {
	ID          int           `json:"id"`
	Type        MessageType   `json:"type"`
	Author      Author        `json:"author"`
	IsAgent     bool          `json:"isAgent"`
	IsPrivate   bool          `json:"isPrivate"`
	OccurredAt  time.Time     `json:"occurredAt"`
	Content     string        `json:"content"`
	Attachments []Document    `json:"attachments,omitempty"`
	Document    *Document     `json:"document,omitempty"`
	Solution    *SolutionInfo `json:"solution,omitempty"`
}

// Timeline is the ordered conversation of a ticket.
type Timeline struct {
	TicketID         int               `json:"ticketId"`
	Title            string            `json:"title"`
	StatusCode       int               `json:"statusCode"`
	StatusLabel      string            `json:"statusLabel"`
	Messages         []TimelineMessage `json:"messages"`
	ActiveSolutionID *int              `json:"activeSolutionId,omitempty"`
	Degraded         []string          `json:"degraded,omitempty"`
	GeneratedAt      time.Time         `json:"generatedAt"`
}
