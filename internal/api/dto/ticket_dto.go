package dto

import (
	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/push"
)

// WebhookResponse is returned to the backend for every notification.
type WebhookResponse struct {
	Success           bool         `json:"success"`
	TicketID          int          `json:"ticketId,omitempty"`
	ListenersNotified int          `json:"listenersNotified"`
	PushNotifications *push.Report `json:"pushNotifications,omitempty"`
	Warning           string       `json:"warning,omitempty"`
	Raw               string       `json:"raw,omitempty"`
}

// WebhookStatus reports the ingestion side.
type WebhookStatus struct {
	Status          string `json:"status"`
	ActiveListeners int    `json:"activeListeners"`
	PendingUpdates  int    `json:"pendingUpdates"`
}

// UpdatesResponse lists replayable ticket updates.
type UpdatesResponse struct {
	Updates []domain.TicketUpdate `json:"updates"`
}

// AgentsResponse lists the technicians of a ticket.
type AgentsResponse struct {
	TicketID int   `json:"ticketId"`
	AgentIDs []int `json:"agentIds"`
}

// SolutionDecisionRequest approves (3) or rejects (4) a proposed solution.
type SolutionDecisionRequest struct {
	Status  int `json:"status"`
	UsersID int `json:"usersId"`
}

// SolutionDecisionResponse reports the decision and the best-effort ticket
// status change that followed it.
type SolutionDecisionResponse struct {
	SolutionID     int                  `json:"solutionId"`
	TicketID       int                  `json:"ticketId"`
	State          domain.SolutionState `json:"state"`
	TicketClosed   bool                 `json:"ticketClosed"`
	TicketReopened bool                 `json:"ticketReopened"`
}
