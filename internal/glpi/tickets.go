package glpi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// GetTicket fetches a ticket. With expandDropdowns the category is a name and
// user id fields are lost.
func (c *Client) GetTicket(ctx context.Context, session string, id int, expandDropdowns bool) (*domain.TicketRecord, error) {
	var query url.Values
	if expandDropdowns {
		query = url.Values{"expand_dropdowns": {"true"}}
	}
	var w ticketWire
	if err := c.get(ctx, session, fmt.Sprintf("Ticket/%d", id), query, &w); err != nil {
		return nil, err
	}
	rec := &domain.TicketRecord{
		ID:            int(w.ID),
		Title:         string(w.Name),
		Content:       string(w.Content),
		Status:        int(w.Status),
		Priority:      int(w.Priority),
		RequesterID:   int(w.UsersIDRecipient),
		LastUpdaterID: int(w.UsersIDLastUpdater),
		CreatedAt:     c.parseTime(string(w.Date), string(w.DateCreation)),
		UpdatedAt:     c.parseTime(string(w.DateMod)),
	}
	if expandDropdowns && !isNumeric(string(w.Category)) {
		rec.Category = strings.TrimSpace(string(w.Category))
	}
	if rec.ID == 0 {
		rec.ID = id
	}
	return rec, nil
}

// ListFollowups returns every follow-up on a ticket, private ones included.
func (c *Client) ListFollowups(ctx context.Context, session string, ticketID int) ([]domain.FollowupRecord, error) {
	var wires []followupWire
	if err := c.get(ctx, session, fmt.Sprintf("Ticket/%d/ITILFollowup", ticketID), nil, &wires); err != nil {
		return nil, err
	}
	out := make([]domain.FollowupRecord, 0, len(wires))
	for _, w := range wires {
		out = append(out, c.followupRecord(ticketID, w))
	}
	return out, nil
}

// LatestFollowup returns the newest follow-up, or nil when there is none.
func (c *Client) LatestFollowup(ctx context.Context, session string, ticketID int) (*domain.FollowupRecord, error) {
	query := url.Values{"order": {"DESC"}, "range": {"0-0"}}
	var wires []followupWire
	if err := c.get(ctx, session, fmt.Sprintf("Ticket/%d/ITILFollowup", ticketID), query, &wires); err != nil {
		return nil, err
	}
	if len(wires) == 0 {
		return nil, nil
	}
	rec := c.followupRecord(ticketID, wires[0])
	return &rec, nil
}

func (c *Client) followupRecord(ticketID int, w followupWire) domain.FollowupRecord {
	tid := int(w.ItemsID)
	if tid == 0 {
		tid = ticketID
	}
	return domain.FollowupRecord{
		ID:        int(w.ID),
		TicketID:  tid,
		UserID:    int(w.UsersID),
		Content:   string(w.Content),
		IsPrivate: w.IsPrivate == 1,
		CreatedAt: c.parseTime(string(w.Date), string(w.DateCreat)),
	}
}

// ListSolutions returns every solution proposed on a ticket. The per-ticket
// listing can miss rows, so the newest global solutions filtered to the ticket
// are merged in by id. It fails only when both listings fail.
func (c *Client) ListSolutions(ctx context.Context, session string, ticketID int) ([]domain.SolutionRecord, error) {
	var (
		wg                   sync.WaitGroup
		scoped, global       []solutionWire
		scopedErr, globalErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		scopedErr = c.get(ctx, session, fmt.Sprintf("Ticket/%d/ITILSolution", ticketID), nil, &scoped)
	}()
	go func() {
		defer wg.Done()
		query := url.Values{"range": {"0-100"}, "order": {"DESC"}, "sort": {"date_creation"}}
		globalErr = c.get(ctx, session, "ITILSolution", query, &global)
	}()
	wg.Wait()

	if scopedErr != nil && globalErr != nil {
		return nil, errors.Join(scopedErr, globalErr)
	}
	if scopedErr != nil {
		c.logger.Warn("ticket solutions listing failed", zap.Int("ticket_id", ticketID), zap.Error(scopedErr))
	}
	if globalErr != nil {
		c.logger.Warn("global solutions listing failed", zap.Int("ticket_id", ticketID), zap.Error(globalErr))
	}

	seen := make(map[int]bool, len(scoped))
	out := make([]domain.SolutionRecord, 0, len(scoped))
	for _, w := range scoped {
		seen[int(w.ID)] = true
		out = append(out, c.solutionRecord(ticketID, w))
	}
	for _, w := range global {
		if !strings.EqualFold(strings.TrimSpace(string(w.Itemtype)), "Ticket") || int(w.ItemsID) != ticketID {
			continue
		}
		if seen[int(w.ID)] {
			continue
		}
		seen[int(w.ID)] = true
		out = append(out, c.solutionRecord(ticketID, w))
	}
	return out, nil
}

func (c *Client) solutionRecord(ticketID int, w solutionWire) domain.SolutionRecord {
	tid := int(w.ItemsID)
	if tid == 0 {
		tid = ticketID
	}
	return domain.SolutionRecord{
		ID:         int(w.ID),
		TicketID:   tid,
		UserID:     int(w.UsersID),
		Content:    string(w.Content),
		StatusCode: int(w.Status),
		CreatedAt:  c.parseTime(string(w.DateCreation), string(w.Date)),
	}
}

// UpdateSolutionStatus approves (3) or rejects (4) a solution on behalf of
// approverID.
func (c *Client) UpdateSolutionStatus(ctx context.Context, session string, solutionID, status, approverID int) error {
	input := map[string]int{"status": status}
	if approverID > 0 {
		input["users_id_approval"] = approverID
	}
	return c.put(ctx, session, fmt.Sprintf("ITILSolution/%d", solutionID), input, nil)
}

// UpdateTicketStatus sets a ticket's status code.
func (c *Client) UpdateTicketStatus(ctx context.Context, session string, ticketID, status int) error {
	return c.put(ctx, session, fmt.Sprintf("Ticket/%d", ticketID), map[string]int{"status": status}, nil)
}

// TicketUsers lists the user links of a ticket.
func (c *Client) TicketUsers(ctx context.Context, session string, ticketID int) ([]domain.ActorLink, error) {
	var wires []actorLinkWire
	if err := c.get(ctx, session, fmt.Sprintf("Ticket/%d/Ticket_User", ticketID), nil, &wires); err != nil {
		return nil, err
	}
	out := make([]domain.ActorLink, 0, len(wires))
	for _, w := range wires {
		out = append(out, domain.ActorLink{ID: int(w.UsersID), Type: int(w.Type)})
	}
	return out, nil
}

// TicketGroups lists the group links of a ticket.
func (c *Client) TicketGroups(ctx context.Context, session string, ticketID int) ([]domain.ActorLink, error) {
	var wires []groupLinkWire
	if err := c.get(ctx, session, fmt.Sprintf("Ticket/%d/Group_Ticket", ticketID), nil, &wires); err != nil {
		return nil, err
	}
	out := make([]domain.ActorLink, 0, len(wires))
	for _, w := range wires {
		out = append(out, domain.ActorLink{ID: int(w.GroupsID), Type: int(w.Type)})
	}
	return out, nil
}

// GroupMembers returns the user ids of a group.
func (c *Client) GroupMembers(ctx context.Context, session string, groupID int) ([]int, error) {
	var wires []groupUserWire
	if err := c.get(ctx, session, fmt.Sprintf("Group/%d/Group_User", groupID), nil, &wires); err != nil {
		return nil, err
	}
	out := make([]int, 0, len(wires))
	for _, w := range wires {
		if w.UsersID > 0 {
			out = append(out, int(w.UsersID))
		}
	}
	return out, nil
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
