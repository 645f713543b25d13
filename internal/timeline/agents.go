package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// AgentSet is the set of backend users acting as technicians on a ticket.
type AgentSet map[int]struct{}

// Contains reports whether id is an agent.
func (a AgentSet) Contains(id int) bool {
	_, ok := a[id]
	return ok
}

// IDs returns the members in ascending order.
func (a AgentSet) IDs() []int {
	ids := make([]int, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// GetAgentSet returns the technicians of a ticket: users assigned directly
// plus members of groups assigned as technician. Loaded once per ticket per
// session.
func (e *Engine) GetAgentSet(ctx context.Context, sess *Session, ticketID int) (AgentSet, error) {
	sess.Touch()
	return sess.agents.Get(ctx, ticketID, func(ctx context.Context) (AgentSet, error) {
		return e.loadAgentSet(ctx, sess.Credential(), ticketID)
	})
}

func (e *Engine) loadAgentSet(ctx context.Context, credential string, ticketID int) (AgentSet, error) {
	var (
		users, groups       []domain.ActorLink
		usersErr, groupsErr error
		wg                  sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		users, usersErr = e.backend.TicketUsers(ctx, credential, ticketID)
	}()
	go func() {
		defer wg.Done()
		groups, groupsErr = e.backend.TicketGroups(ctx, credential, ticketID)
	}()
	wg.Wait()
	if err := errors.Join(usersErr, groupsErr); err != nil {
		return nil, fmt.Errorf("agent set for ticket %d: %w", ticketID, err)
	}

	set := make(AgentSet)
	for _, u := range users {
		if u.Type == domain.ActorAssigned && u.ID > 0 {
			set[u.ID] = struct{}{}
		}
	}

	var techGroups []int
	for _, g := range groups {
		if g.Type == domain.ActorAssigned && g.ID > 0 {
			techGroups = append(techGroups, g.ID)
		}
	}
	members := make([][]int, len(techGroups))
	errs := make([]error, len(techGroups))
	for i, gid := range techGroups {
		wg.Add(1)
		go func(i, gid int) {
			defer wg.Done()
			members[i], errs[i] = e.backend.GroupMembers(ctx, credential, gid)
		}(i, gid)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("agent set for ticket %d: %w", ticketID, err)
	}
	for _, ids := range members {
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	return set, nil
}
