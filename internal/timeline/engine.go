// Package timeline reconciles a ticket's conversation from its backend sources.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// Source names reported in Timeline.Degraded.
const (
	SourceTicket    = "ticket"
	SourceFollowups = "followups"
	SourceSolutions = "solutions"
	SourceDocuments = "documents"
	SourceAgents    = "agents"
)

// ErrUnavailable is returned when every source of a timeline failed.
var ErrUnavailable = errors.New("timeline: all sources failed")

// Fallback author names used when a message has no author id.
const (
	fallbackRequester = "Solicitante"
	fallbackAgent     = "Agente"
	fallbackUploader  = "Usuario"
)

// Backend is the subset of the ticketing backend the engine reads.
type Backend interface {
	GetTicket(ctx context.Context, session string, id int, expandDropdowns bool) (*domain.TicketRecord, error)
	ListFollowups(ctx context.Context, session string, ticketID int) ([]domain.FollowupRecord, error)
	ListSolutions(ctx context.Context, session string, ticketID int) ([]domain.SolutionRecord, error)
	ListDocuments(ctx context.Context, session string, ticketID int, followupIDs, solutionIDs []int) ([]domain.DocumentRecord, error)
	TicketUsers(ctx context.Context, session string, ticketID int) ([]domain.ActorLink, error)
	TicketGroups(ctx context.Context, session string, ticketID int) ([]domain.ActorLink, error)
	GroupMembers(ctx context.Context, session string, groupID int) ([]int, error)
	GetUser(ctx context.Context, session string, id int) (*domain.BackendUser, error)
}

// Engine builds timelines.
type Engine struct {
	backend Backend
	linker  DocumentLinker
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine returns an engine serving document links under proxyPath.
func NewEngine(backend Backend, proxyPath string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		backend: backend,
		linker:  NewDocumentLinker(proxyPath),
		logger:  logger,
		now:     time.Now,
	}
}

type sources struct {
	ticket    *domain.TicketRecord
	followups []domain.FollowupRecord
	solutions []domain.SolutionRecord
	documents []domain.DocumentRecord
	agents    AgentSet
	failed    map[string]error
}

// GetTimeline fetches every source concurrently and merges them into one
// ordered conversation. Failed sources are listed in Degraded; an error is
// returned only when all of them fail.
func (e *Engine) GetTimeline(ctx context.Context, sess *Session, ticketID int) (*domain.Timeline, error) {
	sess.Touch()
	src := e.fetch(ctx, sess, ticketID)
	if len(src.failed) == 5 {
		errs := make([]error, 0, len(src.failed))
		for _, name := range []string{SourceTicket, SourceFollowups, SourceSolutions, SourceDocuments, SourceAgents} {
			errs = append(errs, src.failed[name])
		}
		return nil, fmt.Errorf("%w: ticket %d: %w", ErrUnavailable, ticketID, errors.Join(errs...))
	}

	users := e.resolveAuthors(ctx, sess, src)
	tl := e.assemble(sess.Credential(), ticketID, src, users)
	for _, name := range []string{SourceTicket, SourceFollowups, SourceSolutions, SourceDocuments, SourceAgents} {
		if err, ok := src.failed[name]; ok {
			tl.Degraded = append(tl.Degraded, name)
			e.logger.Warn("timeline source degraded",
				zap.Int("ticket_id", ticketID), zap.String("source", name), zap.Error(err))
		}
	}
	return tl, nil
}

func (e *Engine) fetch(ctx context.Context, sess *Session, ticketID int) *sources {
	cred := sess.Credential()
	src := &sources{failed: make(map[string]error)}
	var (
		mu            sync.Mutex
		wg            sync.WaitGroup
		followupsDone = make(chan struct{})
		solutionsDone = make(chan struct{})
	)
	fail := func(name string, err error) {
		mu.Lock()
		src.failed[name] = err
		mu.Unlock()
	}

	wg.Add(5)
	go func() {
		defer wg.Done()
		t, err := e.backend.GetTicket(ctx, cred, ticketID, false)
		if err != nil {
			fail(SourceTicket, err)
			return
		}
		src.ticket = t
	}()
	go func() {
		defer wg.Done()
		defer close(followupsDone)
		f, err := e.backend.ListFollowups(ctx, cred, ticketID)
		if err != nil {
			fail(SourceFollowups, err)
			return
		}
		src.followups = f
	}()
	go func() {
		defer wg.Done()
		defer close(solutionsDone)
		s, err := e.backend.ListSolutions(ctx, cred, ticketID)
		if err != nil {
			fail(SourceSolutions, err)
			return
		}
		src.solutions = s
	}()
	go func() {
		defer wg.Done()
		// parent ids come from the sibling fetches
		<-followupsDone
		<-solutionsDone
		var fids, sids []int
		for _, f := range src.followups {
			fids = append(fids, f.ID)
		}
		for _, s := range src.solutions {
			sids = append(sids, s.ID)
		}
		d, err := e.backend.ListDocuments(ctx, cred, ticketID, fids, sids)
		if err != nil {
			fail(SourceDocuments, err)
			return
		}
		src.documents = d
	}()
	go func() {
		defer wg.Done()
		a, err := e.GetAgentSet(ctx, sess, ticketID)
		if err != nil {
			fail(SourceAgents, err)
			return
		}
		src.agents = a
	}()
	wg.Wait()
	return src
}

// resolveAuthors loads every referenced user through the session cache.
// Lookups that fail are left out and rendered with a fallback name.
func (e *Engine) resolveAuthors(ctx context.Context, sess *Session, src *sources) map[int]domain.BackendUser {
	ids := make(map[int]struct{})
	if src.ticket != nil {
		ids[requesterOf(src.ticket)] = struct{}{}
	}
	for _, f := range src.followups {
		ids[f.UserID] = struct{}{}
	}
	for _, s := range src.solutions {
		ids[s.UserID] = struct{}{}
	}
	for _, d := range src.documents {
		ids[d.UserID] = struct{}{}
	}
	delete(ids, 0)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[int]domain.BackendUser, len(ids))
	)
	cred := sess.Credential()
	for id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			u, err := sess.users.Get(ctx, id, func(ctx context.Context) (domain.BackendUser, error) {
				rec, err := e.backend.GetUser(ctx, cred, id)
				if err != nil {
					return domain.BackendUser{}, err
				}
				return *rec, nil
			})
			if err != nil {
				e.logger.Debug("author lookup failed", zap.Int("user_id", id), zap.Error(err))
				return
			}
			mu.Lock()
			out[id] = u
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

func requesterOf(t *domain.TicketRecord) int {
	if t.RequesterID > 0 {
		return t.RequesterID
	}
	return t.LastUpdaterID
}

func author(users map[int]domain.BackendUser, id int, fallback string) domain.Author {
	if id <= 0 {
		return domain.Author{DisplayName: fallback, Initials: "??"}
	}
	u, ok := users[id]
	if !ok {
		return domain.Author{ID: id, DisplayName: domain.FallbackUserName(id), Initials: "??"}
	}
	return domain.Author{ID: id, DisplayName: u.DisplayName(), Initials: u.Initials()}
}

type messageKey struct {
	kind domain.MessageType
	id   int
}

func (e *Engine) assemble(cred string, ticketID int, src *sources, users map[int]domain.BackendUser) *domain.Timeline {
	tl := &domain.Timeline{TicketID: ticketID, GeneratedAt: e.now()}

	ticketDocs := make([]domain.DocumentRecord, 0)
	followupDocs := make(map[int][]domain.Document)
	solutionDocs := make(map[int][]domain.Document)
	for _, d := range src.documents {
		switch d.ParentType {
		case domain.ParentFollowup:
			followupDocs[d.ParentID] = append(followupDocs[d.ParentID], e.document(d, cred))
		case domain.ParentSolution:
			solutionDocs[d.ParentID] = append(solutionDocs[d.ParentID], e.document(d, cred))
		default:
			ticketDocs = append(ticketDocs, d)
		}
	}

	var msgs []domain.TimelineMessage
	seen := make(map[messageKey]struct{})
	emit := func(m domain.TimelineMessage) {
		k := messageKey{kind: m.Type, id: m.ID}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		msgs = append(msgs, m)
	}

	if t := src.ticket; t != nil {
		tl.Title = t.Title
		tl.StatusCode = t.Status
		tl.StatusLabel = domain.StatusLabel(t.Status)
		emit(domain.TimelineMessage{
			ID:         t.ID,
			Type:       domain.MessageTypeInitial,
			Author:     author(users, requesterOf(t), fallbackRequester),
			OccurredAt: t.CreatedAt,
			Content:    e.linker.RenderContent(t.Content, cred),
		})
	}

	for _, f := range src.followups {
		if f.IsPrivate {
			continue
		}
		emit(domain.TimelineMessage{
			ID:          f.ID,
			Type:        domain.MessageTypeFollowup,
			Author:      author(users, f.UserID, fallbackAgent),
			IsAgent:     src.agents.Contains(f.UserID),
			OccurredAt:  f.CreatedAt,
			Content:     e.linker.RenderContent(f.Content, cred),
			Attachments: followupDocs[f.ID],
		})
	}

	for _, s := range src.solutions {
		emit(domain.TimelineMessage{
			ID:          s.ID,
			Type:        domain.MessageTypeSolution,
			Author:      author(users, s.UserID, fallbackAgent),
			IsAgent:     true,
			OccurredAt:  s.CreatedAt,
			Content:     e.linker.RenderContent(s.Content, cred),
			Attachments: solutionDocs[s.ID],
			Solution: &domain.SolutionInfo{
				ID:    s.ID,
				State: domain.SolutionStateFromCode(s.StatusCode),
			},
		})
	}

	for _, d := range ticketDocs {
		doc := e.document(d, cred)
		emit(domain.TimelineMessage{
			ID:         d.ID,
			Type:       domain.MessageTypeDocument,
			Author:     author(users, d.UserID, fallbackUploader),
			IsAgent:    src.agents.Contains(d.UserID),
			OccurredAt: d.AddedAt,
			Content:    d.Filename,
			Document:   &doc,
		})
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].OccurredAt.Before(msgs[j].OccurredAt)
	})

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == domain.MessageTypeSolution {
			msgs[i].Solution.Active = true
			id := msgs[i].ID
			tl.ActiveSolutionID = &id
			break
		}
	}

	if msgs == nil {
		msgs = []domain.TimelineMessage{}
	}
	tl.Messages = msgs
	return tl
}

func (e *Engine) document(d domain.DocumentRecord, cred string) domain.Document {
	name := d.Name
	if name == "" {
		name = d.Filename
	}
	return domain.Document{
		ID:       d.ID,
		Name:     name,
		Filename: d.Filename,
		MimeType: d.MimeType,
		URL:      e.linker.URL(d.ID, cred),
		AddedAt:  d.AddedAt,
	}
}
