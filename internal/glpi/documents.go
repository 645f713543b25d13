package glpi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

type docLink struct {
	linkID     int
	docID      int
	parentType domain.ParentType
	parentID   int
	userID     int
	addedAt    string
}

type parentRef struct {
	kind domain.ParentType
	id   int
}

type linkKey struct {
	docID      int
	parentType domain.ParentType
	parentID   int
}

// ListDocuments returns the documents attached to a ticket and to its
// follow-ups and solutions. A parent whose links cannot be listed is skipped;
// the call fails only when no parent could be listed.
func (c *Client) ListDocuments(ctx context.Context, session string, ticketID int, followupIDs, solutionIDs []int) ([]domain.DocumentRecord, error) {
	var (
		links    []docLink
		failures []error
		attempts int
	)

	attempts++
	ticketLinks, err := c.documentLinks(ctx, session, fmt.Sprintf("Ticket/%d/Document_Item", ticketID), nil)
	if err != nil {
		failures = append(failures, err)
		c.logger.Warn("ticket document links unavailable", zap.Int("ticket_id", ticketID), zap.Error(err))
	}
	for _, l := range ticketLinks {
		if l.TimelinePosition < 1 {
			continue
		}
		links = append(links, docLink{
			linkID:     int(l.ID),
			docID:      int(l.DocumentsID),
			parentType: domain.ParentTicket,
			parentID:   ticketID,
			userID:     int(l.UsersID),
			addedAt:    string(l.DateCreation),
		})
	}

	parents := make([]parentRef, 0, len(followupIDs)+len(solutionIDs))
	for _, id := range followupIDs {
		parents = append(parents, parentRef{kind: domain.ParentFollowup, id: id})
	}
	for _, id := range solutionIDs {
		parents = append(parents, parentRef{kind: domain.ParentSolution, id: id})
	}
	for _, p := range parents {
		attempts++
		query := url.Values{
			"searchText[itemtype]": {string(p.kind)},
			"searchText[items_id]": {strconv.Itoa(p.id)},
		}
		found, err := c.documentLinks(ctx, session, "Document_Item", query)
		if err != nil {
			failures = append(failures, err)
			c.logger.Warn("document links unavailable",
				zap.String("parent_type", string(p.kind)), zap.Int("parent_id", p.id), zap.Error(err))
			continue
		}
		for _, l := range found {
			// searchText is a substring match
			if domain.ParentType(l.ItemType) != p.kind || int(l.ItemsID) != p.id {
				continue
			}
			links = append(links, docLink{
				linkID:     int(l.ID),
				docID:      int(l.DocumentsID),
				parentType: p.kind,
				parentID:   p.id,
				userID:     int(l.UsersID),
				addedAt:    string(l.DateCreation),
			})
		}
	}
	if len(failures) == attempts {
		return nil, fmt.Errorf("list documents for ticket %d: %w", ticketID, errors.Join(failures...))
	}

	links = dedupLinks(links)
	return c.resolveDocuments(ctx, session, links), nil
}

func (c *Client) documentLinks(ctx context.Context, session, path string, query url.Values) ([]documentItemWire, error) {
	var wires []documentItemWire
	if err := c.get(ctx, session, path, query, &wires); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return wires, nil
}

func dedupLinks(links []docLink) []docLink {
	seen := make(map[linkKey]struct{}, len(links))
	out := links[:0]
	for _, l := range links {
		if l.docID <= 0 {
			continue
		}
		k := linkKey{docID: l.docID, parentType: l.parentType, parentID: l.parentID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out
}

// resolveDocuments fetches document details with bounded concurrency. Links
// whose document cannot be fetched are dropped.
func (c *Client) resolveDocuments(ctx context.Context, session string, links []docLink) []domain.DocumentRecord {
	results := make([]*domain.DocumentRecord, len(links))
	sem := make(chan struct{}, c.docConcurrency)
	var wg sync.WaitGroup
	for i, l := range links {
		wg.Add(1)
		go func(i int, l docLink) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			var w documentWire
			if err := c.get(ctx, session, fmt.Sprintf("Document/%d", l.docID), nil, &w); err != nil {
				c.logger.Warn("document unavailable", zap.Int("document_id", l.docID), zap.Error(err))
				return
			}
			userID := l.userID
			if userID == 0 {
				userID = int(w.UsersID)
			}
			results[i] = &domain.DocumentRecord{
				ID:         l.docID,
				LinkID:     l.linkID,
				ParentType: l.parentType,
				ParentID:   l.parentID,
				UserID:     userID,
				Name:       string(w.Name),
				Filename:   string(w.Filename),
				MimeType:   string(w.Mime),
				AddedAt:    c.parseTime(l.addedAt, string(w.DateCreation)),
			}
		}(i, l)
	}
	wg.Wait()

	out := make([]domain.DocumentRecord, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
