package glpi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// Search option ids of the User itemtype.
const (
	userFieldLogin     = "1"
	userFieldID        = "2"
	userFieldEmail     = "5"
	userFieldFirstName = "9"
	userFieldRealName  = "34"
)

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, session string, id int) (*domain.BackendUser, error) {
	var w userWire
	if err := c.get(ctx, session, fmt.Sprintf("User/%d", id), nil, &w); err != nil {
		return nil, err
	}
	u := &domain.BackendUser{
		ID:        int(w.ID),
		Login:     string(w.Name),
		FirstName: string(w.FirstName),
		RealName:  string(w.RealName),
		Email:     strings.TrimSpace(string(w.Email)),
	}
	if u.ID == 0 {
		u.ID = id
	}
	return u, nil
}

// UserEmail returns the default address of a user, or the first one listed.
func (c *Client) UserEmail(ctx context.Context, session string, userID int) (string, error) {
	var wires []userEmailWire
	if err := c.get(ctx, session, fmt.Sprintf("User/%d/UserEmail", userID), nil, &wires); err != nil {
		return "", err
	}
	for _, w := range wires {
		if w.IsDefault == 1 && strings.TrimSpace(string(w.Email)) != "" {
			return strings.TrimSpace(string(w.Email)), nil
		}
	}
	for _, w := range wires {
		if e := strings.TrimSpace(string(w.Email)); e != "" {
			return e, nil
		}
	}
	return "", ErrNotFound
}

// RequesterEmail resolves the email of a ticket's requester.
func (c *Client) RequesterEmail(ctx context.Context, session string, ticketID int) (string, error) {
	actors, err := c.TicketUsers(ctx, session, ticketID)
	if err != nil {
		return "", err
	}
	for _, a := range actors {
		if a.Type != domain.ActorRequester || a.ID <= 0 {
			continue
		}
		u, err := c.GetUser(ctx, session, a.ID)
		if err == nil && u.Email != "" {
			return u.Email, nil
		}
		email, err := c.UserEmail(ctx, session, a.ID)
		if err == nil {
			return email, nil
		}
	}
	return "", ErrNotFound
}

// FindUserByEmail looks a user up by exact email address.
func (c *Client) FindUserByEmail(ctx context.Context, session, email string) (*domain.BackendUser, error) {
	email = strings.TrimSpace(email)
	query := url.Values{
		"criteria[0][field]":      {userFieldEmail},
		"criteria[0][searchtype]": {"contains"},
		"criteria[0][value]":      {email},
		"forcedisplay[0]":         {userFieldID},
		"forcedisplay[1]":         {userFieldLogin},
		"forcedisplay[2]":         {userFieldEmail},
		"forcedisplay[3]":         {userFieldFirstName},
		"forcedisplay[4]":         {userFieldRealName},
	}
	var res searchResultWire
	if err := c.get(ctx, session, "search/User", query, &res); err != nil {
		return nil, err
	}
	for _, row := range res.Data {
		u := userFromSearchRow(row)
		if u.ID > 0 && strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func userFromSearchRow(row map[string]json.RawMessage) domain.BackendUser {
	str := func(key string) string {
		var s flexString
		if raw, ok := row[key]; ok {
			_ = json.Unmarshal(raw, &s)
		}
		return strings.TrimSpace(string(s))
	}
	var id flexInt
	if raw, ok := row[userFieldID]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	return domain.BackendUser{
		ID:        int(id),
		Login:     str(userFieldLogin),
		FirstName: str(userFieldFirstName),
		RealName:  str(userFieldRealName),
		Email:     str(userFieldEmail),
	}
}
