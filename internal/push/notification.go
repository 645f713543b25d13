package push

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spec-kit/ticket-portal/internal/config"
	"github.com/spec-kit/ticket-portal/internal/domain"
)

const titlePreviewRunes = 50

// Notification is the payload shown by the service worker.
type Notification struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon,omitempty"`
	Badge   string               `json:"badge,omitempty"`
	Tag     string               `json:"tag"`
	Data    NotificationData     `json:"data"`
	Actions []NotificationAction `json:"actions,omitempty"`
}

// NotificationData lets the service worker deep link into the ticket.
type NotificationData struct {
	TicketID  int    `json:"ticketId"`
	Status    *int   `json:"status,omitempty"`
	URL       string `json:"url"`
	UserEmail string `json:"userEmail"`
}

// NotificationAction is a button on the notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// TicketTag is the collapse key for a ticket's notifications.
func TicketTag(ticketID int) string {
	return "ticket-" + strconv.Itoa(ticketID)
}

// TicketURL builds the portal deep link for a ticket.
func TicketURL(cfg config.PushConfig, email string, ticketID int) string {
	return strings.TrimRight(cfg.AppURL, "/") + cfg.TicketPath +
		"?mail=" + url.QueryEscape(domain.NormalizeIdentity(email)) +
		"&idticket=" + strconv.Itoa(ticketID)
}

// TicketNotification builds the notification for a ticket update.
func TicketNotification(cfg config.PushConfig, email string, u domain.TicketUpdate) Notification {
	statusText := "Actualizado"
	if u.StatusCode != nil {
		statusText = domain.StatusDisplayName(*u.StatusCode)
	}
	body := "Estado: " + statusText
	if title := strings.TrimSpace(u.Title); title != "" {
		body = statusText + " - " + truncateRunes(title, titlePreviewRunes)
	}
	return Notification{
		Title: "Ticket #" + strconv.Itoa(u.TicketID),
		Body:  body,
		Icon:  cfg.Icon,
		Badge: cfg.Badge,
		Tag:   TicketTag(u.TicketID),
		Data: NotificationData{
			TicketID:  u.TicketID,
			Status:    u.StatusCode,
			URL:       TicketURL(cfg, email, u.TicketID),
			UserEmail: domain.NormalizeIdentity(email),
		},
		Actions: []NotificationAction{{Action: "view", Title: "Ver ticket"}},
	}
}

func (n Notification) encode() ([]byte, error) {
	return json.Marshal(n)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
