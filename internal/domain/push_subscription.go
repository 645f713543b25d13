package domain

import (
	"strings"
	"time"
)

// PushKeys holds the client's encryption material.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is a browser push endpoint bound to one owner identity.
type PushSubscription struct {
	ID            string
	OwnerIdentity string
	EndpointURL   string
	Keys          PushKeys
	DeviceClass   string
	UserAgent     string
	CreatedAt     time.Time
	LastSeenAt    time.Time
}

// NormalizeIdentity canonicalizes an owner identity for comparisons and storage.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// OwnedBy reports whether identity owns the subscription, ignoring case.
func (s PushSubscription) OwnedBy(identity string) bool {
	return strings.EqualFold(strings.TrimSpace(s.OwnerIdentity), strings.TrimSpace(identity))
}

// DeviceClassFromUserAgent guesses a coarse device class.
func DeviceClassFromUserAgent(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "tablet"):
		return "tablet"
	case strings.Contains(lower, "mobile"), strings.Contains(lower, "android"), strings.Contains(lower, "iphone"):
		return "mobile"
	case lower == "":
		return "unknown"
	default:
		return "desktop"
	}
}
