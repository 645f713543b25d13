package dto

import (
	"time"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// CryptoKeys are the client's encryption keys.
type CryptoKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// BrowserSubscription mirrors PushSubscription.toJSON() in browsers.
type BrowserSubscription struct {
	Endpoint string     `json:"endpoint"`
	Keys     CryptoKeys `json:"keys"`
}

// SubscribeRequest registers a device. The browser subscription object is
// accepted in place of the flat fields.
type SubscribeRequest struct {
	EndpointURL   string               `json:"endpointURL"`
	OwnerIdentity string               `json:"ownerIdentity"`
	CryptoKeys    CryptoKeys           `json:"cryptoKeys"`
	DeviceClass   string               `json:"deviceClass"`
	Subscription  *BrowserSubscription `json:"subscription,omitempty"`
}

// Normalize folds the browser subscription into the flat fields.
func (r *SubscribeRequest) Normalize() {
	if r.Subscription == nil {
		return
	}
	if r.EndpointURL == "" {
		r.EndpointURL = r.Subscription.Endpoint
	}
	if r.CryptoKeys.P256dh == "" {
		r.CryptoKeys.P256dh = r.Subscription.Keys.P256dh
	}
	if r.CryptoKeys.Auth == "" {
		r.CryptoKeys.Auth = r.Subscription.Keys.Auth
	}
}

// UnsubscribeRequest removes a device.
type UnsubscribeRequest struct {
	EndpointURL string `json:"endpointURL"`
	Endpoint    string `json:"endpoint"`
}

// Target returns whichever endpoint field was set.
func (r UnsubscribeRequest) Target() string {
	if r.EndpointURL != "" {
		return r.EndpointURL
	}
	return r.Endpoint
}

// SubscriptionResponse describes a registered device. Keys are never echoed.
type SubscriptionResponse struct {
	ID          string    `json:"id"`
	EndpointURL string    `json:"endpointURL"`
	DeviceClass string    `json:"deviceClass"`
	UserAgent   string    `json:"userAgent,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// NewSubscriptionResponse maps a domain subscription.
func NewSubscriptionResponse(s domain.PushSubscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:          s.ID,
		EndpointURL: s.EndpointURL,
		DeviceClass: s.DeviceClass,
		UserAgent:   s.UserAgent,
		CreatedAt:   s.CreatedAt,
		LastSeenAt:  s.LastSeenAt,
	}
}
