package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/spec-kit/ticket-portal/internal/config"
	"github.com/spec-kit/ticket-portal/internal/domain"
)

// DeliveryError is a push service response outside the 2xx range.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service responded %d", e.StatusCode)
	}
	return fmt.Sprintf("push service responded %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether the endpoint is gone for good.
func (e *DeliveryError) Permanent() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// Message is one encrypted push request.
type Message struct {
	Payload []byte
	Topic   string
	Urgency webpush.Urgency
}

// Sender delivers one message to one subscription.
type Sender interface {
	Send(ctx context.Context, sub domain.PushSubscription, msg Message) error
}

type webPushSender struct {
	cfg    config.PushConfig
	client *http.Client
}

// NewWebPushSender builds a VAPID sender.
func NewWebPushSender(cfg config.PushConfig, client *http.Client) Sender {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &webPushSender{cfg: cfg, client: client}
}

func (s *webPushSender) Send(ctx context.Context, sub domain.PushSubscription, msg Message) error {
	resp, err := webpush.SendNotificationWithContext(ctx, msg.Payload, &webpush.Subscription{
		Endpoint: sub.EndpointURL,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      strings.TrimPrefix(s.cfg.VAPIDSubject, "mailto:"),
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             s.cfg.TTLSeconds,
		Topic:           msg.Topic,
		Urgency:         msg.Urgency,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
