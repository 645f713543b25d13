package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/spec-kit/ticket-portal/internal/config"
	"github.com/spec-kit/ticket-portal/internal/domain"
)

func testSubscription(t *testing.T, endpoint string) domain.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("auth secret: %v", err)
	}
	return domain.PushSubscription{
		ID:          "sub-1",
		EndpointURL: endpoint,
		Keys: domain.PushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(secret),
		},
	}
}

func TestWebPushSenderClassifiesResponses(t *testing.T) {
	var gotTopic, gotTTL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTopic = r.Header.Get("Topic")
		gotTTL = r.Header.Get("TTL")
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
			_, _ = w.Write([]byte("subscription expired"))
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("vapid keys: %v", err)
	}
	sender := NewWebPushSender(config.PushConfig{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		VAPIDSubject:    "mailto:soporte@example.com",
		TTLSeconds:      60,
	}, srv.Client())

	msg := Message{Payload: []byte(`{"title":"Ticket #1"}`), Topic: "ticket-1", Urgency: webpush.UrgencyNormal}
	if err := sender.Send(context.Background(), testSubscription(t, srv.URL+"/ok"), msg); err != nil {
		t.Fatalf("send ok: %v", err)
	}
	if gotTopic != "ticket-1" || gotTTL != "60" {
		t.Fatalf("headers topic=%q ttl=%q", gotTopic, gotTTL)
	}

	err = sender.Send(context.Background(), testSubscription(t, srv.URL+"/gone"), msg)
	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) || !deliveryErr.Permanent() {
		t.Fatalf("expected permanent delivery error, got %v", err)
	}
	if deliveryErr.Body != "subscription expired" {
		t.Fatalf("body = %q", deliveryErr.Body)
	}
}

func TestDeliveryErrorPermanence(t *testing.T) {
	cases := map[int]bool{
		http.StatusNotFound:            true,
		http.StatusGone:                true,
		http.StatusTooManyRequests:     false,
		http.StatusInternalServerError: false,
		http.StatusBadRequest:          false,
	}
	for status, want := range cases {
		if got := (&DeliveryError{StatusCode: status}).Permanent(); got != want {
			t.Errorf("status %d permanent = %v, want %v", status, got, want)
		}
	}
}
