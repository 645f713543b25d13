package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/config"
	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/repository"
	apperrors "github.com/spec-kit/ticket-portal/pkg/util/errorutil"
)

type memoryRepo struct {
	mu       sync.Mutex
	subs     map[string]domain.PushSubscription
	used     map[string]int
	listErr  error
	raceOnce *domain.PushSubscription
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{subs: map[string]domain.PushSubscription{}, used: map[string]int{}}
}

func (r *memoryRepo) Create(_ context.Context, sub *domain.PushSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.raceOnce != nil {
		r.subs[r.raceOnce.ID] = *r.raceOnce
		r.raceOnce = nil
	}
	for _, s := range r.subs {
		if s.EndpointURL == sub.EndpointURL {
			return repository.ErrDuplicateEndpoint
		}
	}
	r.subs[sub.ID] = *sub
	return nil
}

func (r *memoryRepo) GetByEndpoint(_ context.Context, endpoint string) (*domain.PushSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.EndpointURL == endpoint {
			copied := s
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memoryRepo) ListByOwner(_ context.Context, owner string) ([]domain.PushSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.PushSubscription
	for _, s := range r.subs {
		if strings.EqualFold(s.OwnerIdentity, owner) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndpointURL < out[j].EndpointURL })
	return out, nil
}

func (r *memoryRepo) Refresh(_ context.Context, sub *domain.PushSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.subs[sub.ID] = *sub
	return nil
}

func (r *memoryRepo) MarkUsed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used[id]++
	if s, ok := r.subs[id]; ok {
		s.LastSeenAt = at
		r.subs[id] = s
	}
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	return nil
}

func (r *memoryRepo) DeleteByEndpoint(_ context.Context, owner, endpoint string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.subs {
		if s.EndpointURL == endpoint && strings.EqualFold(s.OwnerIdentity, owner) {
			delete(r.subs, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

type scriptedSender struct {
	mu       sync.Mutex
	results  map[string]error
	messages []Message
}

func (s *scriptedSender) Send(_ context.Context, sub domain.PushSubscription, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.results[sub.EndpointURL]
}

func enabledConfig() config.PushConfig {
	return config.PushConfig{
		VAPIDPublicKey:  "pub",
		VAPIDPrivateKey: "priv",
		AppURL:          "https://portal.example.com/",
		TicketPath:      "/detalleticket",
		Icon:            "/icon-192x192.png",
		Badge:           "/icon-72x72.png",
	}
}

func newTestService(t *testing.T, repo *memoryRepo, sender Sender) *Service {
	t.Helper()
	svc := NewService(repo, sender, enabledConfig(), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC) }
	return svc
}

func subscribeInput(owner, endpoint string) SubscribeInput {
	return SubscribeInput{OwnerIdentity: owner, EndpointURL: endpoint, P256dh: "p256", Auth: "auth", UserAgent: "Mozilla/5.0 (iPhone; Mobile)"}
}

func TestSubscribeCreatesThenRefreshes(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo, &scriptedSender{})
	ctx := context.Background()

	res, err := svc.Subscribe(ctx, subscribeInput("Ana@Example.com", "https://push.example/a"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !res.Created || res.Subscription.OwnerIdentity != "ana@example.com" || res.Subscription.DeviceClass != "mobile" {
		t.Fatalf("unexpected result: %+v", res.Subscription)
	}

	again := subscribeInput("ana@example.com", "https://push.example/a")
	again.P256dh = "rotated"
	res, err = svc.Subscribe(ctx, again)
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if res.Created || res.Subscription.Keys.P256dh != "rotated" {
		t.Fatalf("expected refresh, got %+v", res)
	}
	if repo.count() != 1 {
		t.Fatalf("rows = %d", repo.count())
	}
}

func TestSubscribeConflictLeavesRowUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo, &scriptedSender{})
	ctx := context.Background()
	if _, err := svc.Subscribe(ctx, subscribeInput("ana@example.com", "https://push.example/a")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_, err := svc.Subscribe(ctx, subscribeInput("bob@example.com", "https://push.example/a"))
	if apperrors.ToDomainError(err).HTTPStatus != http.StatusConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	sub, _ := repo.GetByEndpoint(ctx, "https://push.example/a")
	if sub.OwnerIdentity != "ana@example.com" {
		t.Fatalf("owner changed to %s", sub.OwnerIdentity)
	}
}

func TestSubscribeRaceResolvesToExistingRow(t *testing.T) {
	repo := newMemoryRepo()
	repo.raceOnce = &domain.PushSubscription{ID: "other", OwnerIdentity: "bob@example.com", EndpointURL: "https://push.example/a"}
	svc := newTestService(t, repo, &scriptedSender{})

	_, err := svc.Subscribe(context.Background(), subscribeInput("ana@example.com", "https://push.example/a"))
	if apperrors.ToDomainError(err).HTTPStatus != http.StatusConflict {
		t.Fatalf("expected conflict after race, got %v", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	svc := newTestService(t, newMemoryRepo(), &scriptedSender{})
	in := SubscribeInput{OwnerIdentity: "nobody", EndpointURL: "ftp://x"}
	_, err := svc.Subscribe(context.Background(), in)
	de := apperrors.ToDomainError(err)
	if de.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"ownerIdentity", "endpointURL", "p256dh", "auth"} {
		if _, ok := de.Details[field]; !ok {
			t.Errorf("missing detail for %s", field)
		}
	}
}

func TestSendPrunesGoneEndpointsAndCounts(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo, nil)
	ctx := context.Background()
	for _, ep := range []string{"https://push.example/ok", "https://push.example/gone", "https://push.example/missing", "https://push.example/flaky"} {
		if _, err := svc.Subscribe(ctx, subscribeInput("ana@example.com", ep)); err != nil {
			t.Fatalf("subscribe %s: %v", ep, err)
		}
	}
	sender := &scriptedSender{results: map[string]error{
		"https://push.example/gone":    &DeliveryError{StatusCode: http.StatusGone},
		"https://push.example/missing": &DeliveryError{StatusCode: http.StatusNotFound},
		"https://push.example/flaky":   &DeliveryError{StatusCode: http.StatusTooManyRequests},
	}}
	svc.sender = sender

	u := domain.TicketUpdate{TicketID: 42}
	u.SetStatus(domain.StatusSolved)
	report, err := svc.NotifyTicket(ctx, "ANA@example.com", u)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if report != (Report{Sent: 1, Failed: 3, Total: 4, Pruned: 2}) {
		t.Fatalf("report = %+v", report)
	}
	if repo.count() != 2 {
		t.Fatalf("rows after prune = %d, want 2", repo.count())
	}
	if len(sender.messages) != 4 || sender.messages[0].Topic != "ticket-42" {
		t.Fatalf("messages = %+v", sender.messages)
	}
}

func TestSendWithoutSubscriptions(t *testing.T) {
	svc := newTestService(t, newMemoryRepo(), &scriptedSender{})
	report, err := svc.NotifyTicket(context.Background(), "ana@example.com", domain.TicketUpdate{TicketID: 1})
	if err != nil || report != (Report{}) {
		t.Fatalf("report = %+v err = %v", report, err)
	}
}

func TestSendDisabledWithoutKeys(t *testing.T) {
	repo := newMemoryRepo()
	repo.listErr = errors.New("must not be called")
	svc := NewService(repo, &scriptedSender{}, config.PushConfig{}, nil)
	report, err := svc.SendTest(context.Background(), "ana@example.com")
	if err != nil || report != (Report{}) {
		t.Fatalf("report = %+v err = %v", report, err)
	}
}

func TestUnsubscribeScopedToOwner(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo, &scriptedSender{})
	ctx := context.Background()
	if _, err := svc.Subscribe(ctx, subscribeInput("ana@example.com", "https://push.example/a")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	err := svc.Unsubscribe(ctx, "bob@example.com", "https://push.example/a")
	if apperrors.ToDomainError(err).HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.Unsubscribe(ctx, "ana@example.com", "https://push.example/a"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if repo.count() != 0 {
		t.Fatalf("row not deleted")
	}
}

func TestTicketNotificationPayload(t *testing.T) {
	u := domain.TicketUpdate{TicketID: 77, Title: strings.Repeat("á", 60)}
	u.SetStatus(domain.StatusAssigned)
	n := TicketNotification(enabledConfig(), "Ana@Example.com", u)

	if n.Title != "Ticket #77" || n.Tag != "ticket-77" {
		t.Fatalf("title/tag = %q/%q", n.Title, n.Tag)
	}
	wantBody := "En Progreso (Asignado) - " + strings.Repeat("á", 50) + "..."
	if n.Body != wantBody {
		t.Fatalf("body = %q", n.Body)
	}
	if n.Data.URL != "https://portal.example.com/detalleticket?mail=ana%40example.com&idticket=77" {
		t.Fatalf("url = %q", n.Data.URL)
	}

	raw, err := n.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["actions"] == nil || decoded["data"].(map[string]any)["status"] != float64(2) {
		t.Fatalf("payload = %s", raw)
	}

	noTitle := TicketNotification(enabledConfig(), "a@b.c", domain.TicketUpdate{TicketID: 1})
	if noTitle.Body != "Estado: Actualizado" {
		t.Fatalf("body without status = %q", noTitle.Body)
	}
}

func TestTopicFor(t *testing.T) {
	if got := topicFor("ticket-12"); got != "ticket-12" {
		t.Fatalf("topic = %q", got)
	}
	if got := topicFor(strings.Repeat("x", 40) + "#"); len(got) != 32 {
		t.Fatalf("topic length = %d", len(got))
	}
}
