package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuarantinedPayload is an inbound notification that could not be routed.
type QuarantinedPayload struct {
	ReceivedAt time.Time `json:"received_at"`
	Reason     string    `json:"reason"`
	Raw        string    `json:"raw"`
}

// QuarantineRepository keeps a bounded list of unroutable payloads.
type QuarantineRepository interface {
	Push(ctx context.Context, payload QuarantinedPayload) error
	List(ctx context.Context, limit int) ([]QuarantinedPayload, error)
	Clear(ctx context.Context) error
}

type quarantineRepository struct {
	client *redis.Client
	key    string
	max    int
}

// NewQuarantineRepository stores payloads in a capped Redis list.
func NewQuarantineRepository(client *redis.Client, key string, maxItems int) QuarantineRepository {
	if maxItems <= 0 {
		maxItems = 200
	}
	return &quarantineRepository{client: client, key: key, max: maxItems}
}

func (r *quarantineRepository) Push(ctx context.Context, payload QuarantinedPayload) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode quarantined payload: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, encoded)
	pipe.LTrim(ctx, r.key, 0, int64(r.max-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *quarantineRepository) List(ctx context.Context, limit int) ([]QuarantinedPayload, error) {
	if limit <= 0 || limit > r.max {
		limit = r.max
	}
	raw, err := r.client.LRange(ctx, r.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]QuarantinedPayload, 0, len(raw))
	for _, item := range raw {
		var p QuarantinedPayload
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *quarantineRepository) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
