package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// ErrDuplicateEndpoint is returned when an endpoint is already registered.
var ErrDuplicateEndpoint = errors.New("push endpoint already registered")

// PushSubscriptionRepository persists push endpoints.
type PushSubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.PushSubscription) error
	GetByEndpoint(ctx context.Context, endpoint string) (*domain.PushSubscription, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.PushSubscription, error)
	Refresh(ctx context.Context, sub *domain.PushSubscription) error
	MarkUsed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByEndpoint(ctx context.Context, owner, endpoint string) (bool, error)
}

type pushSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPushSubscriptionRepository instantiates repository.
func NewPushSubscriptionRepository(pool *pgxpool.Pool) PushSubscriptionRepository {
	return &pushSubscriptionRepository{pool: pool}
}

const pushSubscriptionColumns = `id, owner_identity, endpoint, p256dh_key, auth_key, device_class, user_agent, created_at, last_seen_at`

func (r *pushSubscriptionRepository) Create(ctx context.Context, sub *domain.PushSubscription) error {
	const query = `
        INSERT INTO push_subscriptions (id, owner_identity, endpoint, p256dh_key, auth_key, device_class, user_agent, created_at, last_seen_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (endpoint) DO NOTHING
        RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		sub.ID,
		sub.OwnerIdentity,
		sub.EndpointURL,
		sub.Keys.P256dh,
		sub.Keys.Auth,
		sub.DeviceClass,
		sub.UserAgent,
		sub.CreatedAt,
		sub.LastSeenAt,
	).Scan(&sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateEndpoint
	}
	return err
}

func (r *pushSubscriptionRepository) GetByEndpoint(ctx context.Context, endpoint string) (*domain.PushSubscription, error) {
	query := `SELECT ` + pushSubscriptionColumns + ` FROM push_subscriptions WHERE endpoint=$1`
	sub, err := scanPushSubscription(r.pool.QueryRow(ctx, query, endpoint))
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *pushSubscriptionRepository) ListByOwner(ctx context.Context, owner string) ([]domain.PushSubscription, error) {
	query := `SELECT ` + pushSubscriptionColumns + `
        FROM push_subscriptions WHERE LOWER(owner_identity) = LOWER($1)
        ORDER BY last_seen_at DESC`
	rows, err := r.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.PushSubscription
	for rows.Next() {
		sub, err := scanPushSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (r *pushSubscriptionRepository) Refresh(ctx context.Context, sub *domain.PushSubscription) error {
	const query = `
        UPDATE push_subscriptions SET p256dh_key=$1, auth_key=$2, device_class=$3, user_agent=$4, last_seen_at=$5
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		sub.Keys.P256dh,
		sub.Keys.Auth,
		sub.DeviceClass,
		sub.UserAgent,
		sub.LastSeenAt,
		sub.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pushSubscriptionRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE push_subscriptions SET last_seen_at=$1 WHERE id=$2`, at, id)
	return err
}

func (r *pushSubscriptionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE id=$1`, id)
	return err
}

func (r *pushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, owner, endpoint string) (bool, error) {
	cmd, err := r.pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint=$1 AND LOWER(owner_identity) = LOWER($2)`,
		endpoint, owner)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func scanPushSubscription(row pgx.Row) (*domain.PushSubscription, error) {
	var sub domain.PushSubscription
	if err := row.Scan(
		&sub.ID,
		&sub.OwnerIdentity,
		&sub.EndpointURL,
		&sub.Keys.P256dh,
		&sub.Keys.Auth,
		&sub.DeviceClass,
		&sub.UserAgent,
		&sub.CreatedAt,
		&sub.LastSeenAt,
	); err != nil {
		return nil, err
	}
	return &sub, nil
}
