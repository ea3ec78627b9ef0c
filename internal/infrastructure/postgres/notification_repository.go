package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

const notificationColumns = `notification_id, engagement_id, sequence, dedupe_key, recipient, recipient_id, channel, priority,
	topic, payload, status, retry_count, max_retries, last_error, created_at, delivered_at`

// NotificationRepository implements notification.Repository.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Save upserts by notification id; a later outcome replaces an earlier one.
func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO engagement_notifications (`+notificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (notification_id) DO UPDATE
		SET status=EXCLUDED.status,
			retry_count=EXCLUDED.retry_count,
			last_error=EXCLUDED.last_error,
			delivered_at=EXCLUDED.delivered_at
	`, n.NotificationID, n.EngagementID, n.Sequence, n.DedupeKey, n.Recipient, n.RecipientID, n.Channel, n.Priority,
		n.Topic, nullJSON(n.Payload), n.Status, n.RetryCount, n.MaxRetries, n.LastError, n.CreatedAt, n.DeliveredAt)
	return err
}

func (r *NotificationRepository) ListByEngagement(ctx context.Context, engagementID uuid.UUID) ([]*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM engagement_notifications WHERE engagement_id=$1
		ORDER BY sequence ASC, recipient ASC
	`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var n notification.Notification
	var payload []byte
	if err := row.Scan(&n.NotificationID, &n.EngagementID, &n.Sequence, &n.DedupeKey, &n.Recipient, &n.RecipientID, &n.Channel, &n.Priority,
		&n.Topic, &payload, &n.Status, &n.RetryCount, &n.MaxRetries, &n.LastError, &n.CreatedAt, &n.DeliveredAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(payload) > 0 {
		n.Payload = payload
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.DeliveredAt = utcPtr(n.DeliveredAt)
	return &n, nil
}
