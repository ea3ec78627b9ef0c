package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

const notificationColumns = `notification_id, engagement_id, sequence, dedupe_key, recipient, recipient_id, channel, priority,
	topic, payload, status, retry_count, max_retries, last_error, created_at, delivered_at`

// NotificationRepository implements notification.Repository on SQLite.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Save upserts by notification id; a later outcome replaces an earlier one.
func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	var payload interface{}
	if len(n.Payload) > 0 {
		payload = string(n.Payload)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engagement_notifications (`+notificationColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(notification_id) DO UPDATE
		SET status=excluded.status,
			retry_count=excluded.retry_count,
			last_error=excluded.last_error,
			delivered_at=excluded.delivered_at
	`, n.NotificationID.String(), n.EngagementID.String(), n.Sequence, n.DedupeKey, string(n.Recipient), nullString(n.RecipientID),
		string(n.Channel), string(n.Priority), n.Topic, payload, string(n.Status), n.RetryCount, n.MaxRetries, nullString(n.LastError),
		formatTime(n.CreatedAt), formatTimePtr(n.DeliveredAt))
	return err
}

func (r *NotificationRepository) ListByEngagement(ctx context.Context, engagementID uuid.UUID) ([]*notification.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM engagement_notifications WHERE engagement_id=?
		ORDER BY sequence ASC, recipient ASC
	`, engagementID.String())
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

func scanNotification(row scanner) (*notification.Notification, error) {
	var (
		n                                      notification.Notification
		id, engID, recipient, channel, status  string
		priority, createdAt                    string
		recipientID, payload, lastErr, deliver sql.NullString
	)
	if err := row.Scan(&id, &engID, &n.Sequence, &n.DedupeKey, &recipient, &recipientID, &channel, &priority,
		&n.Topic, &payload, &status, &n.RetryCount, &n.MaxRetries, &lastErr, &createdAt, &deliver); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var err error
	if n.NotificationID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if n.EngagementID, err = uuid.Parse(engID); err != nil {
		return nil, err
	}
	n.Recipient = notification.Recipient(recipient)
	n.Channel = notification.Channel(channel)
	n.Priority = notification.Priority(priority)
	n.Status = notification.Status(status)
	if recipientID.Valid {
		v := recipientID.String
		n.RecipientID = &v
	}
	if payload.Valid && payload.String != "" {
		n.Payload = []byte(payload.String)
	}
	if lastErr.Valid {
		v := lastErr.String
		n.LastError = &v
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if n.DeliveredAt, err = parseTimePtr(deliver); err != nil {
		return nil, err
	}
	return &n, nil
}

func nullString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
