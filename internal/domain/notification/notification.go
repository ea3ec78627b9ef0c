package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is where a notification stands in delivery.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

type Channel string

const (
	ChannelSSE     Channel = "SSE"
	ChannelWebhook Channel = "WEBHOOK"
	ChannelLog     Channel = "LOG"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Recipient is the party a notification is addressed to.
type Recipient string

const (
	RecipientBuyer    Recipient = "buyer"
	RecipientSupplier Recipient = "supplier"
	RecipientOps      Recipient = "ops"
)

// DefaultMaxAttempts bounds delivery attempts for a new notification.
const DefaultMaxAttempts = 3

var (
	ErrInvalidTransition = errors.New("invalid notification status change")
	ErrCannotRetry       = errors.New("notification cannot be retried")

	// ErrPermanent marks a delivery failure that retrying cannot fix.
	ErrPermanent = errors.New("permanent delivery failure")
)

// Notification is a post-commit message about an engagement transition.
// DedupeKey is stable per (engagement, sequence, recipient) so receivers can
// drop the duplicates that at-least-once delivery produces.
type Notification struct {
	NotificationID uuid.UUID       `json:"notificationId"`
	EngagementID   uuid.UUID       `json:"engagementId"`
	Sequence       int64           `json:"sequence"`
	DedupeKey      string          `json:"dedupeKey"`
	Recipient      Recipient       `json:"recipient"`
	RecipientID    *string         `json:"recipientId,omitempty"`
	Channel        Channel         `json:"channel"`
	Priority       Priority        `json:"priority"`
	Topic          string          `json:"topic"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	RetryCount     int             `json:"retryCount"`
	MaxRetries     int             `json:"maxRetries"`
	LastError      *string         `json:"lastError,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	DeliveredAt    *time.Time      `json:"deliveredAt,omitempty"`
}

// DedupeKey identifies one recipient's copy of one timeline event.
func DedupeKey(engagementID uuid.UUID, sequence int64, recipient Recipient) string {
	return fmt.Sprintf("%s:%d:%s", engagementID, sequence, recipient)
}

// NewNotification creates a pending notification for one recipient of an event.
func NewNotification(
	engagementID uuid.UUID,
	sequence int64,
	recipient Recipient,
	channel Channel,
	priority Priority,
	topic string,
	payload json.RawMessage,
	now time.Time,
) *Notification {
	return &Notification{
		NotificationID: uuid.New(),
		EngagementID:   engagementID,
		Sequence:       sequence,
		DedupeKey:      DedupeKey(engagementID, sequence, recipient),
		Recipient:      recipient,
		Channel:        channel,
		Priority:       priority,
		Topic:          topic,
		Payload:        payload,
		Status:         StatusPending,
		MaxRetries:     DefaultMaxAttempts,
		CreatedAt:      now,
	}
}

func (n *Notification) SetRecipientID(id string) {
	n.RecipientID = &id
}

// MarkDelivered records a successful attempt. Only a pending notification can
// be delivered.
func (n *Notification) MarkDelivered(now time.Time) error {
	if n.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.Status, StatusDelivered)
	}
	n.Status = StatusDelivered
	n.DeliveredAt = &now
	return nil
}

// MarkFailed records a failed attempt and counts it against MaxRetries.
func (n *Notification) MarkFailed(errMsg string) error {
	if n.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.Status, StatusFailed)
	}
	n.Status = StatusFailed
	n.LastError = &errMsg
	n.RetryCount++
	return nil
}

func (n *Notification) CanRetry() bool {
	return n.Status == StatusFailed && n.RetryCount < n.MaxRetries
}

// ResetForRetry puts a failed notification back to pending for another attempt.
func (n *Notification) ResetForRetry() error {
	if !n.CanRetry() {
		return ErrCannotRetry
	}
	n.Status = StatusPending
	return nil
}
