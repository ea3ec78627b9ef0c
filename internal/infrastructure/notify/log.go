package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

// LogDispatcher writes notifications to the log. Used when no webhook is
// configured.
type LogDispatcher struct {
	logger zerolog.Logger
}

func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With().Str("service", "notify").Logger()}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, n *notification.Notification) error {
	evt := d.logger.Info().
		Str("engagement_id", n.EngagementID.String()).
		Int64("sequence", n.Sequence).
		Str("recipient", string(n.Recipient)).
		Str("priority", string(n.Priority)).
		Str("topic", n.Topic)
	if n.RecipientID != nil {
		evt = evt.Str("recipient_id", *n.RecipientID)
	}
	if len(n.Payload) > 0 {
		evt = evt.RawJSON("payload", n.Payload)
	}
	evt.Msg("notification")
	return nil
}
