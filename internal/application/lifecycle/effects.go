package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

// Recorder receives operational measurements. The Prometheus implementation
// lives in infrastructure/metrics.
type Recorder interface {
	ObserveTransition(transition string, result string, elapsed time.Duration)
	ObserveSweep(outcome string)
	ObserveNotification(result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(string, string, time.Duration) {}
func (nopRecorder) ObserveSweep(string)                             {}
func (nopRecorder) ObserveNotification(string)                      {}

// effects runs post-commit side effects. Nothing here can undo a commit:
// failures are retried a bounded number of times and then logged.
type effects struct {
	dispatcher  notification.Dispatcher
	hub         notification.SSEHub
	journal     notification.Repository
	recorder    Recorder
	logger      zerolog.Logger
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	wg          sync.WaitGroup
}

func (f *effects) publish(e *engagement.Engagement, ev *engagement.Event) {
	f.broadcast(e, ev)
	if f.dispatcher == nil {
		return
	}
	for _, n := range buildNotifications(e, ev) {
		f.wg.Add(1)
		go func(n *notification.Notification) {
			defer f.wg.Done()
			f.deliver(n)
		}(n)
	}
}

func (f *effects) broadcast(e *engagement.Engagement, ev *engagement.Event) {
	if f.hub == nil {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"engagementId": ev.EngagementID,
		"sequence":     ev.Sequence,
		"transition":   ev.Transition,
		"actor":        ev.Actor,
		"fromStatus":   ev.FromStatus,
		"toStatus":     ev.ToStatus,
		"version":      e.Version,
		"payload":      ev.Payload,
		"createdAt":    ev.CreatedAt,
	})
	if err != nil {
		f.logger.Warn().Err(err).Msg("failed to encode SSE event")
		return
	}
	id := ev.EngagementID.String() + ":" + itoa(ev.Sequence)
	f.hub.BroadcastToGroup(notification.EngagementGroup(ev.EngagementID), notification.NewSSEMessage(id, "engagement.transition", data))
}

func (f *effects) deliver(n *notification.Notification) {
	n.MaxRetries = f.maxAttempts
	for {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := f.dispatcher.Dispatch(ctx, n)
		cancel()
		if err == nil {
			_ = n.MarkDelivered(time.Now().UTC())
			f.recorder.ObserveNotification("delivered")
			f.record(n)
			return
		}
		_ = n.MarkFailed(err.Error())
		if errors.Is(err, notification.ErrPermanent) || n.ResetForRetry() != nil {
			f.recorder.ObserveNotification("failed")
			f.logger.Error().Err(err).
				Str("engagement_id", n.EngagementID.String()).
				Int64("sequence", n.Sequence).
				Str("recipient", string(n.Recipient)).
				Int("attempts", n.RetryCount).
				Msg("notification delivery failed")
			f.record(n)
			return
		}
		f.recorder.ObserveNotification("retried")
		f.logger.Warn().Err(err).
			Str("dedupe_key", n.DedupeKey).
			Int("attempt", n.RetryCount).
			Msg("notification delivery failed, retrying")
		time.Sleep(f.backoff * time.Duration(n.RetryCount))
	}
}

// record stores the final outcome. A journal failure is logged and dropped.
func (f *effects) record(n *notification.Notification) {
	if f.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.journal.Save(ctx, n); err != nil {
		f.logger.Warn().Err(err).Str("dedupe_key", n.DedupeKey).Msg("failed to record notification outcome")
	}
}

// wait blocks until in-flight deliveries finish.
func (f *effects) wait() {
	f.wg.Wait()
}

func buildNotifications(e *engagement.Engagement, ev *engagement.Event) []*notification.Notification {
	payload, err := json.Marshal(map[string]interface{}{
		"engagementId": ev.EngagementID,
		"transition":   ev.Transition,
		"fromStatus":   ev.FromStatus,
		"toStatus":     ev.ToStatus,
		"actor":        ev.Actor,
		"reason":       e.Outcome.Reason,
	})
	if err != nil {
		return nil
	}

	priority := notification.PriorityMedium
	switch {
	case ev.ToStatus.IsTermination():
		priority = notification.PriorityHigh
	case ev.FromStatus == ev.ToStatus:
		priority = notification.PriorityLow
	}
	topic := "engagement." + string(ev.Transition)

	var out []*notification.Notification
	if e.BuyerID != nil && ev.Actor.Role != engagement.RoleBuyer {
		n := notification.NewNotification(ev.EngagementID, ev.Sequence, notification.RecipientBuyer, notification.ChannelWebhook, priority, topic, payload, ev.CreatedAt)
		n.SetRecipientID(*e.BuyerID)
		out = append(out, n)
	}
	if ev.Actor.Role != engagement.RoleSupplier {
		n := notification.NewNotification(ev.EngagementID, ev.Sequence, notification.RecipientSupplier, notification.ChannelWebhook, priority, topic, payload, ev.CreatedAt)
		n.SetRecipientID(e.SupplierID)
		out = append(out, n)
	}
	if e.Admin.Flagged && ev.Transition == engagement.TransitionRecordTourOutcome {
		out = append(out, notification.NewNotification(ev.EngagementID, ev.Sequence, notification.RecipientOps, notification.ChannelWebhook, notification.PriorityHigh, "engagement.flagged", payload, ev.CreatedAt))
	}
	return out
}
