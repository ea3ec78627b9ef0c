package repotest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

// NotificationFactory returns an empty engagement store and the delivery
// journal sharing its storage.
type NotificationFactory func(t *testing.T) (engagement.Repository, notification.Repository)

// RunNotifications checks a notification.Repository implementation.
func RunNotifications(t *testing.T, newRepos NotificationFactory) {
	ctx := context.Background()
	engagements, journal := newRepos(t)

	e := newEngagement("supplier-9", base)
	require.NoError(t, engagements.Create(ctx, e, engagement.NewEvent(e, engagement.TransitionCreate, engagement.System(), "", nil, base)))

	list, err := journal.ListByEngagement(ctx, e.EngagementID)
	require.NoError(t, err)
	assert.Empty(t, list)

	toSupplier := notification.NewNotification(e.EngagementID, 2, notification.RecipientSupplier, notification.ChannelWebhook,
		notification.PriorityHigh, "engagement.deal_ping_accepted", json.RawMessage(`{"status":"deal_ping_accepted"}`), base)
	toSupplier.SetRecipientID("supplier-9")
	toBuyer := notification.NewNotification(e.EngagementID, 2, notification.RecipientBuyer, notification.ChannelWebhook,
		notification.PriorityMedium, "engagement.deal_ping_accepted", nil, base)
	earlier := notification.NewNotification(e.EngagementID, 1, notification.RecipientOps, notification.ChannelLog,
		notification.PriorityLow, "engagement.created", nil, base)

	require.NoError(t, toSupplier.MarkFailed("timeout"))
	for _, n := range []*notification.Notification{toSupplier, toBuyer, earlier} {
		require.NoError(t, journal.Save(ctx, n))
	}

	// A later outcome for the same notification replaces the earlier one.
	require.NoError(t, toSupplier.ResetForRetry())
	delivered := base.Add(3 * time.Second)
	require.NoError(t, toSupplier.MarkDelivered(delivered))
	require.NoError(t, journal.Save(ctx, toSupplier))

	list, err = journal.ListByEngagement(ctx, e.EngagementID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, notification.RecipientOps, list[0].Recipient)
	assert.Equal(t, notification.RecipientBuyer, list[1].Recipient)
	assert.Equal(t, notification.RecipientSupplier, list[2].Recipient)

	got := list[2]
	assert.Equal(t, toSupplier.NotificationID, got.NotificationID)
	assert.Equal(t, notification.StatusDelivered, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "timeout", *got.LastError)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, delivered.Equal(*got.DeliveredAt))
	require.NotNil(t, got.RecipientID)
	assert.Equal(t, "supplier-9", *got.RecipientID)
	assert.JSONEq(t, `{"status":"deal_ping_accepted"}`, string(got.Payload))
	assert.Equal(t, toSupplier.DedupeKey, got.DedupeKey)
	assert.True(t, base.Equal(got.CreatedAt))

	assert.Nil(t, list[1].RecipientID)
	assert.Empty(t, list[1].Payload)
}
