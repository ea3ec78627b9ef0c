package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	agreementmocks "github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement/mocks"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification/mocks"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/memory"
)

type countingRecorder struct {
	mu            sync.Mutex
	transitions   map[string]int
	notifications map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{transitions: map[string]int{}, notifications: map[string]int{}}
}

func (r *countingRecorder) ObserveTransition(transition, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[transition+"/"+result]++
}

func (r *countingRecorder) ObserveSweep(string) {}

func (r *countingRecorder) ObserveNotification(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[result]++
}

func (r *countingRecorder) notification(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifications[result]
}

func TestEffects_RetriesFailedDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	rec := newCountingRecorder()

	f := newFixture(t, func(o *Options) {
		o.Dispatcher = dispatcher
		o.Recorder = rec
		o.NotifyAttempts = 3
	})

	var attempts []*notification.Notification
	gomock.InOrder(
		dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n *notification.Notification) error {
			attempts = append(attempts, n)
			return errors.New("webhook returned 503")
		}),
		dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n *notification.Notification) error {
			attempts = append(attempts, n)
			return nil
		}),
	)

	e := f.create(t, engagement.PathTour)
	f.svc.WaitForEffects()

	require.Len(t, attempts, 2)
	n := attempts[1]
	assert.Equal(t, notification.RecipientSupplier, n.Recipient)
	assert.Equal(t, e.EngagementID, n.EngagementID)
	assert.Equal(t, int64(1), n.Sequence)
	assert.Equal(t, notification.StatusDelivered, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	assert.Equal(t, 1, rec.notification("retried"))
	assert.Equal(t, 1, rec.notification("delivered"))
	assert.Equal(t, 1, rec.transitions["create/ok"])
}

func TestEffects_GivesUpAfterMaxAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	rec := newCountingRecorder()

	f := newFixture(t, func(o *Options) {
		o.Dispatcher = dispatcher
		o.Recorder = rec
		o.NotifyAttempts = 2
	})
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(errors.New("connection refused")).Times(2)

	id := f.create(t, engagement.PathTour).EngagementID
	f.svc.WaitForEffects()

	// Delivery failures never roll back the committed transition.
	assert.Equal(t, engagement.StatusDealPingSent, f.get(t, id).Status)
	assert.Equal(t, 1, rec.notification("failed"))
}

func TestEffects_NotifiesCounterparties(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)

	var mu sync.Mutex
	got := map[notification.Recipient]string{}
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n *notification.Notification) error {
		mu.Lock()
		defer mu.Unlock()
		if n.Sequence == 3 {
			got[n.Recipient] = n.Topic
		}
		return nil
	}).AnyTimes()

	f := newFixture(t, func(o *Options) { o.Dispatcher = dispatcher })
	ctx := context.Background()
	id := f.create(t, engagement.PathTour).EngagementID
	must(t)(f.svc.AcceptDealPing(ctx, id, buyer, 0))
	must(t)(f.svc.MarkMatched(ctx, id, system, 0))
	f.svc.WaitForEffects()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[notification.Recipient]string{notification.RecipientSupplier: "engagement.match"}, got)
}

func TestBuildNotifications(t *testing.T) {
	f := newFixture(t)
	id := f.toTourConfirmed(t)
	must(t)(f.svc.CompleteTour(context.Background(), id, supplier, 0))
	res, err := f.svc.RecordTourOutcome(context.Background(), id, buyer, "adjustment_needed", "needs dock", 0)
	require.NoError(t, err)

	out := buildNotifications(res.Engagement, res.Event)
	require.Len(t, out, 2)
	assert.Equal(t, notification.RecipientSupplier, out[0].Recipient)
	require.NotNil(t, out[0].RecipientID)
	assert.Equal(t, supplier.ID, *out[0].RecipientID)
	assert.Equal(t, notification.RecipientOps, out[1].Recipient)
	assert.Equal(t, notification.PriorityHigh, out[1].Priority)
	assert.Equal(t, notification.PriorityLow, out[0].Priority, "self-loops are low priority")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(out[0].Payload, &body))
	assert.Equal(t, "record_tour_outcome", body["transition"])
}

func TestEffects_BroadcastsToEngagementGroup(t *testing.T) {
	ctrl := gomock.NewController(t)
	hub := mocks.NewMockSSEHub(ctrl)

	var messages []*notification.SSEMessage
	var groups []string
	hub.EXPECT().BroadcastToGroup(gomock.Any(), gomock.Any()).Do(func(group string, msg *notification.SSEMessage) {
		groups = append(groups, group)
		messages = append(messages, msg)
	}).Times(2)

	f := newFixture(t, func(o *Options) { o.SSEHub = hub })
	ctx := context.Background()
	id := f.create(t, engagement.PathTour).EngagementID
	must(t)(f.svc.AcceptDealPing(ctx, id, buyer, 0))

	_, err := f.svc.AcceptDealPing(ctx, id, buyer, 0)
	requireKind(t, err, engagement.KindInvalidTransition)

	require.Len(t, messages, 2)
	assert.Equal(t, []string{notification.EngagementGroup(id), notification.EngagementGroup(id)}, groups)
	assert.Equal(t, id.String()+":2", messages[1].ID)
	assert.Equal(t, "engagement.transition", messages[1].Event)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(messages[1].Data, &body))
	assert.Equal(t, "deal_ping_accepted", body["toStatus"])
	assert.Equal(t, float64(2), body["version"])
}

func TestSendAgreement_RendersOutsideLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	renderer := agreementmocks.NewMockRenderer(ctrl)

	f := newFixture(t, func(o *Options) { o.Renderer = renderer })
	id := f.toBuyerConfirmed(t)

	renderer.EXPECT().Render(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, in agreement.RenderInput) (string, error) {
		assert.Equal(t, id, in.EngagementID)
		assert.Equal(t, 1, in.Version)
		assert.Equal(t, "listing-42", in.ListingID)
		assert.Equal(t, buyer.ID, in.BuyerID)
		assert.Equal(t, supplier.ID, in.SupplierID)
		assert.Equal(t, in.SentAt.Add(agreement.DefaultTTL), in.ExpiresAt)

		release, err := f.svc.locks.acquire(context.Background(), id, false)
		require.NoError(t, err, "engagement must not be locked while rendering")
		release()
		return "Standard lease terms", nil
	})

	res, err := f.svc.SendAgreement(context.Background(), id, system)
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusAgreementSent, res.Engagement.Status)
	assert.Equal(t, agreement.Digest("Standard lease terms"), res.Agreement.TermsDigest)
	assert.Equal(t, agreement.StatusPending, res.Agreement.Status)
}

func TestSendAgreement_RenderFailureLeavesStateUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	renderer := agreementmocks.NewMockRenderer(ctrl)
	f := newFixture(t, func(o *Options) { o.Renderer = renderer })
	id := f.toBuyerConfirmed(t)
	before := f.get(t, id).Version

	renderer.EXPECT().Render(gomock.Any(), gomock.Any()).Return("", errors.New("template missing"))

	_, err := f.svc.SendAgreement(context.Background(), id, system)
	require.Error(t, err)
	assert.Equal(t, before, f.get(t, id).Version)
	assert.Equal(t, engagement.StatusBuyerConfirmed, f.get(t, id).Status)
}

func TestSendAgreement_WrongStatusSkipsRendering(t *testing.T) {
	ctrl := gomock.NewController(t)
	renderer := agreementmocks.NewMockRenderer(ctrl)
	f := newFixture(t, func(o *Options) { o.Renderer = renderer })
	id := f.create(t, engagement.PathInstantBook).EngagementID

	_, err := f.svc.SendAgreement(context.Background(), id, system)
	requireKind(t, err, engagement.KindInvalidTransition)
}

func TestEffects_JournalsFinalOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	journal := memory.NewNotificationRepository()

	f := newFixture(t, func(o *Options) {
		o.Dispatcher = dispatcher
		o.Journal = journal
		o.NotifyAttempts = 2
	})
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(errors.New("timeout")).Times(2)

	id := f.create(t, engagement.PathTour).EngagementID
	f.svc.WaitForEffects()

	records, err := f.svc.ListNotifications(context.Background(), id, admin)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, notification.StatusFailed, records[0].Status)
	assert.Equal(t, 2, records[0].RetryCount)
	require.NotNil(t, records[0].LastError)
	assert.Equal(t, "timeout", *records[0].LastError)

	_, err = f.svc.ListNotifications(context.Background(), id, buyer)
	assert.Equal(t, engagement.KindUnauthorized, engagement.KindOf(err))
}
