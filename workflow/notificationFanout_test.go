package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
)

type capturedPublish struct {
	Channel string
	Event   string
	Payload any
}

type fakePublisher struct {
	mu        sync.Mutex
	published []capturedPublish
	failOn    string
}

func (f *fakePublisher) Publish(_ context.Context, channel, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channel == f.failOn {
		return context.DeadlineExceeded
	}
	f.published = append(f.published, capturedPublish{Channel: channel, Event: event, Payload: payload})
	return nil
}

func (f *fakePublisher) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.published))
	for _, p := range f.published {
		out = append(out, p.Channel)
	}
	return out
}

func withFakePublisher(t *testing.T, pub *fakePublisher) {
	t.Helper()
	prev := config.GetRealtimePublisher()
	config.SetRealtimePublisher(pub)
	t.Cleanup(func() { config.SetRealtimePublisher(prev) })
}

func statusEvent(userId *int) OrderEvent {
	return OrderEvent{
		Kind: OrderEventStatusUpdated,
		Order: models.Order{
			ID:          77,
			OrderNumber: "B001-20250101-00042",
			UserId:      userId,
			Status:      models.OrderStatusShipped,
			TotalAmount: decimal.NewFromInt(1500),
		},
		PreviousStatus: models.OrderStatusConfirmed,
	}
}

func TestRealtimeFanout_AnonymousOrderSkipsPrivateChannel(t *testing.T) {
	pub := &fakePublisher{}
	withFakePublisher(t, pub)

	sub := RealtimeFanoutSubscriber(logrus.New())
	sub(context.Background(), statusEvent(nil))

	channels := pub.channels()
	if len(channels) != 2 {
		t.Fatalf("expected admin + order channels only, got %v", channels)
	}
	if channels[0] != ChannelAdminOrders {
		t.Fatalf("admin channel missing: %v", channels)
	}
	if channels[1] != OrderChannel(77) {
		t.Fatalf("order channel missing: %v", channels)
	}
}

func TestRealtimeFanout_OwnedOrderPublishesPrivateChannel(t *testing.T) {
	pub := &fakePublisher{}
	withFakePublisher(t, pub)

	userId := 9
	sub := RealtimeFanoutSubscriber(logrus.New())
	sub(context.Background(), statusEvent(&userId))

	channels := pub.channels()
	if len(channels) != 3 || channels[2] != UserChannel(9) {
		t.Fatalf("expected private channel last, got %v", channels)
	}
}

func TestRealtimeFanout_OneChannelFailureDoesNotStopOthers(t *testing.T) {
	userId := 9
	pub := &fakePublisher{failOn: ChannelAdminOrders}
	withFakePublisher(t, pub)

	sub := RealtimeFanoutSubscriber(logrus.New())
	sub(context.Background(), statusEvent(&userId))

	channels := pub.channels()
	if len(channels) != 2 {
		t.Fatalf("remaining channels should still publish, got %v", channels)
	}
}

func TestBuildOrderEventPayload_Messages(t *testing.T) {
	created := OrderEvent{
		Kind: OrderEventCreated,
		Order: models.Order{
			ID:          3,
			OrderNumber: "B001-20250101-00003",
			Status:      models.OrderStatusPending,
		},
	}
	p := BuildOrderEventPayload(created)
	if p.Message != "Order B001-20250101-00003 has been placed." {
		t.Fatalf("created message = %q", p.Message)
	}
	if p.PreviousStatus != "" {
		t.Fatalf("created payload should not carry a previous status")
	}

	p = BuildOrderEventPayload(statusEvent(nil))
	if p.Message != "Order B001-20250101-00042 is now shipped." {
		t.Fatalf("status message = %q", p.Message)
	}
	if p.PreviousStatus != models.OrderStatusConfirmed {
		t.Fatalf("previous status = %q", p.PreviousStatus)
	}
}

func TestPushDispatchSubscriber_Gating(t *testing.T) {
	gateway := &fakeGateway{}
	d := &PushDispatcher{Logger: logrus.New(), Gateway: gateway, App: models.PushAppCustomerMobile}
	sub := PushDispatchSubscriber(d)

	// Anonymous order: no dispatch attempt at all.
	sub(context.Background(), statusEvent(nil))

	// Creation events do not push either, even with an owner.
	userId := 9
	created := statusEvent(&userId)
	created.Kind = OrderEventCreated
	sub(context.Background(), created)

	if n := gateway.calls(); n != 0 {
		t.Fatalf("expected zero push attempts, got %d", n)
	}
}
