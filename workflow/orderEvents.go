package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
)

type OrderEventKind string

const (
	OrderEventCreated       OrderEventKind = "order.created"
	OrderEventStatusUpdated OrderEventKind = "order.updated"
)

// OrderEvent carries one lifecycle change through the fanout.
type OrderEvent struct {
	Kind           OrderEventKind
	Order          models.Order
	PreviousStatus models.OrderStatus
}

// OrderEventBus fans one event out to independently-failing subscribers.
// A panic or error inside one subscriber is logged and contained; it never
// reaches the other subscribers or the caller's transaction.
type OrderEventBus struct {
	Logger *logrus.Logger

	mu          sync.RWMutex
	subscribers []eventSubscriber
}

type eventSubscriber struct {
	name string
	fn   func(ctx context.Context, ev OrderEvent)
}

func NewOrderEventBus(logger *logrus.Logger) *OrderEventBus {
	return &OrderEventBus{Logger: logger}
}

func (b *OrderEventBus) Subscribe(name string, fn func(ctx context.Context, ev OrderEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, eventSubscriber{name: name, fn: fn})
}

func (b *OrderEventBus) Emit(ctx context.Context, ev OrderEvent) {
	b.mu.RLock()
	subs := make([]eventSubscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.runIsolated(ctx, sub, ev)
	}
}

func (b *OrderEventBus) runIsolated(ctx context.Context, sub eventSubscriber, ev OrderEvent) {
	defer func() {
		if r := recover(); r != nil {
			config.LogError(b.Logger, "orderEvents.go", "runIsolated",
				"subscriber panicked: "+sub.name, ev.Order.ID, fmt.Errorf("%v", r))
		}
	}()
	sub.fn(ctx, ev)
}

var (
	defaultBus     *OrderEventBus
	defaultBusOnce sync.Once
)

// GetOrderEventBus returns the process-wide bus with the default subscribers
// attached: the synchronous realtime fanout and the detached push dispatcher.
func GetOrderEventBus() *OrderEventBus {
	defaultBusOnce.Do(func() {
		logger := config.GetLogger()
		defaultBus = NewOrderEventBus(logger)
		defaultBus.Subscribe("realtime-fanout", RealtimeFanoutSubscriber(logger))
		defaultBus.Subscribe("push-dispatch", PushDispatchSubscriber(NewPushDispatcher(logger)))
	})
	return defaultBus
}

// NotifyOrderCreated is called right after the order-creation transaction
// commits.
func NotifyOrderCreated(ctx context.Context, order models.Order) {
	GetOrderEventBus().Emit(ctx, OrderEvent{Kind: OrderEventCreated, Order: order})
}

// NotifyOrderStatusChanged is called after a status mutation commits.
func NotifyOrderStatusChanged(ctx context.Context, order models.Order, previous models.OrderStatus) {
	GetOrderEventBus().Emit(ctx, OrderEvent{
		Kind:           OrderEventStatusUpdated,
		Order:          order,
		PreviousStatus: previous,
	})
}
