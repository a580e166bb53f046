package workflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
)

// Channel naming for the realtime transport: one global admin channel, one
// channel per order, one private channel per user.
const ChannelAdminOrders = "admin-orders"

func OrderChannel(orderId int) string {
	return fmt.Sprintf("orders.%d", orderId)
}

func UserChannel(userId int) string {
	return fmt.Sprintf("private-user.%d", userId)
}

// OrderEventPayload is what subscribers on the realtime channels receive.
type OrderEventPayload struct {
	OrderId        int             `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	DeliveryLat    *float64        `json:"delivery_lat,omitempty"`
	DeliveryLng    *float64        `json:"delivery_lng,omitempty"`
	Message        string          `json:"message"`
}

func BuildOrderEventPayload(ev OrderEvent) OrderEventPayload {
	p := OrderEventPayload{
		OrderId:     ev.Order.ID,
		OrderNumber: ev.Order.OrderNumber,
		Status:      ev.Order.Status,
		TotalAmount: ev.Order.TotalAmount,
		PaidAmount:  ev.Order.PaidAmount,
		DeliveryLat: ev.Order.DeliveryLat,
		DeliveryLng: ev.Order.DeliveryLng,
	}
	switch ev.Kind {
	case OrderEventCreated:
		p.Message = fmt.Sprintf("Order %s has been placed.", ev.Order.OrderNumber)
	default:
		p.PreviousStatus = ev.PreviousStatus
		p.Message = fmt.Sprintf("Order %s is now %s.", ev.Order.OrderNumber, ev.Order.Status)
	}
	return p
}

// fanoutChannels returns every channel this event goes to. The private user
// channel is only included when the order has an owning user.
func fanoutChannels(order models.Order) []string {
	channels := []string{ChannelAdminOrders, OrderChannel(order.ID)}
	if order.UserId != nil {
		channels = append(channels, UserChannel(*order.UserId))
	}
	return channels
}

// RealtimeFanoutSubscriber publishes the payload to the admin channel, the
// order channel, and (when owned) the user's private channel. Publish is a
// best-effort side effect: a transport failure is logged and the remaining
// channels still get their publish.
func RealtimeFanoutSubscriber(logger *logrus.Logger) func(ctx context.Context, ev OrderEvent) {
	return func(ctx context.Context, ev OrderEvent) {
		publisher := config.GetRealtimePublisher()
		payload := BuildOrderEventPayload(ev)
		for _, channel := range fanoutChannels(ev.Order) {
			if err := publisher.Publish(ctx, channel, string(ev.Kind), payload); err != nil {
				config.LogWarn(logger, "notificationFanout.go", "RealtimeFanoutSubscriber",
					"publish "+channel, ev.Order.ID, err)
			}
		}
	}
}
