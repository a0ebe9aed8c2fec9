// Package notify fans order status changes out to dashboards, tracking
// screens and customers.
package notify

import (
	"context"
	"time"

	"orderflow/internal/models"
)

// StatusEvent is published after every successful status or payment change.
type StatusEvent struct {
	OrderID       string               `json:"orderId"`
	CustomerID    string               `json:"customerId"`
	RestaurantID  string               `json:"restaurantId"`
	CustomerEmail string               `json:"-"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Message       string               `json:"message"`
	Time          time.Time            `json:"time"`
	Source        string               `json:"source"`
	Total         float64              `json:"total"`
}

// NewEvent describes the order as it is now.
func NewEvent(order *models.Order, source string) StatusEvent {
	event := StatusEvent{
		OrderID:       order.ID.Hex(),
		CustomerID:    order.CustomerID.Hex(),
		RestaurantID:  order.RestaurantID.Hex(),
		CustomerEmail: order.CustomerEmail,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Time:          order.UpdatedAt,
		Source:        source,
		Total:         order.Total,
	}
	if last, ok := order.LastEntry(); ok {
		event.Message = last.Message
		if event.Time.IsZero() {
			event.Time = last.Time
		}
	}
	return event
}

type Publisher interface {
	Publish(ctx context.Context, event StatusEvent) error
}

// Subscriber streams events for one order until cancel is called.
type Subscriber interface {
	Subscribe(ctx context.Context, orderID string) (events <-chan StatusEvent, cancel func(), err error)
}

func channelFor(orderID string) string {
	return "order:" + orderID
}
