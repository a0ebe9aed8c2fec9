package statemachine

import (
	"time"

	"github.com/google/uuid"

	"orderflow/internal/models"
	"orderflow/internal/store"
)

var couriers = []string{"Arjun", "Meera", "Kabir", "Ananya", "Rohan", "Isha", "Vikram", "Sara"}

// ChangeFor builds the store change that moves order to status `to` at now.
// Going out for delivery assigns a courier at the restaurant; delivery puts
// the courier at the customer's door and settles cash orders.
func ChangeFor(order *models.Order, to models.OrderStatus, message string, now time.Time) store.Change {
	// history time never goes backwards, even if clocks disagree across instances
	if last, ok := order.LastEntry(); ok && now.Before(last.Time) {
		now = last.Time
	}

	change := store.Change{
		Status:    to,
		Entry:     &models.HistoryEntry{Status: to, Time: now, Message: message},
		UpdatedAt: now,
	}

	switch to {
	case models.StatusOutForDelivery:
		change.Courier = newCourier(order.RestaurantLocation)
	case models.StatusDelivered:
		courier := newCourier(order.DeliveryAddress.Location)
		if order.Courier != nil {
			c := *order.Courier
			c.Location = order.DeliveryAddress.Location
			courier = &c
		}
		change.Courier = courier
		if order.PaymentMethod == models.PaymentCOD && order.PaymentStatus != models.PaymentPaid {
			change.PaymentStatus = models.PaymentPaid
		}
	}
	return change
}

func newCourier(at models.GeoPoint) *models.Courier {
	id := uuid.New()
	return &models.Courier{
		ID:       id.String(),
		Name:     couriers[int(id[0])%len(couriers)],
		Location: at,
	}
}
