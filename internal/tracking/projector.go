// Package tracking turns an order's status history into the customer-facing
// progress view.
package tracking

import (
	"time"

	"orderflow/internal/models"
)

const (
	StepDone    = "done"
	StepActive  = "active"
	StepPending = "pending"

	NotAvailable = "N/A"

	// MaxInFlightFraction keeps the simulated courier short of the door until
	// the order is actually marked delivered.
	MaxInFlightFraction = 0.95
)

// Steps is the customer-visible progression. Cancelled is not a step.
var Steps = []models.OrderStatus{
	models.StatusPlaced,
	models.StatusConfirmed,
	models.StatusPreparing,
	models.StatusOutForDelivery,
	models.StatusDelivered,
}

type Step struct {
	Status models.OrderStatus `json:"status"`
	State  string             `json:"state"`
	Time   *time.Time         `json:"time,omitempty"`
}

type View struct {
	OrderID       string               `json:"orderId"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	CurrentStep   int                  `json:"currentStep"`
	Steps         []Step               `json:"steps"`
	Cancelled     bool                 `json:"cancelled"`
	ETA           *time.Time           `json:"eta,omitempty"`
	ETALabel      string               `json:"etaLabel"`
	Courier       *models.Courier      `json:"courier,omitempty"`
	CourierPos    *models.GeoPoint     `json:"courierPosition,omitempty"`
	Progress      float64              `json:"progress"`
	Restaurant    models.GeoPoint      `json:"restaurant"`
	Destination   models.GeoPoint      `json:"destination"`
	LastMessage   string               `json:"lastMessage"`
	EvaluatedAt   time.Time            `json:"evaluatedAt"`
}

// Project computes the tracking view of order at now. travelTime is how long
// the simulated courier takes from restaurant to customer. The result depends
// only on its arguments.
func Project(order *models.Order, now time.Time, travelTime time.Duration) View {
	view := View{
		OrderID:       order.ID.Hex(),
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Cancelled:     order.Status == models.StatusCancelled,
		Restaurant:    order.RestaurantLocation,
		Destination:   order.DeliveryAddress.Location,
		EvaluatedAt:   now,
		Steps:         make([]Step, len(Steps)),
	}
	if last, ok := order.LastEntry(); ok {
		view.LastMessage = last.Message
	}

	view.CurrentStep = currentStep(order)
	for i, status := range Steps {
		step := Step{Status: status, State: stepState(i, view.CurrentStep, order.Status)}
		if at, ok := order.EnteredAt(status); ok {
			at := at
			step.Time = &at
		}
		view.Steps[i] = step
	}

	if order.Status.Terminal() {
		view.ETALabel = NotAvailable
	} else {
		eta := order.EstimatedDeliveryAt
		view.ETA = &eta
		view.ETALabel = eta.Format(time.RFC3339)
	}

	switch order.Status {
	case models.StatusOutForDelivery:
		view.Courier = order.Courier
		view.Progress = inFlightFraction(order, now, travelTime)
		pos := interpolate(order.RestaurantLocation, order.DeliveryAddress.Location, view.Progress)
		view.CourierPos = &pos
	case models.StatusDelivered:
		view.Courier = order.Courier
		view.Progress = 1
		pos := order.DeliveryAddress.Location
		view.CourierPos = &pos
	}
	return view
}

// currentStep is the index of the furthest customer-visible step reached.
// For a cancelled order that is the last step it reached before cancelling.
func currentStep(order *models.Order) int {
	idx := 0
	for _, entry := range order.StatusHistory {
		for i, status := range Steps {
			if entry.Status == status && i > idx {
				idx = i
			}
		}
	}
	return idx
}

func stepState(i, current int, status models.OrderStatus) string {
	switch {
	case i < current:
		return StepDone
	case i > current:
		return StepPending
	case status == models.StatusDelivered:
		return StepDone
	case status == models.StatusCancelled:
		return StepDone
	default:
		return StepActive
	}
}

func inFlightFraction(order *models.Order, now time.Time, travelTime time.Duration) float64 {
	started, ok := order.EnteredAt(models.StatusOutForDelivery)
	if !ok || travelTime <= 0 {
		return 0
	}
	elapsed := now.Sub(started)
	if elapsed <= 0 {
		return 0
	}
	fraction := float64(elapsed) / float64(travelTime)
	if fraction > MaxInFlightFraction {
		fraction = MaxInFlightFraction
	}
	return fraction
}

func interpolate(from, to models.GeoPoint, fraction float64) models.GeoPoint {
	return models.GeoPoint{
		Lat: from.Lat + (to.Lat-from.Lat)*fraction,
		Lng: from.Lng + (to.Lng-from.Lng)*fraction,
	}
}
