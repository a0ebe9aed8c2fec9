// Package statemachine holds the order status transition table.
package statemachine

import (
	"errors"
	"fmt"

	"orderflow/internal/models"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// Trigger is what causes a transition.
type Trigger string

const (
	TriggerAutomatic Trigger = "automatic"
	TriggerManual    Trigger = "manual"
	TriggerPayment   Trigger = "payment"
)

// Transition is one legal status change for one role.
type Transition struct {
	From    models.OrderStatus `json:"from"`
	To      models.OrderStatus `json:"to"`
	Role    models.Role        `json:"role"`
	Trigger Trigger            `json:"trigger"`
	Message string             `json:"message"`
}

var transitions = []Transition{
	// timers
	{From: models.StatusPlaced, To: models.StatusConfirmed, Role: models.RoleSystem, Trigger: TriggerAutomatic, Message: "Restaurant confirmed your order"},
	{From: models.StatusConfirmed, To: models.StatusPreparing, Role: models.RoleSystem, Trigger: TriggerAutomatic, Message: "Your food is being prepared"},
	{From: models.StatusOutForDelivery, To: models.StatusDelivered, Role: models.RoleSystem, Trigger: TriggerAutomatic, Message: "Order delivered (auto-completed)"},

	// restaurant
	{From: models.StatusPlaced, To: models.StatusConfirmed, Role: models.RoleRestaurant, Trigger: TriggerPayment, Message: "Payment confirmed by restaurant"},
	{From: models.StatusConfirmed, To: models.StatusPreparing, Role: models.RoleRestaurant, Trigger: TriggerManual, Message: "Your food is being prepared"},
	{From: models.StatusPreparing, To: models.StatusOutForDelivery, Role: models.RoleRestaurant, Trigger: TriggerManual, Message: "Your order is out for delivery"},
	{From: models.StatusOutForDelivery, To: models.StatusDelivered, Role: models.RoleRestaurant, Trigger: TriggerManual, Message: "Order delivered"},

	// admin
	{From: models.StatusPlaced, To: models.StatusCancelled, Role: models.RoleAdmin, Trigger: TriggerManual, Message: "Order cancelled by admin"},
	{From: models.StatusConfirmed, To: models.StatusCancelled, Role: models.RoleAdmin, Trigger: TriggerManual, Message: "Order cancelled by admin"},
	{From: models.StatusPreparing, To: models.StatusCancelled, Role: models.RoleAdmin, Trigger: TriggerManual, Message: "Order cancelled by admin"},
	{From: models.StatusPreparing, To: models.StatusOutForDelivery, Role: models.RoleAdmin, Trigger: TriggerManual, Message: "Your order is out for delivery"},
	{From: models.StatusOutForDelivery, To: models.StatusDelivered, Role: models.RoleAdmin, Trigger: TriggerManual, Message: "Order delivered"},
}

type transitionKey struct {
	From    models.OrderStatus
	To      models.OrderStatus
	Role    models.Role
	Trigger Trigger
}

var transitionMap = func() map[transitionKey]Transition {
	m := make(map[transitionKey]Transition, len(transitions))
	for _, t := range transitions {
		if t.To.Rank() <= t.From.Rank() {
			panic(fmt.Sprintf("statemachine: backward transition %s -> %s", t.From, t.To))
		}
		m[transitionKey{t.From, t.To, t.Role, t.Trigger}] = t
	}
	return m
}()

// TransitionError reports a transition absent from the table.
type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
	Role models.Role
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %q -> %q for role %s", e.From, e.To, e.Role)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Lookup returns the table entry for the transition, if any.
func Lookup(from, to models.OrderStatus, role models.Role, trigger Trigger) (Transition, bool) {
	t, ok := transitionMap[transitionKey{from, to, role, trigger}]
	return t, ok
}

// Check is Lookup returning a *TransitionError when the transition is absent.
func Check(from, to models.OrderStatus, role models.Role, trigger Trigger) (Transition, error) {
	t, ok := Lookup(from, to, role, trigger)
	if !ok {
		return Transition{}, &TransitionError{From: from, To: to, Role: role}
	}
	return t, nil
}

// Allowed lists the statuses role may manually move an order to from status.
func Allowed(from models.OrderStatus, role models.Role) []models.OrderStatus {
	nexts := make([]models.OrderStatus, 0, 2)
	for _, t := range transitions {
		if t.From == from && t.Role == role && t.Trigger == TriggerManual {
			nexts = append(nexts, t.To)
		}
	}
	return nexts
}

// All returns a copy of the full table.
func All() []Transition {
	return append([]Transition(nil), transitions...)
}
