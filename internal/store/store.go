// Package store persists orders, restaurant snapshots and pending scheduled
// transitions.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/models"
)

var ErrNotFound = errors.New("store: not found")

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100

	// MaxPage keeps (page-1)*limit far from int64 overflow.
	MaxPage = 1_000_000
)

// Guard is the state an order must still be in for a conditional update to
// apply. An empty PaymentStatus matches any payment status.
type Guard struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
}

// Change is applied atomically when the guard matches. Zero fields are left
// untouched. Entry is pushed onto the status history.
type Change struct {
	Status        models.OrderStatus
	Entry         *models.HistoryEntry
	PaymentStatus models.PaymentStatus
	Courier       *models.Courier
	UpdatedAt     time.Time
}

// ApplyTo mutates o the way the store applies the change.
func (c Change) ApplyTo(o *models.Order) {
	if c.Status != "" {
		o.Status = c.Status
	}
	if c.PaymentStatus != "" {
		o.PaymentStatus = c.PaymentStatus
	}
	if c.Courier != nil {
		courier := *c.Courier
		o.Courier = &courier
	}
	if c.Entry != nil {
		o.StatusHistory = append(o.StatusHistory, *c.Entry)
	}
	o.UpdatedAt = c.UpdatedAt
}

// ListFilter selects orders for a list view. Nil ids mean "any".
type ListFilter struct {
	CustomerID   *primitive.ObjectID
	RestaurantID *primitive.ObjectID
	Page         int64
	Limit        int64
}

// Normalize clamps paging to sane values.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	return f
}

// Offset is the number of orders skipped before the page starts. Call it on a
// normalized filter.
func (f ListFilter) Offset() int64 {
	return (f.Page - 1) * f.Limit
}

// Stats is the admin dashboard summary.
type Stats struct {
	Total       int64                        `json:"total"`
	ByStatus    map[models.OrderStatus]int64 `json:"byStatus"`
	PaidRevenue float64                      `json:"paidRevenue"`
}

type OrderStore interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, error)
	// UpdateOrderIf applies change only if the stored order still matches
	// guard. It reports whether the update was applied.
	UpdateOrderIf(ctx context.Context, id primitive.ObjectID, guard Guard, change Change) (bool, error)
	OrderStats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
}

type RestaurantDirectory interface {
	FindRestaurant(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error)
}

type JobStore interface {
	SaveJob(ctx context.Context, job *models.ScheduledTransition) error
	DueJobs(ctx context.Context, now time.Time, limit int64) ([]models.ScheduledTransition, error)
	DeleteJob(ctx context.Context, id primitive.ObjectID) error
}
