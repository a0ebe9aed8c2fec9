// Package lifecycle is the order lifecycle facade: placing orders, manual
// status changes, payment confirmation and the read views built on them.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/models"
	"orderflow/internal/notify"
	"orderflow/internal/statemachine"
	"orderflow/internal/store"
	"orderflow/internal/tracking"
)

// maxWriteAttempts bounds how often a conditional write is retried after
// losing a race with another writer.
const maxWriteAttempts = 3

type Config struct {
	ConfirmDelay  time.Duration
	PrepareDelay  time.Duration
	DeliveryDelay time.Duration
	ETAWindow     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConfirmDelay:  time.Minute,
		PrepareDelay:  5 * time.Minute,
		DeliveryDelay: 30 * time.Minute,
		ETAWindow:     45 * time.Minute,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.ConfirmDelay <= 0 {
		c.ConfirmDelay = def.ConfirmDelay
	}
	if c.PrepareDelay <= c.ConfirmDelay {
		// preparing is guarded on Confirmed, so it must fall due after it
		c.PrepareDelay = c.ConfirmDelay + def.PrepareDelay
	}
	if c.DeliveryDelay <= 0 {
		c.DeliveryDelay = def.DeliveryDelay
	}
	if c.ETAWindow <= 0 {
		c.ETAWindow = def.ETAWindow
	}
	return c
}

// TransitionScheduler arms delayed automatic transitions.
type TransitionScheduler interface {
	ScheduleGuardedTransition(ctx context.Context, orderID primitive.ObjectID, from, to models.OrderStatus, delay time.Duration) error
}

type Service struct {
	orders      store.OrderStore
	restaurants store.RestaurantDirectory
	scheduler   TransitionScheduler
	publisher   notify.Publisher
	clock       clockwork.Clock
	cfg         Config
}

// NewService wires the facade. publisher may be nil; a nil clock means the
// wall clock.
func NewService(orders store.OrderStore, restaurants store.RestaurantDirectory, scheduler TransitionScheduler, publisher notify.Publisher, clock clockwork.Clock, cfg Config) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		orders:      orders,
		restaurants: restaurants,
		scheduler:   scheduler,
		publisher:   publisher,
		clock:       clock,
		cfg:         cfg.normalize(),
	}
}

func (s *Service) Config() Config {
	return s.cfg
}

type PlaceOrderInput struct {
	RestaurantID    primitive.ObjectID
	Items           []models.OrderItem
	Subtotal        float64
	DeliveryFee     float64
	Tax             float64
	Total           float64
	DeliveryAddress models.DeliveryAddress
	PaymentMethod   models.PaymentMethod
	UpiID           string
}

func (in PlaceOrderInput) validate() error {
	if in.RestaurantID.IsZero() {
		return invalid("restaurantId", "required")
	}
	if len(in.Items) == 0 {
		return invalid("items", "at least one item is required")
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return invalid("items", "quantity must be greater than zero")
		}
		if item.Price < 0 {
			return invalid("items", "price must not be negative")
		}
	}
	if in.Subtotal < 0 || in.DeliveryFee < 0 || in.Tax < 0 || in.Total < 0 {
		return invalid("total", "amounts must not be negative")
	}
	if !in.PaymentMethod.Valid() {
		return invalid("paymentMethod", "must be one of cod, card, upi")
	}
	if in.PaymentMethod == models.PaymentUPI && strings.TrimSpace(in.UpiID) == "" {
		return invalid("upiId", "required for upi payments")
	}
	return nil
}

// Page selects a page of a list view. Zero values mean the defaults.
type Page struct {
	Page  int64
	Limit int64
}

// PlaceOrder creates a Placed order for the calling customer and schedules
// its automatic confirmation and preparation.
func (s *Service) PlaceOrder(ctx context.Context, actor models.Actor, in PlaceOrderInput) (*models.Order, error) {
	if actor.Role != models.RoleCustomer || actor.UserID.IsZero() {
		return nil, ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	restaurant, err := s.restaurants.FindRestaurant(ctx, in.RestaurantID)
	if err != nil {
		return nil, storeErr("find restaurant", err)
	}
	if !restaurant.IsActive {
		return nil, fmt.Errorf("restaurant %s is not accepting orders: %w", in.RestaurantID.Hex(), ErrNotFound)
	}

	now := s.clock.Now()
	order := &models.Order{
		ID:                 primitive.NewObjectID(),
		CustomerID:         actor.UserID,
		CustomerEmail:      actor.Email,
		RestaurantID:       restaurant.ID,
		RestaurantName:     restaurant.Name,
		RestaurantLocation: restaurant.Location,
		Items:              append([]models.OrderItem(nil), in.Items...),
		Subtotal:           in.Subtotal,
		DeliveryFee:        in.DeliveryFee,
		Tax:                in.Tax,
		Total:              in.Total,
		DeliveryAddress:    in.DeliveryAddress,
		PaymentMethod:      in.PaymentMethod,
		PaymentStatus:      models.PaymentUnpaid,
		Status:             models.StatusPlaced,
		StatusHistory: []models.HistoryEntry{
			{Status: models.StatusPlaced, Time: now, Message: "Order placed"},
		},
		EstimatedDeliveryAt: now.Add(s.cfg.ETAWindow),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if in.PaymentMethod == models.PaymentUPI {
		order.UpiID = strings.TrimSpace(in.UpiID)
	}

	if err := s.orders.InsertOrder(ctx, order); err != nil {
		return nil, storeErr("insert order", err)
	}
	log.Printf("[ORDER] [INFO] order %s placed by customer %s at restaurant %s", order.ID.Hex(), actor.UserID.Hex(), restaurant.ID.Hex())

	s.schedule(ctx, order.ID, models.StatusPlaced, models.StatusConfirmed, s.cfg.ConfirmDelay)
	s.schedule(ctx, order.ID, models.StatusConfirmed, models.StatusPreparing, s.cfg.PrepareDelay)
	s.publish(ctx, order, actor.Role)
	return order, nil
}

// GetOrder returns the order to its customer, its restaurant or an admin.
func (s *Service) GetOrder(ctx context.Context, id primitive.ObjectID, actor models.Actor) (*models.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !actor.OwnsOrder(order) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *Service) ListOrdersForCustomer(ctx context.Context, actor models.Actor, page Page) ([]models.Order, error) {
	if actor.Role != models.RoleCustomer || actor.UserID.IsZero() {
		return nil, ErrForbidden
	}
	customerID := actor.UserID
	return s.list(ctx, store.ListFilter{CustomerID: &customerID, Page: page.Page, Limit: page.Limit})
}

func (s *Service) ListOrdersForRestaurant(ctx context.Context, actor models.Actor, page Page) ([]models.Order, error) {
	if actor.Role != models.RoleRestaurant || actor.RestaurantID.IsZero() {
		return nil, ErrForbidden
	}
	restaurantID := actor.RestaurantID
	return s.list(ctx, store.ListFilter{RestaurantID: &restaurantID, Page: page.Page, Limit: page.Limit})
}

func (s *Service) ListAllOrders(ctx context.Context, actor models.Actor, page Page) ([]models.Order, error) {
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.list(ctx, store.ListFilter{Page: page.Page, Limit: page.Limit})
}

func (s *Service) list(ctx context.Context, filter store.ListFilter) ([]models.Order, error) {
	orders, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// ConfirmPayment records the restaurant's acknowledgement of a card or UPI
// payment. A Placed order is confirmed in the same write; an order already
// past Placed keeps its status and only becomes paid.
func (s *Service) ConfirmPayment(ctx context.Context, id primitive.ObjectID, actor models.Actor) (*models.Order, error) {
	if actor.Role != models.RoleRestaurant {
		return nil, ErrForbidden
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		order, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !actor.OwnsOrder(order) {
			return nil, ErrForbidden
		}
		if order.PaymentStatus == models.PaymentPaid {
			return nil, fmt.Errorf("payment already confirmed: %w", ErrConflict)
		}
		if order.PaymentMethod == models.PaymentCOD {
			return nil, fmt.Errorf("cash on delivery is settled at delivery: %w", ErrInvalidTransition)
		}
		if order.Status == models.StatusCancelled {
			return nil, &TransitionError{From: order.Status, To: models.StatusConfirmed, Role: actor.Role}
		}

		now := s.clock.Now()
		change := store.Change{PaymentStatus: models.PaymentPaid, UpdatedAt: now}
		if order.Status == models.StatusPlaced {
			t, err := statemachine.Check(models.StatusPlaced, models.StatusConfirmed, actor.Role, statemachine.TriggerPayment)
			if err != nil {
				return nil, err
			}
			change = statemachine.ChangeFor(order, t.To, t.Message, now)
			change.PaymentStatus = models.PaymentPaid
		}

		guard := store.Guard{Status: order.Status, PaymentStatus: models.PaymentUnpaid}
		applied, err := s.orders.UpdateOrderIf(ctx, id, guard, change)
		if err != nil {
			return nil, storeErr("confirm payment", err)
		}
		if !applied {
			continue
		}

		change.ApplyTo(order)
		log.Printf("[ORDER] [INFO] order %s payment confirmed by restaurant %s (status %s)", id.Hex(), actor.RestaurantID.Hex(), order.Status)
		s.publish(ctx, order, actor.Role)
		return order, nil
	}
	return nil, fmt.Errorf("order %s changed concurrently: %w", id.Hex(), ErrConflict)
}

// UpdateStatus applies a manual transition for a restaurant or an admin.
// message replaces the table's canned message when set.
func (s *Service) UpdateStatus(ctx context.Context, id primitive.ObjectID, actor models.Actor, requested models.OrderStatus, message string) (*models.Order, error) {
	if actor.Role != models.RoleRestaurant && actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if !requested.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", requested))
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		order, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if actor.Role == models.RoleRestaurant && !actor.OwnsOrder(order) {
			return nil, ErrForbidden
		}

		t, err := statemachine.Check(order.Status, requested, actor.Role, statemachine.TriggerManual)
		if err != nil {
			return nil, err
		}
		msg := strings.TrimSpace(message)
		if msg == "" {
			msg = t.Message
		}

		from := order.Status
		change := statemachine.ChangeFor(order, requested, msg, s.clock.Now())
		applied, err := s.orders.UpdateOrderIf(ctx, id, store.Guard{Status: from}, change)
		if err != nil {
			return nil, storeErr("update status", err)
		}
		if !applied {
			continue
		}

		change.ApplyTo(order)
		log.Printf("[ORDER] [INFO] order %s: %s -> %s by %s", id.Hex(), from, requested, actor.Role)

		if requested == models.StatusOutForDelivery {
			s.schedule(ctx, id, models.StatusOutForDelivery, models.StatusDelivered, s.cfg.DeliveryDelay)
		}
		s.publish(ctx, order, actor.Role)
		return order, nil
	}
	return nil, fmt.Errorf("order %s changed concurrently: %w", id.Hex(), ErrConflict)
}

// Stats summarises every order for the admin dashboard.
func (s *Service) Stats(ctx context.Context, actor models.Actor) (store.Stats, error) {
	if actor.Role != models.RoleAdmin {
		return store.Stats{}, ErrForbidden
	}
	stats, err := s.orders.OrderStats(ctx)
	if err != nil {
		return store.Stats{}, storeErr("order stats", err)
	}
	return stats, nil
}

// Track projects the order for the customer tracking screen.
func (s *Service) Track(ctx context.Context, id primitive.ObjectID, actor models.Actor) (tracking.View, error) {
	order, err := s.GetOrder(ctx, id, actor)
	if err != nil {
		return tracking.View{}, err
	}
	return tracking.Project(order, s.clock.Now(), s.cfg.DeliveryDelay), nil
}

// Ping reports whether the order store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.orders.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	order, err := s.orders.FindOrder(ctx, id)
	if err != nil {
		return nil, storeErr("find order", err)
	}
	return order, nil
}

// schedule never fails the caller: the order is already stored and can still
// be moved on by hand.
func (s *Service) schedule(ctx context.Context, id primitive.ObjectID, from, to models.OrderStatus, delay time.Duration) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleGuardedTransition(ctx, id, from, to, delay); err != nil {
		log.Printf("[ORDER] [ERROR] order %s: scheduling %s -> %s failed: %v", id.Hex(), from, to, err)
	}
}

func (s *Service) publish(ctx context.Context, order *models.Order, source models.Role) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, notify.NewEvent(order, string(source))); err != nil {
		log.Printf("[ORDER] [ERROR] order %s: publish failed: %v", order.ID.Hex(), err)
	}
}
