package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/models"
)

// MemoryStore is an in-process store used by tests and local runs without
// MongoDB. Every method copies documents in and out so callers never share
// slices with the stored state.
type MemoryStore struct {
	mu          sync.RWMutex
	orders      map[primitive.ObjectID]models.Order
	restaurants map[primitive.ObjectID]models.Restaurant
	jobs        map[primitive.ObjectID]models.ScheduledTransition
	unavailable error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[primitive.ObjectID]models.Order),
		restaurants: make(map[primitive.ObjectID]models.Restaurant),
		jobs:        make(map[primitive.ObjectID]models.ScheduledTransition),
	}
}

// SetUnavailable makes every call fail with err until it is reset with nil.
func (s *MemoryStore) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = err
}

func (s *MemoryStore) fail() error {
	return s.unavailable
}

// PutRestaurant seeds the restaurant directory.
func (s *MemoryStore) PutRestaurant(r models.Restaurant) models.Restaurant {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	s.restaurants[r.ID] = r
	return r
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fail()
}

func (s *MemoryStore) InsertOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(); err != nil {
		return err
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	s.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (s *MemoryStore) FindOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail(); err != nil {
		return nil, err
	}
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	matched := make([]models.Order, 0)
	for _, order := range s.orders {
		if filter.CustomerID != nil && order.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.RestaurantID != nil && order.RestaurantID != *filter.RestaurantID {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.Hex() > matched[j].ID.Hex()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := filter.Offset()
	if start < 0 || start >= int64(len(matched)) {
		return []models.Order{}, nil
	}
	end := start + filter.Limit
	if end > int64(len(matched)) {
		end = int64(len(matched))
	}
	return matched[start:end], nil
}

func (s *MemoryStore) UpdateOrderIf(ctx context.Context, id primitive.ObjectID, guard Guard, change Change) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(); err != nil {
		return false, err
	}
	order, ok := s.orders[id]
	if !ok || order.Status != guard.Status {
		return false, nil
	}
	if guard.PaymentStatus != "" && order.PaymentStatus != guard.PaymentStatus {
		return false, nil
	}

	order = cloneOrder(order)
	change.ApplyTo(&order)
	s.orders[id] = order
	return true, nil
}

func (s *MemoryStore) OrderStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail(); err != nil {
		return Stats{}, err
	}
	stats := Stats{ByStatus: make(map[models.OrderStatus]int64)}
	for _, order := range s.orders {
		stats.Total++
		stats.ByStatus[order.Status]++
		if order.PaymentStatus == models.PaymentPaid {
			stats.PaidRevenue += order.Total
		}
	}
	return stats, nil
}

func (s *MemoryStore) FindRestaurant(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail(); err != nil {
		return nil, err
	}
	r, ok := s.restaurants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) SaveJob(ctx context.Context, job *models.ScheduledTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(); err != nil {
		return err
	}
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) DueJobs(ctx context.Context, now time.Time, limit int64) ([]models.ScheduledTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail(); err != nil {
		return nil, err
	}
	due := make([]models.ScheduledTransition, 0)
	for _, job := range s.jobs {
		if !job.DueAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if limit > 0 && int64(len(due)) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) DeleteJob(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail(); err != nil {
		return err
	}
	delete(s.jobs, id)
	return nil
}

// PendingJobs returns every job still in the table.
func (s *MemoryStore) PendingJobs() []models.ScheduledTransition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]models.ScheduledTransition, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].DueAt.Before(jobs[j].DueAt) })
	return jobs
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	o.StatusHistory = append([]models.HistoryEntry(nil), o.StatusHistory...)
	if o.Courier != nil {
		c := *o.Courier
		o.Courier = &c
	}
	return o
}
