// Package scheduler runs delayed, guarded automatic status transitions.
//
// Every transition is persisted before it is armed, so a restart loses
// nothing: Start sweeps the job table for anything already due and keeps
// sweeping on an interval. In-process timers give second-level precision in
// between. A job only applies if the order is still in the status it was
// scheduled from, checked and written in one conditional update, so a manual
// action taken in the meantime always wins.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/models"
	"orderflow/internal/notify"
	"orderflow/internal/statemachine"
	"orderflow/internal/store"
)

const (
	DefaultSweepInterval = 15 * time.Second
	sweepBatch           = 200
	fireTimeout          = 10 * time.Second
)

type Option func(*Scheduler)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

func WithPublisher(p notify.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithoutTimers disables in-process timers; jobs then only fire from sweeps.
func WithoutTimers() Option {
	return func(s *Scheduler) { s.timersDisabled = true }
}

type Scheduler struct {
	orders         store.OrderStore
	jobs           store.JobStore
	clock          clockwork.Clock
	publisher      notify.Publisher
	sweepInterval  time.Duration
	timersDisabled bool

	mu      sync.Mutex
	timers  map[primitive.ObjectID]*armedTimer
	stopped bool
}

type armedTimer struct {
	timer clockwork.Timer
}

func New(orders store.OrderStore, jobs store.JobStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		orders:        orders,
		jobs:          jobs,
		clock:         clockwork.NewRealClock(),
		sweepInterval: DefaultSweepInterval,
		timers:        make(map[primitive.ObjectID]*armedTimer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleGuardedTransition persists and arms an automatic from -> to
// transition for the order, firing after delay. Only automatic entries of
// the transition table may be scheduled.
func (s *Scheduler) ScheduleGuardedTransition(ctx context.Context, orderID primitive.ObjectID, from, to models.OrderStatus, delay time.Duration) error {
	t, err := statemachine.Check(from, to, models.RoleSystem, statemachine.TriggerAutomatic)
	if err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}

	now := s.clock.Now()
	job := &models.ScheduledTransition{
		OrderID:   orderID,
		From:      t.From,
		To:        t.To,
		Message:   t.Message,
		DueAt:     now.Add(delay),
		CreatedAt: now,
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save scheduled transition: %w", err)
	}

	s.arm(*job, delay)
	log.Printf("[SCHEDULER] [INFO] order %s: %s -> %s due at %s", orderID.Hex(), from, to, job.DueAt.Format(time.RFC3339))
	return nil
}

func (s *Scheduler) arm(job models.ScheduledTransition, delay time.Duration) {
	if s.timersDisabled {
		return
	}

	entry := &armedTimer{}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.timers[job.ID] = entry
	s.mu.Unlock()

	timer := s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		stopped := s.stopped
		delete(s.timers, job.ID)
		s.mu.Unlock()
		if stopped {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
		defer cancel()
		s.fire(ctx, job)
	})

	s.mu.Lock()
	entry.timer = timer
	s.mu.Unlock()
}

// Start sweeps once to recover jobs that fell due while the process was down,
// then sweeps every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Printf("[SCHEDULER] [INFO] started, sweep every %s", s.sweepInterval)
	if _, err := s.Sweep(ctx); err != nil {
		log.Println("[SCHEDULER] [ERROR] initial sweep failed:", err)
	}

	ticker := s.clock.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return nil
		case <-ticker.Chan():
			if _, err := s.Sweep(ctx); err != nil {
				log.Println("[SCHEDULER] [ERROR] sweep failed:", err)
			}
		}
	}
}

// Stop disarms every pending timer. Persisted jobs stay in the table.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for id, entry := range s.timers {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.timers, id)
	}
	log.Println("[SCHEDULER] [INFO] stopped")
}

// Pending reports how many timers are armed in this process.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Sweep runs every job that is due and returns how many were run.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	due, err := s.jobs.DueJobs(ctx, s.clock.Now(), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("load due jobs: %w", err)
	}
	for _, job := range due {
		s.fire(ctx, job)
	}
	return len(due), nil
}

// fire never returns an error: nobody is waiting on it. Store failures leave
// the job in the table for the next sweep.
func (s *Scheduler) fire(ctx context.Context, job models.ScheduledTransition) {
	orderID := job.OrderID.Hex()

	order, err := s.orders.FindOrder(ctx, job.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[SCHEDULER] [INFO] order %s gone, dropping %s -> %s", orderID, job.From, job.To)
		s.done(ctx, job)
		return
	}
	if err != nil {
		log.Printf("[SCHEDULER] [ERROR] order %s: read failed, will retry: %v", orderID, err)
		return
	}

	if order.Status != job.From {
		log.Printf("[SCHEDULER] [INFO] order %s moved to %s, skipping %s -> %s", orderID, order.Status, job.From, job.To)
		s.done(ctx, job)
		return
	}

	change := statemachine.ChangeFor(order, job.To, job.Message, s.clock.Now())
	applied, err := s.orders.UpdateOrderIf(ctx, job.OrderID, store.Guard{Status: job.From}, change)
	if err != nil {
		log.Printf("[SCHEDULER] [ERROR] order %s: write failed, will retry: %v", orderID, err)
		return
	}
	s.done(ctx, job)
	if !applied {
		log.Printf("[SCHEDULER] [INFO] order %s changed concurrently, skipping %s -> %s", orderID, job.From, job.To)
		return
	}

	change.ApplyTo(order)
	log.Printf("[SCHEDULER] [INFO] order %s: %s -> %s", orderID, job.From, job.To)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, notify.NewEvent(order, string(models.RoleSystem))); err != nil {
			log.Printf("[SCHEDULER] [ERROR] order %s: publish failed: %v", orderID, err)
		}
	}
}

func (s *Scheduler) done(ctx context.Context, job models.ScheduledTransition) {
	if err := s.jobs.DeleteJob(ctx, job.ID); err != nil {
		log.Printf("[SCHEDULER] [ERROR] job %s: delete failed: %v", job.ID.Hex(), err)
	}
}
