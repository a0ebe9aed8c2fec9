package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/models"
	"orderflow/internal/notify"
	"orderflow/internal/statemachine"
	"orderflow/internal/store"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedOrder(t *testing.T, s *store.MemoryStore, status models.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		CustomerID:    primitive.NewObjectID(),
		RestaurantID:  primitive.NewObjectID(),
		Status:        status,
		PaymentMethod: models.PaymentCOD,
		PaymentStatus: models.PaymentUnpaid,
		StatusHistory: []models.HistoryEntry{{Status: status, Time: start}},
		CreatedAt:     start,
	}
	require.NoError(t, s.InsertOrder(context.Background(), order))
	return order
}

func status(t *testing.T, s *store.MemoryStore, id primitive.ObjectID) models.OrderStatus {
	t.Helper()
	order, err := s.FindOrder(context.Background(), id)
	require.NoError(t, err)
	return order.Status
}

func TestSweepAppliesDueTransition(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(start)
	broker := notify.NewBroker()
	sched := New(mem, mem, WithClock(clock), WithPublisher(broker), WithoutTimers())

	order := seedOrder(t, mem, models.StatusPlaced)
	events, cancel, err := broker.Subscribe(ctx, order.ID.Hex())
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, sched.ScheduleGuardedTransition(ctx, order.ID, models.StatusPlaced, models.StatusConfirmed, time.Minute))
	require.Len(t, mem.PendingJobs(), 1)

	n, err := sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is due yet")
	assert.Equal(t, models.StatusPlaced, status(t, mem, order.ID))

	clock.Advance(time.Minute)
	n, err = sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := mem.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	require.Len(t, stored.StatusHistory, 2)
	assert.Equal(t, "Restaurant confirmed your order", stored.StatusHistory[1].Message)
	assert.Empty(t, mem.PendingJobs())

	select {
	case event := <-events:
		assert.Equal(t, models.StatusConfirmed, event.Status)
		assert.Equal(t, "system", event.Source)
	case <-time.After(time.Second):
		t.Fatal("expected a status event")
	}
}

func TestSweepIsNoOpWhenOrderMovedOn(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(start)
	sched := New(mem, mem, WithClock(clock), WithoutTimers())

	order := seedOrder(t, mem, models.StatusConfirmed)
	require.NoError(t, sched.ScheduleGuardedTransition(ctx, order.ID, models.StatusConfirmed, models.StatusPreparing, 5*time.Minute))

	// an admin cancels before the timer is due
	entry := models.HistoryEntry{Status: models.StatusCancelled, Time: start.Add(time.Minute)}
	applied, err := mem.UpdateOrderIf(ctx, order.ID, store.Guard{Status: models.StatusConfirmed},
		store.Change{Status: models.StatusCancelled, Entry: &entry, UpdatedAt: entry.Time})
	require.NoError(t, err)
	require.True(t, applied)

	clock.Advance(5 * time.Minute)
	_, err = sched.Sweep(ctx)
	require.NoError(t, err)

	stored, err := mem.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Len(t, stored.StatusHistory, 2)
	assert.Empty(t, mem.PendingJobs(), "a stale job is dropped")
}

func TestSweepDropsJobsForMissingOrders(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(start)
	sched := New(mem, mem, WithClock(clock), WithoutTimers())

	require.NoError(t, sched.ScheduleGuardedTransition(ctx, primitive.NewObjectID(), models.StatusPlaced, models.StatusConfirmed, 0))

	n, err := sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, mem.PendingJobs())
}

func TestSweepKeepsJobWhileStoreIsDown(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(start)
	sched := New(mem, mem, WithClock(clock), WithoutTimers())

	order := seedOrder(t, mem, models.StatusPlaced)
	require.NoError(t, sched.ScheduleGuardedTransition(ctx, order.ID, models.StatusPlaced, models.StatusConfirmed, time.Minute))
	clock.Advance(time.Minute)

	mem.SetUnavailable(errors.New("connection reset"))
	_, err := sched.Sweep(ctx)
	require.Error(t, err)

	mem.SetUnavailable(nil)
	require.Len(t, mem.PendingJobs(), 1)

	_, err = sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, status(t, mem, order.ID))
}

func TestScheduleRejectsNonAutomaticTransitions(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	sched := New(mem, mem, WithClock(clockwork.NewFakeClockAt(start)), WithoutTimers())

	err := sched.ScheduleGuardedTransition(ctx, primitive.NewObjectID(), models.StatusPreparing, models.StatusCancelled, time.Minute)
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	err = sched.ScheduleGuardedTransition(ctx, primitive.NewObjectID(), models.StatusPlaced, models.StatusPreparing, time.Minute)
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	assert.Empty(t, mem.PendingJobs())
}

func TestTimerFiresTransition(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(start)
	sched := New(mem, mem, WithClock(clock))
	defer sched.Stop()

	order := seedOrder(t, mem, models.StatusOutForDelivery)
	require.NoError(t, sched.ScheduleGuardedTransition(ctx, order.ID, models.StatusOutForDelivery, models.StatusDelivered, 30*time.Minute))
	assert.Equal(t, 1, sched.Pending())

	clock.Advance(30 * time.Minute)

	require.Eventually(t, func() bool {
		return status(t, mem, order.ID) == models.StatusDelivered
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := mem.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus, "cash is collected on delivery")
	require.Eventually(t, func() bool { return len(mem.PendingJobs()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopDisarmsTimersButKeepsJobs(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(start)
	sched := New(mem, mem, WithClock(clock))

	order := seedOrder(t, mem, models.StatusPlaced)
	require.NoError(t, sched.ScheduleGuardedTransition(ctx, order.ID, models.StatusPlaced, models.StatusConfirmed, time.Minute))

	sched.Stop()
	sched.Stop()
	assert.Zero(t, sched.Pending())

	clock.Advance(time.Minute)
	assert.Equal(t, models.StatusPlaced, status(t, mem, order.ID))
	assert.Len(t, mem.PendingJobs(), 1)
}

func TestStartRecoversJobsAfterRestart(t *testing.T) {
	mem := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(start)

	order := seedOrder(t, mem, models.StatusPlaced)
	before := New(mem, mem, WithClock(clock))
	require.NoError(t, before.ScheduleGuardedTransition(context.Background(), order.ID, models.StatusPlaced, models.StatusConfirmed, time.Minute))
	before.Stop()

	clock.Advance(10 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	after := New(mem, mem, WithClock(clock))
	done := make(chan error, 1)
	go func() { done <- after.Start(ctx) }()

	require.Eventually(t, func() bool {
		return status(t, mem, order.ID) == models.StatusConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
