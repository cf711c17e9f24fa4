package events_test

import (
	"sync"
	"testing"

	"habitTracker/internal/events"
	"habitTracker/internal/models/task"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTask() *task.Task {
	return &task.Task{ID: uuid.New(), UserID: uuid.New(), Title: "Write report", Status: task.StatusPending}
}

func TestBus_FanOutToAllListeners(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	var first, second []events.Event
	bus.Subscribe(events.TypeTaskCreated, func(e events.Event) { first = append(first, e) })
	bus.Subscribe(events.TypeTaskCreated, func(e events.Event) { second = append(second, e) })

	created := events.NewTaskCreated(sampleTask())
	bus.Emit(created)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, created, first[0])
	assert.Equal(t, created, second[0])
}

func TestBus_PanickingListenerDoesNotBlockOthers(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	calls := 0
	bus.Subscribe(events.TypeTaskCreated, func(events.Event) { panic("boom") })
	bus.Subscribe(events.TypeTaskCreated, func(events.Event) { calls++ })

	assert.NotPanics(t, func() {
		bus.Emit(events.NewTaskCreated(sampleTask()))
	})
	assert.Equal(t, 1, calls)
}

func TestBus_UnsubscribeRemovesOnlyThatListener(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	removedCalls, keptCalls := 0, 0
	removed := bus.Subscribe(events.TypeHabitCompleted, func(events.Event) { removedCalls++ })
	bus.Subscribe(events.TypeHabitCompleted, func(events.Event) { keptCalls++ })
	require.Equal(t, 2, bus.ListenerCount(events.TypeHabitCompleted))

	bus.Unsubscribe(removed)
	assert.Equal(t, 1, bus.ListenerCount(events.TypeHabitCompleted))

	// повторная отписка ничего не меняет
	removed.Close()
	assert.Equal(t, 1, bus.ListenerCount(events.TypeHabitCompleted))

	bus.Emit(events.HabitCompleted{Meta: events.Meta{UserID: uuid.New()}, HabitID: uuid.New()})
	assert.Equal(t, 0, removedCalls)
	assert.Equal(t, 1, keptCalls)
}

func TestBus_SubscriptionIDsAreUnique(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		sub := bus.Subscribe(events.TypeTaskUpdated, func(events.Event) {})
		assert.False(t, seen[sub.ID], sub.ID)
		assert.Equal(t, events.TypeTaskUpdated, sub.Type)
		seen[sub.ID] = true
	}
	assert.Equal(t, "sub_1", events.New().Subscribe(events.TypeTaskUpdated, func(events.Event) {}).ID)
}

func TestBus_EmitWithoutListenersIsDropped(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	assert.NotPanics(t, func() {
		bus.Emit(events.NewAnalyticsRefreshNeeded(uuid.New(), events.TriggerManual))
	})
	assert.Empty(t, bus.ActiveTypes())
}

func TestBus_TypedSubscription(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	tk := sampleTask()
	var got events.TaskStatusChanged
	events.On(bus, func(e events.TaskStatusChanged) { got = e })

	tk.Status = task.StatusCompleted
	bus.Emit(events.NewTaskStatusChanged(tk, task.StatusPending))

	assert.Equal(t, tk.ID, got.TaskID)
	assert.Equal(t, task.StatusPending, got.OldStatus)
	assert.Equal(t, task.StatusCompleted, got.NewStatus)
	assert.Equal(t, tk.UserID, got.Owner())
}

func TestBus_DebugInfoAndClearAll(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	bus.Subscribe(events.TypeTaskCreated, func(events.Event) {})
	bus.Subscribe(events.TypeTaskCreated, func(events.Event) {})
	bus.Subscribe(events.TypeAnalyticsDataUpdated, func(events.Event) {})

	assert.Equal(t, map[events.Type]int{
		events.TypeTaskCreated:          2,
		events.TypeAnalyticsDataUpdated: 1,
	}, bus.DebugInfo())
	assert.Equal(t, []events.Type{events.TypeAnalyticsDataUpdated, events.TypeTaskCreated}, bus.ActiveTypes())

	bus.ClearAll()
	assert.Empty(t, bus.DebugInfo())
	assert.Equal(t, 0, bus.ListenerCount(events.TypeTaskCreated))
}

func TestBus_ClosedBusIgnoresEverything(t *testing.T) {
	bus := events.New()
	calls := 0
	bus.Subscribe(events.TypeTaskDeleted, func(events.Event) { calls++ })
	bus.Close()

	sub := bus.Subscribe(events.TypeTaskDeleted, func(events.Event) { calls++ })
	bus.Emit(events.NewTaskDeleted(sampleTask()))
	sub.Close()

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, bus.ListenerCount(events.TypeTaskDeleted))
}

func TestBus_ConcurrentSubscribeAndEmit(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(events.TypeTaskCreated, func(events.Event) {})
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			bus.Emit(events.NewTaskCreated(sampleTask()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.ListenerCount(events.TypeTaskCreated))
}

func TestType_Valid(t *testing.T) {
	for _, typ := range events.Types {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, events.Type("TASK_ARCHIVED").Valid())
}
