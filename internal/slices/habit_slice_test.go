package slices

import (
	"encoding/json"
	"testing"
	"time"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/events"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/reconcile"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowChange(t *testing.T, table string, typ changefeed.EventType, row any) changefeed.Change {
	t.Helper()
	raw, err := json.Marshal(row)
	require.NoError(t, err)
	return changefeed.Change{Table: table, Type: typ, New: raw, CommitTimestamp: time.Now().UTC()}
}

func habitAndEvent(userID uuid.UUID) (*habit.Habit, *habit.Event) {
	now := time.Now().UTC()
	h := &habit.Habit{
		ID: uuid.New(), UserID: userID, Name: "Зарядка",
		GoalType: habit.GoalDaily, GoalTarget: 1, Color: "#3B82F6", IsActive: true,
		CreatedAt: now, UpdatedAt: now, Version: 1,
	}
	e := &habit.Event{
		ID: uuid.New(), HabitID: h.ID, UserID: userID,
		EventDate: habit.DateOf(now), CreatedAt: now, UpdatedAt: now,
	}
	return h, e
}

func TestHabitSlice_EventBeforeHabitIsApplied(t *testing.T) {
	userID := uuid.New()
	bus := events.New()
	defer bus.Close()
	completed := 0
	events.On(bus, func(events.HabitCompleted) { completed++ })

	s := newHabitSlice(userID, bus)
	h, e := habitAndEvent(userID)

	outcome, err := s.ApplyEventChange(rowChange(t, habit.EventsTable, changefeed.Insert, e))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Ignored, outcome)
	assert.Empty(t, s.Events())
	assert.Equal(t, 1, s.Pending())

	outcome, err = s.ApplyHabitChange(rowChange(t, habit.Table, changefeed.Insert, h))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Inserted, outcome)
	require.Len(t, s.Events(), 1)
	assert.Equal(t, e.ID, s.Events()[0].ID)
	assert.True(t, s.Completed(h.ID, e.EventDate))
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 1, completed)
}

func TestHabitSlice_LocalHabitFlushesPendingEvents(t *testing.T) {
	userID := uuid.New()
	s := newHabitSlice(userID, events.New())
	h, e := habitAndEvent(userID)

	_, err := s.ApplyEventChange(rowChange(t, habit.EventsTable, changefeed.Insert, e))
	require.NoError(t, err)

	assert.Equal(t, reconcile.Inserted, s.ApplyLocalHabit(h))
	require.Len(t, s.Events(), 1)
	assert.Equal(t, 0, s.Pending())
}

func TestHabitSlice_PendingEventsOfDeletedHabitAreDropped(t *testing.T) {
	userID := uuid.New()
	s := newHabitSlice(userID, events.New())
	h, e := habitAndEvent(userID)

	_, err := s.ApplyEventChange(rowChange(t, habit.EventsTable, changefeed.Insert, e))
	require.NoError(t, err)

	deletedAt := time.Now().UTC()
	h.DeletedAt = &deletedAt
	outcome, err := s.ApplyHabitChange(rowChange(t, habit.Table, changefeed.Update, h))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Ignored, outcome)
	assert.Empty(t, s.Habits())
	assert.Empty(t, s.Events())
	assert.Equal(t, 0, s.Pending())
}

func TestHabitSlice_LoadClearsPendingOfLoadedHabits(t *testing.T) {
	userID := uuid.New()
	s := newHabitSlice(userID, events.New())
	h, e := habitAndEvent(userID)
	_, orphan := habitAndEvent(userID)

	for _, ev := range []*habit.Event{e, orphan} {
		_, err := s.ApplyEventChange(rowChange(t, habit.EventsTable, changefeed.Insert, ev))
		require.NoError(t, err)
	}
	require.Equal(t, 2, s.Pending())

	s.Load([]*habit.Habit{h}, []*habit.Event{e})
	assert.Equal(t, 1, s.Pending())
	assert.Len(t, s.Events(), 1)
}
