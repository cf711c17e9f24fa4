package inmemory_test

import (
	"context"
	"sync"
	"testing"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/repository"
	"habitTracker/internal/repository/habit/inmemory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	changes []changefeed.Change
}

func (r *recorder) Publish(_ context.Context, c changefeed.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recorder) types() []changefeed.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]changefeed.EventType, 0, len(r.changes))
	for _, c := range r.changes {
		res = append(res, c.Type)
	}
	return res
}

func createHabit(t *testing.T, storage *inmemory.HabitStorage, userID uuid.UUID, name string) *habit.Habit {
	t.Helper()
	h := &habit.Habit{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       name,
		GoalType:   habit.GoalDaily,
		GoalTarget: 1,
		Color:      habit.DefaultColor,
		IsActive:   true,
	}
	require.NoError(t, storage.Create(context.Background(), h))
	return h
}

func TestHabitStorage_CRUD(t *testing.T) {
	ctx := context.Background()
	pub := &recorder{}
	storage := inmemory.NewHabitStorage(pub)
	userID := uuid.New()

	first := createHabit(t, storage, userID, "Read")
	second := createHabit(t, storage, userID, "Run")
	createHabit(t, storage, uuid.New(), "Not mine")

	habits, err := storage.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, habits, 2)

	habit.Apply(first, habit.WithName("Read 20 pages"), habit.WithGoalTarget(3))
	require.NoError(t, storage.Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	got, err := storage.GetByID(ctx, userID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Read 20 pages", got.Name)
	assert.Equal(t, 3, got.GoalTarget)

	require.NoError(t, storage.DeleteSoft(ctx, second))
	_, err = storage.GetByID(ctx, userID, second.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	habits, err = storage.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, habits, 1)

	assert.Equal(t, []changefeed.EventType{
		changefeed.Insert, changefeed.Insert, changefeed.Insert,
		changefeed.Update, changefeed.Update,
	}, pub.types())
}

func TestHabitStorage_UpsertRevivesDeletedEvent(t *testing.T) {
	ctx := context.Background()
	pub := &recorder{}
	storage := inmemory.NewHabitStorage(pub)
	userID := uuid.New()
	h := createHabit(t, storage, userID, "Meditate")
	day := habit.NewDate(2024, 3, 10)

	first := &habit.Event{HabitID: h.ID, UserID: userID, EventDate: day}
	require.NoError(t, storage.Upsert(ctx, first))
	require.NotEqual(t, uuid.Nil, first.ID)

	deleted, err := storage.SoftDelete(ctx, userID, h.ID, day)
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)

	_, err = storage.Find(ctx, userID, h.ID, day)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	note := "back on track"
	again := &habit.Event{HabitID: h.ID, UserID: userID, EventDate: day, Note: &note}
	require.NoError(t, storage.Upsert(ctx, again))
	assert.Equal(t, first.ID, again.ID)
	assert.Nil(t, again.DeletedAt)

	events, err := storage.ListEvents(ctx, userID, h.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "back on track", *events[0].Note)

	// INSERT, затем UPDATE (снятие) и UPDATE (оживление)
	assert.Equal(t, []changefeed.EventType{
		changefeed.Insert, changefeed.Insert, changefeed.Update, changefeed.Update,
	}, pub.types())
}

func TestHabitStorage_SoftDeleteMissing(t *testing.T) {
	storage := inmemory.NewHabitStorage(nil)
	_, err := storage.SoftDelete(context.Background(), uuid.New(), uuid.New(), habit.NewDate(2024, 1, 1))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestHabitStorage_ListUserEvents(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewHabitStorage(nil)
	userID := uuid.New()
	kept := createHabit(t, storage, userID, "Kept")
	dropped := createHabit(t, storage, userID, "Dropped")

	for _, day := range []int{1, 2, 3} {
		require.NoError(t, storage.Upsert(ctx, &habit.Event{HabitID: kept.ID, UserID: userID, EventDate: habit.NewDate(2024, 5, day)}))
	}
	require.NoError(t, storage.Upsert(ctx, &habit.Event{HabitID: dropped.ID, UserID: userID, EventDate: habit.NewDate(2024, 5, 1)}))
	require.NoError(t, storage.DeleteSoft(ctx, dropped))

	events, err := storage.ListUserEvents(ctx, userID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, habit.NewDate(2024, 5, 3), events[0].EventDate)
	assert.Equal(t, habit.NewDate(2024, 5, 1), events[2].EventDate)

	other, err := storage.ListUserEvents(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}
