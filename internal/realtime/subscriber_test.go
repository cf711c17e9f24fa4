package realtime_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/realtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriber_UserChannels(t *testing.T) {
	src := newFakeSource()
	s := realtime.NewSubscriber(realtime.NewManager(src), time.Hour)
	userID := uuid.New()
	ctx := context.Background()

	handles := s.SubscribeAnalytics(ctx, userID, noop, nil)
	require.Len(t, handles, 3)

	filter := changefeed.Eq("user_id", userID.String())
	assert.Equal(t, "tasks", src.specs["tasks-"+userID.String()].Table)
	assert.Equal(t, "habits", src.specs["habits-"+userID.String()].Table)
	assert.Equal(t, "habit_events", src.specs["habit-events-"+userID.String()].Table)
	assert.Equal(t, filter, src.specs["tasks-"+userID.String()].Filter)
	for _, h := range handles {
		assert.True(t, h.IsActive())
	}

	s.CleanupUser(userID)
	assert.Empty(t, s.Manager().ActiveChannels())
	for _, h := range handles {
		assert.False(t, h.IsActive())
	}
}

func TestSubscriber_HandleCloseIdempotent(t *testing.T) {
	src := newFakeSource()
	s := realtime.NewSubscriber(realtime.NewManager(src), time.Hour)

	h := s.SubscribeTasks(context.Background(), uuid.New(), noop, nil)
	h.Close()
	h.Close()

	assert.False(t, h.IsActive())
	assert.Equal(t, 1, src.closed[h.ChannelName])
}

func TestSubscriber_ConnectDisconnectCallbacks(t *testing.T) {
	src := newFakeSource()
	s := realtime.NewSubscriber(realtime.NewManager(src), 10*time.Millisecond)

	var connects, disconnects atomic.Int32
	h := s.SubscribeToTable(context.Background(), realtime.SubscriptionConfig{
		ChannelName:  "tasks-x",
		Table:        "tasks",
		OnEvent:      noop,
		OnConnect:    func() { connects.Add(1) },
		OnDisconnect: func() { disconnects.Add(1) },
	})
	defer h.Close()

	src.status("tasks-x", changefeed.StatusSubscribed, nil)
	assert.Eventually(t, func() bool { return connects.Load() == 1 }, time.Second, 5*time.Millisecond)

	// повторное подтверждение не вызывает OnConnect ещё раз
	src.status("tasks-x", changefeed.StatusSubscribed, nil)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), connects.Load())

	src.status("tasks-x", changefeed.StatusChannelError, errors.New("обрыв"))
	assert.Eventually(t, func() bool { return disconnects.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscriber_PerChannelOnError(t *testing.T) {
	src := newFakeSource()
	src.fail = errors.New("нет соединения")
	s := realtime.NewSubscriber(realtime.NewManager(src), time.Hour)

	var got error
	h := s.SubscribeHabits(context.Background(), uuid.New(), noop, func(err error) { got = err })
	defer h.Close()

	require.Error(t, got)
	assert.False(t, h.IsActive())
}

func TestSubscriber_Snapshot(t *testing.T) {
	src := newFakeSource()
	s := realtime.NewSubscriber(realtime.NewManager(src), time.Hour)
	userID := uuid.New()

	s.SubscribeTasks(context.Background(), userID, noop, nil)
	src.status(realtime.TasksChannel(userID), changefeed.StatusSubscribed, nil)

	snap := s.Snapshot()
	assert.Equal(t, realtime.StateConnected, snap.State)
	assert.True(t, snap.Status.IsConnected)
	assert.Equal(t, []string{realtime.TasksChannel(userID)}, snap.ActiveChannels)

	s.Close()
	assert.Equal(t, realtime.StateIdle, s.Snapshot().State)
}
