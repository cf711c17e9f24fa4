package slices

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"habitTracker/internal/analytics"
	"habitTracker/internal/changefeed/memory"
	"habitTracker/internal/events"
	"habitTracker/internal/models/habit"
	habitmem "habitTracker/internal/repository/habit/inmemory"
	taskmem "habitTracker/internal/repository/task/inmemory"
	"habitTracker/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type recorder struct {
	mtx    sync.Mutex
	frames []Frame
}

func (r *recorder) Send(f Frame) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) ofType(t FrameType) []Frame {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var res []Frame
	for _, f := range r.frames {
		if f.Type == t {
			res = append(res, f)
		}
	}
	return res
}

func (r *recorder) count(t FrameType) int {
	return len(r.ofType(t))
}

func (r *recorder) lastTasks() TasksData {
	frames := r.ofType(FrameTasks)
	if len(frames) == 0 {
		return TasksData{}
	}
	return frames[len(frames)-1].Data.(TasksData)
}

type env struct {
	userID  uuid.UUID
	broker  *memory.Broker
	tasks   *service.TaskService
	habits  *service.HabitService
	session *Session
	out     *recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	broker := memory.NewBroker()
	taskRepo := taskmem.NewTaskStorage(broker)
	habitRepo := habitmem.NewHabitStorage(broker)

	e := &env{
		userID: uuid.New(),
		broker: broker,
		tasks:  service.NewTaskService(taskRepo),
		habits: service.NewHabitService(habitRepo, time.UTC),
		out:    &recorder{},
	}
	e.session = NewSession(e.userID, Deps{
		Tasks:      e.tasks,
		Habits:     e.habits,
		Events:     habitRepo,
		Analytics:  service.NewAnalyticsService(taskRepo, habitRepo, time.UTC),
		Source:     broker,
		Debounce:   50 * time.Millisecond,
		StatusPoll: 20 * time.Millisecond,
	}, e.out)
	return e
}

func (e *env) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.session.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = e.broker.Close()
	})

	waitCtx, waitCancel := context.WithTimeout(ctx, waitFor)
	defer waitCancel()
	require.NoError(t, e.session.WaitStarted(waitCtx))
}

func (e *env) command(t *testing.T, id string, typ CommandType, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	raw, err := json.Marshal(Command{ID: id, Type: typ, Data: payload})
	require.NoError(t, err)
	require.NoError(t, e.session.Handle(raw))
}

func TestSession_StartupSendsSnapshotAndStatus(t *testing.T) {
	e := newEnv(t)
	_, err := e.tasks.CreateTask(context.Background(), e.userID, "до старта")
	require.NoError(t, err)

	e.start(t)

	snapshots := e.out.ofType(FrameSnapshot)
	require.Len(t, snapshots, 1)
	snap := snapshots[0].Data.(SnapshotData)
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "до старта", snap.Tasks[0].Title)

	assert.Eventually(t, func() bool {
		for _, f := range e.out.ofType(FrameAnalytics) {
			if data := f.Data.(AnalyticsData); !data.Loading && data.Overview != nil {
				return true
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return e.session.Snapshot().Status.IsConnected
	}, waitFor, 10*time.Millisecond)
	assert.GreaterOrEqual(t, e.out.count(FrameStatus), 1)
}

func TestSession_DirectMutationToastsOnceAndIgnoresEcho(t *testing.T) {
	e := newEnv(t)
	e.start(t)
	before := e.out.count(FrameTasks)

	e.command(t, "c1", CmdCreateTask, map[string]any{"title": "купить хлеб"})

	require.Eventually(t, func() bool {
		return e.out.count(FrameToast) == 1
	}, waitFor, 10*time.Millisecond)

	// даём фиду донести эхо
	time.Sleep(100 * time.Millisecond)

	toasts := e.out.ofType(FrameToast)
	require.Len(t, toasts, 1)
	assert.Equal(t, "c1", toasts[0].RequestID)
	assert.Equal(t, ToastSuccess, toasts[0].Data.(Toast).Level)

	assert.Equal(t, before+1, e.out.count(FrameTasks))
	tasks := e.out.lastTasks().Tasks
	require.Len(t, tasks, 1)
	assert.Equal(t, "купить хлеб", tasks[0].Title)
}

func TestSession_RemoteChangeUpdatesListWithoutToast(t *testing.T) {
	e := newEnv(t)
	e.start(t)

	// изменение из другой вкладки: мимо сессии, прямо через сервис
	created, err := e.tasks.CreateTask(context.Background(), e.userID, "из другой вкладки")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tasks := e.out.lastTasks().Tasks
		return len(tasks) == 1 && tasks[0].ID == created.ID
	}, waitFor, 10*time.Millisecond)

	_, err = e.tasks.DeleteTask(context.Background(), e.userID, created.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(e.out.lastTasks().Tasks) == 0
	}, waitFor, 10*time.Millisecond)
	assert.Zero(t, e.out.count(FrameToast))
}

func TestSession_ForeignUserChangesAreNotDelivered(t *testing.T) {
	e := newEnv(t)
	e.start(t)
	before := e.out.count(FrameTasks)

	_, err := e.tasks.CreateTask(context.Background(), uuid.New(), "чужая")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, e.out.count(FrameTasks))
}

func TestSession_ValidationErrorFrame(t *testing.T) {
	e := newEnv(t)
	e.start(t)

	e.command(t, "h1", CmdCreateHabit, map[string]any{"name": "бег", "goal_target": 0})

	require.Eventually(t, func() bool {
		return e.out.count(FrameError) == 1
	}, waitFor, 10*time.Millisecond)

	errFrame := e.out.ofType(FrameError)[0]
	assert.Equal(t, "h1", errFrame.RequestID)
	assert.Equal(t, service.CodeValidation, errFrame.Data.(ErrorData).Code)

	toasts := e.out.ofType(FrameToast)
	require.Len(t, toasts, 1)
	assert.Equal(t, ToastError, toasts[0].Data.(Toast).Level)
	assert.Zero(t, e.out.count(FrameHabits))
}

func TestSession_ToggleHabit(t *testing.T) {
	e := newEnv(t)
	h, err := e.habits.CreateHabit(context.Background(), e.userID, "вода")
	require.NoError(t, err)
	e.start(t)

	e.command(t, "t1", CmdToggleHabit, map[string]any{"habit_id": h.ID})

	require.Eventually(t, func() bool {
		return e.out.count(FrameToast) == 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, "Привычка отмечена", e.out.ofType(FrameToast)[0].Data.(Toast).Message)

	e.command(t, "t2", CmdToggleHabit, map[string]any{"habit_id": h.ID})

	require.Eventually(t, func() bool {
		return e.out.count(FrameToast) == 2
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, "Отметка снята", e.out.ofType(FrameToast)[1].Data.(Toast).Message)

	evs, err := e.habits.ListEvents(context.Background(), e.userID, h.ID)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestSession_BadCommand(t *testing.T) {
	e := newEnv(t)
	e.start(t)

	assert.Error(t, e.session.Handle([]byte("{not json")))
	e.command(t, "x", CommandType("explode"), map[string]any{})

	require.Eventually(t, func() bool {
		return e.out.count(FrameError) == 2
	}, waitFor, 10*time.Millisecond)
	for _, f := range e.out.ofType(FrameError) {
		assert.Equal(t, "BAD_COMMAND", f.Data.(ErrorData).Code)
	}
}

func TestSession_RemoteBurstIsDebounced(t *testing.T) {
	e := newEnv(t)
	e.start(t)

	require.Eventually(t, func() bool {
		for _, f := range e.out.ofType(FrameAnalytics) {
			if !f.Data.(AnalyticsData).Loading {
				return true
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err := e.tasks.CreateTask(context.Background(), e.userID, "пачка")
		require.NoError(t, err)
	}

	realTime := func(loading bool) int {
		n := 0
		for _, f := range e.out.ofType(FrameAnalytics) {
			data := f.Data.(AnalyticsData)
			if data.Trigger == string(events.TriggerRealTime) && data.Loading == loading {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool {
		return realTime(false) == 1
	}, waitFor, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, realTime(true))
	assert.Equal(t, 1, realTime(false))
}

func TestSession_ClosedSessionRejectsCommands(t *testing.T) {
	e := newEnv(t)
	e.session.Close()

	assert.ErrorIs(t, e.session.Handle([]byte(`{"type":"reload"}`)), ErrSessionClosed)
	assert.False(t, e.session.Emit(events.NewAnalyticsRefreshNeeded(e.userID, events.TriggerManual)))
}

type gatedLoader struct {
	mtx   sync.Mutex
	gates map[analytics.Period]chan struct{}
}

func (l *gatedLoader) gate(p analytics.Period) chan struct{} {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.gates == nil {
		l.gates = make(map[analytics.Period]chan struct{})
	}
	if _, ok := l.gates[p]; !ok {
		l.gates[p] = make(chan struct{})
	}
	return l.gates[p]
}

func (l *gatedLoader) Overview(ctx context.Context, userID uuid.UUID, period analytics.Period) (*service.Overview, error) {
	<-l.gate(period)
	return &service.Overview{Period: period, Today: habit.NewDate(2024, time.March, 1)}, nil
}

func TestAnalyticsSlice_StaleResponseIsDropped(t *testing.T) {
	loader := &gatedLoader{}
	bus := events.New()
	defer bus.Close()

	queue := make(chan func(), 16)
	post := func(fn func()) bool {
		queue <- fn
		return true
	}
	var published []AnalyticsData
	slice := newAnalyticsSlice(context.Background(), uuid.New(), loader, bus, time.Hour, post, func(d AnalyticsData) {
		published = append(published, d)
	})
	defer slice.stop()

	slice.SetPeriod(analytics.PeriodWeek)
	slice.Refresh(events.TriggerManual)
	slice.SetPeriod(analytics.PeriodYear)
	slice.Refresh(events.TriggerManual)
	assert.Equal(t, uint64(2), slice.Generation())

	// свежий ответ приходит первым, устаревший после него
	close(loader.gate(analytics.PeriodYear))
	(<-queue)()
	close(loader.gate(analytics.PeriodWeek))
	(<-queue)()

	data, errMsg := slice.Data()
	require.NotNil(t, data)
	assert.Empty(t, errMsg)
	assert.Equal(t, analytics.PeriodYear, data.Period)

	loaded := 0
	for _, d := range published {
		if !d.Loading {
			loaded++
			assert.Equal(t, analytics.PeriodYear, d.Overview.Period)
		}
	}
	assert.Equal(t, 1, loaded)
}

func TestAnalyticsSlice_ScheduleCoalesces(t *testing.T) {
	loader := &gatedLoader{}
	close(loader.gate(analytics.PeriodMonth))
	bus := events.New()
	defer bus.Close()

	queue := make(chan func(), 16)
	post := func(fn func()) bool {
		queue <- fn
		return true
	}
	slice := newAnalyticsSlice(context.Background(), uuid.New(), loader, bus, 20*time.Millisecond, post, func(AnalyticsData) {})
	defer slice.stop()

	slice.Schedule(events.TriggerTaskChange)
	slice.Schedule(events.TriggerTaskChange)
	slice.Schedule(events.TriggerHabitChange)

	// срабатывает только последний таймер; устаревшие замыкания ничего не делают
	deadline := time.After(waitFor)
	for slice.Generation() == 0 {
		select {
		case fn := <-queue:
			fn()
		case <-deadline:
			t.Fatal("пересчёт не запустился")
		}
	}
	assert.Equal(t, uint64(1), slice.Generation())
	assert.Equal(t, events.TriggerHabitChange, slice.pending)
}

func TestHub_RegisterAndRefreshAll(t *testing.T) {
	hub := NewHub()
	userA, userB := uuid.New(), uuid.New()
	a1 := NewSession(userA, Deps{Source: memory.NewBroker()}, &recorder{})
	a2 := NewSession(userA, Deps{Source: memory.NewBroker()}, &recorder{})
	b1 := NewSession(userB, Deps{Source: memory.NewBroker()}, &recorder{})

	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b1)
	hub.Register(a1)

	assert.Equal(t, 3, hub.Count())
	assert.Len(t, hub.Users(), 2)
	assert.Len(t, hub.Sessions(userA), 2)

	assert.Equal(t, 3, hub.RefreshAll(events.TriggerDayRollover))

	b1.Close()
	assert.Equal(t, 2, hub.RefreshAll(events.TriggerDayRollover))

	hub.Unregister(a1)
	hub.Unregister(a1)
	hub.Unregister(b1)
	assert.Equal(t, 1, hub.Count())
	assert.Equal(t, []uuid.UUID{userA}, hub.Users())
}

// gatedOutbox держит каждый кадр, пока не открыт gate
type gatedOutbox struct {
	recorder
	gate chan struct{}
}

func (o *gatedOutbox) Send(f Frame) error {
	<-o.gate
	return o.recorder.Send(f)
}

func TestSession_StalledOutboxDoesNotBlockWriters(t *testing.T) {
	e := newEnv(t)
	out := &gatedOutbox{gate: make(chan struct{})}
	e.session.out = out

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.session.Run(ctx)
	}()
	opened := false
	defer func() {
		if !opened {
			close(out.gate)
		}
		cancel()
		<-done
		_ = e.broker.Close()
	}()

	// подписки открываются до загрузки; сам актор висит на первом кадре
	require.Eventually(t, func() bool { return e.broker.Subscribers() == 3 }, waitFor, 10*time.Millisecond)

	const total = 2000
	other := uuid.New()
	written := make(chan error, 1)
	go func() {
		for i := 0; i < total; i++ {
			owner := e.userID
			if i%2 == 1 {
				owner = other
			}
			if _, err := e.tasks.CreateTask(context.Background(), owner, "задача"); err != nil {
				written <- err
				return
			}
		}
		written <- nil
	}()

	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("CreateTask ждал зависшую сессию")
	}

	// после разблокировки потери фида закрываются полной перезагрузкой
	close(out.gate)
	opened = true
	assert.Eventually(t, func() bool {
		snapshots := out.ofType(FrameSnapshot)
		if len(snapshots) < 2 {
			return false
		}
		return len(snapshots[len(snapshots)-1].Data.(SnapshotData).Tasks) == total/2
	}, 5*time.Second, 20*time.Millisecond)
}
