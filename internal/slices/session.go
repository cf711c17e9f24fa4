// Package slices - серверные представления вкладки: задачи, привычки и аналитика
// одного подключения, сведённые из загрузки, фида изменений и команд пользователя.
package slices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"habitTracker/internal/analytics"
	"habitTracker/internal/changefeed"
	"habitTracker/internal/events"
	"habitTracker/internal/handlers/dto"
	"habitTracker/internal/logger"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/models/task"
	"habitTracker/internal/realtime"
	"habitTracker/internal/reconcile"
	"habitTracker/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const inboxSize = 256

var ErrSessionClosed = errors.New("сессия закрыта")

// Outbox - транспорт кадров до вкладки
type Outbox interface {
	Send(Frame) error
}

type TaskService interface {
	CreateTask(ctx context.Context, userID uuid.UUID, title string, options ...task.TaskOption) (*task.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID) ([]*task.Task, error)
	UpdateTask(ctx context.Context, userID, id uuid.UUID, expectedVersion int, options ...task.TaskOption) (*task.Task, error)
	DeleteTask(ctx context.Context, userID, id uuid.UUID) (*task.Task, error)
}

type HabitService interface {
	Today() habit.Date
	CreateHabit(ctx context.Context, userID uuid.UUID, name string, options ...habit.HabitOption) (*habit.Habit, error)
	ListHabits(ctx context.Context, userID uuid.UUID) ([]*habit.Habit, error)
	UpdateHabit(ctx context.Context, userID, id uuid.UUID, expectedVersion int, options ...habit.HabitOption) (*habit.Habit, error)
	DeleteHabit(ctx context.Context, userID, id uuid.UUID) (*habit.Habit, error)
	Toggle(ctx context.Context, userID, habitID uuid.UUID, date habit.Date, note *string) (*habit.Event, bool, error)
}

type EventLister interface {
	ListUserEvents(ctx context.Context, userID uuid.UUID) ([]*habit.Event, error)
}

type Deps struct {
	Tasks      TaskService
	Habits     HabitService
	Events     EventLister
	Analytics  OverviewLoader
	Source     changefeed.Source
	Debounce   time.Duration
	StatusPoll time.Duration
}

// Session - актор одного подключения. Всё состояние срезов меняется только
// в горутине Run; остальные горутины присылают замыкания через inbox.
type Session struct {
	ID     string
	UserID uuid.UUID

	deps       Deps
	out        Outbox
	bus        *events.Bus
	subscriber *realtime.Subscriber

	tasks     *TaskSlice
	habits    *HabitSlice
	analytics *AnalyticsSlice

	inbox    chan func()
	done     chan struct{}
	doneOnce sync.Once
	started  chan struct{}

	lastStatus realtime.Snapshot
	// перезагрузка после потерь фида уже стоит в очереди
	resyncPending atomic.Bool
}

func NewSession(userID uuid.UUID, deps Deps, out Outbox) *Session {
	bus := events.New()
	s := &Session{
		ID:      uuid.NewString(),
		UserID:  userID,
		deps:    deps,
		out:     out,
		bus:     bus,
		tasks:   newTaskSlice(userID, bus),
		habits:  newHabitSlice(userID, bus),
		inbox:   make(chan func(), inboxSize),
		done:    make(chan struct{}),
		started: make(chan struct{}),
	}
	manager := realtime.NewManager(deps.Source,
		realtime.WithErrorHandler(func(channel string, err error) {
			s.post(func() {
				s.send(Frame{Type: FrameError, Data: ErrorData{Code: "REALTIME_ERROR", Message: err.Error()}})
			})
		}),
		realtime.WithLagHandler(s.requestResync),
	)
	s.subscriber = realtime.NewSubscriber(manager, deps.StatusPoll)
	return s
}

func (s *Session) Bus() *events.Bus {
	return s.bus
}

// post кладёт замыкание в очередь актора; после закрытия сессии возвращает false
func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Run подписывается на фид, загружает данные и обрабатывает очередь до отмены ctx или Close
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.shutdown()

	s.analytics = newAnalyticsSlice(ctx, s.UserID, s.deps.Analytics, s.bus, s.deps.Debounce, s.post, func(data AnalyticsData) {
		s.send(Frame{Type: FrameAnalytics, Data: data})
	})

	// подписка до загрузки: изменения между ними придут эхом и будут отброшены
	s.subscribe(ctx)

	if err := s.load(ctx); err != nil {
		s.sendError("", err)
	}
	s.analytics.Refresh(events.TriggerManual)
	s.pushStatus(true)
	close(s.started)

	poll := s.deps.StatusPoll
	if poll <= 0 {
		poll = realtime.DefaultStatusPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	logger.Info("Session: Сессия запущена",
		zap.String("session_id", s.ID),
		zap.String("user_id", s.UserID.String()))

	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-ticker.C:
			s.pushStatus(false)
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		}
	}
}

func (s *Session) subscribe(ctx context.Context) {
	onError := func(err error) {
		logger.Warn("Session: Ошибка подписки", zap.String("session_id", s.ID), zap.Error(err))
	}
	s.subscriber.SubscribeTasks(ctx, s.UserID, func(c changefeed.Change) {
		s.post(func() { s.applyRemote(c, s.tasks.ApplyChange, s.sendTasks) })
	}, onError)
	s.subscriber.SubscribeHabits(ctx, s.UserID, func(c changefeed.Change) {
		s.post(func() { s.applyRemote(c, s.habits.ApplyHabitChange, s.sendHabits) })
	}, onError)
	s.subscriber.SubscribeHabitEvents(ctx, s.UserID, func(c changefeed.Change) {
		s.post(func() { s.applyRemote(c, s.habits.ApplyEventChange, s.sendHabits) })
	}, onError)
}

// applyRemote - путь фида: без тостов, кадр уходит только при реальном изменении
func (s *Session) applyRemote(c changefeed.Change, apply func(changefeed.Change) (reconcile.Outcome, error), publish func()) {
	var (
		outcome reconcile.Outcome
		err     error
	)
	s.analytics.viaFeed(func() {
		outcome, err = apply(c)
	})
	if err != nil {
		logger.Warn("Session: Не удалось применить изменение", zap.String("table", c.Table), zap.Error(err))
		return
	}
	logger.Debug("Session: Изменение из фида",
		zap.String("table", c.Table),
		zap.String("type", string(c.Type)),
		zap.String("outcome", outcome.String()))
	if outcome.Changed() {
		publish()
	}
}

func (s *Session) load(ctx context.Context) error {
	var (
		tasks  []*task.Task
		habits []*habit.Habit
		evs    []*habit.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tasks, err = s.deps.Tasks.ListTasks(gctx, s.UserID)
		return err
	})
	g.Go(func() (err error) {
		habits, err = s.deps.Habits.ListHabits(gctx, s.UserID)
		return err
	})
	g.Go(func() (err error) {
		evs, err = s.deps.Events.ListUserEvents(gctx, s.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("загрузка данных сессии: %w", err)
	}

	s.tasks.Load(tasks)
	s.habits.Load(habits, evs)
	s.send(Frame{Type: FrameSnapshot, Data: SnapshotData{
		Tasks:    dto.FromTaskList(s.tasks.Items()),
		Habits:   s.habits.Habits(),
		Events:   s.habits.Events(),
		Realtime: s.subscriber.Snapshot(),
	}})
	return nil
}

// requestResync ставит в очередь полную перезагрузку: канал терял изменения,
// и сверять срезы по отдельным строкам уже нельзя. Несколько потерь подряд
// дают одну перезагрузку.
func (s *Session) requestResync(channel string) {
	if !s.resyncPending.CompareAndSwap(false, true) {
		return
	}
	s.post(func() {
		s.resyncPending.Store(false)
		logger.Warn("Session: Фид терял изменения, перезагрузка",
			zap.String("session_id", s.ID),
			zap.String("channel", channel))
		if err := s.load(s.analytics.ctx); err != nil {
			s.sendError("", err)
			return
		}
		s.analytics.Schedule(events.TriggerRealTime)
	})
}

// Handle разбирает команду из вкладки и ставит её в очередь
func (s *Session) Handle(raw []byte) error {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.post(func() {
			s.send(Frame{Type: FrameError, Data: ErrorData{Code: "BAD_COMMAND", Message: "неверный формат команды"}})
		})
		return fmt.Errorf("разбор команды: %w", err)
	}
	if !s.post(func() { s.execute(cmd) }) {
		return ErrSessionClosed
	}
	return nil
}

// Emit публикует событие в шину сессии из чужой горутины
func (s *Session) Emit(e events.Event) bool {
	return s.post(func() { s.bus.Emit(e) })
}

func (s *Session) Snapshot() realtime.Snapshot {
	return s.subscriber.Snapshot()
}

// Close останавливает актор; повторные вызовы безопасны
func (s *Session) Close() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) shutdown() {
	s.Close()
	if s.analytics != nil {
		s.analytics.stop()
	}
	s.subscriber.Close()
	s.bus.Close()
	logger.Info("Session: Сессия завершена",
		zap.String("session_id", s.ID),
		zap.String("user_id", s.UserID.String()))
}

func (s *Session) send(f Frame) {
	if err := s.out.Send(f); err != nil {
		logger.Warn("Session: Не удалось отправить кадр",
			zap.String("session_id", s.ID),
			zap.String("frame", string(f.Type)),
			zap.Error(err))
	}
}

func (s *Session) sendTasks() {
	s.send(Frame{Type: FrameTasks, Data: TasksData{Tasks: dto.FromTaskList(s.tasks.Items())}})
}

func (s *Session) sendHabits() {
	s.send(Frame{Type: FrameHabits, Data: dto.HabitsResponse{
		Habits: s.habits.Habits(),
		Events: s.habits.Events(),
	}})
}

func (s *Session) toast(requestID string, level ToastLevel, message string) {
	s.send(Frame{Type: FrameToast, RequestID: requestID, Data: Toast{Level: level, Message: message}})
}

func (s *Session) sendError(requestID string, err error) {
	data := ErrorData{Code: "INTERNAL", Message: err.Error()}
	if busErr, ok := service.AsBusinessError(err); ok {
		data = ErrorData{Code: busErr.Code, Message: busErr.Message}
	}
	s.send(Frame{Type: FrameError, RequestID: requestID, Data: data})
}

// fail - ошибка прямой мутации: кадр ошибки и тост
func (s *Session) fail(cmd Command, message string, err error) {
	logger.Warn("Session: Команда не выполнена",
		zap.String("command", string(cmd.Type)),
		zap.String("session_id", s.ID),
		zap.Error(err))
	s.sendError(cmd.ID, err)
	s.toast(cmd.ID, ToastError, message)
}

func (s *Session) pushStatus(force bool) {
	snap := s.subscriber.Snapshot()
	if !force && snap.State == s.lastStatus.State && snap.Status == s.lastStatus.Status {
		return
	}
	s.lastStatus = snap
	s.send(Frame{Type: FrameStatus, Data: snap})
}

// WaitStarted ждёт окончания начальной загрузки; нужен тестам и хабу
func (s *Session) WaitStarted(ctx context.Context) error {
	select {
	case <-s.started:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setPeriod(raw json.RawMessage) error {
	var req dto.RefreshAnalyticsRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return service.NewValidationError("data", "неверный формат")
		}
	}
	if req.Period == "" {
		return nil
	}
	period, err := analytics.ParsePeriod(req.Period)
	if err != nil {
		return service.NewValidationError("period", err.Error())
	}
	s.analytics.SetPeriod(period)
	return nil
}
