package realtime

import (
	"context"
	"sync"
	"time"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/logger"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/models/task"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultStatusPoll = 5 * time.Second

type SubscriptionConfig struct {
	ChannelName string
	Table       string
	Event       changefeed.EventType
	Filter      string

	OnEvent      Callback
	OnError      func(error)
	OnConnect    func()
	OnDisconnect func()
}

// Handle - подписка на таблицу вместе с опросом состояния подключения
type Handle struct {
	ChannelName string

	m    *Manager
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (h *Handle) Close() {
	h.once.Do(func() {
		close(h.stop)
		h.wg.Wait()
		h.m.Unsubscribe(h.ChannelName)
	})
}

func (h *Handle) IsActive() bool {
	return h.m.IsActive(h.ChannelName)
}

// Snapshot - состояние realtime для отладки и /realtime/status
type Snapshot struct {
	State          State            `json:"state"`
	Status         ConnectionStatus `json:"status"`
	ActiveChannels []string         `json:"active_channels"`
}

type Subscriber struct {
	m    *Manager
	poll time.Duration

	mtx     sync.Mutex
	handles map[string]*Handle
}

func NewSubscriber(m *Manager, poll time.Duration) *Subscriber {
	if poll <= 0 {
		poll = DefaultStatusPoll
	}
	return &Subscriber{
		m:       m,
		poll:    poll,
		handles: make(map[string]*Handle),
	}
}

func (s *Subscriber) Manager() *Manager {
	return s.m
}

func (s *Subscriber) SubscribeToTable(ctx context.Context, cfg SubscriptionConfig) *Handle {
	if cfg.Event == "" {
		cfg.Event = changefeed.All
	}

	s.m.subscribe(ctx, request{
		name:     cfg.ChannelName,
		kind:     cfg.Event,
		table:    cfg.Table,
		filter:   cfg.Filter,
		callback: cfg.OnEvent,
		onError:  cfg.OnError,
	})

	h := &Handle{
		ChannelName: cfg.ChannelName,
		m:           s.m,
		stop:        make(chan struct{}),
	}
	if cfg.OnConnect != nil || cfg.OnDisconnect != nil {
		h.wg.Add(1)
		go s.watch(h, cfg)
	}

	s.mtx.Lock()
	prev := s.handles[cfg.ChannelName]
	s.handles[cfg.ChannelName] = h
	s.mtx.Unlock()
	if prev != nil {
		prev.stopWatch()
	}
	return h
}

func (h *Handle) stopWatch() {
	h.once.Do(func() {
		close(h.stop)
		h.wg.Wait()
	})
}

// watch опрашивает состояние и вызывает колбэки только при смене подключения
func (s *Subscriber) watch(h *Handle, cfg SubscriptionConfig) {
	defer h.wg.Done()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	connected := false
	check := func() {
		status := s.m.Status()
		switch {
		case status.IsConnected && !connected:
			if cfg.OnConnect != nil {
				cfg.OnConnect()
			}
		case !status.IsConnected && connected && status.Error != "":
			if cfg.OnDisconnect != nil {
				cfg.OnDisconnect()
			}
		}
		connected = status.IsConnected
	}

	check()
	for {
		select {
		case <-ticker.C:
			check()
		case <-h.stop:
			return
		}
	}
}

func TasksChannel(userID uuid.UUID) string {
	return "tasks-" + userID.String()
}

func HabitsChannel(userID uuid.UUID) string {
	return "habits-" + userID.String()
}

func HabitEventsChannel(userID uuid.UUID) string {
	return "habit-events-" + userID.String()
}

func ownerFilter(userID uuid.UUID) string {
	return changefeed.Eq("user_id", userID.String()).String()
}

func (s *Subscriber) SubscribeTasks(ctx context.Context, userID uuid.UUID, onEvent Callback, onError func(error)) *Handle {
	return s.SubscribeToTable(ctx, SubscriptionConfig{
		ChannelName: TasksChannel(userID),
		Table:       task.Table,
		Event:       changefeed.All,
		Filter:      ownerFilter(userID),
		OnEvent:     onEvent,
		OnError:     onError,
	})
}

func (s *Subscriber) SubscribeHabits(ctx context.Context, userID uuid.UUID, onEvent Callback, onError func(error)) *Handle {
	return s.SubscribeToTable(ctx, SubscriptionConfig{
		ChannelName: HabitsChannel(userID),
		Table:       habit.Table,
		Event:       changefeed.All,
		Filter:      ownerFilter(userID),
		OnEvent:     onEvent,
		OnError:     onError,
	})
}

func (s *Subscriber) SubscribeHabitEvents(ctx context.Context, userID uuid.UUID, onEvent Callback, onError func(error)) *Handle {
	return s.SubscribeToTable(ctx, SubscriptionConfig{
		ChannelName: HabitEventsChannel(userID),
		Table:       habit.EventsTable,
		Event:       changefeed.All,
		Filter:      ownerFilter(userID),
		OnEvent:     onEvent,
		OnError:     onError,
	})
}

// SubscribeAnalytics слушает все три таблицы: любое изменение влияет на аналитику
func (s *Subscriber) SubscribeAnalytics(ctx context.Context, userID uuid.UUID, onEvent Callback, onError func(error)) []*Handle {
	return []*Handle{
		s.SubscribeTasks(ctx, userID, onEvent, onError),
		s.SubscribeHabits(ctx, userID, onEvent, onError),
		s.SubscribeHabitEvents(ctx, userID, onEvent, onError),
	}
}

func (s *Subscriber) CleanupUser(userID uuid.UUID) {
	logger.Debug("Realtime: Очистка подписок пользователя", zap.String("user_id", userID.String()))
	for _, name := range []string{TasksChannel(userID), HabitsChannel(userID), HabitEventsChannel(userID)} {
		s.mtx.Lock()
		h := s.handles[name]
		delete(s.handles, name)
		s.mtx.Unlock()
		if h != nil {
			h.Close()
		} else {
			s.m.Unsubscribe(name)
		}
	}
}

func (s *Subscriber) Snapshot() Snapshot {
	return Snapshot{
		State:          s.m.State(),
		Status:         s.m.Status(),
		ActiveChannels: s.m.ActiveChannels(),
	}
}

// Close снимает все подписки и сбрасывает менеджер
func (s *Subscriber) Close() {
	s.mtx.Lock()
	handles := s.handles
	s.handles = make(map[string]*Handle)
	s.mtx.Unlock()

	for _, h := range handles {
		h.stopWatch()
	}
	s.m.Close()
}
