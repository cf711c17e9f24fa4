package slices

import (
	"context"
	"time"

	"habitTracker/internal/analytics"
	"habitTracker/internal/events"
	"habitTracker/internal/logger"
	"habitTracker/internal/metrics"
	"habitTracker/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultDebounce = time.Second

type OverviewLoader interface {
	Overview(ctx context.Context, userID uuid.UUID, period analytics.Period) (*service.Overview, error)
}

// AnalyticsSlice пересчитывает аналитику по событиям других срезов.
// Всплески изменений схлопываются debounce, а ответы устаревших запросов
// отбрасываются по номеру поколения.
type AnalyticsSlice struct {
	userID   uuid.UUID
	loader   OverviewLoader
	bus      *events.Bus
	post     func(func()) bool
	publish  func(AnalyticsData)
	debounce time.Duration

	ctx      context.Context
	period   analytics.Period
	gen      uint64
	timer    *time.Timer
	timerSeq uint64
	pending  events.Trigger
	fromFeed bool
	loading  bool
	data     *service.Overview
	err      string
	subs     []*events.Subscription
}

func newAnalyticsSlice(ctx context.Context, userID uuid.UUID, loader OverviewLoader, bus *events.Bus,
	debounce time.Duration, post func(func()) bool, publish func(AnalyticsData)) *AnalyticsSlice {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	s := &AnalyticsSlice{
		userID:   userID,
		loader:   loader,
		bus:      bus,
		post:     post,
		publish:  publish,
		debounce: debounce,
		ctx:      ctx,
		period:   analytics.PeriodMonth,
	}

	taskTypes := []events.Type{
		events.TypeTaskCreated, events.TypeTaskUpdated,
		events.TypeTaskDeleted, events.TypeTaskStatusChanged,
	}
	habitTypes := []events.Type{
		events.TypeHabitCreated, events.TypeHabitUpdated, events.TypeHabitDeleted,
		events.TypeHabitCompleted, events.TypeHabitUncompleted,
	}
	for _, t := range taskTypes {
		s.subs = append(s.subs, bus.Subscribe(t, func(events.Event) { s.Schedule(events.TriggerTaskChange) }))
	}
	for _, t := range habitTypes {
		s.subs = append(s.subs, bus.Subscribe(t, func(events.Event) { s.Schedule(events.TriggerHabitChange) }))
	}
	s.subs = append(s.subs, events.On(bus, func(e events.AnalyticsRefreshNeeded) {
		s.Refresh(e.Trigger)
	}))
	return s
}

func (s *AnalyticsSlice) Period() analytics.Period {
	return s.period
}

func (s *AnalyticsSlice) SetPeriod(p analytics.Period) {
	s.period = p
}

func (s *AnalyticsSlice) Data() (*service.Overview, string) {
	return s.data, s.err
}

func (s *AnalyticsSlice) Generation() uint64 {
	return s.gen
}

// Schedule откладывает пересчёт; каждый новый вызов сдвигает срабатывание
func (s *AnalyticsSlice) Schedule(trigger events.Trigger) {
	if s.fromFeed {
		trigger = events.TriggerRealTime
	}
	s.pending = trigger
	s.timerSeq++
	seq := s.timerSeq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.post(func() {
			if seq != s.timerSeq {
				return
			}
			s.timer = nil
			s.Refresh(s.pending)
		})
	})
}

// Refresh запускает загрузку немедленно, отменяя отложенный пересчёт
func (s *AnalyticsSlice) Refresh(trigger events.Trigger) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.timerSeq++
	}

	s.gen++
	gen := s.gen
	period := s.period
	s.loading = true
	s.publish(AnalyticsData{Loading: true, Trigger: string(trigger), Overview: s.data})

	logger.Debug("Analytics: Пересчёт аналитики",
		zap.String("user_id", s.userID.String()),
		zap.String("trigger", string(trigger)),
		zap.Uint64("generation", gen))

	go func() {
		overview, err := s.loader.Overview(s.ctx, s.userID, period)
		s.post(func() { s.complete(gen, trigger, overview, err) })
	}()
}

func (s *AnalyticsSlice) complete(gen uint64, trigger events.Trigger, overview *service.Overview, err error) {
	if gen != s.gen {
		metrics.StaleAnalytics.Inc()
		logger.Debug("Analytics: Устаревший ответ отброшен",
			zap.Uint64("generation", gen),
			zap.Uint64("current", s.gen))
		return
	}
	s.loading = false

	if err != nil {
		logger.Warn("Analytics: Не удалось пересчитать аналитику",
			zap.String("user_id", s.userID.String()),
			zap.Error(err))
		s.err = err.Error()
		s.publish(AnalyticsData{Error: s.err, Trigger: string(trigger), Overview: s.data})
		return
	}

	s.data = overview
	s.err = ""
	s.publish(AnalyticsData{Trigger: string(trigger), Overview: overview})
	s.bus.Emit(events.NewAnalyticsDataUpdated(s.userID, trigger))
}

// viaFeed помечает события, пришедшие из фида, как real_time
func (s *AnalyticsSlice) viaFeed(fn func()) {
	s.fromFeed = true
	defer func() { s.fromFeed = false }()
	fn()
}

func (s *AnalyticsSlice) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for _, sub := range s.subs {
		sub.Close()
	}
	s.subs = nil
}
