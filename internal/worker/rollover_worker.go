package worker

import (
	"context"
	"time"

	"habitTracker/internal/events"
	"habitTracker/internal/logger"
	"habitTracker/internal/models/habit"

	"go.uber.org/zap"
)

const defaultInterval = time.Minute

// Refresher - кому сообщить о смене дня; в приложении это slices.Hub
type Refresher interface {
	RefreshAll(trigger events.Trigger) int
}

// RolloverWorker следит за календарной датой и после полуночи просит
// открытые вкладки пересчитать аналитику: текущие серии зависят от "сегодня".
type RolloverWorker struct {
	target   Refresher
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	day      habit.Date
}

func NewRolloverWorker(target Refresher, interval *time.Duration, loc *time.Location) *RolloverWorker {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = defaultInterval
	} else {
		intervalToSet = *interval
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RolloverWorker{
		target:   target,
		interval: intervalToSet,
		loc:      loc,
		now:      time.Now,
	}
}

func (w *RolloverWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.day = w.today()
	logger.Info("Worker: Слежение за сменой дня запущено",
		zap.String("today", w.day.String()),
		zap.Duration("interval", w.interval))

	for {
		select {
		case <-ticker.C:
			w.Check()
		case <-ctx.Done():
			logger.Info("Worker: Слежение за сменой дня останавливается")
			return
		}
	}
}

// Check сравнивает дату с прошлой проверкой; true, если день сменился
func (w *RolloverWorker) Check() bool {
	today := w.today()
	if w.day.IsZero() {
		w.day = today
		return false
	}
	if !today.After(w.day) {
		return false
	}

	start := time.Now()
	previous := w.day
	w.day = today
	delivered := w.target.RefreshAll(events.TriggerDayRollover)

	logger.Info("Worker: Наступил новый день",
		zap.String("previous", previous.String()),
		zap.String("today", today.String()),
		zap.Int("sessions", delivered),
		zap.Duration("ms", time.Since(start)))
	return true
}

func (w *RolloverWorker) today() habit.Date {
	return habit.DateOf(w.now().In(w.loc))
}
