package events

import (
	"fmt"
	"sort"
	"sync"

	"habitTracker/internal/logger"
	"habitTracker/internal/metrics"

	"go.uber.org/zap"
)

type Listener func(Event)

type entry struct {
	id       string
	listener Listener
}

// Bus создаётся на сессию через New и закрывается через Close
type Bus struct {
	mtx       sync.RWMutex
	listeners map[Type][]entry
	nextID    uint64
	closed    bool
}

// Subscription - хэндл подписки; Close снимает ровно этого слушателя
type Subscription struct {
	ID   string
	Type Type

	bus  *Bus
	once sync.Once
}

func (s *Subscription) Close() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s.Type, s.ID)
	})
}

func New() *Bus {
	return &Bus{listeners: make(map[Type][]entry)}
}

func (b *Bus) Subscribe(t Type, listener Listener) *Subscription {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.nextID++
	sub := &Subscription{ID: fmt.Sprintf("sub_%d", b.nextID), Type: t}
	if b.closed || listener == nil {
		return sub
	}
	sub.bus = b
	b.listeners[t] = append(b.listeners[t], entry{id: sub.ID, listener: listener})

	logger.Debug("Events: Подписка на событие",
		zap.String("type", string(t)),
		zap.String("subscription_id", sub.ID))
	return sub
}

// On подписывает слушателя на конкретный тип события
func On[E Event](b *Bus, listener func(E)) *Subscription {
	var zero E
	return b.Subscribe(zero.Kind(), func(e Event) {
		if typed, ok := e.(E); ok {
			listener(typed)
		}
	})
}

func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.Close()
}

func (b *Bus) remove(t Type, id string) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	list := b.listeners[t]
	for i, e := range list {
		if e.id != id {
			continue
		}
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, t)
		} else {
			b.listeners[t] = next
		}
		logger.Debug("Events: Отписка от события",
			zap.String("type", string(t)),
			zap.String("subscription_id", id))
		return
	}
}

// Emit синхронно раздаёт событие всем текущим слушателям его типа.
// Паника слушателя логируется и не мешает остальным.
func (b *Bus) Emit(e Event) {
	if e == nil {
		return
	}
	t := e.Kind()

	b.mtx.RLock()
	if b.closed {
		b.mtx.RUnlock()
		return
	}
	targets := b.listeners[t]
	b.mtx.RUnlock()

	metrics.BusEvents.WithLabelValues(string(t)).Inc()
	if len(targets) == 0 {
		logger.Debug("Events: Нет слушателей", zap.String("type", string(t)))
		return
	}
	logger.Debug("Events: Рассылка события",
		zap.String("type", string(t)),
		zap.Int("listeners", len(targets)))

	for _, target := range targets {
		b.deliver(t, target, e)
	}
}

func (b *Bus) deliver(t Type, target entry, e Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BusListenerPanics.WithLabelValues(string(t)).Inc()
			logger.Error("Events: Ошибка в слушателе", fmt.Errorf("%v", r),
				zap.String("type", string(t)),
				zap.String("subscription_id", target.id))
		}
	}()
	target.listener(e)
}

func (b *Bus) ListenerCount(t Type) int {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return len(b.listeners[t])
}

// ActiveTypes - типы, у которых есть хотя бы один слушатель
func (b *Bus) ActiveTypes() []Type {
	b.mtx.RLock()
	defer b.mtx.RUnlock()

	res := make([]Type, 0, len(b.listeners))
	for t := range b.listeners {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (b *Bus) DebugInfo() map[Type]int {
	b.mtx.RLock()
	defer b.mtx.RUnlock()

	info := make(map[Type]int, len(b.listeners))
	for t, list := range b.listeners {
		info[t] = len(list)
	}
	return info
}

func (b *Bus) ClearAll() {
	b.mtx.Lock()
	b.listeners = make(map[Type][]entry)
	b.mtx.Unlock()
	logger.Debug("Events: Все слушатели сняты")
}

// Close снимает всех слушателей; дальнейшие Emit и Subscribe ничего не делают
func (b *Bus) Close() {
	b.mtx.Lock()
	b.closed = true
	b.listeners = make(map[Type][]entry)
	b.mtx.Unlock()
}
