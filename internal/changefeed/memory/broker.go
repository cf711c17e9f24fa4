// Package memory - внутрипроцессный брокер изменений для одного инстанса и тестов
package memory

import (
	"context"
	"errors"
	"sync"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/logger"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("брокер закрыт")

const defaultBuffer = 256

type Broker struct {
	mtx    sync.RWMutex
	subs   map[uint64]*subscription
	seq    uint64
	buffer int
	closed bool
}

type subscription struct {
	id     uint64
	broker *Broker
	spec   changefeed.Spec
	h      changefeed.Handler
	pump   *changefeed.Pump
}

func NewBroker() *Broker {
	return NewBrokerWithBuffer(defaultBuffer)
}

func NewBrokerWithBuffer(buffer int) *Broker {
	return &Broker{
		subs:   make(map[uint64]*subscription),
		buffer: buffer,
	}
}

// Open регистрирует подписку и сразу сообщает SUBSCRIBED
func (b *Broker) Open(ctx context.Context, spec changefeed.Spec, h changefeed.Handler) (changefeed.Subscription, error) {
	b.mtx.Lock()
	if b.closed {
		b.mtx.Unlock()
		return nil, ErrClosed
	}
	b.seq++
	sub := &subscription{
		id:     b.seq,
		broker: b,
		spec:   spec,
		h:      h,
		pump:   changefeed.NewPump(h, b.buffer),
	}
	b.subs[sub.id] = sub
	b.mtx.Unlock()

	logger.Debug("Changefeed: Подписка в памяти открыта",
		zap.String("channel", spec.Channel),
		zap.String("table", spec.Table))
	h.Notify(changefeed.StatusSubscribed, nil)
	return sub, nil
}

// Publish раскладывает изменение по подходящим подпискам
func (b *Broker) Publish(ctx context.Context, c changefeed.Change) error {
	b.mtx.RLock()
	if b.closed {
		b.mtx.RUnlock()
		return ErrClosed
	}
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.spec.Matches(c) {
			targets = append(targets, sub)
		}
	}
	b.mtx.RUnlock()

	// отставшая подписка теряет изменение сама, публикующий не ждёт
	for _, sub := range targets {
		_ = sub.pump.Push(c)
	}
	return nil
}

func (b *Broker) Subscribers() int {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return len(b.subs)
}

func (b *Broker) Close() error {
	b.mtx.Lock()
	if b.closed {
		b.mtx.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mtx.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (s *subscription) Close() error {
	if !s.pump.Stop() {
		return nil
	}
	s.broker.mtx.Lock()
	delete(s.broker.subs, s.id)
	s.broker.mtx.Unlock()
	s.h.Notify(changefeed.StatusClosed, nil)
	return nil
}
