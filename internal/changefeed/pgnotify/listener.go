// Package pgnotify слушает канал row_changes, в который пишут триггеры
// миграции 003_row_changes, и раздаёт изменения подпискам.
package pgnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/logger"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/models/task"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	Channel    = "row_changes"
	pumpBuffer = 256
)

// таблицы с триггером notify_row_change
var knownTables = map[string]struct{}{
	task.Table:        {},
	habit.Table:       {},
	habit.EventsTable: {},
}

// Listener держит одно выделенное соединение с LISTEN и переподключается
// с экспоненциальной задержкой. Пока соединения нет, подписки получают RECONNECTING.
type Listener struct {
	pool *pgxpool.Pool

	mtx       sync.RWMutex
	subs      map[uint64]*subscription
	seq       uint64
	connected bool

	newBackoff func() backoff.BackOff
}

type subscription struct {
	id       uint64
	listener *Listener
	spec     changefeed.Spec
	h        changefeed.Handler
	pump     *changefeed.Pump
}

func New(pool *pgxpool.Pool) *Listener {
	return &Listener{
		pool: pool,
		subs: make(map[uint64]*subscription),
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run блокируется до отмены ctx
func (l *Listener) Run(ctx context.Context) error {
	logger.Info("Changefeed: Запуск слушателя postgres", zap.String("channel", Channel))

	operation := func() error {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Changefeed: Соединение LISTEN потеряно, переподключение",
			zap.Error(err),
			zap.Duration("retry_in", wait))
		l.setConnected(false)
		l.broadcast(changefeed.StatusReconnecting, err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(l.newBackoff(), ctx), notify)
	l.setConnected(false)
	l.closeAll()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Info("Changefeed: Слушатель postgres остановлен")
		return nil
	}
	return err
}

func (l *Listener) listen(ctx context.Context) error {
	poolConn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("получение соединения: %w", err)
	}
	// соединение с LISTEN не возвращаем в пул
	conn := poolConn.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}

	l.setConnected(true)
	l.broadcast(changefeed.StatusSubscribed, nil)
	logger.Info("Changefeed: LISTEN активен", zap.String("channel", Channel))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("ожидание уведомления: %w", err)
		}
		var c changefeed.Change
		if err := json.Unmarshal([]byte(notification.Payload), &c); err != nil {
			logger.Warn("Changefeed: Некорректное уведомление", zap.Error(err))
			continue
		}
		if c.Partial {
			if err := l.complete(ctx, &c); err != nil {
				logger.Warn("Changefeed: Не удалось дочитать строку",
					zap.Error(err),
					zap.String("table", c.Table),
					zap.String("id", c.RecordID()))
				continue
			}
		}
		l.dispatch(c)
	}
}

// complete дочитывает строку, не поместившуюся в уведомление.
// Для DELETE строки уже нет: достаточно ключей.
func (l *Listener) complete(ctx context.Context, c *changefeed.Change) error {
	if c.Type == changefeed.Delete {
		return nil
	}
	if _, ok := knownTables[c.Table]; !ok {
		return fmt.Errorf("неизвестная таблица %q", c.Table)
	}
	id := c.RecordID()
	if id == "" {
		return errors.New("в уведомлении нет id")
	}

	query := "SELECT row_to_json(t) FROM " + pgx.Identifier{c.Table}.Sanitize() + " t WHERE id = $1"
	var row []byte
	if err := l.pool.QueryRow(ctx, query, id).Scan(&row); err != nil {
		return fmt.Errorf("чтение строки: %w", err)
	}
	c.New = row
	c.Partial = false
	return nil
}

func (l *Listener) dispatch(c changefeed.Change) {
	l.mtx.RLock()
	targets := make([]*subscription, 0, len(l.subs))
	for _, sub := range l.subs {
		if sub.spec.Matches(c) {
			targets = append(targets, sub)
		}
	}
	l.mtx.RUnlock()

	for _, sub := range targets {
		_ = sub.pump.Push(c)
	}
}

func (l *Listener) setConnected(v bool) {
	l.mtx.Lock()
	l.connected = v
	l.mtx.Unlock()
}

func (l *Listener) Connected() bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.connected
}

func (l *Listener) broadcast(s changefeed.Status, err error) {
	l.mtx.RLock()
	handlers := make([]changefeed.Handler, 0, len(l.subs))
	for _, sub := range l.subs {
		handlers = append(handlers, sub.h)
	}
	l.mtx.RUnlock()

	for _, h := range handlers {
		h.Notify(s, err)
	}
}

// Open регистрирует подписку. SUBSCRIBED приходит сразу, если LISTEN уже
// активен, иначе при установке соединения.
func (l *Listener) Open(ctx context.Context, spec changefeed.Spec, h changefeed.Handler) (changefeed.Subscription, error) {
	l.mtx.Lock()
	l.seq++
	sub := &subscription{
		id:       l.seq,
		listener: l,
		spec:     spec,
		h:        h,
		pump:     changefeed.NewPump(h, pumpBuffer),
	}
	l.subs[sub.id] = sub
	connected := l.connected
	l.mtx.Unlock()

	if connected {
		h.Notify(changefeed.StatusSubscribed, nil)
	}
	return sub, nil
}

func (l *Listener) closeAll() {
	l.mtx.RLock()
	subs := make([]*subscription, 0, len(l.subs))
	for _, sub := range l.subs {
		subs = append(subs, sub)
	}
	l.mtx.RUnlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}

func (s *subscription) Close() error {
	if !s.pump.Stop() {
		return nil
	}
	s.listener.mtx.Lock()
	delete(s.listener.subs, s.id)
	s.listener.mtx.Unlock()
	s.h.Notify(changefeed.StatusClosed, nil)
	return nil
}
