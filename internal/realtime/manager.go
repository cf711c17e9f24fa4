// Package realtime держит именованные каналы поверх фида изменений и
// отслеживает общее состояние подключения.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/logger"
	"habitTracker/internal/metrics"

	"go.uber.org/zap"
)

type ConnectionStatus struct {
	IsConnected       bool   `json:"is_connected"`
	IsConnecting      bool   `json:"is_connecting"`
	Error             string `json:"error,omitempty"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
}

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Callback func(changefeed.Change)

// ErrorHandler получает ошибки подписок и паники колбэков
type ErrorHandler func(channel string, err error)

type Option func(*Manager)

// LagHandler вызывается, когда канал терял изменения и данные надо перечитать
type LagHandler func(channel string)

func WithLagHandler(h LagHandler) Option {
	return func(m *Manager) {
		m.onLag = h
	}
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(m *Manager) {
		m.onError = h
	}
}

type Manager struct {
	source  changefeed.Source
	onError ErrorHandler
	onLag   LagHandler

	mtx      sync.Mutex
	channels map[string]*Channel
	status   ConnectionStatus
	state    State
}

// Channel - одна физическая подписка на (таблица, тип события, фильтр)
type Channel struct {
	Name   string
	Table  string
	Kind   changefeed.EventType
	Filter changefeed.Filter

	m        *Manager
	callback Callback
	onError  func(error)
	sub      changefeed.Subscription
	attempts int
}

func NewManager(source changefeed.Source, opts ...Option) *Manager {
	m := &Manager{
		source:   source,
		channels: make(map[string]*Channel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type request struct {
	name     string
	kind     changefeed.EventType
	table    string
	filter   string
	callback Callback
	onError  func(error)
}

// Subscribe открывает канал. Отказ не возвращается ошибкой: он логируется,
// уходит в ErrorHandler и виден через Status.
func (m *Manager) Subscribe(ctx context.Context, name string, kind changefeed.EventType, table string, callback Callback, filter string) *Channel {
	return m.subscribe(ctx, request{
		name:     name,
		kind:     kind,
		table:    table,
		filter:   filter,
		callback: callback,
	})
}

func (m *Manager) subscribe(ctx context.Context, req request) *Channel {
	ch := &Channel{
		m:        m,
		Name:     req.name,
		Table:    req.table,
		Kind:     req.kind,
		callback: req.callback,
		onError:  req.onError,
	}

	filter, err := changefeed.ParseFilter(req.filter)
	switch {
	case err != nil:
	case req.name == "" || req.table == "":
		err = errors.New("не заданы имя канала или таблица")
	case !req.kind.Valid():
		err = fmt.Errorf("неизвестный тип события %q", req.kind)
	}
	if err != nil {
		m.reject(ch, err)
		return ch
	}
	ch.Filter = filter

	// канал с тем же именем заменяется
	m.Unsubscribe(req.name)

	logger.Debug("Realtime: Подписка на канал",
		zap.String("channel", req.name),
		zap.String("table", req.table),
		zap.String("event", string(req.kind)))

	m.mtx.Lock()
	m.channels[ch.Name] = ch
	if !m.status.IsConnected {
		m.status.IsConnecting = true
		m.state = StateConnecting
	}
	m.mtx.Unlock()
	metrics.RealtimeChannels.Inc()

	spec := changefeed.Spec{
		Channel: ch.Name,
		Table:   ch.Table,
		Types:   ch.Kind.Expand(),
		Filter:  ch.Filter,
	}
	handler := changefeed.Handler{
		Deliver: func(c changefeed.Change) { m.deliver(ch, c) },
		Status:  func(s changefeed.Status, err error) { m.handleStatus(ch, s, err) },
	}

	// Open может синхронно сообщить статус, поэтому вызывается без блокировки
	sub, err := m.source.Open(ctx, spec, handler)

	m.mtx.Lock()
	current := m.channels[ch.Name] == ch
	if err != nil {
		if current {
			delete(m.channels, ch.Name)
			metrics.RealtimeChannels.Dec()
		}
		m.mtx.Unlock()
		m.reject(ch, err)
		return ch
	}
	if current {
		ch.sub = sub
	}
	m.mtx.Unlock()

	// канал успели снять, пока открывалась подписка
	if !current {
		_ = sub.Close()
	}
	return ch
}

func (m *Manager) reject(ch *Channel, err error) {
	logger.Error("Realtime: Не удалось подписаться на канал", err, zap.String("channel", ch.Name))

	m.mtx.Lock()
	if len(m.channels) == 0 {
		m.status.IsConnected = false
		m.status.IsConnecting = false
		m.state = StateError
	}
	m.status.Error = fmt.Sprintf("канал %s: %v", ch.Name, err)
	m.mtx.Unlock()

	m.reportError(ch, err)
}

func (m *Manager) reportError(ch *Channel, err error) {
	if ch.onError != nil {
		ch.onError(err)
	}
	if m.onError != nil {
		m.onError(ch.Name, err)
	}
}

func (m *Manager) deliver(ch *Channel, c changefeed.Change) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("паника в обработчике канала %s: %v", ch.Name, r)
			logger.Error("Realtime: Ошибка в обработчике события", err, zap.String("channel", ch.Name))
			m.reportError(ch, err)
		}
	}()

	metrics.FeedDelivered.WithLabelValues(c.Table, string(c.Type)).Inc()
	logger.Debug("Realtime: Получено изменение",
		zap.String("channel", ch.Name),
		zap.String("type", string(c.Type)),
		zap.String("record_id", c.RecordID()))
	if ch.callback != nil {
		ch.callback(c)
	}
}

// handleStatus обновляет общее состояние. Ошибка одного канала переводит всё
// в отключённое состояние, только если этот канал последний.
func (m *Manager) handleStatus(ch *Channel, s changefeed.Status, err error) {
	m.mtx.Lock()
	if m.channels[ch.Name] != ch {
		m.mtx.Unlock()
		return
	}
	last := len(m.channels) <= 1

	switch s {
	case changefeed.StatusSubscribed:
		ch.attempts = 0
		m.status = ConnectionStatus{IsConnected: true}
		m.state = StateConnected
	case changefeed.StatusChannelError, changefeed.StatusTimedOut:
		if last {
			m.status.IsConnected = false
			m.status.IsConnecting = false
			m.status.Error = describe(ch.Name, s, err)
			m.state = StateError
		}
	case changefeed.StatusClosed:
		if last {
			m.status.IsConnected = false
			m.status.IsConnecting = false
			m.status.Error = ""
			m.state = StateClosed
		}
	case changefeed.StatusReconnecting:
		ch.attempts++
		m.status.IsConnected = false
		m.status.IsConnecting = true
		m.status.ReconnectAttempts = m.maxAttempts()
		m.state = StateConnecting
	}
	m.mtx.Unlock()

	switch s {
	case changefeed.StatusSubscribed:
		logger.Debug("Realtime: Канал подключён", zap.String("channel", ch.Name))
	case changefeed.StatusChannelError, changefeed.StatusTimedOut:
		logger.Warn("Realtime: Ошибка канала",
			zap.String("channel", ch.Name),
			zap.String("status", string(s)),
			zap.Error(err))
		m.reportError(ch, errors.New(describe(ch.Name, s, err)))
	case changefeed.StatusReconnecting:
		logger.Debug("Realtime: Переподключение канала", zap.String("channel", ch.Name), zap.Error(err))
	case changefeed.StatusLagged:
		logger.Warn("Realtime: Канал терял изменения", zap.String("channel", ch.Name))
		if m.onLag != nil {
			m.onLag(ch.Name)
		}
	}
}

func (m *Manager) maxAttempts() int {
	res := 0
	for _, ch := range m.channels {
		if ch.attempts > res {
			res = ch.attempts
		}
	}
	return res
}

func describe(channel string, s changefeed.Status, err error) string {
	msg := fmt.Sprintf("канал %s: %s", channel, s)
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}

// Unsubscribe снимает канал; неизвестное имя игнорируется
func (m *Manager) Unsubscribe(name string) {
	m.mtx.Lock()
	ch, ok := m.channels[name]
	if !ok {
		m.mtx.Unlock()
		return
	}
	delete(m.channels, name)
	if len(m.channels) == 0 {
		m.status.IsConnected = false
		m.status.IsConnecting = false
		m.status.Error = ""
		m.state = StateClosed
	}
	sub := ch.sub
	m.mtx.Unlock()
	metrics.RealtimeChannels.Dec()

	if sub != nil {
		if err := sub.Close(); err != nil {
			logger.Warn("Realtime: Ошибка при закрытии канала", zap.String("channel", name), zap.Error(err))
		}
	}
	logger.Debug("Realtime: Отписка от канала", zap.String("channel", name))
}

func (m *Manager) ActiveChannels() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) IsActive(name string) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	_, ok := m.channels[name]
	return ok
}

func (m *Manager) Status() ConnectionStatus {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.status
}

func (m *Manager) State() State {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.state
}

// Close снимает все каналы и сбрасывает состояние; менеджер можно использовать снова
func (m *Manager) Close() {
	logger.Debug("Realtime: Очистка всех подписок")
	for _, name := range m.ActiveChannels() {
		m.Unsubscribe(name)
	}
	m.mtx.Lock()
	m.status = ConnectionStatus{}
	m.state = StateIdle
	m.mtx.Unlock()
}

// Active - канал открыт и не снят и не заменён другим с тем же именем
func (c *Channel) Active() bool {
	c.m.mtx.Lock()
	defer c.m.mtx.Unlock()
	return c.m.channels[c.Name] == c && c.sub != nil
}
