// Package changefeed описывает построчный поток изменений таблиц
// (INSERT/UPDATE/DELETE) и транспорты, через которые он доставляется.
package changefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"habitTracker/internal/logger"
	"habitTracker/internal/metrics"

	"go.uber.org/zap"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
	All    EventType = "ALL"
)

func (t EventType) Valid() bool {
	switch t {
	case Insert, Update, Delete, All:
		return true
	}
	return false
}

// Expand раскрывает ALL в три отдельных типа
func (t EventType) Expand() []EventType {
	if t == All {
		return []EventType{Insert, Update, Delete}
	}
	return []EventType{t}
}

type Change struct {
	Table           string          `json:"table"`
	Type            EventType       `json:"type"`
	New             json.RawMessage `json:"new,omitempty"`
	Old             json.RawMessage `json:"old,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
	// Partial: в New/Old только ключи строки, полную строку нужно дочитать
	Partial bool `json:"partial,omitempty"`
}

// Row возвращает актуальное состояние строки: New, а для DELETE - Old
func (c Change) Row() json.RawMessage {
	if c.Type == Delete || isNull(c.New) {
		return c.Old
	}
	return c.New
}

func (c Change) Decode(v any) error {
	row := c.Row()
	if isNull(row) {
		return fmt.Errorf("пустая строка в изменении %s %s", c.Type, c.Table)
	}
	return json.Unmarshal(row, v)
}

// Field достаёт значение колонки строки в виде строки
func (c Change) Field(column string) (string, bool) {
	row := c.Row()
	if isNull(row) {
		return "", false
	}
	var fields map[string]any
	if err := json.Unmarshal(row, &fields); err != nil {
		return "", false
	}
	v, ok := fields[column]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	default:
		return fmt.Sprint(val), true
	}
}

func (c Change) RecordID() string {
	id, _ := c.Field("id")
	return id
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
	StatusReconnecting Status = "RECONNECTING"
	// LAGGED: подписка теряла изменения, локальное состояние нужно перечитать
	StatusLagged Status = "LAGGED"
)

// Spec - одна физическая подписка: таблица, типы событий и фильтр строк
type Spec struct {
	Channel string
	Table   string
	Types   []EventType
	Filter  Filter
}

func (s Spec) Matches(c Change) bool {
	if c.Table != s.Table {
		return false
	}
	typeOK := false
	for _, t := range s.Types {
		if t == All || t == c.Type {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return false
	}
	return s.Filter.Match(c)
}

type Handler struct {
	Deliver func(Change)
	Status  func(Status, error)
}

// Notify и Dispatch терпимо относятся к незаданным колбэкам
func (h Handler) Notify(s Status, err error) {
	if h.Status != nil {
		h.Status(s, err)
	}
}

func (h Handler) Dispatch(c Change) {
	if h.Deliver != nil {
		h.Deliver(c)
	}
}

type Subscription interface {
	Close() error
}

type Source interface {
	Open(ctx context.Context, spec Spec, h Handler) (Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

type discard struct{}

func (discard) Publish(context.Context, Change) error { return nil }

// Discard используется, когда изменения публикует сама база (триггеры postgres)
var Discard Publisher = discard{}

// Publish собирает изменение из старой и новой версии строки и отправляет его.
// Ошибка публикации не откатывает мутацию: доставка best-effort.
func Publish(ctx context.Context, p Publisher, table string, typ EventType, oldRow, newRow any) {
	if p == nil {
		return
	}
	change := Change{
		Table:           table,
		Type:            typ,
		CommitTimestamp: time.Now().UTC(),
	}
	var err error
	if newRow != nil {
		if change.New, err = json.Marshal(newRow); err != nil {
			logger.Error("Changefeed: Не удалось сериализовать строку", err, zap.String("table", table))
			return
		}
	}
	if oldRow != nil {
		if change.Old, err = json.Marshal(oldRow); err != nil {
			logger.Error("Changefeed: Не удалось сериализовать строку", err, zap.String("table", table))
			return
		}
	}

	if err := p.Publish(ctx, change); err != nil {
		metrics.FeedPublishErrors.WithLabelValues(table).Inc()
		logger.Warn("Changefeed: Ошибка публикации изменения",
			zap.Error(err),
			zap.String("table", table),
			zap.String("type", string(typ)))
		return
	}
	metrics.FeedPublished.WithLabelValues(table, string(typ)).Inc()
}
