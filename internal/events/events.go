// Package events - типизированная шина событий между срезами одной сессии
// (задачи, привычки, аналитика). Не очередь: события без слушателей теряются.
package events

import (
	"time"

	"habitTracker/internal/models/habit"
	"habitTracker/internal/models/task"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTaskCreated       Type = "TASK_CREATED"
	TypeTaskUpdated       Type = "TASK_UPDATED"
	TypeTaskDeleted       Type = "TASK_DELETED"
	TypeTaskStatusChanged Type = "TASK_STATUS_CHANGED"

	TypeHabitCreated     Type = "HABIT_CREATED"
	TypeHabitUpdated     Type = "HABIT_UPDATED"
	TypeHabitDeleted     Type = "HABIT_DELETED"
	TypeHabitCompleted   Type = "HABIT_COMPLETED"
	TypeHabitUncompleted Type = "HABIT_UNCOMPLETED"

	TypeAnalyticsRefreshNeeded Type = "ANALYTICS_REFRESH_NEEDED"
	TypeAnalyticsDataUpdated   Type = "ANALYTICS_DATA_UPDATED"
)

// Types - закрытый набор типов событий
var Types = []Type{
	TypeTaskCreated, TypeTaskUpdated, TypeTaskDeleted, TypeTaskStatusChanged,
	TypeHabitCreated, TypeHabitUpdated, TypeHabitDeleted, TypeHabitCompleted, TypeHabitUncompleted,
	TypeAnalyticsRefreshNeeded, TypeAnalyticsDataUpdated,
}

func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

type Trigger string

const (
	TriggerTaskChange  Trigger = "task_change"
	TriggerHabitChange Trigger = "habit_change"
	TriggerManual      Trigger = "manual"
	TriggerRealTime    Trigger = "real_time"
	TriggerDayRollover Trigger = "day_rollover"
)

// Event реализуют только структуры этого пакета
type Event interface {
	Kind() Type
	Owner() uuid.UUID
	At() time.Time
	sealed()
}

type Meta struct {
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (m Meta) Owner() uuid.UUID { return m.UserID }
func (m Meta) At() time.Time    { return m.Timestamp }
func (Meta) sealed()            {}

// Now подменяется в тестах
var Now = func() time.Time { return time.Now().UTC() }

func meta(userID uuid.UUID) Meta {
	return Meta{UserID: userID, Timestamp: Now()}
}

type TaskCreated struct {
	Meta
	TaskID    uuid.UUID `json:"task_id"`
	TaskTitle string    `json:"task_title"`
}

type TaskUpdated struct {
	Meta
	TaskID    uuid.UUID `json:"task_id"`
	TaskTitle string    `json:"task_title,omitempty"`
}

type TaskDeleted struct {
	Meta
	TaskID    uuid.UUID `json:"task_id"`
	TaskTitle string    `json:"task_title,omitempty"`
}

type TaskStatusChanged struct {
	Meta
	TaskID    uuid.UUID   `json:"task_id"`
	OldStatus task.Status `json:"old_status"`
	NewStatus task.Status `json:"new_status"`
}

type HabitCreated struct {
	Meta
	HabitID   uuid.UUID `json:"habit_id"`
	HabitName string    `json:"habit_name"`
}

type HabitUpdated struct {
	Meta
	HabitID   uuid.UUID `json:"habit_id"`
	HabitName string    `json:"habit_name,omitempty"`
}

type HabitDeleted struct {
	Meta
	HabitID   uuid.UUID `json:"habit_id"`
	HabitName string    `json:"habit_name,omitempty"`
}

type HabitCompleted struct {
	Meta
	HabitID   uuid.UUID  `json:"habit_id"`
	HabitName string     `json:"habit_name,omitempty"`
	EventDate habit.Date `json:"event_date"`
}

type HabitUncompleted struct {
	Meta
	HabitID   uuid.UUID  `json:"habit_id"`
	HabitName string     `json:"habit_name,omitempty"`
	EventDate habit.Date `json:"event_date"`
}

type AnalyticsRefreshNeeded struct {
	Meta
	Trigger Trigger `json:"trigger"`
}

type AnalyticsDataUpdated struct {
	Meta
	Trigger Trigger `json:"trigger"`
}

func (TaskCreated) Kind() Type            { return TypeTaskCreated }
func (TaskUpdated) Kind() Type            { return TypeTaskUpdated }
func (TaskDeleted) Kind() Type            { return TypeTaskDeleted }
func (TaskStatusChanged) Kind() Type      { return TypeTaskStatusChanged }
func (HabitCreated) Kind() Type           { return TypeHabitCreated }
func (HabitUpdated) Kind() Type           { return TypeHabitUpdated }
func (HabitDeleted) Kind() Type           { return TypeHabitDeleted }
func (HabitCompleted) Kind() Type         { return TypeHabitCompleted }
func (HabitUncompleted) Kind() Type       { return TypeHabitUncompleted }
func (AnalyticsRefreshNeeded) Kind() Type { return TypeAnalyticsRefreshNeeded }
func (AnalyticsDataUpdated) Kind() Type   { return TypeAnalyticsDataUpdated }

func NewTaskCreated(t *task.Task) TaskCreated {
	return TaskCreated{Meta: meta(t.UserID), TaskID: t.ID, TaskTitle: t.Title}
}

func NewTaskUpdated(t *task.Task) TaskUpdated {
	return TaskUpdated{Meta: meta(t.UserID), TaskID: t.ID, TaskTitle: t.Title}
}

func NewTaskDeleted(t *task.Task) TaskDeleted {
	return TaskDeleted{Meta: meta(t.UserID), TaskID: t.ID, TaskTitle: t.Title}
}

func NewTaskStatusChanged(t *task.Task, old task.Status) TaskStatusChanged {
	return TaskStatusChanged{Meta: meta(t.UserID), TaskID: t.ID, OldStatus: old, NewStatus: t.Status}
}

func NewHabitCreated(h *habit.Habit) HabitCreated {
	return HabitCreated{Meta: meta(h.UserID), HabitID: h.ID, HabitName: h.Name}
}

func NewHabitUpdated(h *habit.Habit) HabitUpdated {
	return HabitUpdated{Meta: meta(h.UserID), HabitID: h.ID, HabitName: h.Name}
}

func NewHabitDeleted(h *habit.Habit) HabitDeleted {
	return HabitDeleted{Meta: meta(h.UserID), HabitID: h.ID, HabitName: h.Name}
}

func NewHabitCompleted(e *habit.Event, name string) HabitCompleted {
	return HabitCompleted{Meta: meta(e.UserID), HabitID: e.HabitID, HabitName: name, EventDate: e.EventDate}
}

func NewHabitUncompleted(e *habit.Event, name string) HabitUncompleted {
	return HabitUncompleted{Meta: meta(e.UserID), HabitID: e.HabitID, HabitName: name, EventDate: e.EventDate}
}

func NewAnalyticsRefreshNeeded(userID uuid.UUID, trigger Trigger) AnalyticsRefreshNeeded {
	return AnalyticsRefreshNeeded{Meta: meta(userID), Trigger: trigger}
}

func NewAnalyticsDataUpdated(userID uuid.UUID, trigger Trigger) AnalyticsDataUpdated {
	return AnalyticsDataUpdated{Meta: meta(userID), Trigger: trigger}
}
