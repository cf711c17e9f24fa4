package slices

import (
	"encoding/json"

	"habitTracker/internal/handlers/dto"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/realtime"
	"habitTracker/internal/service"
)

type FrameType string

const (
	FrameSnapshot  FrameType = "snapshot"
	FrameTasks     FrameType = "tasks"
	FrameHabits    FrameType = "habits"
	FrameAnalytics FrameType = "analytics"
	FrameToast     FrameType = "toast"
	FrameStatus    FrameType = "status"
	FrameError     FrameType = "error"
)

// Frame - сообщение от сервера во вкладку браузера
type Frame struct {
	Type      FrameType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

type CommandType string

const (
	CmdCreateTask       CommandType = "create_task"
	CmdUpdateTask       CommandType = "update_task"
	CmdDeleteTask       CommandType = "delete_task"
	CmdCreateHabit      CommandType = "create_habit"
	CmdUpdateHabit      CommandType = "update_habit"
	CmdDeleteHabit      CommandType = "delete_habit"
	CmdToggleHabit      CommandType = "toggle_habit"
	CmdRefreshAnalytics CommandType = "refresh_analytics"
	CmdReload           CommandType = "reload"
)

// Command - действие пользователя из вкладки
type Command struct {
	ID   string          `json:"id,omitempty"`
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ToastLevel string

const (
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
)

type Toast struct {
	Level   ToastLevel `json:"level"`
	Message string     `json:"message"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SnapshotData struct {
	Tasks    []dto.TaskResponse `json:"tasks"`
	Habits   []*habit.Habit     `json:"habits"`
	Events   []*habit.Event     `json:"events"`
	Realtime realtime.Snapshot  `json:"realtime"`
}

type TasksData struct {
	Tasks []dto.TaskResponse `json:"tasks"`
}

type AnalyticsData struct {
	Loading  bool              `json:"loading"`
	Error    string            `json:"error,omitempty"`
	Trigger  string            `json:"trigger,omitempty"`
	Overview *service.Overview `json:"overview,omitempty"`
}
