package dto

import (
	"time"

	"habitTracker/internal/models/habit"
	"habitTracker/internal/models/task"

	"github.com/google/uuid"
)

type CreateTaskRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      task.Status   `json:"status,omitempty"`
	Priority    task.Priority `json:"priority,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
}

func (r CreateTaskRequest) Options() []task.TaskOption {
	options := []task.TaskOption{
		task.WithDescription(r.Description),
		task.WithStatus(r.Status),
		task.WithPriority(r.Priority),
	}
	if r.DueDate != nil {
		options = append(options, task.WithDueDate(*r.DueDate))
	}
	return options
}

// UpdateTaskRequest: незаданные поля не меняются. ID и Version нужны командам websocket,
// в REST id берётся из пути.
type UpdateTaskRequest struct {
	ID           uuid.UUID      `json:"id,omitempty"`
	Version      int            `json:"version,omitempty"`
	Title        *string        `json:"title,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Status       *task.Status   `json:"status,omitempty"`
	Priority     *task.Priority `json:"priority,omitempty"`
	DueDate      *time.Time     `json:"due_date,omitempty"`
	ClearDueDate bool           `json:"clear_due_date,omitempty"`
}

func (r UpdateTaskRequest) Options() []task.TaskOption {
	var options []task.TaskOption
	if r.Title != nil {
		// пустой заголовок должен дойти до валидации, а не потеряться
		title := *r.Title
		options = append(options, func(t *task.Task) { t.Title = title })
	}
	if r.Description != nil {
		options = append(options, task.WithDescription(*r.Description))
	}
	if r.Status != nil {
		status := *r.Status
		options = append(options, func(t *task.Task) { t.Status = status })
	}
	if r.Priority != nil {
		priority := *r.Priority
		options = append(options, func(t *task.Task) { t.Priority = priority })
	}
	switch {
	case r.ClearDueDate:
		options = append(options, task.WithDueDate(time.Time{}))
	case r.DueDate != nil:
		options = append(options, task.WithDueDate(*r.DueDate))
	}
	return options
}

type TaskResponse struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Version     int        `json:"version"`
	IsOverdue   bool       `json:"is_overdue"`
}

func FromTask(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Version:     t.Version,
		IsOverdue: t.Status != task.StatusCompleted &&
			t.DueDate != nil && t.DueDate.Before(time.Now()),
	}
}

func FromTaskList(tasks []*task.Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t)
	}
	return result
}

type CreateHabitRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	GoalType    habit.GoalType `json:"goal_type,omitempty"`
	GoalTarget  *int           `json:"goal_target,omitempty"`
	Color       string         `json:"color,omitempty"`
}

func (r CreateHabitRequest) Options() []habit.HabitOption {
	options := []habit.HabitOption{
		habit.WithDescription(r.Description),
		habit.WithGoalType(r.GoalType),
		habit.WithColor(r.Color),
	}
	if r.GoalTarget != nil {
		options = append(options, habit.WithGoalTarget(*r.GoalTarget))
	}
	return options
}

type UpdateHabitRequest struct {
	ID          uuid.UUID       `json:"id,omitempty"`
	Version     int             `json:"version,omitempty"`
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	GoalType    *habit.GoalType `json:"goal_type,omitempty"`
	GoalTarget  *int            `json:"goal_target,omitempty"`
	Color       *string         `json:"color,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

func (r UpdateHabitRequest) Options() []habit.HabitOption {
	var options []habit.HabitOption
	if r.Name != nil {
		name := *r.Name
		options = append(options, func(h *habit.Habit) { h.Name = name })
	}
	if r.Description != nil {
		options = append(options, habit.WithDescription(*r.Description))
	}
	if r.GoalType != nil {
		goalType := *r.GoalType
		options = append(options, func(h *habit.Habit) { h.GoalType = goalType })
	}
	if r.GoalTarget != nil {
		options = append(options, habit.WithGoalTarget(*r.GoalTarget))
	}
	if r.Color != nil {
		color := *r.Color
		options = append(options, func(h *habit.Habit) { h.Color = color })
	}
	if r.IsActive != nil {
		options = append(options, habit.WithActive(*r.IsActive))
	}
	return options
}

// HabitEventRequest - отметка дня; пустая дата означает сегодня
type HabitEventRequest struct {
	HabitID uuid.UUID `json:"habit_id,omitempty"`
	Date    string    `json:"date,omitempty"`
	Note    *string   `json:"note,omitempty"`
}

func (r HabitEventRequest) ParseDate(today habit.Date) (habit.Date, error) {
	if r.Date == "" {
		return today, nil
	}
	return habit.ParseDate(r.Date)
}

type IDRequest struct {
	ID uuid.UUID `json:"id"`
}

type RefreshAnalyticsRequest struct {
	Period string `json:"period,omitempty"`
}

type HabitsResponse struct {
	Habits []*habit.Habit `json:"habits"`
	Events []*habit.Event `json:"events"`
}
