package handlers

import (
	"context"

	"habitTracker/internal/analytics"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/models/task"
	"habitTracker/internal/service"

	"github.com/google/uuid"
)

type TaskService interface {
	HealthCheck(ctx context.Context) error
	CreateTask(ctx context.Context, userID uuid.UUID, title string, options ...task.TaskOption) (*task.Task, error)
	GetTask(ctx context.Context, userID, id uuid.UUID) (*task.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID) ([]*task.Task, error)
	UpdateTask(ctx context.Context, userID, id uuid.UUID, expectedVersion int, options ...task.TaskOption) (*task.Task, error)
	DeleteTask(ctx context.Context, userID, id uuid.UUID) (*task.Task, error)
}

type HabitService interface {
	Today() habit.Date
	HealthCheck(ctx context.Context) error
	CreateHabit(ctx context.Context, userID uuid.UUID, name string, options ...habit.HabitOption) (*habit.Habit, error)
	GetHabit(ctx context.Context, userID, id uuid.UUID) (*habit.Habit, error)
	ListHabits(ctx context.Context, userID uuid.UUID) ([]*habit.Habit, error)
	UpdateHabit(ctx context.Context, userID, id uuid.UUID, expectedVersion int, options ...habit.HabitOption) (*habit.Habit, error)
	DeleteHabit(ctx context.Context, userID, id uuid.UUID) (*habit.Habit, error)
	Complete(ctx context.Context, userID, habitID uuid.UUID, date habit.Date, note *string) (*habit.Event, error)
	Uncomplete(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error)
	ListEvents(ctx context.Context, userID, habitID uuid.UUID) ([]*habit.Event, error)
}

type AnalyticsService interface {
	Summary(ctx context.Context, userID uuid.UUID) (*analytics.Summary, error)
	Streaks(ctx context.Context, userID uuid.UUID) ([]analytics.StreakData, error)
	CompletionRates(ctx context.Context, userID uuid.UUID, period analytics.Period) ([]analytics.CompletionRateData, error)
	Chart(ctx context.Context, userID, habitID uuid.UUID, days int) (*analytics.StreakChartData, error)
	ExportCSV(ctx context.Context, userID uuid.UUID, exportType analytics.ExportType, period analytics.Period) (string, string, error)
}

var (
	_ TaskService      = (*service.TaskService)(nil)
	_ HabitService     = (*service.HabitService)(nil)
	_ AnalyticsService = (*service.AnalyticsService)(nil)
)
