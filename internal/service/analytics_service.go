package service

import (
	"context"
	"fmt"
	"time"

	"habitTracker/internal/analytics"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/models/task"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type AnalyticsService struct {
	tasks  TaskRepository
	habits HabitRepository
	loc    *time.Location
	now    func() time.Time
}

func NewAnalyticsService(tasks TaskRepository, habits HabitRepository, loc *time.Location) *AnalyticsService {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsService{
		tasks:  tasks,
		habits: habits,
		loc:    loc,
		now:    time.Now,
	}
}

func (s *AnalyticsService) Today() habit.Date {
	return habit.DateOf(s.now().In(s.loc))
}

type dataset struct {
	habits []*habit.Habit
	events []*habit.Event
	tasks  []*task.Task
}

// load читает все данные пользователя параллельно; любая ошибка прерывает расчёт
func (s *AnalyticsService) load(ctx context.Context, userID uuid.UUID, withTasks bool) (*dataset, error) {
	data := &dataset{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		habits, err := s.habits.ListByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("получение привычек: %w", err)
		}
		data.habits = habits
		return nil
	})
	g.Go(func() error {
		events, err := s.habits.ListUserEvents(gctx, userID)
		if err != nil {
			return fmt.Errorf("получение отметок: %w", err)
		}
		data.events = events
		return nil
	})
	if withTasks {
		g.Go(func() error {
			tasks, err := s.tasks.ListByUser(gctx, userID)
			if err != nil {
				return fmt.Errorf("получение задач: %w", err)
			}
			data.tasks = tasks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("загрузка данных аналитики: %w", err)
	}
	return data, nil
}

func (s *AnalyticsService) Summary(ctx context.Context, userID uuid.UUID) (*analytics.Summary, error) {
	data, err := s.load(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	summary := analytics.Summarize(data.habits, data.events, data.tasks, s.Today())
	return &summary, nil
}

func (s *AnalyticsService) Streaks(ctx context.Context, userID uuid.UUID) ([]analytics.StreakData, error) {
	data, err := s.load(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return analytics.Streaks(data.habits, data.events, s.Today()), nil
}

func (s *AnalyticsService) CompletionRates(ctx context.Context, userID uuid.UUID, period analytics.Period) ([]analytics.CompletionRateData, error) {
	data, err := s.load(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return analytics.CompletionRates(data.habits, data.events, period, s.Today()), nil
}

func (s *AnalyticsService) Chart(ctx context.Context, userID, habitID uuid.UUID, days int) (*analytics.StreakChartData, error) {
	h, err := s.habits.GetByID(ctx, userID, habitID)
	if err != nil {
		return nil, fromRepo(err, ResourceHabit, habitID.String(), 0, "получение привычки")
	}
	events, err := s.habits.ListEvents(ctx, userID, habitID)
	if err != nil {
		return nil, fmt.Errorf("получение отметок привычки: %w", err)
	}
	dates := make([]habit.Date, 0, len(events))
	for _, e := range events {
		if !e.Deleted() {
			dates = append(dates, e.EventDate)
		}
	}
	chart := analytics.StreakChart(h, dates, s.Today(), days)
	return &chart, nil
}

// Overview - всё, что показывает экран аналитики, за одну загрузку
type Overview struct {
	Summary         analytics.Summary              `json:"summary"`
	Streaks         []analytics.StreakData         `json:"streaks"`
	CompletionRates []analytics.CompletionRateData `json:"completion_rates"`
	Period          analytics.Period               `json:"period"`
	Today           habit.Date                     `json:"today"`
}

func (s *AnalyticsService) Overview(ctx context.Context, userID uuid.UUID, period analytics.Period) (*Overview, error) {
	data, err := s.load(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	return &Overview{
		Summary:         analytics.Summarize(data.habits, data.events, data.tasks, today),
		Streaks:         analytics.Streaks(data.habits, data.events, today),
		CompletionRates: analytics.CompletionRates(data.habits, data.events, period, today),
		Period:          period,
		Today:           today,
	}, nil
}

// ExportCSV возвращает имя файла и содержимое выгрузки
func (s *AnalyticsService) ExportCSV(ctx context.Context, userID uuid.UUID, exportType analytics.ExportType, period analytics.Period) (string, string, error) {
	overview, err := s.Overview(ctx, userID, period)
	if err != nil {
		return "", "", err
	}
	export := analytics.Export{
		Streaks:         overview.Streaks,
		CompletionRates: overview.CompletionRates,
		Summary:         &overview.Summary,
		Period:          period,
	}
	return analytics.ExportFilename(exportType, overview.Today), export.CSV(exportType), nil
}
