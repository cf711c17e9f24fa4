package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"habitTracker/internal/analytics"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/models/task"
	repo "habitTracker/internal/repository"
	"habitTracker/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTaskRepository - мок репозитория задач
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskRepository) Create(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) Update(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) DeleteSoft(ctx context.Context, t *task.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*task.Task, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

// MockHabitRepository - мок репозитория привычек и отметок
type MockHabitRepository struct {
	mock.Mock
}

func (m *MockHabitRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockHabitRepository) Create(ctx context.Context, h *habit.Habit) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHabitRepository) Update(ctx context.Context, h *habit.Habit) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHabitRepository) DeleteSoft(ctx context.Context, h *habit.Habit) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHabitRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*habit.Habit, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*habit.Habit), args.Error(1)
}

func (m *MockHabitRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*habit.Habit, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*habit.Habit), args.Error(1)
}

func (m *MockHabitRepository) Upsert(ctx context.Context, e *habit.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockHabitRepository) SoftDelete(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error) {
	args := m.Called(ctx, userID, habitID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*habit.Event), args.Error(1)
}

func (m *MockHabitRepository) Find(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error) {
	args := m.Called(ctx, userID, habitID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*habit.Event), args.Error(1)
}

func (m *MockHabitRepository) ListEvents(ctx context.Context, userID, habitID uuid.UUID) ([]*habit.Event, error) {
	args := m.Called(ctx, userID, habitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*habit.Event), args.Error(1)
}

func (m *MockHabitRepository) ListUserEvents(ctx context.Context, userID uuid.UUID) ([]*habit.Event, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*habit.Event), args.Error(1)
}

var _ service.TaskRepository = (*MockTaskRepository)(nil)
var _ service.HabitRepository = (*MockHabitRepository)(nil)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	busErr, ok := service.AsBusinessError(err)
	require.True(t, ok, "ожидалась BusinessError, получено %v", err)
	assert.Equal(t, code, busErr.Code)
}

// TestTaskService_HealthCheck тестирует HealthCheck
func TestTaskService_HealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*MockTaskRepository)
		expectError bool
	}{
		{
			name: "success - health check passes",
			setupMock: func(m *MockTaskRepository) {
				m.On("HealthCheck", mock.Anything).Return(nil)
			},
		},
		{
			name: "error - health check fails",
			setupMock: func(m *MockTaskRepository) {
				m.On("HealthCheck", mock.Anything).Return(errors.New("db connection failed"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			tt.setupMock(mockRepo)

			svc := service.NewTaskService(mockRepo)
			err := svc.HealthCheck(context.Background())

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "проверка здоровья сервиса")
			} else {
				assert.NoError(t, err)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

// TestTaskService_CreateTask тестирует создание задачи
func TestTaskService_CreateTask(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("success - defaults applied", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(t *task.Task) bool {
			return t.Title == "Купить молоко" && t.UserID == userID &&
				t.Status == task.StatusPending && t.Priority == task.PriorityMedium
		})).Return(nil)

		svc := service.NewTaskService(mockRepo)
		result, err := svc.CreateTask(ctx, userID, "  Купить молоко ")

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, result.ID)
		mockRepo.AssertExpectations(t)
	})

	t.Run("success - options override defaults", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

		svc := service.NewTaskService(mockRepo)
		result, err := svc.CreateTask(ctx, userID, "Отчёт",
			task.WithPriority(task.PriorityHigh),
			task.WithDescription("квартальный"))

		require.NoError(t, err)
		assert.Equal(t, task.PriorityHigh, result.Priority)
		require.NotNil(t, result.Description)
		assert.Equal(t, "квартальный", *result.Description)
	})

	t.Run("error - empty title", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)

		svc := service.NewTaskService(mockRepo)
		_, err := svc.CreateTask(ctx, userID, "   ")

		requireCode(t, err, service.CodeValidation)
		mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("error - unknown priority", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)

		svc := service.NewTaskService(mockRepo)
		_, err := svc.CreateTask(ctx, userID, "Задача", task.WithPriority("urgent"))

		requireCode(t, err, service.CodeValidation)
		mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

// TestTaskService_UpdateTask тестирует обновление задачи
func TestTaskService_UpdateTask(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	taskID := uuid.New()

	existing := func() *task.Task {
		return &task.Task{
			ID:       taskID,
			UserID:   userID,
			Title:    "Old Title",
			Status:   task.StatusPending,
			Priority: task.PriorityMedium,
			Version:  3,
		}
	}

	tests := []struct {
		name      string
		version   int
		setupMock func(*MockTaskRepository)
		errCode   string
	}{
		{
			name:    "success - latest version",
			version: 0,
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(existing(), nil)
				m.On("Update", mock.Anything, mock.MatchedBy(func(t *task.Task) bool {
					return t.Title == "New Title" && t.Status == task.StatusCompleted
				})).Return(nil)
			},
		},
		{
			name:    "success - matching version",
			version: 3,
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(existing(), nil)
				m.On("Update", mock.Anything, mock.Anything).Return(nil)
			},
		},
		{
			name:    "error - stale version",
			version: 2,
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(existing(), nil)
			},
			errCode: service.CodeVersionConflict,
		},
		{
			name:    "error - concurrent update in storage",
			version: 0,
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(existing(), nil)
				m.On("Update", mock.Anything, mock.Anything).Return(repo.ErrVersionConflict)
			},
			errCode: service.CodeVersionConflict,
		},
		{
			name:    "error - not found",
			version: 0,
			setupMock: func(m *MockTaskRepository) {
				m.On("GetByID", mock.Anything, userID, taskID).Return(nil, repo.ErrNotFound)
			},
			errCode: service.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTaskRepository)
			tt.setupMock(mockRepo)

			svc := service.NewTaskService(mockRepo)
			result, err := svc.UpdateTask(ctx, userID, taskID, tt.version,
				task.WithTitle("New Title"),
				task.WithStatus(task.StatusCompleted))

			if tt.errCode != "" {
				requireCode(t, err, tt.errCode)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "New Title", result.Title)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestTaskService_DeleteTask(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	taskID := uuid.New()

	t.Run("success", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		mockRepo.On("GetByID", mock.Anything, userID, taskID).Return(&task.Task{ID: taskID, UserID: userID, Version: 1}, nil)
		mockRepo.On("DeleteSoft", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			now := time.Now()
			args.Get(1).(*task.Task).DeletedAt = &now
		}).Return(nil)

		svc := service.NewTaskService(mockRepo)
		deleted, err := svc.DeleteTask(ctx, userID, taskID)

		require.NoError(t, err)
		assert.True(t, deleted.Deleted())
		mockRepo.AssertExpectations(t)
	})

	t.Run("error - foreign task looks missing", func(t *testing.T) {
		mockRepo := new(MockTaskRepository)
		mockRepo.On("GetByID", mock.Anything, userID, taskID).Return(nil, repo.ErrNotFound)

		svc := service.NewTaskService(mockRepo)
		_, err := svc.DeleteTask(ctx, userID, taskID)

		requireCode(t, err, service.CodeNotFound)
	})
}

func TestTaskService_ListTasks_WrapsError(t *testing.T) {
	mockRepo := new(MockTaskRepository)
	mockRepo.On("ListByUser", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	svc := service.NewTaskService(mockRepo)
	_, err := svc.ListTasks(context.Background(), uuid.New())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "получение задач")
	_, isBusiness := service.AsBusinessError(err)
	assert.False(t, isBusiness)
}

// TestHabitService_GoalTargetValidation: неверная цель отклоняется до обращения к хранилищу
func TestHabitService_GoalTargetValidation(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	for _, target := range []int{0, -1, -10} {
		mockRepo := new(MockHabitRepository)
		svc := service.NewHabitService(mockRepo, time.UTC)

		_, err := svc.CreateHabit(ctx, userID, "Бег", habit.WithGoalTarget(target))
		requireCode(t, err, service.CodeValidation)

		_, err = svc.UpdateHabit(ctx, userID, uuid.New(), 0, habit.WithGoalTarget(target))
		requireCode(t, err, service.CodeValidation)

		assert.Empty(t, mockRepo.Calls, "goal_target=%d: хранилище не должно вызываться", target)
	}
}

func TestHabitService_CreateHabit(t *testing.T) {
	mockRepo := new(MockHabitRepository)
	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(h *habit.Habit) bool {
		return h.Name == "Чтение" && h.GoalTarget == 3 && h.Color == habit.DefaultColor && h.IsActive
	})).Return(nil)

	svc := service.NewHabitService(mockRepo, time.UTC)
	h, err := svc.CreateHabit(context.Background(), uuid.New(), "Чтение", habit.WithGoalTarget(3))

	require.NoError(t, err)
	assert.Equal(t, habit.GoalDaily, h.GoalType)
	mockRepo.AssertExpectations(t)
}

func TestHabitService_CreateHabit_BadColor(t *testing.T) {
	mockRepo := new(MockHabitRepository)
	svc := service.NewHabitService(mockRepo, time.UTC)

	_, err := svc.CreateHabit(context.Background(), uuid.New(), "Чтение", habit.WithColor("red"))

	requireCode(t, err, service.CodeValidation)
	assert.Empty(t, mockRepo.Calls)
}

func TestHabitService_Toggle(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	habitID := uuid.New()
	svcToday := service.NewHabitService(new(MockHabitRepository), time.UTC).Today()

	t.Run("completes when not yet done", func(t *testing.T) {
		mockRepo := new(MockHabitRepository)
		mockRepo.On("Find", mock.Anything, userID, habitID, svcToday).Return(nil, repo.ErrNotFound)
		mockRepo.On("GetByID", mock.Anything, userID, habitID).Return(&habit.Habit{ID: habitID, UserID: userID}, nil)
		mockRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(e *habit.Event) bool {
			return e.HabitID == habitID && e.EventDate == svcToday
		})).Return(nil)

		svc := service.NewHabitService(mockRepo, time.UTC)
		e, completed, err := svc.Toggle(ctx, userID, habitID, svcToday, nil)

		require.NoError(t, err)
		assert.True(t, completed)
		assert.Equal(t, svcToday, e.EventDate)
		mockRepo.AssertExpectations(t)
	})

	t.Run("uncompletes when done", func(t *testing.T) {
		mockRepo := new(MockHabitRepository)
		now := time.Now()
		mockRepo.On("Find", mock.Anything, userID, habitID, svcToday).Return(&habit.Event{HabitID: habitID}, nil)
		mockRepo.On("SoftDelete", mock.Anything, userID, habitID, svcToday).Return(&habit.Event{HabitID: habitID, DeletedAt: &now}, nil)

		svc := service.NewHabitService(mockRepo, time.UTC)
		e, completed, err := svc.Toggle(ctx, userID, habitID, svcToday, nil)

		require.NoError(t, err)
		assert.False(t, completed)
		assert.True(t, e.Deleted())
		mockRepo.AssertExpectations(t)
	})

	t.Run("future date rejected", func(t *testing.T) {
		mockRepo := new(MockHabitRepository)
		svc := service.NewHabitService(mockRepo, time.UTC)

		_, _, err := svc.Toggle(ctx, userID, habitID, svcToday.AddDays(2), nil)

		requireCode(t, err, service.CodeValidation)
		assert.Empty(t, mockRepo.Calls)
	})
}

func TestHabitService_CompleteUnknownHabit(t *testing.T) {
	mockRepo := new(MockHabitRepository)
	userID := uuid.New()
	habitID := uuid.New()
	mockRepo.On("GetByID", mock.Anything, userID, habitID).Return(nil, repo.ErrNotFound)

	svc := service.NewHabitService(mockRepo, time.UTC)
	_, err := svc.Complete(context.Background(), userID, habitID, svc.Today(), nil)

	requireCode(t, err, service.CodeNotFound)
	mockRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestAnalyticsService_FetchErrorAborts(t *testing.T) {
	tasks := new(MockTaskRepository)
	habits := new(MockHabitRepository)
	userID := uuid.New()

	habits.On("ListByUser", mock.Anything, userID).Return([]*habit.Habit{}, nil)
	habits.On("ListUserEvents", mock.Anything, userID).Return(nil, errors.New("connection reset"))
	tasks.On("ListByUser", mock.Anything, userID).Return([]*task.Task{}, nil).Maybe()

	svc := service.NewAnalyticsService(tasks, habits, time.UTC)

	summary, err := svc.Summary(context.Background(), userID)
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAnalyticsService_Overview(t *testing.T) {
	tasks := new(MockTaskRepository)
	habits := new(MockHabitRepository)
	userID := uuid.New()
	svc := service.NewAnalyticsService(tasks, habits, time.UTC)
	today := svc.Today()

	h := &habit.Habit{ID: uuid.New(), UserID: userID, Name: "Бег", GoalTarget: 1, IsActive: true}
	events := []*habit.Event{
		{ID: uuid.New(), HabitID: h.ID, UserID: userID, EventDate: today},
		{ID: uuid.New(), HabitID: h.ID, UserID: userID, EventDate: today.AddDays(-1)},
	}
	habits.On("ListByUser", mock.Anything, userID).Return([]*habit.Habit{h}, nil)
	habits.On("ListUserEvents", mock.Anything, userID).Return(events, nil)
	tasks.On("ListByUser", mock.Anything, userID).Return([]*task.Task{
		{ID: uuid.New(), UserID: userID, Status: task.StatusCompleted},
		{ID: uuid.New(), UserID: userID, Status: task.StatusPending},
	}, nil)

	overview, err := svc.Overview(context.Background(), userID, analytics.PeriodWeek)

	require.NoError(t, err)
	require.Len(t, overview.Streaks, 1)
	assert.Equal(t, 2, overview.Streaks[0].CurrentStreak)
	assert.Equal(t, 1, overview.Summary.TotalHabits)
	assert.Equal(t, 2, overview.Summary.TotalTasks)
	assert.Equal(t, 1, overview.Summary.CompletedTasks)
	require.Len(t, overview.CompletionRates, 1)
	assert.Equal(t, analytics.PeriodWeek, overview.CompletionRates[0].Period)
}

func TestAnalyticsService_ExportCSV(t *testing.T) {
	tasks := new(MockTaskRepository)
	habits := new(MockHabitRepository)
	userID := uuid.New()
	habits.On("ListByUser", mock.Anything, userID).Return([]*habit.Habit{}, nil)
	habits.On("ListUserEvents", mock.Anything, userID).Return([]*habit.Event{}, nil)
	tasks.On("ListByUser", mock.Anything, userID).Return([]*task.Task{}, nil)

	svc := service.NewAnalyticsService(tasks, habits, time.UTC)
	name, body, err := svc.ExportCSV(context.Background(), userID, analytics.ExportSummary, analytics.PeriodMonth)

	require.NoError(t, err)
	assert.Equal(t, "analytics-summary-"+svc.Today().String()+".csv", name)
	assert.Contains(t, body, `"Metric"`)
}
