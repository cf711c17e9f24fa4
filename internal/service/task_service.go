package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"habitTracker/internal/logger"
	"habitTracker/internal/models/task"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// здесь происходит проверка ошибок бизнес-логики

type TaskRepository interface {
	HealthCheck(context.Context) error
	Create(context.Context, *task.Task) error
	Update(context.Context, *task.Task) error
	DeleteSoft(context.Context, *task.Task) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*task.Task, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*task.Task, error)
}

type TaskService struct {
	repo TaskRepository
}

func NewTaskService(repo TaskRepository) *TaskService {
	return &TaskService{
		repo: repo,
	}
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		return fmt.Errorf("проверка здоровья сервиса: %w", err)
	}
	return nil
}

func validateTask(t *task.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return NewValidationError("title", "не может быть пустым")
	}
	if !t.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("неизвестный статус %q", t.Status))
	}
	if !t.Priority.Valid() {
		return NewValidationError("priority", fmt.Sprintf("неизвестный приоритет %q", t.Priority))
	}
	return nil
}

func (s *TaskService) CreateTask(ctx context.Context, userID uuid.UUID, title string, options ...task.TaskOption) (*task.Task, error) {
	newTask := &task.Task{
		ID:       uuid.New(),
		UserID:   userID,
		Title:    strings.TrimSpace(title),
		Status:   task.StatusPending,
		Priority: task.PriorityMedium,
	}
	task.Apply(newTask, options...)

	if err := validateTask(newTask); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, newTask); err != nil {
		return nil, fmt.Errorf("создание задачи: %w", err)
	}
	logger.Info("Service: Задача создана",
		zap.String("task_id", newTask.ID.String()),
		zap.String("user_id", userID.String()))
	return newTask, nil
}

func (s *TaskService) GetTask(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fromRepo(err, ResourceTask, id.String(), 0, "получение задачи")
	}
	return t, nil
}

func (s *TaskService) ListTasks(ctx context.Context, userID uuid.UUID) ([]*task.Task, error) {
	tasks, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	return tasks, nil
}

// UpdateTask применяет опции к актуальной версии задачи.
// expectedVersion = 0 означает "последняя версия".
func (s *TaskService) UpdateTask(ctx context.Context, userID, id uuid.UUID, expectedVersion int, options ...task.TaskOption) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fromRepo(err, ResourceTask, id.String(), expectedVersion, "получение задачи")
	}
	if expectedVersion > 0 && t.Version != expectedVersion {
		return nil, NewVersionConflict(ResourceTask, id.String(), expectedVersion)
	}

	task.Apply(t, options...)
	if err := validateTask(t); err != nil {
		return nil, err
	}

	version := t.Version
	if err := s.repo.Update(ctx, t); err != nil {
		logger.Warn("Service: Не удалось обновить задачу",
			zap.String("task_id", id.String()),
			zap.Error(err))
		return nil, fromRepo(err, ResourceTask, id.String(), version, "обновление задачи")
	}
	return t, nil
}

func (s *TaskService) SetStatus(ctx context.Context, userID, id uuid.UUID, status task.Status) (*task.Task, error) {
	return s.UpdateTask(ctx, userID, id, 0, task.WithStatus(status))
}

// DeleteTask мягко удаляет задачу и возвращает её последнее состояние
func (s *TaskService) DeleteTask(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fromRepo(err, ResourceTask, id.String(), 0, "получение задачи")
	}
	if err := s.repo.DeleteSoft(ctx, t); err != nil {
		return nil, fromRepo(err, ResourceTask, id.String(), t.Version, "удаление задачи")
	}
	logger.Info("Service: Задача удалена",
		zap.String("task_id", id.String()),
		zap.Time("deleted_at", derefTime(t.DeletedAt)))
	return t, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
