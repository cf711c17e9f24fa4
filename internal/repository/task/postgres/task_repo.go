package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/logger"
	"habitTracker/internal/models/task"
	repo "habitTracker/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const taskColumns = `id, user_id, title, description, status, priority, due_date,
				created_at, updated_at, deleted_at, version`

type Storage struct {
	pool *pgxpool.Pool
	pub  changefeed.Publisher
}

// New принимает общий пул; pub получает изменения строк после каждой мутации
func New(pool *pgxpool.Pool, pub changefeed.Publisher) *Storage {
	if pub == nil {
		pub = changefeed.Discard
	}
	return &Storage{pool: pool, pub: pub}
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	if err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task) error {
	start := time.Now()

	query := `INSERT INTO tasks
				(id, user_id, title, description, status, priority, due_date, version)
				VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
				RETURNING created_at, updated_at, version`

	err := s.pool.QueryRow(ctx, query,
		taskToCreate.ID,
		taskToCreate.UserID,
		taskToCreate.Title,
		taskToCreate.Description,
		taskToCreate.Status,
		taskToCreate.Priority,
		taskToCreate.DueDate,
	).Scan(&taskToCreate.CreatedAt, &taskToCreate.UpdatedAt, &taskToCreate.Version)

	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление задачи: %w", err)
	}

	if time.Since(start) > time.Millisecond*50 {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}

	changefeed.Publish(ctx, s.pub, task.Table, changefeed.Insert, nil, taskToCreate)
	return nil
}

func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	start := time.Now()

	query := `UPDATE tasks
			SET title = $1,
				description = $2,
				status = $3,
				priority = $4,
				due_date = $5,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $6 AND user_id = $7 AND version = $8 AND deleted_at IS NULL
			RETURNING updated_at, version`

	err := s.pool.QueryRow(ctx, query,
		taskToUpdate.Title,
		taskToUpdate.Description,
		taskToUpdate.Status,
		taskToUpdate.Priority,
		taskToUpdate.DueDate,
		taskToUpdate.ID,
		taskToUpdate.UserID,
		taskToUpdate.Version,
	).Scan(&taskToUpdate.UpdatedAt, &taskToUpdate.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Warn("Repository: Конфликт версий при обновлении задачи",
				zap.String("task_id", taskToUpdate.ID.String()),
				zap.Int("expected_version", taskToUpdate.Version))
			return repo.ErrVersionConflict
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return fmt.Errorf("обновление задачи: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленная операция", zap.Duration("ms", time.Since(start)))
	}

	changefeed.Publish(ctx, s.pub, task.Table, changefeed.Update, nil, taskToUpdate)
	return nil
}

// мягкое удаление: строка остаётся, проставляется deleted_at
func (s *Storage) DeleteSoft(ctx context.Context, taskToDelete *task.Task) error {
	start := time.Now()

	query := `UPDATE tasks
				SET deleted_at = NOW(),
				updated_at = NOW(),
				version = version + 1
			WHERE id = $1 AND user_id = $2 AND version = $3 AND deleted_at IS NULL
			RETURNING deleted_at, updated_at, version`

	err := s.pool.QueryRow(ctx, query, taskToDelete.ID, taskToDelete.UserID, taskToDelete.Version).
		Scan(&taskToDelete.DeletedAt, &taskToDelete.UpdatedAt, &taskToDelete.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Warn("Repository: Конфликт версий при мягком удалении",
				zap.String("task_id", taskToDelete.ID.String()),
				zap.Int("expected_version", taskToDelete.Version))
			return repo.ErrVersionConflict
		}

		logger.Error("Repository: Мягкое удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("мягкое удаление: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленная операция", zap.Duration("ms", time.Since(start)))
	}

	changefeed.Publish(ctx, s.pub, task.Table, changefeed.Update, nil, taskToDelete)
	return nil
}

func (s *Storage) GetByID(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + taskColumns + `
				FROM tasks
				WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	found, err := scanTask(s.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}
	return found, nil
}

// ListByUser возвращает неудалённые задачи владельца, новые первыми
func (s *Storage) ListByUser(ctx context.Context, userID uuid.UUID) ([]*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + taskColumns + `
				FROM tasks
				WHERE user_id = $1 AND deleted_at IS NULL
				ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования задачи", err)
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (*task.Task, error) {
	t := &task.Task{}
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.DueDate,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
