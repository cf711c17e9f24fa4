package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/logger"
	"habitTracker/internal/models/habit"
	repo "habitTracker/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const habitColumns = `id, user_id, name, description, goal_type, goal_target, color, is_active,
				created_at, updated_at, deleted_at, version`

const eventColumns = `id, habit_id, user_id, event_date, note, created_at, updated_at, deleted_at`

type Storage struct {
	pool *pgxpool.Pool
	pub  changefeed.Publisher
}

func New(pool *pgxpool.Pool, pub changefeed.Publisher) *Storage {
	if pub == nil {
		pub = changefeed.Discard
	}
	return &Storage{pool: pool, pub: pub}
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func (s *Storage) Create(ctx context.Context, h *habit.Habit) error {
	start := time.Now()

	query := `INSERT INTO habits
				(id, user_id, name, description, goal_type, goal_target, color, is_active, version)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
				RETURNING created_at, updated_at, version`

	err := s.pool.QueryRow(ctx, query,
		h.ID, h.UserID, h.Name, h.Description, h.GoalType, h.GoalTarget, h.Color, h.IsActive,
	).Scan(&h.CreatedAt, &h.UpdatedAt, &h.Version)
	if err != nil {
		logger.Error("Repository: Не удалось добавить привычку", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление привычки: %w", err)
	}

	changefeed.Publish(ctx, s.pub, habit.Table, changefeed.Insert, nil, h)
	return nil
}

func (s *Storage) Update(ctx context.Context, h *habit.Habit) error {
	start := time.Now()

	query := `UPDATE habits
			SET name = $1,
				description = $2,
				goal_type = $3,
				goal_target = $4,
				color = $5,
				is_active = $6,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $7 AND user_id = $8 AND version = $9 AND deleted_at IS NULL
			RETURNING updated_at, version`

	err := s.pool.QueryRow(ctx, query,
		h.Name, h.Description, h.GoalType, h.GoalTarget, h.Color, h.IsActive,
		h.ID, h.UserID, h.Version,
	).Scan(&h.UpdatedAt, &h.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Warn("Repository: Конфликт версий при обновлении привычки",
				zap.String("habit_id", h.ID.String()),
				zap.Int("expected_version", h.Version))
			return repo.ErrVersionConflict
		}
		logger.Error("Repository: Не удалось обновить привычку", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("обновление привычки: %w", err)
	}

	changefeed.Publish(ctx, s.pub, habit.Table, changefeed.Update, nil, h)
	return nil
}

func (s *Storage) DeleteSoft(ctx context.Context, h *habit.Habit) error {
	start := time.Now()

	query := `UPDATE habits
				SET deleted_at = NOW(),
				updated_at = NOW(),
				version = version + 1
			WHERE id = $1 AND user_id = $2 AND version = $3 AND deleted_at IS NULL
			RETURNING deleted_at, updated_at, version`

	err := s.pool.QueryRow(ctx, query, h.ID, h.UserID, h.Version).
		Scan(&h.DeletedAt, &h.UpdatedAt, &h.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Warn("Repository: Конфликт версий при мягком удалении привычки",
				zap.String("habit_id", h.ID.String()),
				zap.Int("expected_version", h.Version))
			return repo.ErrVersionConflict
		}
		logger.Error("Repository: Мягкое удаление привычки", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("мягкое удаление привычки: %w", err)
	}

	changefeed.Publish(ctx, s.pub, habit.Table, changefeed.Update, nil, h)
	return nil
}

func (s *Storage) GetByID(ctx context.Context, userID, id uuid.UUID) (*habit.Habit, error) {
	query := `SELECT ` + habitColumns + `
				FROM habits
				WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	h, err := scanHabit(s.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить привычку", err)
		return nil, fmt.Errorf("получение привычки: %w", err)
	}
	return h, nil
}

func (s *Storage) ListByUser(ctx context.Context, userID uuid.UUID) ([]*habit.Habit, error) {
	start := time.Now()

	query := `SELECT ` + habitColumns + `
				FROM habits
				WHERE user_id = $1 AND deleted_at IS NULL
				ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		logger.Error("Repository: Не удалось получить привычки", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение привычек: %w", err)
	}
	defer rows.Close()

	habits := []*habit.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования привычки", err)
			return nil, fmt.Errorf("сканирование привычки: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return habits, nil
}

// Upsert опирается на уникальный ключ (habit_id, event_date):
// повторная отметка за тот же день оживляет мягко удалённую запись
func (s *Storage) Upsert(ctx context.Context, e *habit.Event) error {
	start := time.Now()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	query := `INSERT INTO habit_events (id, habit_id, user_id, event_date, note)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (habit_id, event_date) DO UPDATE
					SET note = EXCLUDED.note,
						deleted_at = NULL,
						updated_at = NOW()
					WHERE habit_events.user_id = EXCLUDED.user_id
				RETURNING ` + eventColumns + `, (xmax = 0) AS inserted`

	var inserted bool
	err := s.pool.QueryRow(ctx, query, e.ID, e.HabitID, e.UserID, e.EventDate, e.Note).Scan(
		&e.ID, &e.HabitID, &e.UserID, &e.EventDate, &e.Note,
		&e.CreatedAt, &e.UpdatedAt, &e.DeletedAt, &inserted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось отметить привычку", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("отметка привычки: %w", err)
	}

	typ := changefeed.Update
	if inserted {
		typ = changefeed.Insert
	}
	changefeed.Publish(ctx, s.pub, habit.EventsTable, typ, nil, e)
	return nil
}

func (s *Storage) SoftDelete(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error) {
	query := `UPDATE habit_events
				SET deleted_at = NOW(),
				updated_at = NOW()
			WHERE habit_id = $1 AND user_id = $2 AND event_date = $3 AND deleted_at IS NULL
			RETURNING ` + eventColumns

	e, err := scanEvent(s.pool.QueryRow(ctx, query, habitID, userID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось снять отметку", err)
		return nil, fmt.Errorf("снятие отметки: %w", err)
	}

	changefeed.Publish(ctx, s.pub, habit.EventsTable, changefeed.Update, nil, e)
	return e, nil
}

func (s *Storage) Find(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error) {
	query := `SELECT ` + eventColumns + `
				FROM habit_events
				WHERE habit_id = $1 AND user_id = $2 AND event_date = $3 AND deleted_at IS NULL`

	e, err := scanEvent(s.pool.QueryRow(ctx, query, habitID, userID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить отметку", err)
		return nil, fmt.Errorf("получение отметки: %w", err)
	}
	return e, nil
}

func (s *Storage) ListEvents(ctx context.Context, userID, habitID uuid.UUID) ([]*habit.Event, error) {
	query := `SELECT e.id, e.habit_id, e.user_id, e.event_date, e.note, e.created_at, e.updated_at, e.deleted_at
				FROM habit_events e
				JOIN habits h ON h.id = e.habit_id AND h.deleted_at IS NULL
				WHERE e.habit_id = $1 AND e.user_id = $2 AND e.deleted_at IS NULL
				ORDER BY e.event_date DESC`
	return s.queryEvents(ctx, query, habitID, userID)
}

func (s *Storage) ListUserEvents(ctx context.Context, userID uuid.UUID) ([]*habit.Event, error) {
	query := `SELECT e.id, e.habit_id, e.user_id, e.event_date, e.note, e.created_at, e.updated_at, e.deleted_at
				FROM habit_events e
				JOIN habits h ON h.id = e.habit_id AND h.deleted_at IS NULL
				WHERE e.user_id = $1 AND e.deleted_at IS NULL
				ORDER BY e.event_date DESC, e.habit_id`
	return s.queryEvents(ctx, query, userID)
}

func (s *Storage) queryEvents(ctx context.Context, query string, args ...any) ([]*habit.Event, error) {
	start := time.Now()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить отметки", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение отметок: %w", err)
	}
	defer rows.Close()

	events := []*habit.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования отметки", err)
			return nil, fmt.Errorf("сканирование отметки: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}
	return events, nil
}

func scanHabit(row pgx.Row) (*habit.Habit, error) {
	h := &habit.Habit{}
	err := row.Scan(
		&h.ID, &h.UserID, &h.Name, &h.Description, &h.GoalType, &h.GoalTarget,
		&h.Color, &h.IsActive, &h.CreatedAt, &h.UpdatedAt, &h.DeletedAt, &h.Version,
	)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func scanEvent(row pgx.Row) (*habit.Event, error) {
	e := &habit.Event{}
	err := row.Scan(
		&e.ID, &e.HabitID, &e.UserID, &e.EventDate, &e.Note,
		&e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}
