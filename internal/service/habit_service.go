package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"habitTracker/internal/logger"
	"habitTracker/internal/models/habit"
	repo "habitTracker/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HabitRepository interface {
	HealthCheck(context.Context) error
	Create(context.Context, *habit.Habit) error
	Update(context.Context, *habit.Habit) error
	DeleteSoft(context.Context, *habit.Habit) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*habit.Habit, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*habit.Habit, error)

	Upsert(context.Context, *habit.Event) error
	SoftDelete(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error)
	Find(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error)
	ListEvents(ctx context.Context, userID, habitID uuid.UUID) ([]*habit.Event, error)
	ListUserEvents(ctx context.Context, userID uuid.UUID) ([]*habit.Event, error)
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type HabitService struct {
	repo HabitRepository
	loc  *time.Location
	now  func() time.Time
}

func NewHabitService(repo HabitRepository, loc *time.Location) *HabitService {
	if loc == nil {
		loc = time.UTC
	}
	return &HabitService{
		repo: repo,
		loc:  loc,
		now:  time.Now,
	}
}

func (s *HabitService) Today() habit.Date {
	return habit.DateOf(s.now().In(s.loc))
}

func (s *HabitService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		return fmt.Errorf("проверка здоровья сервиса: %w", err)
	}
	return nil
}

func validateHabit(h *habit.Habit) error {
	if strings.TrimSpace(h.Name) == "" {
		return NewValidationError("name", "не может быть пустым")
	}
	if h.GoalTarget < 1 {
		return NewValidationError("goal_target", "должно быть не меньше 1")
	}
	if !h.GoalType.Valid() {
		return NewValidationError("goal_type", fmt.Sprintf("неизвестный тип цели %q", h.GoalType))
	}
	if !colorPattern.MatchString(h.Color) {
		return NewValidationError("color", "ожидается цвет вида #RRGGBB")
	}
	return nil
}

// validateOptions проверяет опции на заготовке, чтобы отказать до похода в хранилище
func validateOptions(options []habit.HabitOption) error {
	probe := &habit.Habit{
		Name:       "probe",
		GoalType:   habit.GoalDaily,
		GoalTarget: 1,
		Color:      habit.DefaultColor,
	}
	habit.Apply(probe, options...)
	return validateHabit(probe)
}

func (s *HabitService) CreateHabit(ctx context.Context, userID uuid.UUID, name string, options ...habit.HabitOption) (*habit.Habit, error) {
	newHabit := &habit.Habit{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       strings.TrimSpace(name),
		GoalType:   habit.GoalDaily,
		GoalTarget: 1,
		Color:      habit.DefaultColor,
		IsActive:   true,
	}
	habit.Apply(newHabit, options...)

	if err := validateHabit(newHabit); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, newHabit); err != nil {
		return nil, fmt.Errorf("создание привычки: %w", err)
	}
	logger.Info("Service: Привычка создана",
		zap.String("habit_id", newHabit.ID.String()),
		zap.String("user_id", userID.String()))
	return newHabit, nil
}

func (s *HabitService) GetHabit(ctx context.Context, userID, id uuid.UUID) (*habit.Habit, error) {
	h, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fromRepo(err, ResourceHabit, id.String(), 0, "получение привычки")
	}
	return h, nil
}

func (s *HabitService) ListHabits(ctx context.Context, userID uuid.UUID) ([]*habit.Habit, error) {
	habits, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("получение привычек: %w", err)
	}
	return habits, nil
}

func (s *HabitService) UpdateHabit(ctx context.Context, userID, id uuid.UUID, expectedVersion int, options ...habit.HabitOption) (*habit.Habit, error) {
	if err := validateOptions(options); err != nil {
		return nil, err
	}

	h, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fromRepo(err, ResourceHabit, id.String(), expectedVersion, "получение привычки")
	}
	if expectedVersion > 0 && h.Version != expectedVersion {
		return nil, NewVersionConflict(ResourceHabit, id.String(), expectedVersion)
	}

	habit.Apply(h, options...)
	if err := validateHabit(h); err != nil {
		return nil, err
	}

	version := h.Version
	if err := s.repo.Update(ctx, h); err != nil {
		return nil, fromRepo(err, ResourceHabit, id.String(), version, "обновление привычки")
	}
	return h, nil
}

func (s *HabitService) DeleteHabit(ctx context.Context, userID, id uuid.UUID) (*habit.Habit, error) {
	h, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fromRepo(err, ResourceHabit, id.String(), 0, "получение привычки")
	}
	if err := s.repo.DeleteSoft(ctx, h); err != nil {
		return nil, fromRepo(err, ResourceHabit, id.String(), h.Version, "удаление привычки")
	}
	logger.Info("Service: Привычка удалена", zap.String("habit_id", id.String()))
	return h, nil
}

func (s *HabitService) checkDate(date habit.Date) error {
	if date.IsZero() {
		return NewValidationError("event_date", "не может быть пустой")
	}
	if date.After(s.Today()) {
		return NewValidationError("event_date", "нельзя отметить день в будущем")
	}
	return nil
}

// Complete отмечает день выполненным; повторная отметка оживляет прежнюю запись
func (s *HabitService) Complete(ctx context.Context, userID, habitID uuid.UUID, date habit.Date, note *string) (*habit.Event, error) {
	if err := s.checkDate(date); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, userID, habitID); err != nil {
		return nil, fromRepo(err, ResourceHabit, habitID.String(), 0, "получение привычки")
	}

	e := &habit.Event{
		ID:        uuid.New(),
		HabitID:   habitID,
		UserID:    userID,
		EventDate: date,
		Note:      note,
	}
	if err := s.repo.Upsert(ctx, e); err != nil {
		return nil, fromRepo(err, ResourceHabitEvent, date.String(), 0, "отметка привычки")
	}
	return e, nil
}

func (s *HabitService) Uncomplete(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error) {
	if err := s.checkDate(date); err != nil {
		return nil, err
	}
	e, err := s.repo.SoftDelete(ctx, userID, habitID, date)
	if err != nil {
		return nil, fromRepo(err, ResourceHabitEvent, date.String(), 0, "снятие отметки привычки")
	}
	return e, nil
}

// Toggle снимает отметку, если день уже выполнен, иначе ставит её
func (s *HabitService) Toggle(ctx context.Context, userID, habitID uuid.UUID, date habit.Date, note *string) (*habit.Event, bool, error) {
	if err := s.checkDate(date); err != nil {
		return nil, false, err
	}
	_, err := s.repo.Find(ctx, userID, habitID, date)
	switch {
	case err == nil:
		e, err := s.Uncomplete(ctx, userID, habitID, date)
		return e, false, err
	case errors.Is(err, repo.ErrNotFound):
		e, err := s.Complete(ctx, userID, habitID, date, note)
		return e, true, err
	}
	return nil, false, fmt.Errorf("поиск отметки привычки: %w", err)
}

func (s *HabitService) ListEvents(ctx context.Context, userID, habitID uuid.UUID) ([]*habit.Event, error) {
	if _, err := s.repo.GetByID(ctx, userID, habitID); err != nil {
		return nil, fromRepo(err, ResourceHabit, habitID.String(), 0, "получение привычки")
	}
	events, err := s.repo.ListEvents(ctx, userID, habitID)
	if err != nil {
		return nil, fmt.Errorf("получение отметок привычки: %w", err)
	}
	return events, nil
}
