package handlers

import (
	"net/http"
	"time"

	"habitTracker/internal/handlers/dto"
	"habitTracker/internal/logger"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/service"

	"go.uber.org/zap"
)

type HabitHandler struct {
	HabitService HabitService
}

func NewHabitHandler(habitService HabitService) HabitHandler {
	return HabitHandler{
		HabitService: habitService,
	}
}

func (s *HabitHandler) ListHabits(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	habits, err := s.HabitService.ListHabits(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err, "list_habits", "не удалось получить привычки")
		return
	}

	logger.Info("HTTP_OUT: Привычки получены",
		zap.Int("count", len(habits)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithData(w, http.StatusOK, habits)
}

func (s *HabitHandler) PostHabit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var request dto.CreateHabitRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	created, err := s.HabitService.CreateHabit(r.Context(), userID, request.Name, request.Options()...)
	if err != nil {
		handleServiceError(w, r, err, "create_habit", "не удалось создать привычку")
		return
	}

	logger.Info("HTTP_OUT: Привычка создана",
		zap.String("habit_id", created.ID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithData(w, http.StatusCreated, created)
}

func (s *HabitHandler) GetHabitByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	found, err := s.HabitService.GetHabit(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, r, err, "get_habit", "не удалось получить привычку")
		return
	}
	responseWithData(w, http.StatusOK, found)
}

func (s *HabitHandler) UpdateHabitByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var request dto.UpdateHabitRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	updated, err := s.HabitService.UpdateHabit(r.Context(), userID, id, request.Version, request.Options()...)
	if err != nil {
		handleServiceError(w, r, err, "update_habit", "не удалось обновить привычку")
		return
	}

	logger.Info("HTTP_OUT: Привычка обновлена",
		zap.String("habit_id", updated.ID.String()),
		zap.Int("version", updated.Version),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithData(w, http.StatusOK, updated)
}

func (s *HabitHandler) DeleteHabitByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if _, err := s.HabitService.DeleteHabit(r.Context(), userID, id); err != nil {
		handleServiceError(w, r, err, "delete_habit", "не удалось удалить привычку")
		return
	}

	logger.Info("HTTP_OUT: Привычка удалена",
		zap.String("habit_id", id.String()),
		zap.Int("http_status", http.StatusNoContent))

	w.WriteHeader(http.StatusNoContent)
}

func (s *HabitHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	evs, err := s.HabitService.ListEvents(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, r, err, "list_habit_events", "не удалось получить отметки")
		return
	}
	responseWithData(w, http.StatusOK, evs)
}

// eventDate читает дату из ?date=; без параметра - сегодня
func (s *HabitHandler) eventDate(w http.ResponseWriter, r *http.Request, raw string) (habit.Date, bool) {
	date, err := dto.HabitEventRequest{Date: raw}.ParseDate(s.HabitService.Today())
	if err != nil {
		handleBusinessError(w, service.NewValidationError("date", err.Error()))
		return habit.Date{}, false
	}
	return date, true
}

func (s *HabitHandler) CompleteHabit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var request dto.HabitEventRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &request) {
			return
		}
	}
	if request.Date == "" {
		request.Date = r.URL.Query().Get("date")
	}
	date, ok := s.eventDate(w, r, request.Date)
	if !ok {
		return
	}

	event, err := s.HabitService.Complete(r.Context(), userID, id, date, request.Note)
	if err != nil {
		handleServiceError(w, r, err, "complete_habit", "не удалось отметить привычку")
		return
	}

	logger.Info("HTTP_OUT: Привычка отмечена",
		zap.String("habit_id", id.String()),
		zap.String("date", date.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithData(w, http.StatusOK, event)
}

func (s *HabitHandler) UncompleteHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	date, ok := s.eventDate(w, r, r.URL.Query().Get("date"))
	if !ok {
		return
	}

	if _, err := s.HabitService.Uncomplete(r.Context(), userID, id, date); err != nil {
		handleServiceError(w, r, err, "uncomplete_habit", "не удалось снять отметку")
		return
	}

	logger.Info("HTTP_OUT: Отметка снята",
		zap.String("habit_id", id.String()),
		zap.String("date", date.String()),
		zap.Int("http_status", http.StatusNoContent))

	w.WriteHeader(http.StatusNoContent)
}
