package slices

import (
	"encoding/json"

	"habitTracker/internal/events"
	"habitTracker/internal/handlers/dto"
	"habitTracker/internal/service"

	"github.com/google/uuid"
)

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return service.NewValidationError("data", "пустые данные команды")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return service.NewValidationError("data", "неверный формат: "+err.Error())
	}
	return nil
}

func requireID(id uuid.UUID) error {
	if id == uuid.Nil {
		return service.NewValidationError("id", "не может быть пустым")
	}
	return nil
}

// execute - прямой путь мутаций: после успеха срез обновляется сразу,
// событие уходит в шину и пользователь видит тост. Эхо из фида потом игнорируется.
func (s *Session) execute(cmd Command) {
	ctx := s.analytics.ctx

	switch cmd.Type {
	case CmdCreateTask:
		var req dto.CreateTaskRequest
		if err := decode(cmd.Data, &req); err != nil {
			s.fail(cmd, "Не удалось создать задачу", err)
			return
		}
		t, err := s.deps.Tasks.CreateTask(ctx, s.UserID, req.Title, req.Options()...)
		if err != nil {
			s.fail(cmd, "Не удалось создать задачу", err)
			return
		}
		s.tasks.ApplyLocal(t)
		s.sendTasks()
		s.toast(cmd.ID, ToastSuccess, "Задача создана")

	case CmdUpdateTask:
		var req dto.UpdateTaskRequest
		err := decode(cmd.Data, &req)
		if err == nil {
			err = requireID(req.ID)
		}
		if err != nil {
			s.fail(cmd, "Не удалось обновить задачу", err)
			return
		}
		t, err := s.deps.Tasks.UpdateTask(ctx, s.UserID, req.ID, req.Version, req.Options()...)
		if err != nil {
			s.fail(cmd, "Не удалось обновить задачу", err)
			return
		}
		s.tasks.ApplyLocal(t)
		s.sendTasks()
		s.toast(cmd.ID, ToastSuccess, "Задача обновлена")

	case CmdDeleteTask:
		var req dto.IDRequest
		err := decode(cmd.Data, &req)
		if err == nil {
			err = requireID(req.ID)
		}
		if err != nil {
			s.fail(cmd, "Не удалось удалить задачу", err)
			return
		}
		t, err := s.deps.Tasks.DeleteTask(ctx, s.UserID, req.ID)
		if err != nil {
			s.fail(cmd, "Не удалось удалить задачу", err)
			return
		}
		s.tasks.ApplyLocal(t)
		s.sendTasks()
		s.toast(cmd.ID, ToastSuccess, "Задача удалена")

	case CmdCreateHabit:
		var req dto.CreateHabitRequest
		if err := decode(cmd.Data, &req); err != nil {
			s.fail(cmd, "Не удалось создать привычку", err)
			return
		}
		h, err := s.deps.Habits.CreateHabit(ctx, s.UserID, req.Name, req.Options()...)
		if err != nil {
			s.fail(cmd, "Не удалось создать привычку", err)
			return
		}
		s.habits.ApplyLocalHabit(h)
		s.sendHabits()
		s.toast(cmd.ID, ToastSuccess, "Привычка создана")

	case CmdUpdateHabit:
		var req dto.UpdateHabitRequest
		err := decode(cmd.Data, &req)
		if err == nil {
			err = requireID(req.ID)
		}
		if err != nil {
			s.fail(cmd, "Не удалось обновить привычку", err)
			return
		}
		h, err := s.deps.Habits.UpdateHabit(ctx, s.UserID, req.ID, req.Version, req.Options()...)
		if err != nil {
			s.fail(cmd, "Не удалось обновить привычку", err)
			return
		}
		s.habits.ApplyLocalHabit(h)
		s.sendHabits()
		s.toast(cmd.ID, ToastSuccess, "Привычка обновлена")

	case CmdDeleteHabit:
		var req dto.IDRequest
		err := decode(cmd.Data, &req)
		if err == nil {
			err = requireID(req.ID)
		}
		if err != nil {
			s.fail(cmd, "Не удалось удалить привычку", err)
			return
		}
		h, err := s.deps.Habits.DeleteHabit(ctx, s.UserID, req.ID)
		if err != nil {
			s.fail(cmd, "Не удалось удалить привычку", err)
			return
		}
		s.habits.ApplyLocalHabit(h)
		s.sendHabits()
		s.toast(cmd.ID, ToastSuccess, "Привычка удалена")

	case CmdToggleHabit:
		var req dto.HabitEventRequest
		err := decode(cmd.Data, &req)
		if err == nil {
			err = requireID(req.HabitID)
		}
		if err != nil {
			s.fail(cmd, "Не удалось отметить привычку", err)
			return
		}
		date, err := req.ParseDate(s.deps.Habits.Today())
		if err != nil {
			s.fail(cmd, "Не удалось отметить привычку", service.NewValidationError("date", err.Error()))
			return
		}
		e, completed, err := s.deps.Habits.Toggle(ctx, s.UserID, req.HabitID, date, req.Note)
		if err != nil {
			s.fail(cmd, "Не удалось отметить привычку", err)
			return
		}
		s.habits.ApplyLocalEvent(e)
		s.sendHabits()
		if completed {
			s.toast(cmd.ID, ToastSuccess, "Привычка отмечена")
		} else {
			s.toast(cmd.ID, ToastSuccess, "Отметка снята")
		}

	case CmdRefreshAnalytics:
		if err := s.setPeriod(cmd.Data); err != nil {
			s.fail(cmd, "Не удалось обновить аналитику", err)
			return
		}
		s.bus.Emit(events.NewAnalyticsRefreshNeeded(s.UserID, events.TriggerManual))

	case CmdReload:
		if err := s.load(ctx); err != nil {
			s.fail(cmd, "Не удалось загрузить данные", err)
			return
		}
		s.bus.Emit(events.NewAnalyticsRefreshNeeded(s.UserID, events.TriggerManual))

	default:
		s.sendError(cmd.ID, service.NewBusinessError("BAD_COMMAND", "неизвестная команда "+string(cmd.Type)))
	}
}
