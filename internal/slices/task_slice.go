package slices

import (
	"fmt"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/events"
	"habitTracker/internal/models/task"
	"habitTracker/internal/reconcile"

	"github.com/google/uuid"
)

// TaskSlice - список задач пользователя, сведённый из загрузки, фида и локальных мутаций
type TaskSlice struct {
	userID uuid.UUID
	bus    *events.Bus
	list   reconcile.List[*task.Task]
}

func newTaskSlice(userID uuid.UUID, bus *events.Bus) *TaskSlice {
	return &TaskSlice{
		userID: userID,
		bus:    bus,
		list:   reconcile.NewList[*task.Task](nil),
	}
}

func (s *TaskSlice) Load(tasks []*task.Task) {
	s.list = reconcile.NewList(tasks)
}

func (s *TaskSlice) Items() []*task.Task {
	return s.list.Items()
}

func (s *TaskSlice) Get(id uuid.UUID) (*task.Task, bool) {
	return s.list.Get(id)
}

// ApplyChange - путь фида. Эхо собственных мутаций ничего не меняет и ничего не шлёт.
func (s *TaskSlice) ApplyChange(c changefeed.Change) (reconcile.Outcome, error) {
	row := &task.Task{}
	if err := c.Decode(row); err != nil {
		return reconcile.Ignored, fmt.Errorf("разбор задачи из фида: %w", err)
	}
	if row.UserID != s.userID {
		return reconcile.Ignored, nil
	}

	prev, had := s.list.Get(row.ID)
	next, outcome := s.list.Apply(c.Type, row)
	s.list = next
	s.emit(outcome, prev, had, row)
	return outcome, nil
}

// ApplyLocal - путь прямой мутации после успешного ответа сервиса
func (s *TaskSlice) ApplyLocal(row *task.Task) reconcile.Outcome {
	prev, had := s.list.Get(row.ID)
	s.list = s.list.Upsert(row)

	outcome := reconcile.Inserted
	switch {
	case row.Deleted() && had:
		outcome = reconcile.Removed
	case row.Deleted():
		outcome = reconcile.Ignored
	case had:
		outcome = reconcile.Updated
	}
	s.emit(outcome, prev, had, row)
	return outcome
}

func (s *TaskSlice) emit(outcome reconcile.Outcome, prev *task.Task, had bool, row *task.Task) {
	switch outcome {
	case reconcile.Inserted:
		s.bus.Emit(events.NewTaskCreated(row))
	case reconcile.Updated:
		s.bus.Emit(events.NewTaskUpdated(row))
		if had && prev.Status != row.Status {
			s.bus.Emit(events.NewTaskStatusChanged(row, prev.Status))
		}
	case reconcile.Removed:
		if had && row.Title == "" {
			row = prev
		}
		s.bus.Emit(events.NewTaskDeleted(row))
	}
}
