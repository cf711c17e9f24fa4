package slices

import (
	"fmt"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/events"
	"habitTracker/internal/models/habit"
	"habitTracker/internal/reconcile"

	"github.com/google/uuid"
)

// лимиты отложенных отметок: привычка может так и не прийти
const (
	maxPendingHabits   = 64
	maxPendingPerHabit = 32
)

// HabitSlice держит привычки и их отметки
type HabitSlice struct {
	userID uuid.UUID
	bus    *events.Bus
	habits reconcile.List[*habit.Habit]
	events reconcile.List[*habit.Event]

	// отметки, пришедшие раньше своей привычки: порядок между таблицами
	// фид не гарантирует
	pending map[uuid.UUID][]pendingEvent
}

type pendingEvent struct {
	typ changefeed.EventType
	row *habit.Event
}

func newHabitSlice(userID uuid.UUID, bus *events.Bus) *HabitSlice {
	return &HabitSlice{
		userID:  userID,
		bus:     bus,
		habits:  reconcile.NewList[*habit.Habit](nil),
		events:  reconcile.NewList[*habit.Event](nil),
		pending: make(map[uuid.UUID][]pendingEvent),
	}
}

func (s *HabitSlice) Load(habits []*habit.Habit, evs []*habit.Event) {
	s.habits = reconcile.NewList(habits)
	s.events = reconcile.NewList(evs)
	// отметки загруженных привычек уже в выборке
	for habitID := range s.pending {
		if s.habits.Contains(habitID) {
			delete(s.pending, habitID)
		}
	}
}

// Pending - число отложенных отметок
func (s *HabitSlice) Pending() int {
	n := 0
	for _, evs := range s.pending {
		n += len(evs)
	}
	return n
}

func (s *HabitSlice) Habits() []*habit.Habit {
	return s.habits.Items()
}

func (s *HabitSlice) Events() []*habit.Event {
	return s.events.Items()
}

func (s *HabitSlice) Completed(habitID uuid.UUID, date habit.Date) bool {
	for _, e := range s.events.Items() {
		if e.HabitID == habitID && e.EventDate == date {
			return true
		}
	}
	return false
}

func (s *HabitSlice) habitName(id uuid.UUID) string {
	if h, ok := s.habits.Get(id); ok {
		return h.Name
	}
	return ""
}

func (s *HabitSlice) ApplyHabitChange(c changefeed.Change) (reconcile.Outcome, error) {
	row := &habit.Habit{}
	if err := c.Decode(row); err != nil {
		return reconcile.Ignored, fmt.Errorf("разбор привычки из фида: %w", err)
	}
	if row.UserID != s.userID {
		return reconcile.Ignored, nil
	}

	prev, had := s.habits.Get(row.ID)
	next, outcome := s.habits.Apply(c.Type, row)
	s.habits = next
	s.emitHabit(outcome, prev, had, row)
	return outcome, nil
}

func (s *HabitSlice) ApplyLocalHabit(row *habit.Habit) reconcile.Outcome {
	prev, had := s.habits.Get(row.ID)
	s.habits = s.habits.Upsert(row)

	outcome := reconcile.Inserted
	switch {
	case row.Deleted() && had:
		outcome = reconcile.Removed
	case row.Deleted():
		outcome = reconcile.Ignored
	case had:
		outcome = reconcile.Updated
	}
	s.emitHabit(outcome, prev, had, row)
	return outcome
}

func (s *HabitSlice) emitHabit(outcome reconcile.Outcome, prev *habit.Habit, had bool, row *habit.Habit) {
	if row.Deleted() {
		delete(s.pending, row.ID)
	}
	switch outcome {
	case reconcile.Inserted:
		s.bus.Emit(events.NewHabitCreated(row))
		s.flushPending(row.ID)
	case reconcile.Updated:
		s.bus.Emit(events.NewHabitUpdated(row))
	case reconcile.Removed:
		if had && row.Name == "" {
			row = prev
		}
		s.dropEventsOf(row.ID)
		s.bus.Emit(events.NewHabitDeleted(row))
	}
}

func (s *HabitSlice) deferEvent(typ changefeed.EventType, row *habit.Event) {
	queued, ok := s.pending[row.HabitID]
	if !ok && len(s.pending) >= maxPendingHabits {
		return
	}
	if len(queued) >= maxPendingPerHabit {
		return
	}
	s.pending[row.HabitID] = append(queued, pendingEvent{typ: typ, row: row})
}

// flushPending применяет отметки, ждавшие появления привычки
func (s *HabitSlice) flushPending(habitID uuid.UUID) {
	queued := s.pending[habitID]
	delete(s.pending, habitID)
	for _, p := range queued {
		next, outcome := s.events.Apply(p.typ, p.row)
		s.events = next
		s.emitEvent(outcome, p.row)
	}
}

// отметки удалённой привычки в выборку не попадают, убираем их и локально
func (s *HabitSlice) dropEventsOf(habitID uuid.UUID) {
	kept := make([]*habit.Event, 0, s.events.Len())
	for _, e := range s.events.Items() {
		if e.HabitID != habitID {
			kept = append(kept, e)
		}
	}
	s.events = reconcile.NewList(kept)
}

func (s *HabitSlice) ApplyEventChange(c changefeed.Change) (reconcile.Outcome, error) {
	row := &habit.Event{}
	if err := c.Decode(row); err != nil {
		return reconcile.Ignored, fmt.Errorf("разбор отметки из фида: %w", err)
	}
	if row.UserID != s.userID {
		return reconcile.Ignored, nil
	}
	if !s.habits.Contains(row.HabitID) {
		s.deferEvent(c.Type, row)
		return reconcile.Ignored, nil
	}

	next, outcome := s.events.Apply(c.Type, row)
	s.events = next
	s.emitEvent(outcome, row)
	return outcome, nil
}

func (s *HabitSlice) ApplyLocalEvent(row *habit.Event) reconcile.Outcome {
	had := s.events.Contains(row.ID)
	s.events = s.events.Upsert(row)

	outcome := reconcile.Inserted
	switch {
	case row.Deleted() && had:
		outcome = reconcile.Removed
	case row.Deleted():
		outcome = reconcile.Ignored
	case had:
		outcome = reconcile.Updated
	}
	s.emitEvent(outcome, row)
	return outcome
}

func (s *HabitSlice) emitEvent(outcome reconcile.Outcome, row *habit.Event) {
	switch outcome {
	case reconcile.Inserted:
		s.bus.Emit(events.NewHabitCompleted(row, s.habitName(row.HabitID)))
	case reconcile.Removed:
		s.bus.Emit(events.NewHabitUncompleted(row, s.habitName(row.HabitID)))
	}
}
