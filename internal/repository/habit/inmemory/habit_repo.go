package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/models/habit"
	repo "habitTracker/internal/repository"

	"github.com/google/uuid"
)

type eventKey struct {
	habitID uuid.UUID
	date    habit.Date
}

// HabitStorage хранит привычки и отметки о выполнении
type HabitStorage struct {
	habits map[uuid.UUID]*habit.Habit
	events map[uuid.UUID]*habit.Event
	byDay  map[eventKey]uuid.UUID
	mtx    *sync.RWMutex
	pub    changefeed.Publisher
	now    func() time.Time
}

func NewHabitStorage(pub changefeed.Publisher) *HabitStorage {
	if pub == nil {
		pub = changefeed.Discard
	}
	return &HabitStorage{
		habits: make(map[uuid.UUID]*habit.Habit),
		events: make(map[uuid.UUID]*habit.Event),
		byDay:  make(map[eventKey]uuid.UUID),
		mtx:    &sync.RWMutex{},
		pub:    pub,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *HabitStorage) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *HabitStorage) Create(ctx context.Context, h *habit.Habit) error {
	s.mtx.Lock()
	now := s.now()
	h.CreatedAt = now
	h.UpdatedAt = now
	h.Version = 1
	s.habits[h.ID] = h.Clone()
	s.mtx.Unlock()

	changefeed.Publish(ctx, s.pub, habit.Table, changefeed.Insert, nil, h)
	return nil
}

func (s *HabitStorage) Update(ctx context.Context, h *habit.Habit) error {
	s.mtx.Lock()
	existed, ok := s.habits[h.ID]
	if !ok || existed.UserID != h.UserID || existed.Deleted() || existed.Version != h.Version {
		s.mtx.Unlock()
		return repo.ErrVersionConflict
	}
	h.CreatedAt = existed.CreatedAt
	h.UpdatedAt = s.now()
	h.Version++
	s.habits[h.ID] = h.Clone()
	s.mtx.Unlock()

	changefeed.Publish(ctx, s.pub, habit.Table, changefeed.Update, nil, h)
	return nil
}

func (s *HabitStorage) DeleteSoft(ctx context.Context, h *habit.Habit) error {
	s.mtx.Lock()
	existed, ok := s.habits[h.ID]
	if !ok || existed.UserID != h.UserID || existed.Deleted() {
		s.mtx.Unlock()
		return repo.ErrNotFound
	}
	if existed.Version != h.Version {
		s.mtx.Unlock()
		return repo.ErrVersionConflict
	}
	now := s.now()
	existed.DeletedAt = &now
	existed.UpdatedAt = now
	existed.Version++
	*h = *existed.Clone()
	s.mtx.Unlock()

	changefeed.Publish(ctx, s.pub, habit.Table, changefeed.Update, nil, h)
	return nil
}

func (s *HabitStorage) GetByID(ctx context.Context, userID, id uuid.UUID) (*habit.Habit, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	h, ok := s.habits[id]
	if !ok || h.UserID != userID || h.Deleted() {
		return nil, repo.ErrNotFound
	}
	return h.Clone(), nil
}

// ListByUser - неудалённые привычки владельца, старые первыми
func (s *HabitStorage) ListByUser(ctx context.Context, userID uuid.UUID) ([]*habit.Habit, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*habit.Habit{}
	for _, h := range s.habits {
		if h.UserID == userID && !h.Deleted() {
			res = append(res, h.Clone())
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID.String() < res[j].ID.String()
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

// Upsert отмечает день выполненным. Если запись за этот день уже была
// (в том числе мягко удалённая), она оживает, а не дублируется.
func (s *HabitStorage) Upsert(ctx context.Context, e *habit.Event) error {
	s.mtx.Lock()
	now := s.now()
	key := eventKey{habitID: e.HabitID, date: e.EventDate}

	if id, ok := s.byDay[key]; ok {
		existed := s.events[id]
		if existed.UserID != e.UserID {
			s.mtx.Unlock()
			return repo.ErrNotFound
		}
		existed.Note = e.Note
		existed.DeletedAt = nil
		existed.UpdatedAt = now
		*e = *existed.Clone()
		s.mtx.Unlock()

		changefeed.Publish(ctx, s.pub, habit.EventsTable, changefeed.Update, nil, e)
		return nil
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	e.DeletedAt = nil
	s.events[e.ID] = e.Clone()
	s.byDay[key] = e.ID
	s.mtx.Unlock()

	changefeed.Publish(ctx, s.pub, habit.EventsTable, changefeed.Insert, nil, e)
	return nil
}

func (s *HabitStorage) SoftDelete(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error) {
	s.mtx.Lock()
	id, ok := s.byDay[eventKey{habitID: habitID, date: date}]
	if !ok {
		s.mtx.Unlock()
		return nil, repo.ErrNotFound
	}
	existed := s.events[id]
	if existed.UserID != userID || existed.Deleted() {
		s.mtx.Unlock()
		return nil, repo.ErrNotFound
	}
	now := s.now()
	existed.DeletedAt = &now
	existed.UpdatedAt = now
	deleted := existed.Clone()
	s.mtx.Unlock()

	changefeed.Publish(ctx, s.pub, habit.EventsTable, changefeed.Update, nil, deleted)
	return deleted, nil
}

func (s *HabitStorage) Find(ctx context.Context, userID, habitID uuid.UUID, date habit.Date) (*habit.Event, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	id, ok := s.byDay[eventKey{habitID: habitID, date: date}]
	if !ok {
		return nil, repo.ErrNotFound
	}
	e := s.events[id]
	if e.UserID != userID || e.Deleted() {
		return nil, repo.ErrNotFound
	}
	return e.Clone(), nil
}

// ListEvents - неудалённые отметки привычки, свежие первыми
func (s *HabitStorage) ListEvents(ctx context.Context, userID, habitID uuid.UUID) ([]*habit.Event, error) {
	return s.listEvents(userID, func(e *habit.Event) bool { return e.HabitID == habitID }), nil
}

// ListUserEvents - неудалённые отметки по всем привычкам владельца
func (s *HabitStorage) ListUserEvents(ctx context.Context, userID uuid.UUID) ([]*habit.Event, error) {
	return s.listEvents(userID, func(*habit.Event) bool { return true }), nil
}

func (s *HabitStorage) listEvents(userID uuid.UUID, keep func(*habit.Event) bool) []*habit.Event {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*habit.Event{}
	for _, e := range s.events {
		if e.UserID != userID || e.Deleted() || !keep(e) {
			continue
		}
		// отметки удалённых привычек в выборку не попадают
		if h, ok := s.habits[e.HabitID]; !ok || h.Deleted() {
			continue
		}
		res = append(res, e.Clone())
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].EventDate == res[j].EventDate {
			return res[i].HabitID.String() < res[j].HabitID.String()
		}
		return res[i].EventDate.After(res[j].EventDate)
	})
	return res
}
