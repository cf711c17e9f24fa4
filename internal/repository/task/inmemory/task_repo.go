package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"habitTracker/internal/changefeed"
	"habitTracker/internal/models/task"
	repo "habitTracker/internal/repository"

	"github.com/google/uuid"
)

type TaskStorage struct {
	storage map[uuid.UUID]*task.Task
	mtx     *sync.RWMutex
	pub     changefeed.Publisher
	now     func() time.Time
}

func NewTaskStorage(pub changefeed.Publisher) *TaskStorage {
	if pub == nil {
		pub = changefeed.Discard
	}
	return &TaskStorage{
		storage: make(map[uuid.UUID]*task.Task),
		mtx:     &sync.RWMutex{},
		pub:     pub,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *TaskStorage) Create(ctx context.Context, taskToCreate *task.Task) error {
	s.mtx.Lock()
	now := s.now()
	taskToCreate.CreatedAt = now
	taskToCreate.UpdatedAt = now
	taskToCreate.Version = 1
	s.storage[taskToCreate.ID] = taskToCreate.Clone()
	s.mtx.Unlock()

	changefeed.Publish(ctx, s.pub, task.Table, changefeed.Insert, nil, taskToCreate)
	return nil
}

func (s *TaskStorage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	s.mtx.Lock()
	existed, ok := s.storage[taskToUpdate.ID]
	if !ok || existed.UserID != taskToUpdate.UserID || existed.Deleted() || existed.Version != taskToUpdate.Version {
		s.mtx.Unlock()
		return repo.ErrVersionConflict
	}

	taskToUpdate.UpdatedAt = s.now()
	taskToUpdate.Version++
	taskToUpdate.CreatedAt = existed.CreatedAt
	s.storage[taskToUpdate.ID] = taskToUpdate.Clone()
	s.mtx.Unlock()

	changefeed.Publish(ctx, s.pub, task.Table, changefeed.Update, nil, taskToUpdate)
	return nil
}

// мягкое удаление с проставлением deleted_at
func (s *TaskStorage) DeleteSoft(ctx context.Context, taskToDelete *task.Task) error {
	s.mtx.Lock()
	existed, ok := s.storage[taskToDelete.ID]
	if !ok || existed.UserID != taskToDelete.UserID || existed.Deleted() {
		s.mtx.Unlock()
		return repo.ErrNotFound
	}
	if existed.Version != taskToDelete.Version {
		s.mtx.Unlock()
		return repo.ErrVersionConflict
	}

	now := s.now()
	existed.UpdatedAt = now
	existed.DeletedAt = &now
	existed.Version++
	*taskToDelete = *existed.Clone()
	s.mtx.Unlock()

	changefeed.Publish(ctx, s.pub, task.Table, changefeed.Update, nil, taskToDelete)
	return nil
}

func (s *TaskStorage) GetByID(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	taskToGet, ok := s.storage[id]
	if !ok || taskToGet.UserID != userID || taskToGet.Deleted() {
		return nil, repo.ErrNotFound
	}
	return taskToGet.Clone(), nil
}

// ListByUser - неудалённые задачи владельца, новые первыми
func (s *TaskStorage) ListByUser(ctx context.Context, userID uuid.UUID) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*task.Task{}
	for _, t := range s.storage {
		if t.UserID != userID || t.Deleted() {
			continue
		}
		res = append(res, t.Clone())
	}

	sort.SliceStable(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID.String() > res[j].ID.String()
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}
