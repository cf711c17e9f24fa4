package slices

import (
	"sort"
	"sync"

	"habitTracker/internal/events"
	"habitTracker/internal/metrics"

	"github.com/google/uuid"
)

// Hub - реестр живых сессий, через него фоновые задачи достают до вкладок
type Hub struct {
	mtx      sync.RWMutex
	sessions map[uuid.UUID]map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[*Session]struct{}),
	}
}

func (h *Hub) Register(s *Session) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	byUser, ok := h.sessions[s.UserID]
	if !ok {
		byUser = make(map[*Session]struct{})
		h.sessions[s.UserID] = byUser
	}
	if _, exists := byUser[s]; !exists {
		byUser[s] = struct{}{}
		metrics.LiveSessions.Inc()
	}
}

func (h *Hub) Unregister(s *Session) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	byUser, ok := h.sessions[s.UserID]
	if !ok {
		return
	}
	if _, exists := byUser[s]; !exists {
		return
	}
	delete(byUser, s)
	metrics.LiveSessions.Dec()
	if len(byUser) == 0 {
		delete(h.sessions, s.UserID)
	}
}

func (h *Hub) Count() int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	n := 0
	for _, byUser := range h.sessions {
		n += len(byUser)
	}
	return n
}

func (h *Hub) Users() []uuid.UUID {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	users := make([]uuid.UUID, 0, len(h.sessions))
	for id := range h.sessions {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })
	return users
}

func (h *Hub) Sessions(userID uuid.UUID) []*Session {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	res := make([]*Session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// RefreshAll просит все сессии пересчитать аналитику; возвращает число доставок
func (h *Hub) RefreshAll(trigger events.Trigger) int {
	delivered := 0
	for _, userID := range h.Users() {
		for _, s := range h.Sessions(userID) {
			if s.Emit(events.NewAnalyticsRefreshNeeded(userID, trigger)) {
				delivered++
			}
		}
	}
	return delivered
}
