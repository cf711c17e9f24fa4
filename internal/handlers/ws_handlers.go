package handlers

import (
	"context"
	"net/http"

	"habitTracker/internal/logger"
	"habitTracker/internal/realtime"
	"habitTracker/internal/slices"
	"habitTracker/internal/ws"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionFactory собирает сессию вкладки поверх её транспорта
type SessionFactory func(userID uuid.UUID, out slices.Outbox) *slices.Session

type WSHandler struct {
	ctx        context.Context
	hub        *slices.Hub
	newSession SessionFactory
	upgrader   websocket.Upgrader
}

// NewWSHandler: ctx живёт столько же, сколько сервер, а не запрос
func NewWSHandler(ctx context.Context, hub *slices.Hub, newSession SessionFactory, allowedOrigin string) *WSHandler {
	return &WSHandler{
		ctx:        ctx,
		hub:        hub,
		newSession: newSession,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN: websocket")

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WS: Ошибка upgrade", zap.Error(err), zap.String("client_ip", r.RemoteAddr))
		return
	}

	client := ws.NewClient(conn)
	session := h.newSession(userID, client)
	h.hub.Register(session)

	logger.Info("WS: Вкладка подключена",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID.String()))

	go func() {
		defer h.hub.Unregister(session)
		defer client.Close()
		if err := session.Run(h.ctx); err != nil {
			logger.Error("WS: Сессия завершилась с ошибкой", err, zap.String("session_id", session.ID))
		}
	}()

	go func() {
		defer session.Close()
		client.Run(func(msg []byte) {
			if err := session.Handle(msg); err != nil {
				logger.Debug("WS: Команда отклонена",
					zap.String("session_id", session.ID),
					zap.Error(err))
			}
		})
	}()
}

type RealtimeHandler struct {
	hub *slices.Hub
}

func NewRealtimeHandler(hub *slices.Hub) RealtimeHandler {
	return RealtimeHandler{hub: hub}
}

type realtimeStatusResponse struct {
	Connected bool                 `json:"connected"`
	Sessions  []realtimeSessionDTO `json:"sessions"`
}

type realtimeSessionDTO struct {
	ID string `json:"id"`
	realtime.Snapshot
}

// Status - состояние realtime подписок всех вкладок текущего пользователя
func (h *RealtimeHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	resp := realtimeStatusResponse{Sessions: []realtimeSessionDTO{}}
	for _, s := range h.hub.Sessions(userID) {
		snap := s.Snapshot()
		resp.Sessions = append(resp.Sessions, realtimeSessionDTO{ID: s.ID, Snapshot: snap})
		if snap.Status.IsConnected {
			resp.Connected = true
		}
	}
	responseWithData(w, http.StatusOK, resp)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]HealthChecker
}

func NewHealthHandler(checks map[string]HealthChecker) HealthHandler {
	return HealthHandler{checks: checks}
}

func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP: Health check")

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check.HealthCheck(r.Context()); err != nil {
			logger.Warn("HTTP: Проверка здоровья не пройдена", zap.String("component", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "unavailable"),
			toPayload("service", "habit-tracker"),
			toPayload("errors", failed))
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("status", "ok"),
		toPayload("service", "habit-tracker"))
}
