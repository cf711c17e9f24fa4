package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"habitTracker/internal/analytics"
	"habitTracker/internal/logger"

	"go.uber.org/zap"
)

const maxChartDays = 366

type AnalyticsHandler struct {
	AnalyticsService AnalyticsService
}

func NewAnalyticsHandler(analyticsService AnalyticsService) AnalyticsHandler {
	return AnalyticsHandler{
		AnalyticsService: analyticsService,
	}
}

func (s *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	summary, err := s.AnalyticsService.Summary(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err, "analytics_summary", "не удалось получить сводку аналитики")
		return
	}

	logger.Info("HTTP_OUT: Сводка аналитики",
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithData(w, http.StatusOK, summary)
}

func (s *AnalyticsHandler) Streaks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	streaks, err := s.AnalyticsService.Streaks(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err, "analytics_streaks", "не удалось получить серии")
		return
	}
	responseWithData(w, http.StatusOK, streaks)
}

func (s *AnalyticsHandler) CompletionRates(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	period, ok := parsePeriod(w, r)
	if !ok {
		return
	}

	rates, err := s.AnalyticsService.CompletionRates(r.Context(), userID, period)
	if err != nil {
		handleServiceError(w, r, err, "analytics_completion_rates", "не удалось получить процент выполнения")
		return
	}
	responseWithData(w, http.StatusOK, rates)
}

func (s *AnalyticsHandler) Chart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	habitID, ok := parseID(w, r, "habitId")
	if !ok {
		return
	}

	days := analytics.DefaultChartDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxChartDays {
			responseWithError(w, http.StatusBadRequest, fmt.Sprintf("days должен быть от 1 до %d", maxChartDays))
			return
		}
		days = n
	}

	chart, err := s.AnalyticsService.Chart(r.Context(), userID, habitID, days)
	if err != nil {
		handleServiceError(w, r, err, "analytics_chart", "не удалось построить график")
		return
	}
	responseWithData(w, http.StatusOK, chart)
}

func (s *AnalyticsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	exportType, err := analytics.ParseExportType(r.URL.Query().Get("type"))
	if err != nil {
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	period, ok := parsePeriod(w, r)
	if !ok {
		return
	}

	filename, body, err := s.AnalyticsService.ExportCSV(r.Context(), userID, exportType, period)
	if err != nil {
		handleServiceError(w, r, err, "analytics_export", "не удалось выгрузить аналитику")
		return
	}

	logger.Info("HTTP_OUT: Выгрузка аналитики",
		zap.String("filename", filename),
		zap.Int("bytes", len(body)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func parsePeriod(w http.ResponseWriter, r *http.Request) (analytics.Period, bool) {
	period, err := analytics.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		responseWithError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return period, true
}
