package analytics

import (
	"math"

	"habitTracker/internal/models/habit"
)

type RateResult struct {
	Rate          float64
	TotalDays     int
	CompletedDays int
	Range         Range
}

// CompletionRate = отмеченные дни периода / все дни календарного периода * 100,
// округление до двух знаков
func CompletionRate(dates []habit.Date, period Period, today habit.Date) RateResult {
	r := PeriodRange(period, today)
	completed := 0
	for _, d := range normalize(dates) {
		if r.Contains(d) {
			completed++
		}
	}
	total := r.Days()

	rate := 0.0
	if total > 0 {
		rate = round2(float64(completed) / float64(total) * 100)
	}
	return RateResult{Rate: rate, TotalDays: total, CompletedDays: completed, Range: r}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type CompletionRateData struct {
	HabitID        string     `json:"habit_id"`
	HabitName      string     `json:"habit_name"`
	CompletionRate float64    `json:"completion_rate"`
	TotalDays      int        `json:"total_days"`
	CompletedDays  int        `json:"completed_days"`
	Period         Period     `json:"period"`
	PeriodStart    habit.Date `json:"period_start"`
	PeriodEnd      habit.Date `json:"period_end"`
}

func CompletionRates(habits []*habit.Habit, events []*habit.Event, period Period, today habit.Date) []CompletionRateData {
	byHabit := groupDates(events)
	res := make([]CompletionRateData, 0, len(habits))
	for _, h := range activeHabits(habits) {
		result := CompletionRate(byHabit[h.ID.String()], period, today)
		res = append(res, CompletionRateData{
			HabitID:        h.ID.String(),
			HabitName:      h.Name,
			CompletionRate: result.Rate,
			TotalDays:      result.TotalDays,
			CompletedDays:  result.CompletedDays,
			Period:         period,
			PeriodStart:    result.Range.Start,
			PeriodEnd:      result.Range.End,
		})
	}
	return res
}

func groupDates(events []*habit.Event) map[string][]habit.Date {
	res := make(map[string][]habit.Date)
	for _, e := range events {
		if e.Deleted() {
			continue
		}
		key := e.HabitID.String()
		res[key] = append(res[key], e.EventDate)
	}
	return res
}

func activeHabits(habits []*habit.Habit) []*habit.Habit {
	res := make([]*habit.Habit, 0, len(habits))
	for _, h := range habits {
		if h.IsActive && !h.Deleted() {
			res = append(res, h)
		}
	}
	return res
}
