package analytics

import (
	"habitTracker/internal/models/habit"
)

const DefaultChartDays = 30

const displayLayout = "Jan 02, 2006"

type ChartPoint struct {
	Date  string `json:"date"`
	Value int    `json:"value"`
	Label string `json:"label"`
}

type StreakChartData struct {
	HabitID       string       `json:"habit_id"`
	HabitName     string       `json:"habit_name"`
	Color         string       `json:"color"`
	CurrentStreak int          `json:"current_streak"`
	Data          []ChartPoint `json:"data"`
}

// StreakChart - по точке на каждый из последних days дней, 1 если день отмечен
func StreakChart(h *habit.Habit, dates []habit.Date, today habit.Date, days int) StreakChartData {
	if days <= 0 {
		days = DefaultChartDays
	}
	done := make(map[habit.Date]struct{}, len(dates))
	for _, d := range dates {
		done[d] = struct{}{}
	}

	points := make([]ChartPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDays(-i)
		value := 0
		if _, ok := done[day]; ok {
			value = 1
		}
		points = append(points, ChartPoint{
			Date:  day.Time().Format(displayLayout),
			Value: value,
			Label: day.String(),
		})
	}

	color := h.Color
	if color == "" {
		color = habit.DefaultColor
	}
	return StreakChartData{
		HabitID:       h.ID.String(),
		HabitName:     h.Name,
		Color:         color,
		CurrentStreak: CurrentStreak(dates, today),
		Data:          points,
	}
}
