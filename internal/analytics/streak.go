// Package analytics считает производные метрики по привычкам и задачам.
// Все функции чистые: строки уже выбраны, today передаётся явно.
package analytics

import (
	"sort"

	"habitTracker/internal/models/habit"
)

// normalize убирает повторы и сортирует по возрастанию
func normalize(dates []habit.Date) []habit.Date {
	seen := make(map[habit.Date]struct{}, len(dates))
	res := make([]habit.Date, 0, len(dates))
	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Before(res[j]) })
	return res
}

// CurrentStreak - число подряд идущих дней с отметкой, заканчивающихся сегодня
// или вчера. Неотмеченный сегодняшний день серию не обрывает (день отсрочки).
func CurrentStreak(dates []habit.Date, today habit.Date) int {
	length, _ := currentRun(normalize(dates), today)
	return length
}

func currentRun(sorted []habit.Date, today habit.Date) (int, habit.Date) {
	// будущие даты в серию не входят
	i := len(sorted) - 1
	for i >= 0 && sorted[i].After(today) {
		i--
	}
	if i < 0 {
		return 0, habit.Date{}
	}
	if gap := today.DaysSince(sorted[i]); gap > 1 {
		return 0, habit.Date{}
	}

	length := 1
	start := sorted[i]
	for j := i - 1; j >= 0; j-- {
		if start.DaysSince(sorted[j]) != 1 {
			break
		}
		start = sorted[j]
		length++
	}
	return length, start
}

// LongestStreak - самая длинная серия подряд идущих дней за всё время
func LongestStreak(dates []habit.Date) int {
	sorted := normalize(dates)
	if len(sorted) == 0 {
		return 0
	}
	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i].DaysSince(sorted[i-1]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

type StreakData struct {
	HabitID            string      `json:"habit_id"`
	HabitName          string      `json:"habit_name"`
	CurrentStreak      int         `json:"current_streak"`
	LongestStreak      int         `json:"longest_streak"`
	TotalCompletions   int         `json:"total_completions"`
	LastCompletionDate *habit.Date `json:"last_completion_date"`
	StreakStartDate    *habit.Date `json:"streak_start_date"`
}

func HabitStreak(h *habit.Habit, dates []habit.Date, today habit.Date) StreakData {
	sorted := normalize(dates)
	data := StreakData{
		HabitID:          h.ID.String(),
		HabitName:        h.Name,
		LongestStreak:    LongestStreak(sorted),
		TotalCompletions: len(sorted),
	}

	length, start := currentRun(sorted, today)
	data.CurrentStreak = length
	if length > 0 {
		data.StreakStartDate = &start
	}
	if len(sorted) > 0 {
		last := sorted[len(sorted)-1]
		data.LastCompletionDate = &last
	}
	return data
}

// Streaks считает серии по активным привычкам в порядке входного списка
func Streaks(habits []*habit.Habit, events []*habit.Event, today habit.Date) []StreakData {
	byHabit := groupDates(events)
	res := make([]StreakData, 0, len(habits))
	for _, h := range activeHabits(habits) {
		res = append(res, HabitStreak(h, byHabit[h.ID.String()], today))
	}
	return res
}
