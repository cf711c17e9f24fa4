package analytics

import (
	"habitTracker/internal/models/habit"
	"habitTracker/internal/models/task"
)

type MostConsistent struct {
	HabitID        string  `json:"habit_id"`
	HabitName      string  `json:"habit_name"`
	CompletionRate float64 `json:"completion_rate"`
}

type Summary struct {
	TotalHabits           int             `json:"total_habits"`
	ActiveHabits          int             `json:"active_habits"`
	TotalTasks            int             `json:"total_tasks"`
	ActiveTasks           int             `json:"active_tasks"`
	CompletedTasks        int             `json:"completed_tasks"`
	AverageCompletionRate float64         `json:"average_completion_rate"`
	TotalCurrentStreaks   int             `json:"total_current_streaks"`
	LongestOverallStreak  int             `json:"longest_overall_streak"`
	MostConsistentHabit   *MostConsistent `json:"most_consistent_habit"`
}

// Summarize сводит метрики по всем привычкам и задачам пользователя.
// Ставки считаются за текущий месяц; при равенстве выигрывает привычка, идущая раньше.
func Summarize(habits []*habit.Habit, events []*habit.Event, tasks []*task.Task, today habit.Date) Summary {
	byHabit := groupDates(events)
	active := activeHabits(habits)

	summary := Summary{ActiveHabits: len(active)}
	for _, h := range habits {
		if !h.Deleted() {
			summary.TotalHabits++
		}
	}
	for _, t := range tasks {
		if t.Deleted() {
			continue
		}
		summary.TotalTasks++
		switch t.Status {
		case task.StatusCompleted:
			summary.CompletedTasks++
		default:
			summary.ActiveTasks++
		}
	}

	rateSum := 0.0
	for _, h := range active {
		dates := byHabit[h.ID.String()]
		rate := CompletionRate(dates, PeriodMonth, today).Rate
		rateSum += rate

		if summary.MostConsistentHabit == nil || rate > summary.MostConsistentHabit.CompletionRate {
			summary.MostConsistentHabit = &MostConsistent{
				HabitID:        h.ID.String(),
				HabitName:      h.Name,
				CompletionRate: rate,
			}
		}

		summary.TotalCurrentStreaks += CurrentStreak(dates, today)
		if longest := LongestStreak(dates); longest > summary.LongestOverallStreak {
			summary.LongestOverallStreak = longest
		}
	}
	if len(active) > 0 {
		summary.AverageCompletionRate = round2(rateSum / float64(len(active)))
	}
	return summary
}
