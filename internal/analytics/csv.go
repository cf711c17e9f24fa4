package analytics

import (
	"fmt"
	"strconv"
	"strings"

	"habitTracker/internal/models/habit"
)

type ExportType string

const (
	ExportAll             ExportType = "all"
	ExportStreaks         ExportType = "streaks"
	ExportCompletionRates ExportType = "completion-rates"
	ExportSummary         ExportType = "summary"
)

func ParseExportType(s string) (ExportType, error) {
	switch ExportType(s) {
	case "":
		return ExportAll, nil
	case ExportAll, ExportStreaks, ExportCompletionRates, ExportSummary:
		return ExportType(s), nil
	}
	return "", fmt.Errorf("неизвестный тип экспорта %q", s)
}

func (t ExportType) Includes(part ExportType) bool {
	return t == ExportAll || t == part
}

// ExportFilename собирает имя файла из включённых разделов и даты выгрузки
func ExportFilename(t ExportType, today habit.Date) string {
	var parts []string
	if t.Includes(ExportStreaks) {
		parts = append(parts, "habits-streaks")
	}
	if t.Includes(ExportCompletionRates) {
		parts = append(parts, "completion-rates")
	}
	if t.Includes(ExportSummary) {
		if len(parts) == 0 {
			parts = append(parts, "analytics-summary")
		} else {
			parts = append(parts, "summary")
		}
	}
	return fmt.Sprintf("%s-%s.csv", strings.Join(parts, "-"), today.String())
}

// каждая ячейка в кавычках, кавычки внутри удваиваются
func writeRows(rows [][]string) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, cell := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			b.WriteByte('"')
		}
	}
	return b.String()
}

func dateOr(d *habit.Date, fallback string) string {
	if d == nil {
		return fallback
	}
	return d.String()
}

func StreaksCSV(data []StreakData) string {
	rows := [][]string{{
		"Habit Name",
		"Current Streak (days)",
		"Longest Streak (days)",
		"Total Completions",
		"Last Completion Date",
		"Streak Start Date",
	}}
	for _, s := range data {
		rows = append(rows, []string{
			s.HabitName,
			strconv.Itoa(s.CurrentStreak),
			strconv.Itoa(s.LongestStreak),
			strconv.Itoa(s.TotalCompletions),
			dateOr(s.LastCompletionDate, "Never"),
			dateOr(s.StreakStartDate, "N/A"),
		})
	}
	return writeRows(rows)
}

func CompletionRatesCSV(data []CompletionRateData, period Period) string {
	rows := [][]string{{
		"Habit Name",
		"Completion Rate (%)",
		"Completed Days",
		"Total Days",
		"Period",
	}}
	for _, d := range data {
		rows = append(rows, []string{
			d.HabitName,
			strconv.FormatFloat(d.CompletionRate, 'f', 1, 64),
			strconv.Itoa(d.CompletedDays),
			strconv.Itoa(d.TotalDays),
			string(period),
		})
	}
	return writeRows(rows)
}

func SummaryCSV(s Summary) string {
	name, rate := "N/A", "N/A"
	if s.MostConsistentHabit != nil {
		name = s.MostConsistentHabit.HabitName
		rate = strconv.FormatFloat(s.MostConsistentHabit.CompletionRate, 'f', 1, 64)
	}
	rows := [][]string{
		{"Metric", "Value"},
		{"Total Habits", strconv.Itoa(s.TotalHabits)},
		{"Active Habits", strconv.Itoa(s.ActiveHabits)},
		{"Total Tasks", strconv.Itoa(s.TotalTasks)},
		{"Active Tasks", strconv.Itoa(s.ActiveTasks)},
		{"Average Completion Rate (%)", strconv.FormatFloat(s.AverageCompletionRate, 'f', 1, 64)},
		{"Total Current Streaks", strconv.Itoa(s.TotalCurrentStreaks)},
		{"Longest Overall Streak", strconv.Itoa(s.LongestOverallStreak)},
		{"Most Consistent Habit", name},
		{"Most Consistent Habit Completion Rate (%)", rate},
	}
	return writeRows(rows)
}

// Export склеивает запрошенные разделы через пустую строку
type Export struct {
	Streaks         []StreakData
	CompletionRates []CompletionRateData
	Summary         *Summary
	Period          Period
}

func (e Export) CSV(t ExportType) string {
	var sections []string
	if t.Includes(ExportStreaks) {
		sections = append(sections, StreaksCSV(e.Streaks))
	}
	if t.Includes(ExportCompletionRates) {
		sections = append(sections, CompletionRatesCSV(e.CompletionRates, e.Period))
	}
	if t.Includes(ExportSummary) && e.Summary != nil {
		sections = append(sections, SummaryCSV(*e.Summary))
	}
	return strings.Join(sections, "\n\n")
}
