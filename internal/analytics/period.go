package analytics

import (
	"fmt"
	"time"

	"habitTracker/internal/models/habit"
)

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod: пустая строка означает месяц
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodMonth, nil
	case PeriodWeek, PeriodMonth, PeriodYear:
		return Period(s), nil
	}
	return "", fmt.Errorf("неизвестный период %q: ожидается week, month или year", s)
}

// Range - закрытый интервал календарных дней
type Range struct {
	Start habit.Date `json:"start"`
	End   habit.Date `json:"end"`
}

func (r Range) Days() int {
	return r.End.DaysSince(r.Start) + 1
}

func (r Range) Contains(d habit.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// PeriodRange - календарная неделя (с понедельника), месяц или год, содержащие today
func PeriodRange(p Period, today habit.Date) Range {
	t := today.Time()
	switch p {
	case PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		start := today.AddDays(-offset)
		return Range{Start: start, End: start.AddDays(6)}
	case PeriodYear:
		return Range{
			Start: habit.NewDate(t.Year(), time.January, 1),
			End:   habit.NewDate(t.Year(), time.December, 31),
		}
	}
	start := habit.NewDate(t.Year(), t.Month(), 1)
	end := habit.DateOf(start.Time().AddDate(0, 1, -1))
	return Range{Start: start, End: end}
}
