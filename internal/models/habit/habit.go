package habit

import (
	"time"

	"github.com/google/uuid"
)

const Table = "habits"

type Habit struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	GoalType    GoalType   `json:"goal_type" db:"goal_type"`
	GoalTarget  int        `json:"goal_target" db:"goal_target"`
	Color       string     `json:"color" db:"color"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at" db:"deleted_at"`
	Version     int        `json:"version" db:"version"`
}

type GoalType string

const GoalDaily GoalType = "daily"
const GoalWeekly GoalType = "weekly"
const GoalMonthly GoalType = "monthly"

const DefaultColor = "#3B82F6"

func (g GoalType) Valid() bool {
	switch g {
	case GoalDaily, GoalWeekly, GoalMonthly:
		return true
	}
	return false
}

func (h *Habit) Key() uuid.UUID {
	return h.ID
}

func (h *Habit) Deleted() bool {
	return h.DeletedAt != nil
}

func (h *Habit) Revision() time.Time {
	return h.UpdatedAt
}

func (h *Habit) Clone() *Habit {
	c := *h
	return &c
}
