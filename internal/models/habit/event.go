package habit

import (
	"time"

	"github.com/google/uuid"
)

const EventsTable = "habit_events"

// Event - отметка о выполнении привычки за календарный день.
// На пару (habit_id, event_date) приходится не больше одной неудалённой записи.
type Event struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	HabitID   uuid.UUID  `json:"habit_id" db:"habit_id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	EventDate Date       `json:"event_date" db:"event_date"`
	Note      *string    `json:"note" db:"note"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at" db:"deleted_at"`
}

func (e *Event) Key() uuid.UUID {
	return e.ID
}

func (e *Event) Deleted() bool {
	return e.DeletedAt != nil
}

func (e *Event) Revision() time.Time {
	return e.UpdatedAt
}

func (e *Event) Clone() *Event {
	c := *e
	return &c
}
