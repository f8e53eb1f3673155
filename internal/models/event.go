package models

import (
	"time"
)

// Event is the tenancy boundary: every image, face and clustering run is
// scoped to exactly one event.
type Event struct {
	ID          int64      `json:"id" db:"id"`
	Code        string     `json:"code" db:"code"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description,omitempty" db:"description"`
	StartAt     *time.Time `json:"start_at,omitempty" db:"start_at"`
	EndAt       *time.Time `json:"end_at,omitempty" db:"end_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Running reports whether the current time falls inside the event's window.
// Events without a window are never considered running.
func (e Event) Running(now time.Time) bool {
	if e.StartAt == nil || e.EndAt == nil {
		return false
	}
	return !now.Before(*e.StartAt) && !now.After(*e.EndAt)
}
