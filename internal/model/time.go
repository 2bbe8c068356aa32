package model

import (
	"math"
	"time"
)

// MaxCapacity bounds a slot's free seats so the counter fits a 32-bit
// INTEGER column in every store.
const MaxCapacity = math.MaxInt32

// Time is a bookable photo session ("slot").
//
// Capacity counts the seats that are still free, not the size of the session.
// It only changes through the booking engine: every user that signs up for
// the slot takes one seat, every user that leaves gives one back. Schedule
// edits (Start/End) never touch it.
type Time struct {
	ID       string    `json:"id"        db:"id"`
	Start    time.Time `json:"start"     db:"start_at"`
	End      time.Time `json:"end"       db:"end_at"`
	Capacity int       `json:"capacity"  db:"capacity"`
	CampusID string    `json:"campus_id" db:"campus_id"`
}
