package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PassStatus is the closed set of lifecycle states for a hall pass.
type PassStatus string

const (
	StatusPendingStart  PassStatus = "pending_start"
	StatusActive        PassStatus = "active"
	StatusPendingReturn PassStatus = "pending_return"
	StatusReturned      PassStatus = "returned"
)

func (s PassStatus) Valid() bool {
	switch s {
	case StatusPendingStart, StatusActive, StatusPendingReturn, StatusReturned:
		return true
	}
	return false
}

// Open reports whether a pass in this status still has the student out.
func (s PassStatus) Open() bool {
	return s == StatusPendingStart || s == StatusActive || s == StatusPendingReturn
}

// EventKind is the direction of a kiosk swipe.
type EventKind string

const (
	EventIn  EventKind = "in"
	EventOut EventKind = "out"
)

type User struct {
	ID    string
	Name  string
	Email string
	Role  string // "student" or "teacher"
}

// PeriodAssignment maps a student and period to the scheduled room.
// Owned by the roster subsystem; read-only here.
type PeriodAssignment struct {
	StudentID string
	Period    string
	Room      string
}

type Pass struct {
	ID            uuid.UUID
	StudentID     string
	Date          time.Time // calendar date, midnight UTC
	Period        string
	OriginRoom    string
	RoomIn        *string
	CheckoutAt    time.Time
	CheckinAt     *time.Time // nil means the pass is still open
	IsOverride    bool
	Note          string
	Status        PassStatus
	TotalPassTime int // seconds, set at close
}

// PassEvent is an immutable swipe record belonging to one pass.
type PassEvent struct {
	ID        uuid.UUID
	PassID    uuid.UUID
	Station   string
	Event     EventKind
	Timestamp time.Time
}

type ActiveRoom struct {
	Room  string
	Added time.Time
}

type AuditEntry struct {
	ID      int64
	ActorID string
	Reason  string
	Time    time.Time
}

// Slots is the capacity picture for one room at one date/period.
type Slots struct {
	Free    int `json:"free"`
	Taken   int `json:"taken"`
	Pending int `json:"pending"`
}

// ErrDuplicateOpenPass is returned by storage when inserting a pass would
// violate the one-open-pass-per-student constraint.
var ErrDuplicateOpenPass = errors.New("student already has an open pass")
