package hallpass

import "errors"

// Stable error codes surfaced to callers. The HTTP layer maps these to
// response statuses; the messages carry the human-readable detail.
const (
	ErrPassConflict        = "pass_conflict"
	ErrCapacityExceeded    = "capacity_exceeded"
	ErrStudentNotFound     = "student_not_found"
	ErrPassNotFound        = "pass_not_found"
	ErrRoomNotFound        = "room_not_found"
	ErrRoomInactive        = "room_inactive"
	ErrInvalidState        = "invalid_state"
	ErrPassPendingApproval = "pass_pending_approval"
	ErrNoActivePass        = "no_active_pass"
	ErrDuplicateSwipe      = "duplicate_swipe"
	ErrInvalidConfig       = "invalid_config"
	ErrInvalidRequest      = "invalid_request"
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the error code when err is a coded error, "" otherwise.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
