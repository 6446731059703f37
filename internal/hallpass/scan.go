package hallpass

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tjms-tools/hallpass/internal/model"
	"github.com/tjms-tools/hallpass/internal/rooms"
	"github.com/tjms-tools/hallpass/internal/schedule"
)

// swipeDebounce is the minimum gap before a student may swipe back into a
// station they just left.
const swipeDebounce = 30 * time.Second

// Scan interprets a kiosk swipe. Depending on the student's open pass and
// the room class it either self-checks the student out of a classroom,
// toggles an in/out event at a station, or closes the pass back at the
// origin room. The returned message is kiosk display text.
func (s *Service) Scan(ctx context.Context, studentID, station string) (string, error) {
	student, err := s.student(ctx, studentID)
	if err != nil {
		return "", err
	}
	if s.guard != nil && !s.guard.Allow(ctx, student.ID, station) {
		return "", newError(ErrDuplicateSwipe, "scan already in progress, try again")
	}

	now := s.now().UTC()
	school := s.provider.School()

	pass, err := s.store.OpenPass(ctx, student.ID)
	if err != nil {
		return "", err
	}
	if pass == nil {
		if rooms.IsStation(station, school) {
			s.trail.Log(ctx, student.ID, "Station scan without an open pass at "+station)
			return "", newError(ErrNoActivePass, "no active pass to use this station")
		}
		return s.selfCheckout(ctx, student, station, now)
	}

	if pass.Status == model.StatusPendingStart {
		s.trail.Log(ctx, student.ID, "Scan rejected, pass awaiting approval at "+station)
		return "", newError(ErrPassPendingApproval, "pass is waiting for approval")
	}

	events, err := s.store.EventsForPass(ctx, pass.ID)
	if err != nil {
		return "", err
	}
	kind := nextEventKind(events, station)

	last, err := s.store.LastEvent(ctx, pass.ID)
	if err != nil {
		return "", err
	}
	if isDuplicateSwipe(last, station, kind, now) {
		s.trail.Log(ctx, student.ID, "Duplicate swipe rejected at "+station)
		return "", newError(ErrDuplicateSwipe, "already swiped out, wait a moment before re-entering")
	}

	// room_in bookkeeping: credit the station on entry, release it on
	// exit. The origin room is credited only when the pass closes there.
	if kind == model.EventIn && pass.RoomIn == nil && rooms.IsStation(station, school) && station != pass.OriginRoom {
		room := station
		pass.RoomIn = &room
	}
	event := model.PassEvent{
		ID:        uuid.New(),
		PassID:    pass.ID,
		Station:   station,
		Event:     kind,
		Timestamp: now,
	}

	if kind == model.EventIn && station == pass.OriginRoom {
		closePass(pass, now, station)
		if err := s.store.RecordSwipe(ctx, event, *pass); err != nil {
			return "", err
		}
		s.trail.Log(ctx, student.ID, fmt.Sprintf("IN at %s, pass %s returned", station, pass.ID))
		return fmt.Sprintf("%s's pass ended at %s.", student.Name, station), nil
	}

	if kind == model.EventOut && pass.RoomIn != nil && *pass.RoomIn == station {
		pass.RoomIn = nil
	}
	// A scan at any non-origin room means the student is in motion again,
	// overriding a prior pending_return.
	pass.Status = model.StatusActive
	if err := s.store.RecordSwipe(ctx, event, *pass); err != nil {
		return "", err
	}
	s.trail.Log(ctx, student.ID, fmt.Sprintf("%s at %s", kind, station))
	return fmt.Sprintf("%s %s recorded at %s.", student.Name, kind, station), nil
}

// selfCheckout creates an immediately-active pass for a student scanning
// at their classroom kiosk, subject to the capacity gate.
func (s *Service) selfCheckout(ctx context.Context, student *model.User, room string, now time.Time) (string, error) {
	school := s.provider.School()
	periods := schedule.CurrentPeriods(now, school.ActiveVariant())

	slots, err := s.gate.Slots(ctx, school, room, dateOf(now), periods)
	if err != nil {
		return "", err
	}
	if slots.Free <= 0 {
		s.trail.Log(ctx, student.ID, "Self-checkout denied, no free slots in "+room)
		return "", newError(ErrCapacityExceeded, fmt.Sprintf("max passes reached for room %s", room))
	}

	pass := &model.Pass{
		ID:         uuid.New(),
		StudentID:  student.ID,
		Date:       dateOf(now),
		Period:     schedule.Primary(periods),
		OriginRoom: room,
		CheckoutAt: now,
		Status:     model.StatusActive,
	}
	if err := s.store.CreatePass(ctx, pass); err != nil {
		if err == model.ErrDuplicateOpenPass {
			return "", newError(ErrPassConflict, "student already has an open pass")
		}
		return "", err
	}
	s.trail.Log(ctx, student.ID, "Checked out from classroom "+room)
	return fmt.Sprintf("%s checked out from Room %s.", student.Name, room), nil
}

// nextEventKind toggles by parity: a student's scans at one station
// alternate in/out instead of double-booking.
func nextEventKind(events []model.PassEvent, station string) model.EventKind {
	var in, out int
	for _, e := range events {
		if e.Station != station {
			continue
		}
		switch e.Event {
		case model.EventIn:
			in++
		case model.EventOut:
			out++
		}
	}
	if in <= out {
		return model.EventIn
	}
	return model.EventOut
}

// isDuplicateSwipe rejects an immediate re-entry: an "in" at a station the
// student swiped out of under 30 seconds ago.
func isDuplicateSwipe(last *model.PassEvent, station string, kind model.EventKind, now time.Time) bool {
	return last != nil &&
		last.Station == station &&
		last.Event == model.EventOut &&
		kind == model.EventIn &&
		now.Sub(last.Timestamp) < swipeDebounce
}
