// Package hallpass implements the pass lifecycle state machine and kiosk
// scan interpretation.
package hallpass

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tjms-tools/hallpass/internal/audit"
	"github.com/tjms-tools/hallpass/internal/config"
	"github.com/tjms-tools/hallpass/internal/model"
	"github.com/tjms-tools/hallpass/internal/rooms"
	"github.com/tjms-tools/hallpass/internal/schedule"
)

// OverrideRoom is recorded as the origin when an override pass is created
// without a resolvable room.
const OverrideRoom = "OVERRIDE"

type Service struct {
	store    Store
	gate     *rooms.Gate
	registry *rooms.Registry
	provider *config.Provider
	trail    *audit.Trail
	guard    ScanGuard
	now      func() time.Time
}

func NewService(store Store, gate *rooms.Gate, registry *rooms.Registry, provider *config.Provider, trail *audit.Trail, guard ScanGuard) *Service {
	return &Service{
		store:    store,
		gate:     gate,
		registry: registry,
		provider: provider,
		trail:    trail,
		guard:    guard,
		now:      time.Now,
	}
}

// SetClock overrides the service clock; tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) student(ctx context.Context, studentID string) (*model.User, error) {
	student, err := s.store.Student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil || student.Role != "student" {
		return nil, newError(ErrStudentNotFound, fmt.Sprintf("unknown student %q", studentID))
	}
	return student, nil
}

// RequestPass handles a student asking to leave their scheduled classroom.
// A student already holding an active pass flips it to pending_return
// instead; any other open pass is a conflict. New passes start in
// pending_start awaiting approval.
func (s *Service) RequestPass(ctx context.Context, studentID string) (*model.Pass, error) {
	student, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	school := s.provider.School()
	periods := schedule.CurrentPeriods(now, school.ActiveVariant())
	period := schedule.Primary(periods)

	room, err := s.store.AssignedRoom(ctx, student.ID, period)
	if err != nil {
		return nil, err
	}
	if room == "" {
		return nil, newError(ErrRoomNotFound, fmt.Sprintf("no scheduled room for period %s", period))
	}
	active, err := s.registry.IsActive(ctx, room)
	if err != nil {
		return nil, err
	}
	if !active {
		s.trail.Log(ctx, student.ID, "Denied room access to "+room)
		return nil, newError(ErrRoomInactive, fmt.Sprintf("room %s is not accepting passes right now", room))
	}

	existing, err := s.store.OpenPass(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == model.StatusActive {
			existing.Status = model.StatusPendingReturn
			if err := s.store.UpdatePass(ctx, existing); err != nil {
				return nil, err
			}
			s.trail.Log(ctx, student.ID, fmt.Sprintf("Requested return for pass %s", existing.ID))
			return existing, nil
		}
		return nil, newError(ErrPassConflict, "student already has a pending pass")
	}

	slots, err := s.gate.Slots(ctx, school, room, dateOf(now), periods)
	if err != nil {
		return nil, err
	}
	if slots.Free <= 0 {
		s.trail.Log(ctx, student.ID, "Pass request denied: no free slots in "+room)
		return nil, newError(ErrCapacityExceeded, fmt.Sprintf("no passes available for room %s", room))
	}

	pass := &model.Pass{
		ID:         uuid.New(),
		StudentID:  student.ID,
		Date:       dateOf(now),
		Period:     period,
		OriginRoom: room,
		CheckoutAt: now.UTC(),
		Status:     model.StatusPendingStart,
	}
	if err := s.store.CreatePass(ctx, pass); err != nil {
		if errors.Is(err, model.ErrDuplicateOpenPass) {
			return nil, newError(ErrPassConflict, "student already has an open pass")
		}
		return nil, err
	}
	s.trail.Log(ctx, student.ID, "Created pass for room "+room)
	return pass, nil
}

// CreateOverridePass creates a pass directly in active, bypassing the
// capacity gate. Only the one-open-pass invariant still applies.
func (s *Service) CreateOverridePass(ctx context.Context, actorID, studentID, room, period string) (*model.Pass, error) {
	student, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.OpenPass(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, newError(ErrPassConflict, "student already has an open pass")
	}

	now := s.now()
	if room == "" {
		room = OverrideRoom
	}
	if period == "" {
		period = schedule.Primary(schedule.CurrentPeriods(now, s.provider.School().ActiveVariant()))
	}
	pass := &model.Pass{
		ID:         uuid.New(),
		StudentID:  student.ID,
		Date:       dateOf(now),
		Period:     period,
		OriginRoom: room,
		CheckoutAt: now.UTC(),
		IsOverride: true,
		Status:     model.StatusActive,
	}
	if err := s.store.CreatePass(ctx, pass); err != nil {
		if errors.Is(err, model.ErrDuplicateOpenPass) {
			return nil, newError(ErrPassConflict, "student already has an open pass")
		}
		return nil, err
	}
	s.trail.Log(ctx, actorID, fmt.Sprintf("Created override pass for %s leaving room %s", student.ID, room))
	return pass, nil
}

// ApprovePass moves a pending_start pass to active and restamps the
// checkout time so elapsed time starts at approval.
func (s *Service) ApprovePass(ctx context.Context, actorID string, passID uuid.UUID) (*model.Pass, error) {
	pass, err := s.store.PassByID(ctx, passID)
	if err != nil {
		return nil, err
	}
	if pass == nil {
		return nil, newError(ErrPassNotFound, fmt.Sprintf("pass %s not found", passID))
	}
	if pass.Status != model.StatusPendingStart {
		return nil, newError(ErrInvalidState, fmt.Sprintf("pass %s is %s, not pending_start", passID, pass.Status))
	}
	pass.Status = model.StatusActive
	pass.CheckoutAt = s.now().UTC()
	if err := s.store.UpdatePass(ctx, pass); err != nil {
		return nil, err
	}
	s.trail.Log(ctx, actorID, fmt.Sprintf("Approved pass %s for %s", passID, pass.StudentID))
	return pass, nil
}

// RejectPass removes a pending_start pass entirely; the audit trail keeps
// the only record of the attempt.
func (s *Service) RejectPass(ctx context.Context, actorID string, passID uuid.UUID) error {
	pass, err := s.store.PassByID(ctx, passID)
	if err != nil {
		return err
	}
	if pass == nil {
		return newError(ErrPassNotFound, fmt.Sprintf("pass %s not found", passID))
	}
	if pass.Status != model.StatusPendingStart {
		return newError(ErrInvalidState, fmt.Sprintf("pass %s is %s, not pending_start", passID, pass.Status))
	}
	if err := s.store.DeletePass(ctx, passID); err != nil {
		return err
	}
	s.trail.Log(ctx, actorID, fmt.Sprintf("Rejected pass %s for %s", passID, pass.StudentID))
	return nil
}

// ReturnPass closes an open pass: sets checkin_at, computes the stored
// total, and credits the closing station when the pass has no room yet.
func (s *Service) ReturnPass(ctx context.Context, actorID string, passID uuid.UUID, station string) (*model.Pass, error) {
	pass, err := s.store.PassByID(ctx, passID)
	if err != nil {
		return nil, err
	}
	if pass == nil {
		return nil, newError(ErrPassNotFound, fmt.Sprintf("pass %s not found", passID))
	}
	if pass.CheckinAt != nil {
		return nil, newError(ErrInvalidState, fmt.Sprintf("pass %s already returned", passID))
	}
	now := s.now().UTC()
	closePass(pass, now, station)
	if err := s.store.UpdatePass(ctx, pass); err != nil {
		return nil, err
	}
	where := station
	if where == "" {
		where = "room"
	}
	s.trail.Log(ctx, actorID, fmt.Sprintf("Returned pass %s at %s", passID, where))
	return pass, nil
}

// AddNote attaches a note to the student's newest open active or
// pending_return pass.
func (s *Service) AddNote(ctx context.Context, actorID, studentID, note string) (*model.Pass, error) {
	pass, err := s.store.OpenPass(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if pass == nil || (pass.Status != model.StatusActive && pass.Status != model.StatusPendingReturn) {
		return nil, newError(ErrPassNotFound, "no active pass found for student")
	}
	pass.Note = note
	if err := s.store.UpdatePass(ctx, pass); err != nil {
		return nil, err
	}
	s.trail.Log(ctx, actorID, "Note updated on active pass for "+studentID)
	return pass, nil
}

// AddNoteByPass attaches a note to a specific open pass.
func (s *Service) AddNoteByPass(ctx context.Context, actorID string, passID uuid.UUID, note string) (*model.Pass, error) {
	pass, err := s.store.PassByID(ctx, passID)
	if err != nil {
		return nil, err
	}
	if pass == nil {
		return nil, newError(ErrPassNotFound, fmt.Sprintf("pass %s not found", passID))
	}
	if pass.CheckinAt != nil {
		return nil, newError(ErrInvalidState, fmt.Sprintf("pass %s already returned", passID))
	}
	pass.Note = note
	if err := s.store.UpdatePass(ctx, pass); err != nil {
		return nil, err
	}
	s.trail.Log(ctx, actorID, fmt.Sprintf("Note updated on pass %s", passID))
	return pass, nil
}

// closePass applies the returned transition in place.
func closePass(pass *model.Pass, now time.Time, station string) {
	checkin := now
	pass.CheckinAt = &checkin
	pass.Status = model.StatusReturned
	pass.TotalPassTime = int(now.Sub(pass.CheckoutAt).Seconds())
	if station != "" && pass.RoomIn == nil {
		room := station
		pass.RoomIn = &room
	}
}

// dateOf truncates a timestamp to its calendar date in UTC.
func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
