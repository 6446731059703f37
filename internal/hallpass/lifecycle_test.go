package hallpass

import (
	"context"
	"testing"
	"time"

	"github.com/tjms-tools/hallpass/internal/audit"
	"github.com/tjms-tools/hallpass/internal/config"
	"github.com/tjms-tools/hallpass/internal/model"
	"github.com/tjms-tools/hallpass/internal/rooms"
)

func testSchool() *config.School {
	return &config.School{
		SchoolName:     "Jefferson Middle",
		ActiveSchedule: "regular",
		ScheduleVariants: map[string]config.ScheduleVariant{
			"regular": {
				"3": {Start: "10:00", End: "10:45"},
				"4": {Start: "10:45", End: "11:30"},
			},
		},
		PassesAvailable:  3,
		StationSlots:     3,
		Stations:         []string{"Bathroom", "Office", "Library"},
		ReportThresholds: config.ReportThresholds{Over5: 300, Over10: 600},
	}
}

// A Monday, 10:20, inside period 3.
var testNow = time.Date(2026, 3, 2, 10, 20, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeClock) {
	t.Helper()
	store := newFakeStore()
	store.addStudent("stu-1", "Avery Jones")
	store.assign("stu-1", "3", "203")
	store.activeRooms["203"] = testNow
	store.activeRooms["Bathroom"] = testNow

	clock := &fakeClock{current: testNow}
	trail := audit.NewTrail(store)
	svc := NewService(store, rooms.NewGate(store), rooms.NewRegistry(store, trail), config.NewStaticProvider(testSchool()), trail, nil)
	svc.SetClock(clock.Now)
	return svc, store, clock
}

func TestRequestPassCreatesPendingStart(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	pass, err := svc.RequestPass(ctx, "stu-1")
	if err != nil {
		t.Fatalf("RequestPass: %v", err)
	}
	if pass.Status != model.StatusPendingStart {
		t.Fatalf("status = %s, want pending_start", pass.Status)
	}
	if pass.OriginRoom != "203" {
		t.Fatalf("origin = %s, want 203", pass.OriginRoom)
	}
	if pass.Period != "3" {
		t.Fatalf("period = %s, want 3", pass.Period)
	}
	wantDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !pass.Date.Equal(wantDate) {
		t.Fatalf("date = %s, want %s", pass.Date, wantDate)
	}
	if len(store.audits) == 0 {
		t.Fatal("expected an audit entry for pass creation")
	}
}

func TestRequestPassRejectedWhenRoomInactive(t *testing.T) {
	svc, store, _ := newTestService(t)
	delete(store.activeRooms, "203")

	_, err := svc.RequestPass(context.Background(), "stu-1")
	if CodeOf(err) != ErrRoomInactive {
		t.Fatalf("error = %v, want %s", err, ErrRoomInactive)
	}
	if len(store.audits) != 1 || store.audits[0].Reason != "Denied room access to 203" {
		t.Fatalf("audits = %+v, want single denial entry", store.audits)
	}
}

func TestRequestPassWithoutAssignment(t *testing.T) {
	svc, _, clock := newTestService(t)
	clock.current = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) // no period in session

	_, err := svc.RequestPass(context.Background(), "stu-1")
	if CodeOf(err) != ErrRoomNotFound {
		t.Fatalf("error = %v, want %s", err, ErrRoomNotFound)
	}
}

func TestRequestPassUnknownStudent(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.RequestPass(context.Background(), "ghost")
	if CodeOf(err) != ErrStudentNotFound {
		t.Fatalf("error = %v, want %s", err, ErrStudentNotFound)
	}
}

func TestRequestPassConflictWhilePending(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RequestPass(ctx, "stu-1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := svc.RequestPass(ctx, "stu-1")
	if CodeOf(err) != ErrPassConflict {
		t.Fatalf("error = %v, want %s", err, ErrPassConflict)
	}
}

func TestRequestPassFlipsActiveToPendingReturn(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	pass, err := svc.RequestPass(ctx, "stu-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.ApprovePass(ctx, "admin-1", pass.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	flipped, err := svc.RequestPass(ctx, "stu-1")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if flipped.ID != pass.ID {
		t.Fatalf("expected the same pass back, got %s", flipped.ID)
	}
	if flipped.Status != model.StatusPendingReturn {
		t.Fatalf("status = %s, want pending_return", flipped.Status)
	}
}

func TestRequestPassCapacity(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	for i, id := range []string{"stu-2", "stu-3", "stu-4"} {
		store.addStudent(id, "Student "+id)
		store.assign(id, "3", "203")
		if i < 2 {
			if _, err := svc.RequestPass(ctx, id); err != nil {
				t.Fatalf("request for %s: %v", id, err)
			}
		}
	}
	third, err := svc.RequestPass(ctx, "stu-1")
	if err != nil {
		t.Fatalf("third request: %v", err)
	}

	// Room 203 now has all three slots pending.
	_, err = svc.RequestPass(ctx, "stu-4")
	if CodeOf(err) != ErrCapacityExceeded {
		t.Fatalf("error = %v, want %s", err, ErrCapacityExceeded)
	}

	// A rejection frees the slot.
	if err := svc.RejectPass(ctx, "admin-1", third.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := svc.RequestPass(ctx, "stu-4"); err != nil {
		t.Fatalf("request after slot freed: %v", err)
	}
}

func TestApprovePassRestampsCheckout(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	pass, err := svc.RequestPass(ctx, "stu-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	clock.Advance(90 * time.Second)

	approved, err := svc.ApprovePass(ctx, "admin-1", pass.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.StatusActive {
		t.Fatalf("status = %s, want active", approved.Status)
	}
	if !approved.CheckoutAt.Equal(clock.Now().UTC()) {
		t.Fatalf("checkout = %s, want restamped to %s", approved.CheckoutAt, clock.Now())
	}
}

func TestApprovePassRequiresPendingStart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	pass, err := svc.RequestPass(ctx, "stu-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.ApprovePass(ctx, "admin-1", pass.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err = svc.ApprovePass(ctx, "admin-1", pass.ID)
	if CodeOf(err) != ErrInvalidState {
		t.Fatalf("error = %v, want %s", err, ErrInvalidState)
	}
}

func TestRejectPassDeletesRow(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	pass, err := svc.RequestPass(ctx, "stu-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := svc.RejectPass(ctx, "admin-1", pass.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got, _ := store.PassByID(ctx, pass.ID); got != nil {
		t.Fatalf("pass still present after reject: %+v", got)
	}
	// The audit trail keeps the only record.
	found := false
	for _, entry := range store.audits {
		if entry.ActorID == "admin-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an admin audit entry for the rejection")
	}
}

func TestReturnPassStoresExactTotal(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	pass, err := svc.RequestPass(ctx, "stu-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.ApprovePass(ctx, "admin-1", pass.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	clock.Advance(347 * time.Second)

	returned, err := svc.ReturnPass(ctx, "admin-1", pass.ID, "Office")
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.Status != model.StatusReturned {
		t.Fatalf("status = %s, want returned", returned.Status)
	}
	if returned.CheckinAt == nil {
		t.Fatal("checkin_at not set")
	}
	if returned.TotalPassTime != 347 {
		t.Fatalf("total = %d, want 347", returned.TotalPassTime)
	}
	if returned.RoomIn == nil || *returned.RoomIn != "Office" {
		t.Fatalf("room_in = %v, want Office", returned.RoomIn)
	}

	_, err = svc.ReturnPass(ctx, "admin-1", pass.ID, "")
	if CodeOf(err) != ErrInvalidState {
		t.Fatalf("second return error = %v, want %s", err, ErrInvalidState)
	}
}

func TestAddNote(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddNote(ctx, "admin-1", "stu-1", "ice pack")
	if CodeOf(err) != ErrPassNotFound {
		t.Fatalf("note without pass: error = %v, want %s", err, ErrPassNotFound)
	}

	pass, err := svc.RequestPass(ctx, "stu-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	// Notes only attach once the pass is moving.
	if _, err := svc.AddNote(ctx, "admin-1", "stu-1", "ice pack"); CodeOf(err) != ErrPassNotFound {
		t.Fatalf("note on pending pass: error = %v, want %s", err, ErrPassNotFound)
	}
	if _, err := svc.ApprovePass(ctx, "admin-1", pass.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	noted, err := svc.AddNote(ctx, "admin-1", "stu-1", "ice pack")
	if err != nil {
		t.Fatalf("note: %v", err)
	}
	if noted.Note != "ice pack" {
		t.Fatalf("note = %q, want %q", noted.Note, "ice pack")
	}
}

func TestOverridePassBypassesCapacity(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"stu-2", "stu-3", "stu-4"} {
		store.addStudent(id, "Student "+id)
		store.assign(id, "3", "203")
		if _, err := svc.RequestPass(ctx, id); err != nil {
			t.Fatalf("request for %s: %v", id, err)
		}
	}

	pass, err := svc.CreateOverridePass(ctx, "admin-1", "stu-1", "", "")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if pass.Status != model.StatusActive {
		t.Fatalf("status = %s, want active", pass.Status)
	}
	if !pass.IsOverride {
		t.Fatal("is_override not set")
	}
	if pass.OriginRoom != OverrideRoom {
		t.Fatalf("origin = %s, want %s", pass.OriginRoom, OverrideRoom)
	}
	if pass.Period != "3" {
		t.Fatalf("period = %s, want 3", pass.Period)
	}

	_, err = svc.CreateOverridePass(ctx, "admin-1", "stu-1", "", "")
	if CodeOf(err) != ErrPassConflict {
		t.Fatalf("second override: error = %v, want %s", err, ErrPassConflict)
	}
}
