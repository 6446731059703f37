package hallpass

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tjms-tools/hallpass/internal/model"
)

// fakeStore is an in-memory stand-in for the postgres store. It enforces
// the same one-open-pass constraint so lifecycle tests exercise the real
// conflict path.
type fakeStore struct {
	students    map[string]model.User
	assignments map[string]string // studentID|period -> room
	passes      map[uuid.UUID]model.Pass
	events      map[uuid.UUID][]model.PassEvent
	activeRooms map[string]time.Time
	audits      []model.AuditEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		students:    make(map[string]model.User),
		assignments: make(map[string]string),
		passes:      make(map[uuid.UUID]model.Pass),
		events:      make(map[uuid.UUID][]model.PassEvent),
		activeRooms: make(map[string]time.Time),
	}
}

func (f *fakeStore) addStudent(id, name string) {
	f.students[id] = model.User{ID: id, Name: name, Role: "student"}
}

func (f *fakeStore) assign(studentID, period, room string) {
	f.assignments[studentID+"|"+period] = room
}

func (f *fakeStore) Student(_ context.Context, id string) (*model.User, error) {
	user, ok := f.students[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (f *fakeStore) Students(_ context.Context) ([]model.User, error) {
	users := make([]model.User, 0, len(f.students))
	for _, user := range f.students {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (f *fakeStore) AssignedRoom(_ context.Context, studentID, period string) (string, error) {
	return f.assignments[studentID+"|"+period], nil
}

func (f *fakeStore) OpenPass(_ context.Context, studentID string) (*model.Pass, error) {
	var found *model.Pass
	for id := range f.passes {
		pass := f.passes[id]
		if pass.StudentID != studentID || pass.CheckinAt != nil {
			continue
		}
		if found == nil || pass.CheckoutAt.After(found.CheckoutAt) {
			copied := pass
			found = &copied
		}
	}
	return found, nil
}

func (f *fakeStore) PassByID(_ context.Context, id uuid.UUID) (*model.Pass, error) {
	pass, ok := f.passes[id]
	if !ok {
		return nil, nil
	}
	return &pass, nil
}

func (f *fakeStore) CreatePass(_ context.Context, p *model.Pass) error {
	for _, existing := range f.passes {
		if existing.StudentID == p.StudentID && existing.CheckinAt == nil {
			return model.ErrDuplicateOpenPass
		}
	}
	f.passes[p.ID] = *p
	return nil
}

func (f *fakeStore) UpdatePass(_ context.Context, p *model.Pass) error {
	f.passes[p.ID] = *p
	return nil
}

func (f *fakeStore) DeletePass(_ context.Context, id uuid.UUID) error {
	delete(f.passes, id)
	delete(f.events, id)
	return nil
}

func (f *fakeStore) EventsForPass(_ context.Context, passID uuid.UUID) ([]model.PassEvent, error) {
	events := f.events[passID]
	out := make([]model.PassEvent, len(events))
	copy(out, events)
	return out, nil
}

func (f *fakeStore) LastEvent(_ context.Context, passID uuid.UUID) (*model.PassEvent, error) {
	events := f.events[passID]
	if len(events) == 0 {
		return nil, nil
	}
	last := events[0]
	for _, e := range events[1:] {
		if !e.Timestamp.Before(last.Timestamp) {
			last = e
		}
	}
	return &last, nil
}

func (f *fakeStore) RecordSwipe(_ context.Context, event model.PassEvent, p model.Pass) error {
	f.events[p.ID] = append(f.events[p.ID], event)
	f.passes[p.ID] = p
	return nil
}

func (f *fakeStore) OpenPasses(_ context.Context) ([]model.Pass, error) {
	var open []model.Pass
	for _, pass := range f.passes {
		if pass.CheckinAt == nil {
			open = append(open, pass)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CheckoutAt.Before(open[j].CheckoutAt) })
	return open, nil
}

func (f *fakeStore) RecentReturns(_ context.Context, limit int) ([]model.Pass, error) {
	var returned []model.Pass
	for _, pass := range f.passes {
		if pass.Status == model.StatusReturned {
			returned = append(returned, pass)
		}
	}
	sort.Slice(returned, func(i, j int) bool { return returned[i].CheckoutAt.After(returned[j].CheckoutAt) })
	if len(returned) > limit {
		returned = returned[:limit]
	}
	return returned, nil
}

func (f *fakeStore) CountPassesByStatus(_ context.Context, status model.PassStatus) (int, error) {
	count := 0
	for _, pass := range f.passes {
		if pass.Status == status {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) QueueForRoom(_ context.Context, room string, date time.Time, periods []string) ([]model.Pass, error) {
	var queue []model.Pass
	for _, pass := range f.passes {
		if pass.OriginRoom != room || !pass.Date.Equal(date) || pass.CheckinAt != nil || pass.IsOverride {
			continue
		}
		if !containsPeriod(periods, pass.Period) {
			continue
		}
		queue = append(queue, pass)
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].CheckoutAt.Before(queue[j].CheckoutAt) })
	return queue, nil
}

func (f *fakeStore) PassesForStudent(_ context.Context, studentID string) ([]model.Pass, error) {
	var passes []model.Pass
	for _, pass := range f.passes {
		if pass.StudentID == studentID {
			passes = append(passes, pass)
		}
	}
	sort.Slice(passes, func(i, j int) bool { return passes[i].CheckoutAt.Before(passes[j].CheckoutAt) })
	return passes, nil
}

// rooms.Store

func (f *fakeStore) IsRoomActive(_ context.Context, room string) (bool, error) {
	_, ok := f.activeRooms[room]
	return ok, nil
}

func (f *fakeStore) InsertActiveRoom(_ context.Context, room string, added time.Time) error {
	if _, ok := f.activeRooms[room]; !ok {
		f.activeRooms[room] = added
	}
	return nil
}

func (f *fakeStore) DeleteActiveRoom(_ context.Context, room string) error {
	delete(f.activeRooms, room)
	return nil
}

func (f *fakeStore) ListActiveRooms(_ context.Context) ([]model.ActiveRoom, error) {
	rooms := make([]model.ActiveRoom, 0, len(f.activeRooms))
	for room, added := range f.activeRooms {
		rooms = append(rooms, model.ActiveRoom{Room: room, Added: added})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Room < rooms[j].Room })
	return rooms, nil
}

func (f *fakeStore) CountStationOccupants(_ context.Context, room string, date time.Time) (int, error) {
	count := 0
	for _, pass := range f.passes {
		if pass.Status == model.StatusActive && pass.Date.Equal(date) && pass.RoomIn != nil && *pass.RoomIn == room {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CountOriginPasses(_ context.Context, room string, date time.Time, periods []string, status model.PassStatus, includeOverrides bool) (int, error) {
	count := 0
	for _, pass := range f.passes {
		if pass.OriginRoom != room || !pass.Date.Equal(date) || pass.Status != status {
			continue
		}
		if pass.IsOverride && !includeOverrides {
			continue
		}
		if !containsPeriod(periods, pass.Period) {
			continue
		}
		count++
	}
	return count, nil
}

// audit.Store

func (f *fakeStore) AppendAudit(_ context.Context, entry model.AuditEntry) error {
	f.audits = append(f.audits, entry)
	return nil
}

func containsPeriod(periods []string, period string) bool {
	for _, p := range periods {
		if p == period {
			return true
		}
	}
	return false
}

// fakeClock is a settable clock for exercising time-dependent paths.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

// denyGuard always rejects, standing in for a held redis lock.
type denyGuard struct{}

func (denyGuard) Allow(context.Context, string, string) bool { return false }
