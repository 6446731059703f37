package hallpass

import (
	"context"
	"sort"

	"github.com/tjms-tools/hallpass/internal/model"
	"github.com/tjms-tools/hallpass/internal/rooms"
	"github.com/tjms-tools/hallpass/internal/schedule"
)

// PassDetail is a pass with its derived durations, used by the admin
// dashboards.
type PassDetail struct {
	Pass      model.Pass
	Durations Durations
}

// OpenPassBoard groups the open passes for the admin live view.
type OpenPassBoard struct {
	PendingStart  []PassDetail
	PendingReturn []PassDetail
	Active        []PassDetail
}

func (s *Service) OpenBoard(ctx context.Context) (OpenPassBoard, error) {
	passes, err := s.store.OpenPasses(ctx)
	if err != nil {
		return OpenPassBoard{}, err
	}
	now := s.now().UTC()
	var board OpenPassBoard
	for _, pass := range passes {
		events, err := s.store.EventsForPass(ctx, pass.ID)
		if err != nil {
			return OpenPassBoard{}, err
		}
		detail := PassDetail{Pass: pass, Durations: PassDurations(pass, events, now)}
		switch pass.Status {
		case model.StatusPendingStart:
			board.PendingStart = append(board.PendingStart, detail)
		case model.StatusPendingReturn:
			board.PendingReturn = append(board.PendingReturn, detail)
		default:
			board.Active = append(board.Active, detail)
		}
	}
	return board, nil
}

// PendingCounts reports how many passes are waiting on an admin.
func (s *Service) PendingCounts(ctx context.Context) (start, ret int, err error) {
	start, err = s.store.CountPassesByStatus(ctx, model.StatusPendingStart)
	if err != nil {
		return 0, 0, err
	}
	ret, err = s.store.CountPassesByStatus(ctx, model.StatusPendingReturn)
	if err != nil {
		return 0, 0, err
	}
	return start, ret, nil
}

func (s *Service) RecentReturns(ctx context.Context, limit int) ([]PassDetail, error) {
	if limit <= 0 {
		limit = 5
	}
	passes, err := s.store.RecentReturns(ctx, limit)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	details := make([]PassDetail, 0, len(passes))
	for _, pass := range passes {
		events, err := s.store.EventsForPass(ctx, pass.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, PassDetail{Pass: pass, Durations: PassDurations(pass, events, now)})
	}
	return details, nil
}

// QueueSlot is one position in a classroom's pass queue; empty slots pad
// the list up to the configured capacity.
type QueueSlot struct {
	StudentName string           `json:"student_name,omitempty"`
	Status      model.PassStatus `json:"status"`
	Free        bool             `json:"free"`
}

// RoomQueue lists the current pass queue for a classroom, padded with
// free slots. Override passes never occupy a queue position.
func (s *Service) RoomQueue(ctx context.Context, room string) ([]QueueSlot, error) {
	now := s.now()
	school := s.provider.School()
	periods := schedule.CurrentPeriods(now, school.ActiveVariant())
	passes, err := s.store.QueueForRoom(ctx, room, dateOf(now), periods)
	if err != nil {
		return nil, err
	}
	queue := make([]QueueSlot, 0, school.PassesAvailable)
	for _, pass := range passes {
		name := "-"
		if student, err := s.store.Student(ctx, pass.StudentID); err == nil && student != nil {
			name = student.Name
		}
		queue = append(queue, QueueSlot{StudentName: name, Status: pass.Status})
	}
	for len(queue) < school.PassesAvailable {
		queue = append(queue, QueueSlot{Free: true})
	}
	return queue, nil
}

// RoomSlotView is the student-facing availability row for one room.
type RoomSlotView struct {
	Room      string      `json:"room"`
	Slots     model.Slots `json:"slots"`
	Station   bool        `json:"station"`
	IsCurrent bool        `json:"is_current"`
}

// SlotView lists availability for every active station plus the student's
// current classroom, the rooms a student can actually go to right now.
func (s *Service) SlotView(ctx context.Context, studentID string) ([]RoomSlotView, error) {
	now := s.now()
	school := s.provider.School()
	periods := schedule.CurrentPeriods(now, school.ActiveVariant())
	currentRoom, err := s.store.AssignedRoom(ctx, studentID, schedule.Primary(periods))
	if err != nil {
		return nil, err
	}

	active, err := s.registry.ActiveRooms(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(active))
	for _, room := range active {
		names = append(names, room.Room)
	}
	sort.Strings(names)

	views := make([]RoomSlotView, 0, len(names))
	for _, room := range names {
		station := rooms.IsStation(room, school)
		if !station && room != currentRoom {
			continue
		}
		slots, err := s.gate.Slots(ctx, school, room, dateOf(now), periods)
		if err != nil {
			return nil, err
		}
		views = append(views, RoomSlotView{
			Room:      room,
			Slots:     slots,
			Station:   station,
			IsCurrent: room == currentRoom,
		})
	}
	return views, nil
}

// WeeklyRow is one student's usage summary.
type WeeklyRow struct {
	StudentID    string         `json:"student_id"`
	StudentName  string         `json:"student_name"`
	DayMinutes   map[string]int `json:"day_minutes"`
	PassesOver5  int            `json:"passes_over_5_min"`
	PassesOver10 int            `json:"passes_over_10_min"`
	UsedOverride bool           `json:"used_override"`
}

var reportDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// WeeklySummary totals pass time per weekday for every student and counts
// long passes against the configured thresholds.
func (s *Service) WeeklySummary(ctx context.Context) ([]WeeklyRow, error) {
	students, err := s.store.Students(ctx)
	if err != nil {
		return nil, err
	}
	thresholds := s.provider.School().ReportThresholds

	var report []WeeklyRow
	for _, student := range students {
		if student.Role != "student" {
			continue
		}
		passes, err := s.store.PassesForStudent(ctx, student.ID)
		if err != nil {
			return nil, err
		}
		row := WeeklyRow{
			StudentID:   student.ID,
			StudentName: student.Name,
			DayMinutes:  make(map[string]int, len(reportDays)),
		}
		daySeconds := make(map[string]int, len(reportDays))
		for _, day := range reportDays {
			daySeconds[day] = 0
		}
		for _, pass := range passes {
			if pass.TotalPassTime > thresholds.Over5 {
				row.PassesOver5++
			}
			if pass.TotalPassTime > thresholds.Over10 {
				row.PassesOver10++
			}
			if pass.IsOverride {
				row.UsedOverride = true
			}
			day := pass.Date.Weekday().String()
			if _, ok := daySeconds[day]; ok {
				daySeconds[day] += pass.TotalPassTime
			}
		}
		for day, seconds := range daySeconds {
			row.DayMinutes[day] = seconds / 60
		}
		report = append(report, row)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].StudentID < report[j].StudentID })
	return report, nil
}

// Slots exposes the capacity gate for one room, resolving the current
// periods first.
func (s *Service) Slots(ctx context.Context, room string) (model.Slots, error) {
	now := s.now()
	school := s.provider.School()
	periods := schedule.CurrentPeriods(now, school.ActiveVariant())
	return s.gate.Slots(ctx, school, room, dateOf(now), periods)
}

// CurrentPeriods resolves the active periods at the service clock.
func (s *Service) CurrentPeriods() []string {
	return schedule.CurrentPeriods(s.now(), s.provider.School().ActiveVariant())
}
