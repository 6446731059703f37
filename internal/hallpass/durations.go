package hallpass

import (
	"sort"
	"time"

	"github.com/tjms-tools/hallpass/internal/model"
)

// Durations decomposes a pass's elapsed time. All values are whole
// seconds; only Total is ever persisted (as total_pass_time).
type Durations struct {
	Total   int `json:"total_seconds"`
	Station int `json:"station_seconds"`
	Hallway int `json:"hallway_seconds"`
}

// PassDurations derives total/station/hallway time from the pass and its
// event history. Open passes measure against now. Station time is the gap
// between the first "in" and the first "out" at a station, zero when
// either is missing; hallway time is the remainder, falling back to the
// total when there was no station visit.
func PassDurations(pass model.Pass, events []model.PassEvent, now time.Time) Durations {
	end := now
	if pass.CheckinAt != nil {
		end = *pass.CheckinAt
	}
	total := int(end.Sub(pass.CheckoutAt).Seconds())
	if total < 0 {
		total = 0
	}

	sorted := make([]model.PassEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var stationIn, stationOut *model.PassEvent
	for i := range sorted {
		e := &sorted[i]
		// Events at the origin room belong to the return, not a station
		// visit.
		if e.Station == pass.OriginRoom {
			continue
		}
		if e.Event == model.EventIn && stationIn == nil {
			stationIn = e
		}
		if e.Event == model.EventOut && stationOut == nil {
			stationOut = e
		}
	}

	station := 0
	if stationIn != nil && stationOut != nil {
		station = int(stationOut.Timestamp.Sub(stationIn.Timestamp).Seconds())
		if station < 0 {
			station = -station
		}
	}
	hallway := total
	if station > 0 {
		hallway = total - station
	}
	return Durations{Total: total, Station: station, Hallway: hallway}
}
