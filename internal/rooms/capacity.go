package rooms

import (
	"context"
	"time"

	"github.com/tjms-tools/hallpass/internal/config"
	"github.com/tjms-tools/hallpass/internal/model"
)

// Gate computes free/taken/pending slot counts. Counts are read-then-decide
// under concurrency: a slight over-admission race leaves the room
// over-subscribed rather than failing students, so this is soft admission
// control, not a reservation system.
type Gate struct {
	store Store
}

func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Slots reports capacity for a room on a date across the given periods.
//
// Stations draw from a shared slot pool: taken is the count of active
// passes credited to the station and pending is always zero (stations
// never queue). Classrooms count passes that originated there within the
// periods; override passes bypass the admission math (pending) but still
// appear in taken so dashboards see true occupancy.
func (g *Gate) Slots(ctx context.Context, school *config.School, room string, date time.Time, periods []string) (model.Slots, error) {
	if IsStation(room, school) {
		taken, err := g.store.CountStationOccupants(ctx, room, date)
		if err != nil {
			return model.Slots{}, err
		}
		return model.Slots{
			Free:  clampFree(school.StationSlots - taken),
			Taken: taken,
		}, nil
	}

	pending, err := g.store.CountOriginPasses(ctx, room, date, periods, model.StatusPendingStart, false)
	if err != nil {
		return model.Slots{}, err
	}
	taken, err := g.store.CountOriginPasses(ctx, room, date, periods, model.StatusActive, true)
	if err != nil {
		return model.Slots{}, err
	}
	return model.Slots{
		Free:    clampFree(school.PassesAvailable - pending - taken),
		Taken:   taken,
		Pending: pending,
	}, nil
}

func clampFree(free int) int {
	if free < 0 {
		return 0
	}
	return free
}
