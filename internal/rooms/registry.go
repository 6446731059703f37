// Package rooms tracks which rooms accept passes and computes slot
// availability for classrooms and hallway stations.
package rooms

import (
	"context"
	"time"

	"github.com/tjms-tools/hallpass/internal/audit"
	"github.com/tjms-tools/hallpass/internal/config"
	"github.com/tjms-tools/hallpass/internal/model"
)

type Store interface {
	IsRoomActive(ctx context.Context, room string) (bool, error)
	InsertActiveRoom(ctx context.Context, room string, added time.Time) error
	DeleteActiveRoom(ctx context.Context, room string) error
	ListActiveRooms(ctx context.Context) ([]model.ActiveRoom, error)

	// CountStationOccupants counts active passes credited to the room
	// (room_in) on the given date.
	CountStationOccupants(ctx context.Context, room string, date time.Time) (int, error)
	// CountOriginPasses counts passes that started from the room on the
	// date, limited to the given periods and status. Override passes are
	// excluded unless includeOverrides is set.
	CountOriginPasses(ctx context.Context, room string, date time.Time, periods []string, status model.PassStatus, includeOverrides bool) (int, error)
}

// IsStation classifies a room name: a station is non-numeric and listed in
// the configured station set; everything else is a classroom identified by
// room number. Pure and deterministic given the config.
func IsStation(name string, school *config.School) bool {
	if name == "" || isDigits(name) {
		return false
	}
	return school.IsStationName(name)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Registry is the active-room set backed by storage.
type Registry struct {
	store Store
	trail *audit.Trail
}

func NewRegistry(store Store, trail *audit.Trail) *Registry {
	return &Registry{store: store, trail: trail}
}

func (r *Registry) IsActive(ctx context.Context, room string) (bool, error) {
	return r.store.IsRoomActive(ctx, room)
}

func (r *Registry) ActiveRooms(ctx context.Context) ([]model.ActiveRoom, error) {
	return r.store.ListActiveRooms(ctx)
}

// Activate marks a room as accepting passes. Idempotent.
func (r *Registry) Activate(ctx context.Context, actorID, room string) error {
	if err := r.store.InsertActiveRoom(ctx, room, time.Now().UTC()); err != nil {
		return err
	}
	r.trail.Log(ctx, actorID, "Activated room "+room)
	return nil
}

// Deactivate removes a room from the active set. Idempotent.
func (r *Registry) Deactivate(ctx context.Context, actorID, room string) error {
	if err := r.store.DeleteActiveRoom(ctx, room); err != nil {
		return err
	}
	r.trail.Log(ctx, actorID, "Deactivated room "+room)
	return nil
}
