package hallpass

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tjms-tools/hallpass/internal/model"
)

// Store is the persistence surface the pass lifecycle depends on. Lookup
// methods return nil (not an error) when no row matches; CreatePass
// returns model.ErrDuplicateOpenPass when the one-open-pass constraint is
// violated.
type Store interface {
	Student(ctx context.Context, id string) (*model.User, error)
	Students(ctx context.Context) ([]model.User, error)
	// AssignedRoom resolves the student's scheduled room for a period,
	// "" when the roster has no assignment.
	AssignedRoom(ctx context.Context, studentID, period string) (string, error)

	OpenPass(ctx context.Context, studentID string) (*model.Pass, error)
	PassByID(ctx context.Context, id uuid.UUID) (*model.Pass, error)
	CreatePass(ctx context.Context, p *model.Pass) error
	UpdatePass(ctx context.Context, p *model.Pass) error
	DeletePass(ctx context.Context, id uuid.UUID) error

	EventsForPass(ctx context.Context, passID uuid.UUID) ([]model.PassEvent, error)
	LastEvent(ctx context.Context, passID uuid.UUID) (*model.PassEvent, error)
	// RecordSwipe appends the event and persists the pass in one
	// transaction, so a scan is atomic: either both the event row and the
	// status change land, or neither does.
	RecordSwipe(ctx context.Context, event model.PassEvent, p model.Pass) error

	OpenPasses(ctx context.Context) ([]model.Pass, error)
	RecentReturns(ctx context.Context, limit int) ([]model.Pass, error)
	CountPassesByStatus(ctx context.Context, status model.PassStatus) (int, error)
	// QueueForRoom lists non-override open passes that originated in the
	// room for the date and periods, ordered by checkout time.
	QueueForRoom(ctx context.Context, room string, date time.Time, periods []string) ([]model.Pass, error)
	PassesForStudent(ctx context.Context, studentID string) ([]model.Pass, error)
}
