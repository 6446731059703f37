package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tjms-tools/hallpass/internal/model"
)

const passColumns = `id, student_id, date, period, origin_room, room_in,
	checkout_at, checkin_at, is_override, note, status, total_pass_time`

func scanPass(row pgx.Row) (*model.Pass, error) {
	var p model.Pass
	var status string
	err := row.Scan(
		&p.ID,
		&p.StudentID,
		&p.Date,
		&p.Period,
		&p.OriginRoom,
		&p.RoomIn,
		&p.CheckoutAt,
		&p.CheckinAt,
		&p.IsOverride,
		&p.Note,
		&status,
		&p.TotalPassTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Status = model.PassStatus(status)
	return &p, nil
}

func collectPasses(rows pgx.Rows) ([]model.Pass, error) {
	defer rows.Close()
	var passes []model.Pass
	for rows.Next() {
		pass, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, *pass)
	}
	return passes, rows.Err()
}

func (s *Store) OpenPass(ctx context.Context, studentID string) (*model.Pass, error) {
	return scanPass(s.pool.QueryRow(ctx, `
		SELECT `+passColumns+`
		FROM passes
		WHERE student_id = $1 AND checkin_at IS NULL
		ORDER BY checkout_at DESC
		LIMIT 1
	`, studentID))
}

func (s *Store) PassByID(ctx context.Context, id uuid.UUID) (*model.Pass, error) {
	return scanPass(s.pool.QueryRow(ctx, `
		SELECT `+passColumns+`
		FROM passes
		WHERE id = $1
	`, id))
}

func (s *Store) CreatePass(ctx context.Context, p *model.Pass) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO passes (id, student_id, date, period, origin_room, room_in,
			checkout_at, checkin_at, is_override, note, status, total_pass_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.StudentID, p.Date, p.Period, p.OriginRoom, p.RoomIn,
		p.CheckoutAt, p.CheckinAt, p.IsOverride, p.Note, string(p.Status), p.TotalPassTime)
	if isUniqueViolation(err) {
		return model.ErrDuplicateOpenPass
	}
	return err
}

const updatePassSQL = `
	UPDATE passes
	SET period = $2, origin_room = $3, room_in = $4, checkout_at = $5,
		checkin_at = $6, note = $7, status = $8, total_pass_time = $9
	WHERE id = $1
`

func (s *Store) UpdatePass(ctx context.Context, p *model.Pass) error {
	_, err := s.pool.Exec(ctx, updatePassSQL,
		p.ID, p.Period, p.OriginRoom, p.RoomIn, p.CheckoutAt,
		p.CheckinAt, p.Note, string(p.Status), p.TotalPassTime)
	return err
}

// DeletePass removes a pass row; pass_events cascade with it.
func (s *Store) DeletePass(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM passes WHERE id = $1`, id)
	return err
}

func scanEvent(row pgx.Row) (*model.PassEvent, error) {
	var e model.PassEvent
	var kind string
	err := row.Scan(&e.ID, &e.PassID, &e.Station, &kind, &e.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Event = model.EventKind(kind)
	return &e, nil
}

func (s *Store) EventsForPass(ctx context.Context, passID uuid.UUID) ([]model.PassEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, pass_id, station, event, timestamp
		FROM pass_events
		WHERE pass_id = $1
		ORDER BY timestamp
	`, passID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.PassEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

func (s *Store) LastEvent(ctx context.Context, passID uuid.UUID) (*model.PassEvent, error) {
	return scanEvent(s.pool.QueryRow(ctx, `
		SELECT id, pass_id, station, event, timestamp
		FROM pass_events
		WHERE pass_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, passID))
}

// RecordSwipe appends the event and persists the pass atomically.
func (s *Store) RecordSwipe(ctx context.Context, event model.PassEvent, p model.Pass) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO pass_events (id, pass_id, station, event, timestamp)
			VALUES ($1, $2, $3, $4, $5)
		`, event.ID, event.PassID, event.Station, string(event.Event), event.Timestamp); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, updatePassSQL,
			p.ID, p.Period, p.OriginRoom, p.RoomIn, p.CheckoutAt,
			p.CheckinAt, p.Note, string(p.Status), p.TotalPassTime)
		return err
	})
}

func (s *Store) OpenPasses(ctx context.Context) ([]model.Pass, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+passColumns+`
		FROM passes
		WHERE checkin_at IS NULL
		ORDER BY checkout_at
	`)
	if err != nil {
		return nil, err
	}
	return collectPasses(rows)
}

func (s *Store) RecentReturns(ctx context.Context, limit int) ([]model.Pass, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+passColumns+`
		FROM passes
		WHERE status = 'returned'
		ORDER BY date DESC, checkout_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectPasses(rows)
}

func (s *Store) CountPassesByStatus(ctx context.Context, status model.PassStatus) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM passes WHERE status = $1
	`, string(status)).Scan(&count)
	return count, err
}

func (s *Store) QueueForRoom(ctx context.Context, room string, date time.Time, periods []string) ([]model.Pass, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+passColumns+`
		FROM passes
		WHERE origin_room = $1
			AND date = $2
			AND period = ANY($3)
			AND checkin_at IS NULL
			AND is_override = FALSE
		ORDER BY checkout_at
	`, room, date, periods)
	if err != nil {
		return nil, err
	}
	return collectPasses(rows)
}

func (s *Store) PassesForStudent(ctx context.Context, studentID string) ([]model.Pass, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+passColumns+`
		FROM passes
		WHERE student_id = $1
		ORDER BY date, checkout_at
	`, studentID)
	if err != nil {
		return nil, err
	}
	return collectPasses(rows)
}

// ListOverduePasses returns open passes checked out before the cutoff.
func (s *Store) ListOverduePasses(ctx context.Context, before time.Time) ([]model.Pass, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+passColumns+`
		FROM passes
		WHERE checkin_at IS NULL AND checkout_at < $1
		ORDER BY checkout_at
	`, before)
	if err != nil {
		return nil, err
	}
	return collectPasses(rows)
}

func (s *Store) CountStationOccupants(ctx context.Context, room string, date time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM passes
		WHERE room_in = $1 AND date = $2 AND status = 'active'
	`, room, date).Scan(&count)
	return count, err
}

func (s *Store) CountOriginPasses(ctx context.Context, room string, date time.Time, periods []string, status model.PassStatus, includeOverrides bool) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM passes
		WHERE origin_room = $1
			AND date = $2
			AND period = ANY($3)
			AND status = $4
			AND (is_override = FALSE OR $5)
	`, room, date, periods, string(status), includeOverrides).Scan(&count)
	return count, err
}
