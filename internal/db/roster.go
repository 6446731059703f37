package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tjms-tools/hallpass/internal/model"
)

func (s *Store) Student(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, role
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &user.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) Students(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, role
		FROM users
		WHERE role = 'student'
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		var user model.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Role); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) AssignedRoom(ctx context.Context, studentID, period string) (string, error) {
	var room string
	err := s.pool.QueryRow(ctx, `
		SELECT room
		FROM period_assignments
		WHERE student_id = $1 AND period = $2
	`, studentID, period).Scan(&room)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return room, nil
}

func (s *Store) IsRoomActive(ctx context.Context, room string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM active_rooms WHERE room = $1)
	`, room).Scan(&active)
	return active, err
}

func (s *Store) InsertActiveRoom(ctx context.Context, room string, added time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO active_rooms (room, added)
		VALUES ($1, $2)
		ON CONFLICT (room) DO NOTHING
	`, room, added)
	return err
}

func (s *Store) DeleteActiveRoom(ctx context.Context, room string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM active_rooms WHERE room = $1`, room)
	return err
}

func (s *Store) ListActiveRooms(ctx context.Context) ([]model.ActiveRoom, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT room, added
		FROM active_rooms
		ORDER BY room
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var active []model.ActiveRoom
	for rows.Next() {
		var room model.ActiveRoom
		if err := rows.Scan(&room.Room, &room.Added); err != nil {
			return nil, err
		}
		active = append(active, room)
	}
	return active, rows.Err()
}

func (s *Store) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_id, time, reason)
		VALUES ($1, $2, $3)
	`, entry.ActorID, entry.Time, entry.Reason)
	return err
}
