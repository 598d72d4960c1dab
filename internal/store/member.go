package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/google/uuid"
)

// maxCASAttempts bounds compare-and-swap retries on a member row.
const maxCASAttempts = 3

var errStaleMember = errors.New("member changed during update")

type MemberStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db, now: time.Now}
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var lastWeek sql.NullString
	var pinHash sql.NullString

	err := scanner.Scan(
		&m.ID, &m.Name, &m.Points, &m.Streak, &m.SessionsAttended,
		&lastWeek, &pinHash, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastWeek.Valid {
		m.LastAttendanceWeek = &lastWeek.String
	}
	m.HasPIN = pinHash.Valid && pinHash.String != ""
	m.Groups = []string{}
	return &m, nil
}

const memberCols = `id, name, points, streak, sessions_attended, last_attendance_week, pin_hash, created_at, updated_at`

func (s *MemberStore) Create(ctx context.Context, name string) (*model.Member, error) {
	id := uuid.NewString()
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the member with its group ids, or nil if it does not exist.
func (s *MemberStore) GetByID(ctx context.Context, id string) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	groups, err := s.groupIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Groups = groups
	return m, nil
}

func (s *MemberStore) groupIDs(ctx context.Context, memberID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id FROM group_members WHERE member_id = ? ORDER BY group_id ASC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list member groups: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns all members ordered by name. Group ids are not populated.
func (s *MemberStore) List(ctx context.Context) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memberCols+` FROM members ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberStore) ListByGroup(ctx context.Context, groupID string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.name, m.points, m.streak, m.sessions_attended, m.last_attendance_week, m.pin_hash, m.created_at, m.updated_at
		 FROM members m
		 JOIN group_members gm ON gm.member_id = m.id
		 WHERE gm.group_id = ?
		 ORDER BY m.name ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members by group: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// SetPINHash stores a bcrypt hash, or clears the PIN when hash is empty.
func (s *MemberStore) SetPINHash(ctx context.Context, id, hash string) error {
	var h sql.NullString
	if hash != "" {
		h = sql.NullString{String: hash, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET pin_hash = ?, updated_at = ? WHERE id = ?`,
		h, s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set pin hash: %w", err)
	}
	return nil
}

// GetPINHash returns the stored hash, or "" if the member has no PIN.
func (s *MemberStore) GetPINHash(ctx context.Context, id string) (string, error) {
	var h sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT pin_hash FROM members WHERE id = ?`, id).Scan(&h)
	if err == sql.ErrNoRows {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get pin hash: %w", err)
	}
	return h.String, nil
}

// StreakFunc computes a member's new attendance week label and streak from
// the values currently stored.
type StreakFunc func(lastWeek *string, streak int) (week string, newStreak int)

// RecordAttendance applies one attended session to a member: it reads the
// stored week and streak, computes the next values with next, and writes them
// back together with sessions_attended+1. The write only succeeds if the row
// still holds the values that were read.
func (s *MemberStore) RecordAttendance(ctx context.Context, memberID string, next StreakFunc) (*model.Member, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := s.recordAttendanceOnce(ctx, memberID, next)
		if errors.Is(err, errStaleMember) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.GetByID(ctx, memberID)
	}
	return nil, fmt.Errorf("record attendance for %s: %w", memberID, errStaleMember)
}

func (s *MemberStore) recordAttendanceOnce(ctx context.Context, memberID string, next StreakFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var lastWeek sql.NullString
	var streak int
	err = tx.QueryRowContext(ctx,
		`SELECT last_attendance_week, streak FROM members WHERE id = ?`,
		memberID,
	).Scan(&lastWeek, &streak)
	if err == sql.ErrNoRows {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read streak: %w", err)
	}

	var last *string
	if lastWeek.Valid {
		last = &lastWeek.String
	}
	week, newStreak := next(last, streak)

	result, err := tx.ExecContext(ctx,
		`UPDATE members
		 SET last_attendance_week = ?, streak = ?, sessions_attended = sessions_attended + 1, updated_at = ?
		 WHERE id = ? AND last_attendance_week IS ? AND streak = ?`,
		week, newStreak, s.now().UTC(), memberID, lastWeek, streak,
	)
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errStaleMember
	}
	return tx.Commit()
}
