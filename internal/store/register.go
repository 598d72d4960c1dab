package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/curtaincall/internal/model"
)

type RegisterStore struct {
	db *sql.DB
}

func NewRegisterStore(db *sql.DB) *RegisterStore {
	return &RegisterStore{db: db}
}

// Replace writes reg as the register for (reg.GroupID, reg.Date), discarding
// any register already stored under that key.
func (s *RegisterStore) Replace(ctx context.Context, reg model.AttendanceRegister) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM register_present WHERE group_id = ? AND date = ?`,
		reg.GroupID, reg.Date,
	); err != nil {
		return fmt.Errorf("clear present: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO registers (group_id, date, taken_by, taken_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (group_id, date) DO UPDATE SET taken_by = excluded.taken_by, taken_at = excluded.taken_at`,
		reg.GroupID, reg.Date, reg.TakenBy, reg.TakenAt.UTC(),
	); err != nil {
		return fmt.Errorf("upsert register: %w", err)
	}

	for _, memberID := range reg.Present {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO register_present (group_id, date, member_id) VALUES (?, ?, ?)`,
			reg.GroupID, reg.Date, memberID,
		); err != nil {
			return fmt.Errorf("insert present %s: %w", memberID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit register: %w", err)
	}
	return nil
}

// ClaimCredit records that memberID has been credited with the session for
// (groupID, date). It reports false if the member was already credited, by
// this or any earlier version of the register.
func (s *RegisterStore) ClaimCredit(ctx context.Context, groupID, date, memberID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO register_credits (group_id, date, member_id) VALUES (?, ?, ?)
		 ON CONFLICT (group_id, date, member_id) DO NOTHING`,
		groupID, date, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("claim credit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseCredit undoes ClaimCredit when the member's counters could not be
// updated, so a later submission credits them.
func (s *RegisterStore) ReleaseCredit(ctx context.Context, groupID, date, memberID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM register_credits WHERE group_id = ? AND date = ? AND member_id = ?`,
		groupID, date, memberID,
	)
	if err != nil {
		return fmt.Errorf("release credit: %w", err)
	}
	return nil
}

func presentIDs(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, groupID, date string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT member_id FROM register_present WHERE group_id = ? AND date = ? ORDER BY member_id ASC`,
		groupID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list present: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan present: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Get returns the register for a group on a date (YYYY-MM-DD), or nil.
func (s *RegisterStore) Get(ctx context.Context, groupID, date string) (*model.AttendanceRegister, error) {
	reg := model.AttendanceRegister{GroupID: groupID, Date: date}
	err := s.db.QueryRowContext(ctx,
		`SELECT taken_by, taken_at FROM registers WHERE group_id = ? AND date = ?`,
		groupID, date,
	).Scan(&reg.TakenBy, &reg.TakenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get register: %w", err)
	}

	present, err := presentIDs(ctx, s.db, groupID, date)
	if err != nil {
		return nil, err
	}
	reg.Present = sortedKeys(present)
	return &reg, nil
}

// ListByGroup returns a group's registers, most recent date first.
func (s *RegisterStore) ListByGroup(ctx context.Context, groupID string) ([]model.AttendanceRegister, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, taken_by, taken_at FROM registers WHERE group_id = ? ORDER BY date DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registers: %w", err)
	}

	var registers []model.AttendanceRegister
	for rows.Next() {
		reg := model.AttendanceRegister{GroupID: groupID}
		if err := rows.Scan(&reg.Date, &reg.TakenBy, &reg.TakenAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan register: %w", err)
		}
		registers = append(registers, reg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate registers: %w", err)
	}
	rows.Close()

	// Single-connection pool: present ids are loaded after the outer rows close.
	for i := range registers {
		present, err := presentIDs(ctx, s.db, groupID, registers[i].Date)
		if err != nil {
			return nil, err
		}
		registers[i].Present = sortedKeys(present)
	}
	return registers, nil
}
