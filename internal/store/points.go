package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/google/uuid"
)

// PointsStore owns the points_log table and the points balance on members.
// The log is append-only; there are no update or delete methods.
type PointsStore struct {
	db *sql.DB
}

func NewPointsStore(db *sql.DB) *PointsStore {
	return &PointsStore{db: db}
}

func scanPointsLogEntry(scanner interface{ Scan(...any) error }) (*model.PointsLogEntry, error) {
	var e model.PointsLogEntry
	err := scanner.Scan(&e.ID, &e.MemberID, &e.Amount, &e.Reason, &e.GivenBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const pointsLogCols = `id, member_id, amount, reason, given_by, created_at`

// Award credits entry.Amount to the member and appends entry to the log in a
// single transaction. If the same giver already has an entry for this member
// at or after since, nothing is written and apperr.ErrLimitReached is
// returned. entry.ID is assigned when empty.
func (s *PointsStore) Award(ctx context.Context, entry *model.PointsLogEntry, since time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE id = ?)`, entry.MemberID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check member: %w", err)
	}
	if !exists {
		return apperr.ErrNotFound
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT created_at FROM points_log WHERE member_id = ? AND given_by = ?`,
		entry.MemberID, entry.GivenBy,
	)
	if err != nil {
		return fmt.Errorf("list giver entries: %w", err)
	}
	limited := false
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			rows.Close()
			return fmt.Errorf("scan entry time: %w", err)
		}
		if !at.Before(since) {
			limited = true
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate giver entries: %w", err)
	}
	if limited {
		return apperr.ErrLimitReached
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE members SET points = points + ?, updated_at = ? WHERE id = ?`,
		entry.Amount, entry.CreatedAt.UTC(), entry.MemberID,
	); err != nil {
		return fmt.Errorf("increment points: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO points_log (id, member_id, amount, reason, given_by, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.MemberID, entry.Amount, entry.Reason, entry.GivenBy, entry.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert points log: %w", err)
	}

	return tx.Commit()
}

// ListByMember returns a member's log entries, newest first.
func (s *PointsStore) ListByMember(ctx context.Context, memberID string) ([]model.PointsLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pointsLogCols+` FROM points_log WHERE member_id = ? ORDER BY created_at DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list points log: %w", err)
	}
	defer rows.Close()

	var entries []model.PointsLogEntry
	for rows.Next() {
		e, err := scanPointsLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan points log: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Balance returns the member's current points balance.
func (s *PointsStore) Balance(ctx context.Context, memberID string) (int, error) {
	var points int
	err := s.db.QueryRowContext(ctx, `SELECT points FROM members WHERE id = ?`, memberID).Scan(&points)
	if err == sql.ErrNoRows {
		return 0, apperr.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return points, nil
}
