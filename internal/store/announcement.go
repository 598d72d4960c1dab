package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/google/uuid"
)

// ErrAnnouncementOverlap is returned when an announcement would share an
// audience with another one running over an overlapping window.
var ErrAnnouncementOverlap = errors.New("announcement overlaps another")

type AnnouncementStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewAnnouncementStore(db *sql.DB) *AnnouncementStore {
	return &AnnouncementStore{db: db, now: time.Now}
}

func scanAnnouncement(scanner interface{ Scan(...any) error }) (*model.Announcement, error) {
	var a model.Announcement
	var audience string

	err := scanner.Scan(&a.ID, &a.Title, &a.Description, &audience, &a.StartsAt, &a.EndsAt, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Audience = strings.Split(audience, ",")
	return &a, nil
}

const announcementCols = `id, title, description, audience, starts_at, ends_at, created_by, created_at`

// Create inserts a, assigning its ID and CreatedAt. It fails with
// ErrAnnouncementOverlap if another announcement reaches one of the same
// audiences during an overlapping window.
func (s *AnnouncementStore) Create(ctx context.Context, a *model.Announcement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkOverlap(ctx, tx, a, ""); err != nil {
		return err
	}

	a.ID = uuid.NewString()
	a.CreatedAt = s.now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO announcements (`+announcementCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Description, strings.Join(a.Audience, ","),
		a.StartsAt.UTC(), a.EndsAt.UTC(), a.CreatedBy, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return tx.Commit()
}

// Update rewrites the title, description, audience and window of the
// announcement a.ID. The announcement does not conflict with itself.
func (s *AnnouncementStore) Update(ctx context.Context, a *model.Announcement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+announcementCols+` FROM announcements WHERE id = ?`, a.ID)
	existing, err := scanAnnouncement(row)
	if err == sql.ErrNoRows {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get announcement: %w", err)
	}

	if err := checkOverlap(ctx, tx, a, a.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE announcements SET title = ?, description = ?, audience = ?, starts_at = ?, ends_at = ? WHERE id = ?`,
		a.Title, a.Description, strings.Join(a.Audience, ","), a.StartsAt.UTC(), a.EndsAt.UTC(), a.ID,
	); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	a.CreatedBy = existing.CreatedBy
	a.CreatedAt = existing.CreatedAt
	return tx.Commit()
}

func checkOverlap(ctx context.Context, tx *sql.Tx, a *model.Announcement, excludeID string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+announcementCols+` FROM announcements
		 WHERE starts_at < ? AND ends_at > ? AND id != ?
		 ORDER BY starts_at`,
		a.EndsAt.UTC(), a.StartsAt.UTC(), excludeID,
	)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		other, err := scanAnnouncement(rows)
		if err != nil {
			return fmt.Errorf("scan announcement: %w", err)
		}
		for _, aud := range a.Audience {
			if other.Reaches(aud) {
				return fmt.Errorf("%w: %q for %s", ErrAnnouncementOverlap, other.Title, aud)
			}
		}
	}
	return rows.Err()
}

func (s *AnnouncementStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete announcement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *AnnouncementStore) GetByID(ctx context.Context, id string) (*model.Announcement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+announcementCols+` FROM announcements WHERE id = ?`, id)
	a, err := scanAnnouncement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get announcement: %w", err)
	}
	return a, nil
}

// List returns every announcement, latest start first.
func (s *AnnouncementStore) List(ctx context.Context) ([]model.Announcement, error) {
	return s.list(ctx, `SELECT `+announcementCols+` FROM announcements ORDER BY starts_at DESC, id`)
}

// ListLive returns announcements running at the given instant that reach
// audience, latest start first, at most limit of them.
func (s *AnnouncementStore) ListLive(ctx context.Context, at time.Time, audience string, limit int) ([]model.Announcement, error) {
	all, err := s.list(ctx,
		`SELECT `+announcementCols+` FROM announcements
		 WHERE starts_at <= ? AND ends_at > ?
		 ORDER BY starts_at DESC, id`,
		at.UTC(), at.UTC(),
	)
	if err != nil {
		return nil, err
	}

	var live []model.Announcement
	for _, a := range all {
		if a.Reaches(audience) {
			live = append(live, a)
		}
		if len(live) == limit {
			break
		}
	}
	return live, nil
}

func (s *AnnouncementStore) list(ctx context.Context, query string, args ...any) ([]model.Announcement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
