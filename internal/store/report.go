package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/google/uuid"
)

type ReportStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db, now: time.Now}
}

func scanReport(scanner interface{ Scan(...any) error }) (*model.Report, error) {
	var r model.Report
	var secondedBy sql.NullString

	err := scanner.Scan(
		&r.ID, &r.Type, &r.MemberID, &r.MemberName, &r.GroupID, &r.OccurredAt,
		&r.Category, &r.Location, &r.Description, &r.ActionTaken, &r.Comments,
		&r.ReportedBy, &secondedBy, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if secondedBy.Valid {
		r.SecondedBy = &secondedBy.String
	}
	return &r, nil
}

const reportSelect = `SELECT r.id, r.type, r.member_id, m.name, r.group_id, r.occurred_at,
		r.category, r.location, r.description, r.action_taken, r.comments,
		r.reported_by, r.seconded_by, r.created_at
	FROM reports r
	JOIN members m ON m.id = r.member_id`

// Create inserts r, assigning its ID and CreatedAt.
func (s *ReportStore) Create(ctx context.Context, r *model.Report) error {
	r.ID = uuid.NewString()
	r.CreatedAt = s.now().UTC()

	var secondedBy any
	if r.SecondedBy != nil {
		secondedBy = *r.SecondedBy
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, type, member_id, group_id, occurred_at, category, location,
			description, action_taken, comments, reported_by, seconded_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Type, r.MemberID, r.GroupID, r.OccurredAt.UTC(), r.Category, r.Location,
		r.Description, r.ActionTaken, r.Comments, r.ReportedBy, secondedBy, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetByID returns the report with the member's name, or nil.
func (s *ReportStore) GetByID(ctx context.Context, id string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx, reportSelect+` WHERE r.id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// List returns reports newest first, optionally limited to one member.
func (s *ReportStore) List(ctx context.Context, memberID string) ([]model.Report, error) {
	query := reportSelect
	var args []any
	if memberID != "" {
		query += ` WHERE r.member_id = ?`
		args = append(args, memberID)
	}
	query += ` ORDER BY r.created_at DESC, r.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}
