package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/google/uuid"
)

type EventStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db, now: time.Now}
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	err := scanner.Scan(&e.ID, &e.Title, &e.Location, &e.StartsAt, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const eventCols = `id, title, location, starts_at, created_by, created_at`

func (s *EventStore) Create(ctx context.Context, title, location string, startsAt time.Time, createdBy string) (*model.Event, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, location, starts_at, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, title, location, startsAt.UTC(), createdBy, s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *EventStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListUpcoming returns events starting at or after from, soonest first.
func (s *EventStore) ListUpcoming(ctx context.Context, from time.Time) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events WHERE starts_at >= ? ORDER BY starts_at ASC`,
		from.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// ToggleAttendance adds the member to the event's attendees, or removes them
// if they were already attending. It reports whether the member is now
// attending.
func (s *EventStore) ToggleAttendance(ctx context.Context, eventID, memberID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM event_attendees WHERE event_id = ? AND member_id = ?`,
		eventID, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("remove attendee: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	attending := n == 0
	if attending {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_attendees (event_id, member_id, created_at) VALUES (?, ?, ?)`,
			eventID, memberID, s.now().UTC(),
		); err != nil {
			return false, fmt.Errorf("add attendee: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit attendance: %w", err)
	}
	return attending, nil
}

func (s *EventStore) ListAttendees(ctx context.Context, eventID string) ([]model.EventAttendee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ea.event_id, ea.member_id, m.name, ea.created_at
		 FROM event_attendees ea
		 JOIN members m ON m.id = ea.member_id
		 WHERE ea.event_id = ?
		 ORDER BY ea.created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var attendees []model.EventAttendee
	for rows.Next() {
		var a model.EventAttendee
		if err := rows.Scan(&a.EventID, &a.MemberID, &a.MemberName, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}
