package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/google/uuid"
)

type GroupStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db, now: time.Now}
}

func scanGroup(scanner interface{ Scan(...any) error }) (*model.Group, error) {
	var g model.Group
	if err := scanner.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

const groupCols = `id, name, created_at`

func (s *GroupStore) Create(ctx context.Context, name string) (*model.Group, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO class_groups (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *GroupStore) GetByID(ctx context.Context, id string) (*model.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupCols+` FROM class_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *GroupStore) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM class_groups WHERE name = ? COLLATE NOCASE)`,
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check group name: %w", err)
	}
	return exists, nil
}

func (s *GroupStore) List(ctx context.Context) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupCols+` FROM class_groups ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// AddMember enrols a member in a group. Adding an existing member is a no-op.
func (s *GroupStore) AddMember(ctx context.Context, groupID, memberID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, member_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (group_id, member_id) DO NOTHING`,
		groupID, memberID, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (s *GroupStore) RemoveMember(ctx context.Context, groupID, memberID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND member_id = ?`,
		groupID, memberID,
	)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}

// MemberIDs returns the set of member ids enrolled in a group.
func (s *GroupStore) MemberIDs(ctx context.Context, groupID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT member_id FROM group_members WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group member ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
