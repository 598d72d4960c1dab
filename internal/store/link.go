package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/curtaincall/internal/apperr"
)

// LinkStore owns member link codes and the parent to member links they
// create.
type LinkStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewLinkStore(db *sql.DB) *LinkStore {
	return &LinkStore{db: db, now: time.Now}
}

// LinkCode returns the member's link code, generating one with newCode the
// first time. A code is issued once per member and never changes.
func (s *LinkStore) LinkCode(ctx context.Context, memberID string, newCode func() (string, error)) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE id = ?)`, memberID,
	).Scan(&exists); err != nil {
		return "", fmt.Errorf("check member: %w", err)
	}
	if !exists {
		return "", apperr.ErrNotFound
	}

	var code string
	err = tx.QueryRowContext(ctx, `SELECT code FROM member_link_codes WHERE member_id = ?`, memberID).Scan(&code)
	if err == nil {
		return code, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("get link code: %w", err)
	}

	code, err = freeLinkCode(ctx, tx, newCode)
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO member_link_codes (member_id, code, created_at) VALUES (?, ?, ?)`,
		memberID, code, s.now().UTC(),
	); err != nil {
		return "", fmt.Errorf("insert link code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit link code: %w", err)
	}
	return code, nil
}

func freeLinkCode(ctx context.Context, tx *sql.Tx, newCode func() (string, error)) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := newCode()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		var taken bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM member_link_codes WHERE code = ?)`, code,
		).Scan(&taken); err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrNoFreeCode
}

// Link connects parentID to the member holding code and returns that
// member's id. Linking twice is a no-op. An unknown code is ErrNotFound.
func (s *LinkStore) Link(ctx context.Context, parentID, code string) (string, error) {
	var memberID string
	err := s.db.QueryRowContext(ctx, `SELECT member_id FROM member_link_codes WHERE code = ?`, code).Scan(&memberID)
	if err == sql.ErrNoRows {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find link code: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO parent_links (parent_id, member_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (parent_id, member_id) DO NOTHING`,
		parentID, memberID, s.now().UTC(),
	); err != nil {
		return "", fmt.Errorf("insert parent link: %w", err)
	}
	return memberID, nil
}

// Unlink removes a link and reports whether one existed.
func (s *LinkStore) Unlink(ctx context.Context, parentID, memberID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM parent_links WHERE parent_id = ? AND member_id = ?`, parentID, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("delete parent link: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ChildIDs returns the members linked to parentID in the order they were
// linked.
func (s *LinkStore) ChildIDs(ctx context.Context, parentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id FROM parent_links WHERE parent_id = ? ORDER BY created_at, member_id`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
