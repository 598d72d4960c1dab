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

// maxCodeAttempts bounds how many candidate codes Redeem tries before giving
// up. With 9000 possible codes, exhausting this means the outstanding
// voucher pool is nearly full.
const maxCodeAttempts = 25

// ErrNoFreeCode is returned when no unused redeem code could be found.
var ErrNoFreeCode = errors.New("no free redeem code")

// RewardStore owns issued vouchers.
type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var collected int
	var collectedBy sql.NullString
	var collectedAt sql.NullTime

	err := scanner.Scan(
		&r.ID, &r.MemberID, &r.Item, &r.Cost, &r.Emoji, &r.ImageRef,
		&r.RedeemCode, &collected, &collectedBy, &collectedAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Collected = collected != 0
	if collectedBy.Valid {
		r.CollectedBy = &collectedBy.String
	}
	if collectedAt.Valid {
		r.CollectedAt = &collectedAt.Time
	}
	return &r, nil
}

const rewardCols = `id, member_id, item, cost, emoji, image_ref, redeem_code, collected, collected_by, collected_at, created_at`

// Redeem debits r.Cost from the member and inserts r as an uncollected
// voucher in one transaction. newCode is called until it yields a code not
// held by any other outstanding voucher. r.ID and r.RedeemCode are assigned.
//
// If the member's balance is below the cost nothing is written and an
// *apperr.InsufficientPointsError is returned.
func (s *RewardStore) Redeem(ctx context.Context, r *model.Reward, newCode func() (string, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE members SET points = points - ?, updated_at = ? WHERE id = ? AND points >= ?`,
		r.Cost, r.CreatedAt.UTC(), r.MemberID, r.Cost,
	)
	if err != nil {
		return fmt.Errorf("debit points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var balance int
		err := tx.QueryRowContext(ctx, `SELECT points FROM members WHERE id = ?`, r.MemberID).Scan(&balance)
		if err == sql.ErrNoRows {
			return apperr.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		return &apperr.InsufficientPointsError{Balance: balance, Cost: r.Cost}
	}

	code, err := freeCode(ctx, tx, newCode)
	if err != nil {
		return err
	}

	r.ID = uuid.NewString()
	r.RedeemCode = code
	r.Collected = false
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rewards (id, member_id, item, cost, emoji, image_ref, redeem_code, collected, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		r.ID, r.MemberID, r.Item, r.Cost, r.Emoji, r.ImageRef, r.RedeemCode, r.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert reward: %w", err)
	}

	return tx.Commit()
}

func freeCode(ctx context.Context, tx *sql.Tx, newCode func() (string, error)) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := newCode()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		var taken bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM rewards WHERE redeem_code = ? AND collected = 0)`, code,
		).Scan(&taken); err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrNoFreeCode
}

// Get returns the voucher identified by (memberID, rewardID), or nil.
func (s *RewardStore) Get(ctx context.Context, memberID, rewardID string) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE id = ? AND member_id = ?`,
		rewardID, memberID,
	)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// FindOutstandingByCode returns the uncollected voucher holding code, or nil.
func (s *RewardStore) FindOutstandingByCode(ctx context.Context, code string) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE redeem_code = ? AND collected = 0 ORDER BY created_at ASC LIMIT 1`,
		code,
	)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find reward by code: %w", err)
	}
	return r, nil
}

// MarkCollected flips a voucher from pending to collected. It reports false
// when the voucher was not pending, so concurrent collections of the same
// voucher succeed at most once.
func (s *RewardStore) MarkCollected(ctx context.Context, memberID, rewardID, staffID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET collected = 1, collected_by = ?, collected_at = ?
		 WHERE id = ? AND member_id = ? AND collected = 0`,
		staffID, at.UTC(), rewardID, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("mark collected: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListByMember returns a member's vouchers, newest first.
func (s *RewardStore) ListByMember(ctx context.Context, memberID string) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE member_id = ? ORDER BY created_at DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

// ListOutstanding returns all uncollected vouchers, oldest first.
func (s *RewardStore) ListOutstanding(ctx context.Context) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE collected = 0 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list outstanding rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}
