package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/model"
)

// fundMember gives a new member a starting balance.
func fundMember(t *testing.T, ps *PointsStore, memberID string, amount int) {
	t.Helper()
	now := time.Now()
	if err := ps.Award(context.Background(), &model.PointsLogEntry{
		MemberID: memberID, Amount: amount, Reason: "Great attitude", GivenBy: "fund-" + memberID, CreatedAt: now,
	}, now.Add(-time.Hour)); err != nil {
		t.Fatalf("fund member: %v", err)
	}
}

func fixedCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func TestRewardRedeem(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMemberStore(db)
	ps := NewPointsStore(db)
	rs := NewRewardStore(db)
	ctx := context.Background()

	m, _ := ms.Create(ctx, "Ada")
	fundMember(t, ps, m.ID, 120)

	r := &model.Reward{MemberID: m.ID, Item: "T-Shirt", Cost: 100, Emoji: "👕", CreatedAt: time.Now()}
	if err := rs.Redeem(ctx, r, fixedCodes("4821")); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if r.ID == "" || r.RedeemCode != "4821" {
		t.Errorf("reward = %+v", r)
	}

	balance, _ := ps.Balance(ctx, m.ID)
	if balance != 20 {
		t.Errorf("balance = %d, want 20", balance)
	}

	second := &model.Reward{MemberID: m.ID, Item: "T-Shirt", Cost: 100, CreatedAt: time.Now()}
	err := rs.Redeem(ctx, second, fixedCodes("1234"))
	var ipe *apperr.InsufficientPointsError
	if !errors.As(err, &ipe) {
		t.Fatalf("err = %v, want InsufficientPointsError", err)
	}
	if ipe.Balance != 20 || ipe.Shortfall() != 80 {
		t.Errorf("balance/shortfall = %d/%d, want 20/80", ipe.Balance, ipe.Shortfall())
	}

	rewards, _ := rs.ListByMember(ctx, m.ID)
	if len(rewards) != 1 {
		t.Errorf("expected 1 reward, got %d", len(rewards))
	}
}

func TestRewardRedeemMissingMember(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))

	err := rs.Redeem(context.Background(),
		&model.Reward{MemberID: "missing", Item: "Sticker Pack", Cost: 20, CreatedAt: time.Now()},
		fixedCodes("1000"))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRewardRedeemSkipsOutstandingCodes(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMemberStore(db)
	ps := NewPointsStore(db)
	rs := NewRewardStore(db)
	ctx := context.Background()

	m, _ := ms.Create(ctx, "Ada")
	fundMember(t, ps, m.ID, 100)

	first := &model.Reward{MemberID: m.ID, Item: "Sticker Pack", Cost: 20, CreatedAt: time.Now()}
	if err := rs.Redeem(ctx, first, fixedCodes("5555")); err != nil {
		t.Fatalf("redeem first: %v", err)
	}

	second := &model.Reward{MemberID: m.ID, Item: "Sticker Pack", Cost: 20, CreatedAt: time.Now()}
	if err := rs.Redeem(ctx, second, fixedCodes("5555", "6666")); err != nil {
		t.Fatalf("redeem second: %v", err)
	}
	if second.RedeemCode != "6666" {
		t.Errorf("code = %q, want 6666", second.RedeemCode)
	}

	third := &model.Reward{MemberID: m.ID, Item: "Sticker Pack", Cost: 20, CreatedAt: time.Now()}
	if err := rs.Redeem(ctx, third, fixedCodes("5555")); !errors.Is(err, ErrNoFreeCode) {
		t.Fatalf("err = %v, want ErrNoFreeCode", err)
	}
	balance, _ := ps.Balance(ctx, m.ID)
	if balance != 60 {
		t.Errorf("balance = %d, want 60 after failed redeem rolled back", balance)
	}

	// Once collected, a code may be issued again.
	if ok, err := rs.MarkCollected(ctx, m.ID, first.ID, "staff-1", time.Now()); err != nil || !ok {
		t.Fatalf("mark collected = %v, %v", ok, err)
	}
	fourth := &model.Reward{MemberID: m.ID, Item: "Sticker Pack", Cost: 20, CreatedAt: time.Now()}
	if err := rs.Redeem(ctx, fourth, fixedCodes("5555")); err != nil {
		t.Fatalf("redeem after collect: %v", err)
	}
}

func TestRewardMarkCollectedOnce(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMemberStore(db)
	ps := NewPointsStore(db)
	rs := NewRewardStore(db)
	ctx := context.Background()

	m, _ := ms.Create(ctx, "Ada")
	fundMember(t, ps, m.ID, 50)
	r := &model.Reward{MemberID: m.ID, Item: "Water Bottle", Cost: 50, CreatedAt: time.Now()}
	if err := rs.Redeem(ctx, r, fixedCodes("7777")); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	found, err := rs.FindOutstandingByCode(ctx, "7777")
	if err != nil {
		t.Fatalf("find by code: %v", err)
	}
	if found == nil || found.ID != r.ID {
		t.Fatalf("found = %+v, want %s", found, r.ID)
	}

	at := time.Date(2025, 4, 2, 17, 0, 0, 0, time.UTC)
	ok, err := rs.MarkCollected(ctx, m.ID, r.ID, "staff-1", at)
	if err != nil || !ok {
		t.Fatalf("mark collected = %v, %v", ok, err)
	}
	ok, err = rs.MarkCollected(ctx, m.ID, r.ID, "staff-2", at)
	if err != nil {
		t.Fatalf("mark collected again: %v", err)
	}
	if ok {
		t.Error("second collection should not succeed")
	}

	got, _ := rs.Get(ctx, m.ID, r.ID)
	if !got.Collected || got.State() != model.RewardCollected {
		t.Errorf("reward = %+v, want collected", got)
	}
	if got.CollectedBy == nil || *got.CollectedBy != "staff-1" {
		t.Errorf("collected_by = %v, want staff-1", got.CollectedBy)
	}
	if got.CollectedAt == nil || !got.CollectedAt.Equal(at) {
		t.Errorf("collected_at = %v, want %v", got.CollectedAt, at)
	}

	found, _ = rs.FindOutstandingByCode(ctx, "7777")
	if found != nil {
		t.Errorf("expected no outstanding voucher, got %+v", found)
	}
	outstanding, _ := rs.ListOutstanding(ctx)
	if len(outstanding) != 0 {
		t.Errorf("outstanding = %d, want 0", len(outstanding))
	}
}

func TestRewardGetScopedToMember(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMemberStore(db)
	ps := NewPointsStore(db)
	rs := NewRewardStore(db)
	ctx := context.Background()

	ada, _ := ms.Create(ctx, "Ada")
	bea, _ := ms.Create(ctx, "Bea")
	fundMember(t, ps, ada.ID, 20)
	r := &model.Reward{MemberID: ada.ID, Item: "Sticker Pack", Cost: 20, CreatedAt: time.Now()}
	if err := rs.Redeem(ctx, r, fixedCodes("2222")); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	got, err := rs.Get(ctx, bea.ID, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for another member, got %+v", got)
	}
	ok, _ := rs.MarkCollected(ctx, bea.ID, r.ID, "staff-1", time.Now())
	if ok {
		t.Error("collecting under the wrong member should not succeed")
	}
}
