// Package redemption turns points into vouchers and lets staff mark vouchers
// collected. A voucher moves from pending to collected exactly once.
package redemption

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/metrics"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/store"
)

const (
	minCode = 1000
	maxCode = 9999
)

// QRCode is the payload encoded into a voucher's QR code.
type QRCode struct {
	MemberID   string `json:"memberId"`
	RewardID   string `json:"rewardId"`
	RedeemCode string `json:"redeemCode"`
}

type Service struct {
	rewards *store.RewardStore
	catalog *store.CatalogStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newCode func() (string, error)
}

func NewService(rs *store.RewardStore, cs *store.CatalogStore, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		rewards: rs,
		catalog: cs,
		metrics: m,
		logger:  logger.With("component", "redemption"),
		now:     time.Now,
		newCode: randomCode,
	}
}

// randomCode returns a uniformly random code in [1000, 9999].
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+minCode), nil
}

// Redeem spends item.Cost of the member's points on a new pending voucher.
// The debit and the voucher are written together or not at all.
func (s *Service) Redeem(ctx context.Context, memberID string, item model.CatalogItem) (*model.Reward, error) {
	if strings.TrimSpace(memberID) == "" {
		return nil, apperr.Invalid("member_id", "is required")
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil, apperr.Invalid("item", "name is required")
	}
	if item.Cost <= 0 {
		return nil, apperr.Invalid("cost", "must be positive")
	}

	r := &model.Reward{
		MemberID:  memberID,
		Item:      item.Name,
		Cost:      item.Cost,
		Emoji:     item.Emoji,
		ImageRef:  item.ImageRef,
		CreatedAt: s.now(),
	}

	err := s.rewards.Redeem(ctx, r, s.newCode)
	switch {
	case err == nil:
	case apperr.IsDomain(err):
		s.metrics.Event("redeem", metrics.OutcomeRejected)
		return nil, err
	default:
		s.metrics.Event("redeem", metrics.OutcomeFailed)
		s.logger.Error("redeem", "member_id", memberID, "item", item.Name, "error", err)
		return nil, apperr.Failed("redeem", err)
	}

	s.metrics.Event("redeem", metrics.OutcomeSuccess)
	s.metrics.PointsSpent(item.Cost)
	s.logger.Info("reward redeemed", "member_id", memberID, "reward_id", r.ID, "item", r.Item, "cost", r.Cost)
	return r, nil
}

// RedeemCatalogItem redeems an active catalog item by id.
func (s *Service) RedeemCatalogItem(ctx context.Context, memberID, itemID string) (*model.Reward, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, apperr.Invalid("item_id", "is required")
	}
	item, err := s.catalog.GetByID(ctx, itemID)
	if err != nil {
		return nil, apperr.Failed("get catalog item", err)
	}
	if item == nil || !item.Active {
		return nil, apperr.ErrNotFound
	}
	return s.Redeem(ctx, memberID, *item)
}

// Collect marks the voucher (memberID, rewardID) collected by staffID if
// code matches. A voucher that is already collected is left unchanged.
func (s *Service) Collect(ctx context.Context, memberID, rewardID, code, staffID string) (*model.Reward, error) {
	if strings.TrimSpace(memberID) == "" {
		return nil, apperr.Invalid("member_id", "is required")
	}
	if strings.TrimSpace(rewardID) == "" {
		return nil, apperr.Invalid("reward_id", "is required")
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperr.Invalid("redeem_code", "is required")
	}
	if strings.TrimSpace(staffID) == "" {
		return nil, apperr.Invalid("staff_id", "is required")
	}

	r, err := s.collect(ctx, memberID, rewardID, code, staffID)
	switch {
	case err == nil:
		s.metrics.Event("collect", metrics.OutcomeSuccess)
		s.logger.Info("reward collected", "member_id", memberID, "reward_id", rewardID, "staff_id", staffID)
		return r, nil
	case apperr.IsDomain(err):
		s.metrics.Event("collect", metrics.OutcomeRejected)
		return nil, err
	default:
		s.metrics.Event("collect", metrics.OutcomeFailed)
		s.logger.Error("collect", "member_id", memberID, "reward_id", rewardID, "error", err)
		return nil, apperr.Failed("collect", err)
	}
}

func (s *Service) collect(ctx context.Context, memberID, rewardID, code, staffID string) (*model.Reward, error) {
	r, err := s.rewards.Get(ctx, memberID, rewardID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.ErrNotFound
	}
	if r.Collected {
		return nil, apperr.ErrAlreadyCollected
	}
	if r.RedeemCode != code {
		return nil, apperr.ErrCodeMismatch
	}

	ok, err := s.rewards.MarkCollected(ctx, memberID, rewardID, staffID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrAlreadyCollected
	}

	r, err = s.rewards.Get(ctx, memberID, rewardID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.ErrNotFound
	}
	return r, nil
}

// CollectByCode collects the outstanding voucher holding code. Outstanding
// codes are unique, so at most one voucher matches.
func (s *Service) CollectByCode(ctx context.Context, code, staffID string) (*model.Reward, error) {
	code = strings.TrimSpace(code)
	if !validCode(code) {
		return nil, apperr.Invalid("redeem_code", "must be 4 digits")
	}

	r, err := s.rewards.FindOutstandingByCode(ctx, code)
	if err != nil {
		s.logger.Error("find reward by code", "error", err)
		return nil, apperr.Failed("find reward by code", err)
	}
	if r == nil {
		s.metrics.Event("collect", metrics.OutcomeRejected)
		return nil, apperr.ErrNotFound
	}
	return s.Collect(ctx, r.MemberID, r.ID, code, staffID)
}

// CollectQR collects the voucher described by a scanned QR payload.
func (s *Service) CollectQR(ctx context.Context, payload, staffID string) (*model.Reward, error) {
	qr, err := ParseQR(payload)
	if err != nil {
		return nil, err
	}
	return s.Collect(ctx, qr.MemberID, qr.RewardID, qr.RedeemCode, staffID)
}

// Vouchers returns a member's vouchers, newest first.
func (s *Service) Vouchers(ctx context.Context, memberID string) ([]model.Reward, error) {
	if strings.TrimSpace(memberID) == "" {
		return nil, apperr.Invalid("member_id", "is required")
	}
	rewards, err := s.rewards.ListByMember(ctx, memberID)
	if err != nil {
		return nil, apperr.Failed("list rewards", err)
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	return rewards, nil
}

// Outstanding returns every uncollected voucher, oldest first.
func (s *Service) Outstanding(ctx context.Context) ([]model.Reward, error) {
	rewards, err := s.rewards.ListOutstanding(ctx)
	if err != nil {
		return nil, apperr.Failed("list outstanding rewards", err)
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	return rewards, nil
}

// Voucher returns a single voucher owned by memberID.
func (s *Service) Voucher(ctx context.Context, memberID, rewardID string) (*model.Reward, error) {
	r, err := s.rewards.Get(ctx, memberID, rewardID)
	if err != nil {
		return nil, apperr.Failed("get reward", err)
	}
	if r == nil {
		return nil, apperr.ErrNotFound
	}
	return r, nil
}

// QRPayload returns the JSON payload to encode into r's QR code.
func QRPayload(r model.Reward) (string, error) {
	b, err := json.Marshal(QRCode{MemberID: r.MemberID, RewardID: r.ID, RedeemCode: r.RedeemCode})
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	return string(b), nil
}

// ParseQR decodes a QR payload. Unknown fields and missing ids are rejected.
func ParseQR(payload string) (QRCode, error) {
	var qr QRCode
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&qr); err != nil {
		return QRCode{}, apperr.Invalid("qr", "payload is not a voucher code")
	}
	if dec.More() {
		return QRCode{}, apperr.Invalid("qr", "payload has trailing data")
	}

	var missing []string
	if qr.MemberID == "" {
		missing = append(missing, "memberId")
	}
	if qr.RewardID == "" {
		missing = append(missing, "rewardId")
	}
	if qr.RedeemCode == "" {
		missing = append(missing, "redeemCode")
	}
	if len(missing) > 0 {
		return QRCode{}, apperr.Invalid("qr", "missing %s", strings.Join(missing, ", "))
	}
	return qr, nil
}

func validCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsNoFreeCode reports whether err means the outstanding code space is
// exhausted.
func IsNoFreeCode(err error) bool {
	return errors.Is(err, store.ErrNoFreeCode)
}
