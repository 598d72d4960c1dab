// Package points awards points to members. Each staff member may award a
// given member at most once per calendar day.
package points

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/metrics"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/store"
)

var amounts = []int{5, 10, 15}

var reasons = []string{
	"Helping another member",
	"Great attitude",
	"Perfect attendance",
	"Extra effort in class",
	"Kindness shown to others",
}

type Service struct {
	points  *store.PointsStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewService creates a points service. Day boundaries are computed in loc;
// a nil loc means time.Local.
func NewService(ps *store.PointsStore, m *metrics.Metrics, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		points:  ps,
		metrics: m,
		logger:  logger.With("component", "points"),
		loc:     loc,
		now:     time.Now,
	}
}

// Amounts returns the award amounts staff may choose from.
func (s *Service) Amounts() []int {
	return slices.Clone(amounts)
}

// Reasons returns the preset award reasons.
func (s *Service) Reasons() []string {
	return slices.Clone(reasons)
}

// Award credits amount points to memberID on behalf of staffID and appends a
// log entry. It returns apperr.ErrLimitReached if staffID has already
// awarded this member since local midnight.
func (s *Service) Award(ctx context.Context, memberID, staffID string, amount int, reason string) (*model.PointsLogEntry, error) {
	if err := validate(memberID, staffID, amount, reason); err != nil {
		return nil, err
	}

	now := s.now()
	entry := &model.PointsLogEntry{
		MemberID:  memberID,
		Amount:    amount,
		Reason:    reason,
		GivenBy:   staffID,
		CreatedAt: now,
	}

	err := s.points.Award(ctx, entry, startOfDay(now, s.loc))
	switch {
	case err == nil:
	case apperr.IsDomain(err):
		s.metrics.Event("award", metrics.OutcomeRejected)
		return nil, err
	default:
		s.metrics.Event("award", metrics.OutcomeFailed)
		s.logger.Error("award points", "member_id", memberID, "staff_id", staffID, "error", err)
		return nil, apperr.Failed("award points", err)
	}

	s.metrics.Event("award", metrics.OutcomeSuccess)
	s.metrics.PointsAwarded(amount)
	s.logger.Info("points awarded", "member_id", memberID, "staff_id", staffID, "amount", amount)
	return entry, nil
}

// Log returns a member's points history, newest first.
func (s *Service) Log(ctx context.Context, memberID string) ([]model.PointsLogEntry, error) {
	if strings.TrimSpace(memberID) == "" {
		return nil, apperr.Invalid("member_id", "is required")
	}
	entries, err := s.points.ListByMember(ctx, memberID)
	if err != nil {
		return nil, apperr.Failed("list points log", err)
	}
	if entries == nil {
		entries = []model.PointsLogEntry{}
	}
	return entries, nil
}

// Balance returns a member's current points balance.
func (s *Service) Balance(ctx context.Context, memberID string) (int, error) {
	if strings.TrimSpace(memberID) == "" {
		return 0, apperr.Invalid("member_id", "is required")
	}
	balance, err := s.points.Balance(ctx, memberID)
	if err != nil {
		return 0, apperr.Failed("get balance", err)
	}
	return balance, nil
}

func validate(memberID, staffID string, amount int, reason string) error {
	if strings.TrimSpace(memberID) == "" {
		return apperr.Invalid("member_id", "is required")
	}
	if strings.TrimSpace(staffID) == "" {
		return apperr.Invalid("staff_id", "is required")
	}
	if !slices.Contains(amounts, amount) {
		return apperr.Invalid("amount", "must be one of %v", amounts)
	}
	if !slices.Contains(reasons, reason) {
		return apperr.Invalid("reason", "must be one of the preset reasons")
	}
	return nil
}

// startOfDay returns midnight at the start of t's calendar day in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
