package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/curtaincall/internal/apperr"
	"github.com/dukerupert/curtaincall/internal/metrics"
	"github.com/dukerupert/curtaincall/internal/model"
	"github.com/dukerupert/curtaincall/internal/store"
)

// Failure records a member whose counters could not be updated.
type Failure struct {
	MemberID string `json:"member_id"`
	Error    string `json:"error"`
}

// Result is the outcome of a register submission.
type Result struct {
	Register model.AttendanceRegister `json:"register"`
	// Updated holds members whose streak and session count were applied by
	// this submission. Members credited by an earlier submission for the
	// same group and date are not counted again.
	Updated []model.Member `json:"updated"`
	Failed  []Failure      `json:"failed,omitempty"`
}

type Service struct {
	members   *store.MemberStore
	groups    *store.GroupStore
	registers *store.RegisterStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewService creates an attendance service. Register dates and ISO weeks are
// computed in loc; a nil loc means time.Local.
func NewService(ms *store.MemberStore, gs *store.GroupStore, rs *store.RegisterStore, m *metrics.Metrics, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		members:   ms,
		groups:    gs,
		registers: rs,
		metrics:   m,
		logger:    logger.With("component", "attendance"),
		loc:       loc,
		now:       time.Now,
	}
}

// Submit records the register for groupID on today's date and applies one
// attended session to every present member who has not yet been credited
// for this group and date by any earlier submission.
//
// Member updates are independent. If some fail, Submit still returns the
// Result, with the failures listed in Result.Failed, together with an
// *apperr.OperationError.
func (s *Service) Submit(ctx context.Context, groupID, staffID string, present []string) (*Result, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, apperr.Invalid("group_id", "is required")
	}
	if strings.TrimSpace(staffID) == "" {
		return nil, apperr.Invalid("staff_id", "is required")
	}

	ids, err := dedupe(present)
	if err != nil {
		return nil, err
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, apperr.Failed("get group", err)
	}
	if group == nil {
		return nil, apperr.ErrNotFound
	}

	enrolled, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return nil, apperr.Failed("list group members", err)
	}
	for _, id := range ids {
		if !enrolled[id] {
			return nil, apperr.Invalid("present", "member %s is not in group %s", id, group.Name)
		}
	}

	now := s.now().In(s.loc)
	reg := model.AttendanceRegister{
		GroupID: groupID,
		Date:    DateKey(now, s.loc),
		TakenBy: staffID,
		TakenAt: now,
		Present: ids,
	}

	if err := s.registers.Replace(ctx, reg); err != nil {
		s.metrics.Event("register", metrics.OutcomeFailed)
		s.logger.Error("write register", "group_id", groupID, "date", reg.Date, "error", err)
		return nil, apperr.Failed("write register", err)
	}

	result := &Result{Register: reg, Updated: []model.Member{}}
	next := func(last *string, streak int) (string, int) {
		return NextStreak(last, streak, now)
	}

	var errs []error
	for _, id := range ids {
		claimed, err := s.registers.ClaimCredit(ctx, groupID, reg.Date, id)
		if err != nil {
			s.logger.Error("claim credit", "member_id", id, "group_id", groupID, "error", err)
			result.Failed = append(result.Failed, Failure{MemberID: id, Error: err.Error()})
			errs = append(errs, fmt.Errorf("member %s: %w", id, err))
			continue
		}
		if !claimed {
			continue
		}

		m, err := s.members.RecordAttendance(ctx, id, next)
		if err != nil {
			s.logger.Error("record attendance", "member_id", id, "group_id", groupID, "error", err)
			if rerr := s.registers.ReleaseCredit(ctx, groupID, reg.Date, id); rerr != nil {
				s.logger.Error("release credit", "member_id", id, "group_id", groupID, "error", rerr)
			}
			result.Failed = append(result.Failed, Failure{MemberID: id, Error: err.Error()})
			errs = append(errs, fmt.Errorf("member %s: %w", id, err))
			continue
		}
		result.Updated = append(result.Updated, *m)
	}

	if len(errs) > 0 {
		s.metrics.Event("register", metrics.OutcomeFailed)
		return result, &apperr.OperationError{Op: "update attendance", Err: errors.Join(errs...)}
	}

	s.metrics.Event("register", metrics.OutcomeSuccess)
	s.logger.Info("register submitted",
		"group_id", groupID, "date", reg.Date, "present", len(ids), "updated", len(result.Updated))
	return result, nil
}

// Register returns the register for a group on date (YYYY-MM-DD).
func (s *Service) Register(ctx context.Context, groupID, date string) (*model.AttendanceRegister, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, apperr.Invalid("date", "must be YYYY-MM-DD")
	}
	reg, err := s.registers.Get(ctx, groupID, date)
	if err != nil {
		return nil, apperr.Failed("get register", err)
	}
	if reg == nil {
		return nil, apperr.ErrNotFound
	}
	return reg, nil
}

// Registers returns a group's registers, most recent first.
func (s *Service) Registers(ctx context.Context, groupID string) ([]model.AttendanceRegister, error) {
	regs, err := s.registers.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, apperr.Failed("list registers", err)
	}
	if regs == nil {
		regs = []model.AttendanceRegister{}
	}
	return regs, nil
}

func dedupe(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, apperr.Invalid("present", "member ids must not be empty")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
