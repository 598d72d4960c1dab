package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/curtaincall/internal/model"
)

func TestReportCreateAndList(t *testing.T) {
	db := setupTestDB(t)
	rs := NewReportStore(db)
	ms := NewMemberStore(db)
	gs := NewGroupStore(db)
	ctx := context.Background()

	ada, _ := ms.Create(ctx, "Ada")
	bea, _ := ms.Create(ctx, "Bea")
	g, _ := gs.Create(ctx, "Juniors")

	clock := time.Date(2025, 4, 2, 18, 0, 0, 0, time.UTC)
	rs.now = func() time.Time { return clock }

	second := "staff-2"
	first := &model.Report{
		Type: model.ReportAccident, MemberID: ada.ID, GroupID: g.ID,
		OccurredAt: clock.Add(-time.Hour), Category: "Graze", Location: "Stage left",
		Description: "Tripped on a cable", ActionTaken: "Cleaned and plastered",
		ReportedBy: "staff-1", SecondedBy: &second,
	}
	if err := rs.Create(ctx, first); err != nil {
		t.Fatalf("create report: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected id to be assigned")
	}

	clock = clock.Add(time.Minute)
	if err := rs.Create(ctx, &model.Report{
		Type: model.ReportSafeguarding, MemberID: bea.ID, GroupID: g.ID,
		OccurredAt: clock, Category: "Bullying", Location: "Foyer",
		Description: "Name calling", ActionTaken: "Spoke to both", ReportedBy: "staff-1",
	}); err != nil {
		t.Fatalf("create report: %v", err)
	}

	all, err := rs.List(ctx, "")
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(all))
	}
	if all[0].MemberName != "Bea" || all[1].MemberName != "Ada" {
		t.Errorf("reports = [%q %q], want newest first", all[0].MemberName, all[1].MemberName)
	}
	if all[0].SecondedBy != nil {
		t.Errorf("seconded_by = %v, want nil", *all[0].SecondedBy)
	}

	mine, err := rs.List(ctx, ada.ID)
	if err != nil {
		t.Fatalf("list by member: %v", err)
	}
	if len(mine) != 1 || mine[0].Category != "Graze" {
		t.Errorf("ada's reports = %+v", mine)
	}

	got, err := rs.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got == nil || got.SecondedBy == nil || *got.SecondedBy != "staff-2" {
		t.Errorf("got %+v, want seconded by staff-2", got)
	}
	if !got.OccurredAt.Equal(clock.Add(-time.Minute - time.Hour)) {
		t.Errorf("occurred_at = %v", got.OccurredAt)
	}

	missing, err := rs.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetByID(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestReportRejectsUnknownType(t *testing.T) {
	db := setupTestDB(t)
	rs := NewReportStore(db)
	ctx := context.Background()

	ada, _ := NewMemberStore(db).Create(ctx, "Ada")
	g, _ := NewGroupStore(db).Create(ctx, "Juniors")

	err := rs.Create(ctx, &model.Report{
		Type: "rumour", MemberID: ada.ID, GroupID: g.ID, OccurredAt: time.Now(),
		Category: "x", Location: "x", Description: "x", ActionTaken: "x", ReportedBy: "s",
	})
	if err == nil {
		t.Error("expected check constraint failure")
	}
}
