package store

import (
	"context"
	"testing"
	"time"
)

func TestEventUpcoming(t *testing.T) {
	es := NewEventStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)

	if _, err := es.Create(ctx, "Dress rehearsal", "Main hall", now.Add(48*time.Hour), "staff-1"); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, err := es.Create(ctx, "Opening night", "Theatre", now.Add(72*time.Hour), "staff-1"); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, err := es.Create(ctx, "Auditions", "Studio 2", now.Add(-48*time.Hour), "staff-1"); err != nil {
		t.Fatalf("create event: %v", err)
	}

	events, err := es.ListUpcoming(ctx, now)
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 upcoming events, got %d", len(events))
	}
	if events[0].Title != "Dress rehearsal" || events[1].Title != "Opening night" {
		t.Errorf("events = [%q %q], want soonest first", events[0].Title, events[1].Title)
	}
}

func TestEventToggleAttendance(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	ms := NewMemberStore(db)
	ctx := context.Background()

	e, _ := es.Create(ctx, "Opening night", "Theatre", time.Now().Add(24*time.Hour), "staff-1")
	m, _ := ms.Create(ctx, "Ada")

	attending, err := es.ToggleAttendance(ctx, e.ID, m.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !attending {
		t.Error("expected attending after first toggle")
	}

	attendees, err := es.ListAttendees(ctx, e.ID)
	if err != nil {
		t.Fatalf("list attendees: %v", err)
	}
	if len(attendees) != 1 || attendees[0].MemberName != "Ada" {
		t.Errorf("attendees = %+v, want [Ada]", attendees)
	}

	attending, err = es.ToggleAttendance(ctx, e.ID, m.ID)
	if err != nil {
		t.Fatalf("toggle again: %v", err)
	}
	if attending {
		t.Error("expected not attending after second toggle")
	}
	attendees, _ = es.ListAttendees(ctx, e.ID)
	if len(attendees) != 0 {
		t.Errorf("attendees = %+v, want none", attendees)
	}
}
