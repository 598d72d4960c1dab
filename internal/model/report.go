package model

import "time"

// Incident report types.
const (
	ReportAccident     = "accident"
	ReportSafeguarding = "safeguarding"
)

// Report is an accident or safeguarding record filed by staff about a member.
// Category holds the injury type for accidents and the incident type for
// safeguarding reports.
type Report struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	MemberID    string    `json:"member_id"`
	MemberName  string    `json:"member_name"`
	GroupID     string    `json:"group_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	ActionTaken string    `json:"action_taken"`
	Comments    string    `json:"comments"`
	ReportedBy  string    `json:"reported_by"`
	SecondedBy  *string   `json:"seconded_by"`
	CreatedAt   time.Time `json:"created_at"`
}
