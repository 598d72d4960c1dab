package model

import "time"

// PointsLogEntry is an append-only audit record of points given to a member.
type PointsLogEntry struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	GivenBy   string    `json:"given_by"`
	CreatedAt time.Time `json:"timestamp"`
}
