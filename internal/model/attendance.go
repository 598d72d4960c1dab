package model

import "time"

// AttendanceRegister records who was present at a group session on a date.
// There is at most one per (GroupID, Date).
type AttendanceRegister struct {
	GroupID string    `json:"group_id"`
	Date    string    `json:"date"`
	TakenBy string    `json:"taken_by"`
	TakenAt time.Time `json:"taken_at"`
	Present []string  `json:"present"`
}
