package model

import "time"

// Member is a program participant with a points, streak and attendance record.
type Member struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Points             int       `json:"points"`
	Streak             int       `json:"streak"`
	SessionsAttended   int       `json:"sessions_attended"`
	LastAttendanceWeek *string   `json:"last_attendance_week"`
	HasPIN             bool      `json:"has_pin"`
	Groups             []string  `json:"groups"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
