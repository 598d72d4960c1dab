package model

import "time"

// Announcement is a notice shown to its audiences between StartsAt and EndsAt.
type Announcement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Audience    []string  `json:"audience"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reaches reports whether the announcement targets audience.
func (a Announcement) Reaches(audience string) bool {
	for _, x := range a.Audience {
		if x == audience {
			return true
		}
	}
	return false
}
