package attendance

import (
	"fmt"
	"time"
)

// ISOWeek returns the ISO-8601 week label for t, e.g. "2025-W14". The label
// uses the ISO week-numbering year, so 2024-12-30 is "2025-W01".
func ISOWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// NextStreak computes a member's streak after attending a session at now.
//
// A member last seen in the previous ISO week extends their streak. A member
// already seen this week keeps the streak they have, so attending several
// sessions in one week counts that week once. Anyone else starts over at 1.
func NextStreak(lastWeek *string, streak int, now time.Time) (week string, newStreak int) {
	current := ISOWeek(now)
	previous := ISOWeek(now.AddDate(0, 0, -7))

	switch {
	case lastWeek == nil:
		return current, 1
	case *lastWeek == current:
		if streak < 1 {
			return current, 1
		}
		return current, streak
	case *lastWeek == previous:
		return current, streak + 1
	default:
		return current, 1
	}
}

// DateKey returns the calendar date of t in loc as YYYY-MM-DD.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}
