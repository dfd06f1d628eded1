package course

import (
	"fmt"
	"time"
)

// DeriveStatus computes the status a Track should have at `now` from its dates:
// upcoming before the start date, current until the end date (inclusive), completed after.
// A Track missing either date keeps its stored status.
func DeriveStatus(t Track, now time.Time) TrackStatus {
	if t.StartDate == nil || t.EndDate == nil {
		return t.Status
	}
	switch {
	case now.Before(*t.StartDate):
		return StatusUpcoming
	case !now.After(*t.EndDate):
		return StatusCurrent
	default:
		return StatusCompleted
	}
}

// TimeRemaining renders the time left until deadline as "Xd Yh remaining" (a day or more),
// "Xh Ym remaining" (less than a day) or "Expired".
func TimeRemaining(deadline, now time.Time) string {
	left := deadline.Sub(now)
	if left <= 0 {
		return "Expired"
	}
	days := int(left / (24 * time.Hour))
	hours := int(left % (24 * time.Hour) / time.Hour)
	if days > 0 {
		return fmt.Sprintf("%dd %dh remaining", days, hours)
	}
	minutes := int(left % time.Hour / time.Minute)
	return fmt.Sprintf("%dh %dm remaining", hours, minutes)
}
