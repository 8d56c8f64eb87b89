package entities

import (
	"time"
)

// OverrideStatus controls how a manual override interacts with the schedule
type OverrideStatus string

const (
	OverrideAuto     OverrideStatus = "auto"
	OverrideEnabled  OverrideStatus = "enabled"
	OverrideDisabled OverrideStatus = "disabled"
)

// QueueSchedule defines when a department queue is staffed and open.
// StartTime and EndTime are wall-clock values in "15:04" form; DaysOfWeek
// uses 0=Monday through 6=Sunday.
type QueueSchedule struct {
	ID             int64          `json:"id" db:"id"`
	Department     Department     `json:"department" db:"department"`
	NurseID        int64          `json:"nurse_id" db:"nurse_id"`
	StartTime      string         `json:"start_time" db:"start_time"`
	EndTime        string         `json:"end_time" db:"end_time"`
	DaysOfWeek     []int          `json:"days_of_week" db:"days_of_week"`
	IsActive       bool           `json:"is_active" db:"is_active"`
	ManualOverride bool           `json:"manual_override" db:"manual_override"`
	OverrideStatus OverrideStatus `json:"override_status" db:"override_status"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsOpenNow reports whether the schedule window covers the given instant.
// Manual overrides win: enabled forces open, disabled forces closed.
func (s *QueueSchedule) IsOpenNow(now time.Time) bool {
	if s.ManualOverride {
		return s.OverrideStatus == OverrideEnabled
	}
	if !s.IsActive {
		return false
	}
	if len(s.DaysOfWeek) > 0 && !s.coversDay(now.Weekday()) {
		return false
	}
	start, err := parseWallClock(s.StartTime, now)
	if err != nil {
		return false
	}
	end, err := parseWallClock(s.EndTime, now)
	if err != nil {
		return false
	}
	return !now.Before(start) && now.Before(end)
}

// PastEndTime reports whether the instant is strictly beyond the closing
// time. The day-of-week mask is deliberately not consulted here.
func (s *QueueSchedule) PastEndTime(now time.Time) bool {
	end, err := parseWallClock(s.EndTime, now)
	if err != nil {
		return false
	}
	return now.After(end)
}

func (s *QueueSchedule) coversDay(wd time.Weekday) bool {
	// time.Weekday has Sunday=0; the stored mask has Monday=0
	day := (int(wd) + 6) % 7
	for _, d := range s.DaysOfWeek {
		if d == day {
			return true
		}
	}
	return false
}

func parseWallClock(value string, on time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		// seconds are accepted but ignored by callers
		t, err = time.Parse("15:04:05", value)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(on.Year(), on.Month(), on.Day(), t.Hour(), t.Minute(), t.Second(), 0, on.Location()), nil
}
