package shared

import (
	"fmt"
	"time"
)

const (
	// SeoulLocation is the locale used for all exchange facing times.
	SeoulLocation = "Asia/Seoul"

	// DayLayout is the layout for calendar day keys (KRX convention).
	DayLayout = "20060102"
	// SessionTimeLayout is the layout for session time-of-day values.
	SessionTimeLayout = "15:04:05"
)

// SeoulTime returns the current time in seoul (KST).
func SeoulTime() (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(SeoulLocation)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("loading seoul timezone: %w", err)
	}

	now := time.Now().In(loc)
	return now, loc, nil
}

// DayKey returns the calendar day key for the provided time.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// NextCalendarDay returns the day key for the calendar day after the provided time.
func NextCalendarDay(t time.Time) string {
	return t.AddDate(0, 0, 1).Format(DayLayout)
}

// NextCalendarDayKey returns the day key following the provided day key.
// A malformed key yields an empty string.
func NextCalendarDayKey(day string) string {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return ""
	}

	return NextCalendarDay(t)
}
