package shared

import (
	"fmt"
	"time"
)

const (
	// Exchange session times (KRX) in seoul time (KST).
	MarketOpen  = "09:00:00"
	MarketClose = "15:30:00"

	// NextOpenSellTime is the earliest time a scheduled next-open sell may fire.
	// Offset slightly past the open to avoid racing the opening auction print.
	NextOpenSellTime = "09:00:10"
)

// timeOfDay anchors the provided time-of-day value to the calendar day of now.
func timeOfDay(value string, now time.Time) (time.Time, error) {
	tod, err := time.Parse(SessionTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing session time %q: %w", value, err)
	}

	anchored := time.Date(now.Year(), now.Month(), now.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), 0, now.Location())

	return anchored, nil
}

// IsWithinSession checks whether the provided time falls inside the exchange
// session by the wall clock alone. Holiday status is the trading calendar's
// concern, not the clock's.
func IsWithinSession(now time.Time) (bool, error) {
	open, err := timeOfDay(MarketOpen, now)
	if err != nil {
		return false, err
	}

	close, err := timeOfDay(MarketClose, now)
	if err != nil {
		return false, err
	}

	within := !now.Before(open) && !now.After(close)

	return within, nil
}

// HasReached checks whether the provided time has reached the target
// time-of-day on its own calendar day.
func HasReached(now time.Time, target string) (bool, error) {
	at, err := timeOfDay(target, now)
	if err != nil {
		return false, err
	}

	return !now.Before(at), nil
}
