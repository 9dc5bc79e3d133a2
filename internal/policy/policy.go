package policy

import (
	"strings"
	"time"
)

// CancellationFeeUSD applies when an appointment is cancelled inside the
// cancellation window.
const CancellationFeeUSD = 75

// CancellationWindow is the cutoff inside which reschedules carry a fee
// warning and cancellations carry the fee.
const CancellationWindow = 24 * time.Hour

// HoursUntilSentinel is returned for timestamps that cannot be parsed, so
// time-based checks default to "not within the cutoff" instead of falsely
// triggering a fee.
const HoursUntilSentinel = 999

// HoursUntilAt returns the signed number of hours from now until the given
// RFC 3339 timestamp, evaluated in the timestamp's own offset.
func HoursUntilAt(now time.Time, scheduledTime string) float64 {
	ts, err := ParseTimestamp(scheduledTime)
	if err != nil {
		return HoursUntilSentinel
	}
	return ts.Sub(now.In(ts.Location())).Hours()
}

// HoursUntil is HoursUntilAt anchored at the wall clock.
func HoursUntil(scheduledTime string) float64 {
	return HoursUntilAt(time.Now(), scheduledTime)
}

// WithinCancellationWindowAt reports whether the appointment starts less
// than 24 hours after now.
func WithinCancellationWindowAt(now time.Time, scheduledTime string) bool {
	return HoursUntilAt(now, scheduledTime) < CancellationWindow.Hours()
}

func WithinCancellationWindow(scheduledTime string) bool {
	return WithinCancellationWindowAt(time.Now(), scheduledTime)
}

// ParseTimestamp accepts RFC 3339 with or without an explicit offset; a
// trailing Z is normalized the way the scheduling backend emits it.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05", v)
}
