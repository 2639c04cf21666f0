// Package timefmt converts fractional-day durations into the human urgency
// labels used in reminder and disclosure messages.  Units are always floored,
// never rounded: understating the remaining time makes deadlines feel closer,
// which is the safe direction for a dead man's switch.
package timefmt

import "fmt"

const (
	minutesPerDay = 1440
	hoursPerDay   = 24
)

// Remaining formats a duration until a deadline, expressed in fractional
// days.  Anything non-positive collapses to "less than a minute".
func Remaining(fractionalDays float64) string {
	return label(fractionalDays)
}

// Elapsed formats a duration since a missed deadline.  The unit-selection
// rule is applied to the absolute value and " ago" is appended.
func Elapsed(fractionalDays float64) string {
	if fractionalDays < 0 {
		fractionalDays = -fractionalDays
	}
	return label(fractionalDays) + " ago"
}

func label(days float64) string {
	if days <= 0 {
		return "less than a minute"
	}
	if days < 1.0/hoursPerDay {
		m := int(days * minutesPerDay)
		if m == 0 {
			return "less than a minute"
		}
		return plural(m, "minute")
	}
	if days < 1 {
		return plural(int(days*hoursPerDay), "hour")
	}
	return plural(int(days), "day")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
