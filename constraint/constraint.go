package constraint

import (
	"time"
)

// Validity is the outcome of evaluating a [Constraint] at a point in time.
// Valid is the zero value; every other variant names the first dimension
// that failed.
type Validity uint8

const (
	// Valid means every configured dimension of the constraint passed.
	Valid Validity = iota
	// Locked means the clock falls inside the lockout date range.
	Locked
	// NotYetActive means the calendar begin date is in the future.
	NotYetActive
	// Expired means the calendar end date is in the past.
	Expired
	// DayOfWeekDenied means the current weekday is outside the day mask.
	DayOfWeekDenied
	// TimeOfDayDenied means the current time of day is outside the window.
	TimeOfDayDenied
	// InactivityTimeout means too much time passed since the last access.
	InactivityTimeout
	// MaxActivationsExceeded means the activation ceiling has been reached.
	MaxActivationsExceeded
)

// String describes the validity outcome for logs and audit events.
func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Locked:
		return "locked"
	case NotYetActive:
		return "not yet active"
	case Expired:
		return "expired"
	case DayOfWeekDenied:
		return "day of week denied"
	case TimeOfDayDenied:
		return "time of day denied"
	case InactivityTimeout:
		return "inactivity timeout"
	case MaxActivationsExceeded:
		return "max activations exceeded"
	default:
		return "unknown"
	}
}

// DayMask selects the weekdays on which a constraint passes. Bit 0 is
// Sunday through bit 6 Saturday, matching [time.Weekday] numbering. The
// zero mask means every day passes.
type DayMask uint8

const (
	// Sunday is an exported day bit usable in a DayMask.
	Sunday DayMask = 1 << iota
	// Monday is an exported day bit usable in a DayMask.
	Monday
	// Tuesday is an exported day bit usable in a DayMask.
	Tuesday
	// Wednesday is an exported day bit usable in a DayMask.
	Wednesday
	// Thursday is an exported day bit usable in a DayMask.
	Thursday
	// Friday is an exported day bit usable in a DayMask.
	Friday
	// Saturday is an exported day bit usable in a DayMask.
	Saturday

	// Weekdays covers Monday through Friday.
	Weekdays = Monday | Tuesday | Wednesday | Thursday | Friday
	// AllDays covers the whole week and is equivalent to the zero mask.
	AllDays = Weekdays | Saturday | Sunday
)

// Contains reports whether the mask allows the given weekday.
func (m DayMask) Contains(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

// Constraint bounds the validity of a user session or a role activation.
// The zero value of each field means that dimension is unconstrained; the
// zero Constraint always evaluates to [Valid].
//
// BeginTime and EndTime are minutes since midnight. A window with
// BeginTime > EndTime wraps past midnight (an overnight shift). Dates are
// compared at day granularity in the location of the supplied clock.
type Constraint struct {
	Name string

	TimeoutMinutes int

	BeginTime int
	EndTime   int

	BeginDate time.Time
	EndDate   time.Time

	BeginLockDate time.Time
	EndLockDate   time.Time

	DayMask DayMask

	MaxActivations int
}

// IsZero reports whether no dimension of the constraint is set. The name
// alone does not make a constraint non-zero.
func (c Constraint) IsZero() bool {
	return c.TimeoutMinutes == 0 &&
		c.BeginTime == 0 && c.EndTime == 0 &&
		c.BeginDate.IsZero() && c.EndDate.IsZero() &&
		c.BeginLockDate.IsZero() && c.EndLockDate.IsZero() &&
		c.DayMask == 0 &&
		c.MaxActivations == 0
}

// Usage carries the caller-owned state a constraint is evaluated against.
// LastAccess feeds the inactivity timeout; Activations feeds the ceiling.
type Usage struct {
	LastAccess  time.Time
	Activations int
}

// Evaluate checks the constraint against the clock reading and usage state
// and returns the first failing dimension. The order is fixed and callers
// depend on it: lock window, calendar bounds, day-of-week mask, time-of-day
// window, inactivity timeout, activation ceiling. Unset dimensions pass.
//
// Evaluate is pure: identical inputs always produce the identical result.
func Evaluate(c Constraint, now time.Time, u Usage) Validity {
	day := dateOnly(now)

	if !c.BeginLockDate.IsZero() {
		afterBegin := !day.Before(dateOnly(c.BeginLockDate))
		beforeEnd := c.EndLockDate.IsZero() || !day.After(dateOnly(c.EndLockDate))
		if afterBegin && beforeEnd {
			return Locked
		}
	}

	if !c.BeginDate.IsZero() && day.Before(dateOnly(c.BeginDate)) {
		return NotYetActive
	}
	if !c.EndDate.IsZero() && day.After(dateOnly(c.EndDate)) {
		return Expired
	}

	if c.DayMask != 0 && c.DayMask != AllDays && !c.DayMask.Contains(now.Weekday()) {
		return DayOfWeekDenied
	}

	if c.BeginTime != 0 || c.EndTime != 0 {
		minute := now.Hour()*60 + now.Minute()
		if !inWindow(minute, c.BeginTime, c.EndTime) {
			return TimeOfDayDenied
		}
	}

	if c.TimeoutMinutes > 0 && !u.LastAccess.IsZero() {
		if now.Sub(u.LastAccess) > time.Duration(c.TimeoutMinutes)*time.Minute {
			return InactivityTimeout
		}
	}

	if c.MaxActivations > 0 && u.Activations >= c.MaxActivations {
		return MaxActivationsExceeded
	}

	return Valid
}

// Override merges a template constraint with a per-assignment override.
// Any dimension set on the override replaces the template's value for that
// dimension, mirroring how a user-role assignment narrows its role's
// constraint template. The name of the override wins when present.
func Override(template, override Constraint) Constraint {
	out := template
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.TimeoutMinutes != 0 {
		out.TimeoutMinutes = override.TimeoutMinutes
	}
	if override.BeginTime != 0 || override.EndTime != 0 {
		out.BeginTime = override.BeginTime
		out.EndTime = override.EndTime
	}
	if !override.BeginDate.IsZero() {
		out.BeginDate = override.BeginDate
	}
	if !override.EndDate.IsZero() {
		out.EndDate = override.EndDate
	}
	if !override.BeginLockDate.IsZero() || !override.EndLockDate.IsZero() {
		out.BeginLockDate = override.BeginLockDate
		out.EndLockDate = override.EndLockDate
	}
	if override.DayMask != 0 {
		out.DayMask = override.DayMask
	}
	if override.MaxActivations != 0 {
		out.MaxActivations = override.MaxActivations
	}
	return out
}

// ExpiryAfter returns the instant at which a currently valid constraint
// stops passing, considering the time-of-day window and calendar end date.
// The zero time means the constraint is unbounded in the future. The result
// is meaningful only when Evaluate reported Valid for the same clock.
func ExpiryAfter(c Constraint, now time.Time) time.Time {
	var expiry time.Time

	if c.BeginTime != 0 || c.EndTime != 0 {
		minute := now.Hour()*60 + now.Minute()
		end := c.EndTime
		windowEnd := time.Date(now.Year(), now.Month(), now.Day(), end/60, end%60, 0, 0, now.Location())
		if c.BeginTime > c.EndTime && minute >= c.BeginTime {
			// Overnight window entered before midnight; it closes tomorrow.
			windowEnd = windowEnd.AddDate(0, 0, 1)
		}
		expiry = windowEnd
	}

	if !c.EndDate.IsZero() {
		d := dateOnly(c.EndDate).AddDate(0, 0, 1).In(now.Location())
		if expiry.IsZero() || d.Before(expiry) {
			expiry = d
		}
	}

	return expiry
}

// EarliestExpiry returns the sooner of two expiry instants, treating the
// zero time as unbounded.
func EarliestExpiry(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Before(b):
		return a
	default:
		return b
	}
}

func inWindow(minute, begin, end int) bool {
	if begin == end {
		return true
	}
	if begin < end {
		return minute >= begin && minute <= end
	}
	// Overnight window, e.g. 22:00 to 06:00.
	return minute >= begin || minute <= end
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
