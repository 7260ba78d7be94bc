package interval

import (
	"fmt"
	"time"
)

// Kind is the recurrence granularity governing the size of a quota window.
type Kind string

const (
	Hourly  Kind = "hourly"
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
)

// Kinds lists every supported interval kind.
func Kinds() []Kind {
	return []Kind{Hourly, Daily, Weekly, Monthly}
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case Hourly, Daily, Weekly, Monthly:
		return true
	default:
		return false
	}
}

// Window is the half-open range [Start, End) in effect for quota counting.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// StartTransform post-processes a computed window start, e.g. to shift it for a holiday calendar.
type StartTransform func(start time.Time, kind Kind) time.Time

// Calculator computes window boundaries. It never reads the wall clock: the reference
// instant is always supplied and its location defines local midnight.
type Calculator struct {
	Transform StartTransform
}

// NewCalculator returns a Calculator applying transform to every computed start.
// A nil transform is the identity.
func NewCalculator(transform StartTransform) *Calculator {
	return &Calculator{Transform: transform}
}

// Start returns the start of the window containing ref.
// Unknown kinds pass ref through unchanged.
func (c *Calculator) Start(ref time.Time, kind Kind, weekStart time.Weekday) time.Time {
	return c.transform(truncate(ref, kind, weekStart), kind)
}

// End returns the exclusive end of the window containing ref. It is the start of the
// following window, so consecutive windows never overlap or leave a gap.
func (c *Calculator) End(ref time.Time, kind Kind, weekStart time.Weekday) time.Time {
	return c.transform(Advance(truncate(ref, kind, weekStart), kind), kind)
}

// Window returns the window containing ref.
func (c *Calculator) Window(ref time.Time, kind Kind, weekStart time.Weekday) Window {
	start := truncate(ref, kind, weekStart)
	return Window{Start: c.transform(start, kind), End: c.transform(Advance(start, kind), kind)}
}

func (c *Calculator) transform(t time.Time, kind Kind) time.Time {
	if c != nil && c.Transform != nil {
		return c.Transform(t, kind)
	}
	return t
}

// Advance returns the start of the window following the one that begins at start.
// Calendar kinds are derived from the calendar date rather than a fixed duration, so
// month lengths, leap years and DST shifts are respected. Unknown kinds return start.
func Advance(start time.Time, kind Kind) time.Time {
	y, m, d := start.Date()
	loc := start.Location()

	switch kind {
	case Hourly:
		return start.Add(time.Hour)
	case Daily:
		return dayStart(y, m, d+1, loc)
	case Weekly:
		return dayStart(y, m, d+7, loc)
	case Monthly:
		return dayStart(y, m+1, 1, loc)
	default:
		return start
	}
}

func truncate(ref time.Time, kind Kind, weekStart time.Weekday) time.Time {
	y, m, d := ref.Date()
	loc := ref.Location()

	switch kind {
	case Hourly:
		// Offset from ref itself: the wall-clock hour is ambiguous when clocks fall back.
		return ref.Add(-(time.Duration(ref.Minute())*time.Minute +
			time.Duration(ref.Second())*time.Second +
			time.Duration(ref.Nanosecond())))
	case Daily:
		return dayStart(y, m, d, loc)
	case Weekly:
		diff := (int(ref.Weekday()) - int(weekStart)) % 7
		if diff < 0 {
			diff += 7
		}
		return dayStart(y, m, d-diff, loc)
	case Monthly:
		return dayStart(y, m, 1, loc)
	default:
		return ref
	}
}

// dayStart returns the first instant of the given calendar day in loc. Day and month
// overflow are normalized as time.Date does. When midnight falls in a DST gap the day
// begins at the transition.
func dayStart(y int, m time.Month, d int, loc *time.Location) time.Time {
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	wy, wm, wd := time.Date(y, m, d, 12, 0, 0, 0, loc).Date()
	if gy, gm, gd := midnight.Date(); gy == wy && gm == wm && gd == wd {
		return midnight
	}
	if _, transition := midnight.ZoneBounds(); !transition.IsZero() {
		return transition
	}
	return midnight
}

// CronSpec returns a standard five-field cron expression firing at every window boundary.
func CronSpec(kind Kind, weekStart time.Weekday) (string, error) {
	switch kind {
	case Hourly:
		return "0 * * * *", nil
	case Daily:
		return "0 0 * * *", nil
	case Weekly:
		return fmt.Sprintf("0 0 * * %d", int(weekStart)), nil
	case Monthly:
		return "0 0 1 * *", nil
	default:
		return "", fmt.Errorf("no cron schedule for interval %q", kind)
	}
}
