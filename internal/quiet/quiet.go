// Package quiet decides whether audible output is currently suppressed.
//
// The gate is a pure function of wall-clock time and four configured
// HH:MM boundaries (weekday/weekend start and end). Callers re-evaluate
// on every candidate action; there is no state to refresh.
package quiet

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window holds the quiet-hours boundaries as minutes of day.
// A window with end < start crosses midnight (21:00-05:50 spans two
// calendar days); start == end is degenerate and means always quiet.
type Window struct {
	WeekdayStart int
	WeekdayEnd   int
	WeekendStart int
	WeekendEnd   int
}

// ParseWindow builds a Window from four HH:MM strings.
func ParseWindow(weekdayStart, weekdayEnd, weekendStart, weekendEnd string) (Window, error) {
	var w Window
	var err error
	if w.WeekdayStart, err = parseHHMM(weekdayStart); err != nil {
		return Window{}, fmt.Errorf("weekday start: %w", err)
	}
	if w.WeekdayEnd, err = parseHHMM(weekdayEnd); err != nil {
		return Window{}, fmt.Errorf("weekday end: %w", err)
	}
	if w.WeekendStart, err = parseHHMM(weekendStart); err != nil {
		return Window{}, fmt.Errorf("weekend start: %w", err)
	}
	if w.WeekendEnd, err = parseHHMM(weekendEnd); err != nil {
		return Window{}, fmt.Errorf("weekend end: %w", err)
	}
	return w, nil
}

// Suppressed reports whether now falls inside the applicable quiet
// window. The day type (weekday vs weekend) comes from now's calendar
// date; the boundary test is [start, end).
func Suppressed(now time.Time, w Window) bool {
	minute := now.Hour()*60 + now.Minute()

	start, end := w.WeekdayStart, w.WeekdayEnd
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		start, end = w.WeekendStart, w.WeekendEnd
	}

	if start == end {
		// Degenerate: treat as "always quiet".
		return true
	}
	if start < end {
		// Window does not cross midnight.
		return start <= minute && minute < end
	}
	// Window crosses midnight.
	return minute >= start || minute < end
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hh*60 + mm, nil
}
