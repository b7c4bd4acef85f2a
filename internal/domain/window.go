package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the accepted calendar-date input layout.
const DateLayout = "2006-01-02"

// TimestampLayout renders worklog instants with milliseconds and a numeric offset.
const TimestampLayout = "2006-01-02T15:04:05.000-0700"

// QueryWindow bounds one worklog query.
type QueryWindow struct {
	Start      time.Time
	End        time.Time
	UseUpdated bool
}

// StartOfDay parses one YYYY-MM-DD value and pins it to 00:00:00 in loc.
func StartOfDay(value string, loc *time.Location) (time.Time, error) {
	day, err := parseDay(value, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day, nil
}

// EndOfDay parses one YYYY-MM-DD value and pins it to 23:59:59 in loc.
// An empty value resolves against now.
func EndOfDay(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	var day time.Time
	if strings.TrimSpace(value) == "" {
		y, m, d := now.In(loc).Date()
		day = time.Date(y, m, d, 0, 0, 0, 0, loc)
	} else {
		parsed, err := parseDay(value, loc)
		if err != nil {
			return time.Time{}, err
		}
		day = parsed
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, loc), nil
}

// DateError names the window bound that failed to parse.
type DateError struct {
	Param string
	Value string
	Err   error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Param, e.Value, e.Err)
}

func (e *DateError) Unwrap() error {
	return e.Err
}

// NormalizeWindow builds one query window from raw date strings.
// Parse failures are reported as *DateError, start first.
func NormalizeWindow(startDate, endDate string, now time.Time, loc *time.Location) (QueryWindow, error) {
	start, err := StartOfDay(startDate, loc)
	if err != nil {
		return QueryWindow{}, &DateError{Param: "startDate", Value: startDate, Err: err}
	}
	end, err := EndOfDay(endDate, now, loc)
	if err != nil {
		return QueryWindow{}, &DateError{Param: "endDate", Value: endDate, Err: err}
	}
	return QueryWindow{Start: start, End: end}, nil
}

// Until returns the exclusive upper bound: 00:00:00 of the day after End.
func (w QueryWindow) Until() time.Time {
	y, m, d := w.End.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, w.End.Location())
}

// Empty reports whether no instant can match the window.
func (w QueryWindow) Empty() bool {
	return !w.Start.Before(w.Until())
}

// FormatTimestamp renders t in loc with TimestampLayout.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimestampLayout)
}

// parseDay parses one strict YYYY-MM-DD value at midnight in loc.
func parseDay(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date: %w", ErrInvalidDate)
	}
	day, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", value, ErrInvalidDate)
	}
	return day, nil
}
