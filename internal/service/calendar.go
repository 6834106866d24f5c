package service

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// DateOf truncates t to midnight of its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

func IsBusinessDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// IsTodayOrPast compares calendar days in date's location.
func IsTodayOrPast(date, now time.Time) bool {
	loc := date.Location()
	return !DateOf(date, loc).After(DateOf(now, loc))
}

func NextBusinessDay(date time.Time) time.Time {
	d := date
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// LastBusinessDay is date itself, or the business day before it when date
// falls on a weekend.
func LastBusinessDay(date time.Time) time.Time {
	d := date
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// MinSchedulableDate is the first business day at or after now+minLeadDays.
// Today is never schedulable, so the lead is at least one day.
func MinSchedulableDate(now time.Time, minLeadDays int, loc *time.Location) time.Time {
	if minLeadDays < 1 {
		minLeadDays = 1
	}
	return NextBusinessDay(DateOf(now, loc).AddDate(0, 0, minLeadDays))
}

// ParseDate accepts ISO (2025-09-25) and Brazilian (25/09/2025) layouts.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}
	var lastErr error
	for _, layout := range []string{dateLayout, "02/01/2006", "2/1/2006"} {
		t, err := time.ParseInLocation(layout, v, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, &Error{Kind: KindInvalidDate, Op: "parse date", Err: lastErr}
}

func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
