package main

import "time"

const DATE_FORMAT = "2006-01-02"

// Clock abstracts time.Now so engines can be tested with a fixed date.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

var SystemClock Clock = systemClock{}

// FixedClock always returns the same instant.
type FixedClock struct {
	Time time.Time
}

func (c FixedClock) Now() time.Time {
	return c.Time
}

// BusinessDate returns the current calendar date in the billing timezone.
// All analysis dates in the system come from this single function.
func BusinessDate(clock Clock, loc *time.Location) string {
	return clock.Now().In(loc).Format(DATE_FORMAT)
}

// MonthWindowStart returns the first instant of the current month in the
// billing timezone. Quota usage is summed from this point.
func MonthWindowStart(clock Clock, loc *time.Location) time.Time {
	now := clock.Now().In(loc)
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
}

// DaysAgoDate returns the date string `days` calendar days before today in
// the billing timezone. Used for window filters on analysis_date columns.
func DaysAgoDate(clock Clock, loc *time.Location, days int) string {
	return clock.Now().In(loc).AddDate(0, 0, -days).Format(DATE_FORMAT)
}
