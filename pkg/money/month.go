package money

import (
	"errors"
	"fmt"
	"time"
)

const monthLayout = "2006-01"

var ErrInvalidMonth = errors.New("invalid month")

// Month is a calendar month formatted as YYYY-MM. The zero value is not a
// valid month.
type Month string

// ParseMonth validates and normalizes s.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month {
	return Month(t.Format(monthLayout))
}

// Valid reports whether m parses.
func (m Month) Valid() bool {
	_, err := time.Parse(monthLayout, string(m))
	return err == nil
}

// Start returns the first instant of the month in UTC.
func (m Month) Start() time.Time {
	t, _ := time.Parse(monthLayout, string(m))
	return t
}

// AddMonths shifts m by n months.
func (m Month) AddMonths(n int) Month {
	return MonthOf(m.Start().AddDate(0, n, 0))
}

// Before reports whether m is earlier than o.
func (m Month) Before(o Month) bool {
	return m.Start().Before(o.Start())
}

// MonthsBetween returns the signed number of months from from to to.
func MonthsBetween(from, to Month) int {
	f, t := from.Start(), to.Start()
	return (t.Year()-f.Year())*12 + int(t.Month()-f.Month())
}
