package money

import (
	"errors"
	"fmt"
	"time"
)

// PeriodUnit is the billing cadence of a loan.
type PeriodUnit string

const (
	Weekly  PeriodUnit = "Weekly"
	Monthly PeriodUnit = "Monthly"
	Daily   PeriodUnit = "Daily"
)

var ErrInvalidPeriodUnit = errors.New("invalid period unit")

// Valid reports whether u is one of the known cadences.
func (u PeriodUnit) Valid() bool {
	switch u {
	case Weekly, Monthly, Daily:
		return true
	}
	return false
}

// PeriodPolicy maps a cadence to its default number of installments.
type PeriodPolicy map[PeriodUnit]int

// DefaultPeriodPolicy amortizes weekly and daily loans over 10 periods and
// monthly loans over 5.
var DefaultPeriodPolicy = PeriodPolicy{
	Weekly:  10,
	Daily:   10,
	Monthly: 5,
}

// Periods returns the default installment count for unit.
func (p PeriodPolicy) Periods(unit PeriodUnit) (int, error) {
	if !unit.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriodUnit, unit)
	}
	n, ok := p[unit]
	if !ok || n <= 0 {
		n = DefaultPeriodPolicy[unit]
	}
	return n, nil
}

// InstallmentFor returns the default per-period installment for principal.
// It never returns less than one unit for a positive principal.
func InstallmentFor(principal int64, unit PeriodUnit, policy PeriodPolicy) (int64, error) {
	periods, err := policy.Periods(unit)
	if err != nil {
		return 0, err
	}
	installment := Split(principal, periods)
	if installment < 1 && principal > 0 {
		installment = 1
	}
	return installment, nil
}

// TotalPeriods is ceil(principal / installment).
func TotalPeriods(principal, installment int64) int {
	return int(CeilDiv(principal, installment))
}

// PeriodsRemaining is ceil(balance / installment).
func PeriodsRemaining(balance, installment int64) int {
	return int(CeilDiv(balance, installment))
}

// PeriodsElapsed counts whole periods between start and asOf on calendar
// dates. Time of day is ignored. It is zero when asOf precedes start.
func PeriodsElapsed(start, asOf time.Time, unit PeriodUnit) int {
	s, a := civilDate(start), civilDate(asOf)
	if a.Before(s) {
		return 0
	}
	switch unit {
	case Weekly:
		return daysBetween(s, a) / 7
	case Daily:
		return daysBetween(s, a)
	case Monthly:
		return monthsElapsed(s, a)
	}
	return 0
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(s, a time.Time) int {
	return int(a.Sub(s).Hours() / 24)
}

// monthsElapsed counts completed calendar months. When the start day does not
// exist in the as-of month the anniversary falls on that month's last day.
func monthsElapsed(s, a time.Time) int {
	months := (a.Year()-s.Year())*12 + int(a.Month()-s.Month())
	anniversary := s.Day()
	if last := daysIn(a.Year(), a.Month()); anniversary > last {
		anniversary = last
	}
	if a.Day() < anniversary {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
