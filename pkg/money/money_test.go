package money

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRoundCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"1.49", 1},
		{"1.5", 2},
		{"2.5", 3},
		{"999.999", 1000},
		{"-2.5", -2},
	}
	for _, c := range cases {
		got := RoundCurrency(decimal.RequireFromString(c.in))
		if got != c.want {
			t.Errorf("RoundCurrency(%s) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestPercentOf(t *testing.T) {
	if got := PercentOf(100000, decimal.NewFromInt(4)); got != 4000 {
		t.Errorf("Expected 4000, got %d", got)
	}
	if got := PercentOf(3333, decimal.RequireFromString("1.5")); got != 50 {
		t.Errorf("Expected 50, got %d", got)
	}
}

func TestRatioClamps(t *testing.T) {
	if got := Ratio(3000, 10000); !got.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected 30, got %s", got)
	}
	if got := Ratio(12000, 10000); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected 100, got %s", got)
	}
	if got := Ratio(-5, 10000); !got.IsZero() {
		t.Errorf("Expected 0, got %s", got)
	}
	if got := Ratio(5, 0); !got.IsZero() {
		t.Errorf("Expected 0 for zero whole, got %s", got)
	}
}

func TestSplitAndCeilDiv(t *testing.T) {
	if got := Split(100000, 20); got != 5000 {
		t.Errorf("Expected 5000, got %d", got)
	}
	if got := Split(1000, 3); got != 333 {
		t.Errorf("Expected 333, got %d", got)
	}
	if got := Split(1000, 0); got != 0 {
		t.Errorf("Expected 0 for no members, got %d", got)
	}
	if got := CeilDiv(7001, 1000); got != 8 {
		t.Errorf("Expected 8, got %d", got)
	}
	if got := CeilDiv(0, 1000); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
	if got := CeilDiv(7000, 1000); got != 7 {
		t.Errorf("Expected 7, got %d", got)
	}
	if got := CeilDiv(math.MaxInt64, 2); got != math.MaxInt64/2+1 {
		t.Errorf("Expected no overflow near MaxInt64, got %d", got)
	}
}

func TestInstallmentFor(t *testing.T) {
	cases := []struct {
		principal int64
		unit      PeriodUnit
		want      int64
	}{
		{10000, Weekly, 1000},
		{10000, Daily, 1000},
		{10000, Monthly, 2000},
		{10005, Weekly, 1001},
		{3, Weekly, 1},
	}
	for _, c := range cases {
		got, err := InstallmentFor(c.principal, c.unit, DefaultPeriodPolicy)
		if err != nil {
			t.Fatalf("InstallmentFor(%d, %s): %v", c.principal, c.unit, err)
		}
		if got != c.want {
			t.Errorf("InstallmentFor(%d, %s) = %d, want %d", c.principal, c.unit, got, c.want)
		}
	}

	if _, err := InstallmentFor(1000, PeriodUnit("Yearly"), DefaultPeriodPolicy); err == nil {
		t.Error("Expected error for unknown period unit")
	}

	custom := PeriodPolicy{Weekly: 20}
	got, _ := InstallmentFor(10000, Weekly, custom)
	if got != 500 {
		t.Errorf("Expected 500 with 20 weekly periods, got %d", got)
	}
	got, _ = InstallmentFor(10000, Monthly, custom)
	if got != 2000 {
		t.Errorf("Expected fallback to 5 monthly periods, got %d", got)
	}
}

func TestTotalAndRemainingPeriods(t *testing.T) {
	if got := TotalPeriods(10000, 1000); got != 10 {
		t.Errorf("Expected 10, got %d", got)
	}
	if got := TotalPeriods(10500, 1000); got != 11 {
		t.Errorf("Expected 11, got %d", got)
	}
	if got := PeriodsRemaining(5000, 1000); got != 5 {
		t.Errorf("Expected 5, got %d", got)
	}
	if got := PeriodsRemaining(0, 1000); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
	if got := PeriodsRemaining(100, 0); got != 0 {
		t.Errorf("Expected 0 for zero installment, got %d", got)
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodsElapsed(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		asOf  time.Time
		unit  PeriodUnit
		want  int
	}{
		{"weekly exact", date(2024, 1, 1), date(2024, 3, 11), Weekly, 10},
		{"weekly partial", date(2024, 1, 1), date(2024, 1, 13), Weekly, 1},
		{"daily", date(2024, 2, 27), date(2024, 3, 2), Daily, 4},
		{"monthly before anniversary", date(2024, 1, 15), date(2024, 3, 14), Monthly, 1},
		{"monthly on anniversary", date(2024, 1, 15), date(2024, 3, 15), Monthly, 2},
		{"monthly clamped to month end", date(2024, 1, 31), date(2024, 2, 29), Monthly, 1},
		{"monthly across years", date(2023, 11, 5), date(2024, 2, 5), Monthly, 3},
		{"as of before start", date(2024, 5, 1), date(2024, 4, 1), Weekly, 0},
		{"same day", date(2024, 5, 1), date(2024, 5, 1), Daily, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := PeriodsElapsed(c.start, c.asOf, c.unit); got != c.want {
				t.Errorf("PeriodsElapsed = %d, want %d", got, c.want)
			}
		})
	}
}

func TestPeriodsElapsedIgnoresTimeOfDay(t *testing.T) {
	start := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	asOf := time.Date(2024, 1, 8, 0, 1, 0, 0, time.UTC)
	if got := PeriodsElapsed(start, asOf, Weekly); got != 1 {
		t.Errorf("Expected 1 week, got %d", got)
	}
}

func TestMonth(t *testing.T) {
	m, err := ParseMonth("2024-11")
	if err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	if next := m.AddMonths(3); next != "2025-02" {
		t.Errorf("Expected 2025-02, got %s", next)
	}
	if got := MonthsBetween(m, "2025-02"); got != 3 {
		t.Errorf("Expected 3, got %d", got)
	}
	if !m.Before("2024-12") || m.Before("2024-11") {
		t.Error("Before ordering is wrong")
	}
	if _, err := ParseMonth("2024-13"); err == nil {
		t.Error("Expected error for month 13")
	}
	if Month("nope").Valid() {
		t.Error("Expected invalid month")
	}
}
