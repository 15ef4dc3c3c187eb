package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/money"
)

type Overdue struct {
	LoanID           uuid.UUID  `json:"loan_id"`
	CustomerID       uuid.UUID  `json:"customer_id"`
	ExpectedPayments int        `json:"expected_payments"`
	ActualPayments   int        `json:"actual_payments"`
	MissedPeriods    int        `json:"missed_periods"`
	OverdueAmount    int64      `json:"overdue_amount"`
	LastPaymentDate  *time.Time `json:"last_payment_date,omitempty"`
}

// IsOverdue reports whether at least one period has been missed.
func (o Overdue) IsOverdue() bool { return o.MissedPeriods > 0 }

// ComputeOverdue compares the periods elapsed since the loan started with
// the payments recorded. It never mutates its arguments.
func ComputeOverdue(loan *models.Loan, payments []*models.Payment, asOf time.Time) Overdue {
	expected := money.PeriodsElapsed(loan.StartDate, asOf, loan.PeriodUnit)
	missed := max(0, expected-len(payments))

	o := Overdue{
		LoanID:           loan.ID,
		CustomerID:       loan.CustomerID,
		ExpectedPayments: expected,
		ActualPayments:   len(payments),
		MissedPeriods:    missed,
		OverdueAmount:    int64(missed) * loan.Installment,
	}
	for _, p := range payments {
		if o.LastPaymentDate == nil || p.PaymentDate.After(*o.LastPaymentDate) {
			d := p.PaymentDate
			o.LastPaymentDate = &d
		}
	}
	return o
}

// Overdue evaluates one loan as of the given date.
func (l *Ledger) Overdue(ctx context.Context, loanID uuid.UUID, asOf time.Time) (Overdue, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return Overdue{}, err
	}
	payments, err := l.storage.GetPaymentsForLoan(ctx, loanID)
	if err != nil {
		return Overdue{}, err
	}
	return ComputeOverdue(loan, payments, asOf), nil
}

// OverdueLoans lists loans with an outstanding balance and at least one
// missed period, worst first.
func (l *Ledger) OverdueLoans(ctx context.Context, asOf time.Time) ([]Overdue, error) {
	loans, err := l.storage.GetAllLoans(ctx)
	if err != nil {
		return nil, err
	}
	var out []Overdue
	for _, loan := range loans {
		if loan.Balance == 0 {
			continue
		}
		payments, err := l.storage.GetPaymentsForLoan(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		if o := ComputeOverdue(loan, payments, asOf); o.IsOverdue() {
			out = append(out, o)
		}
	}
	SortWorstFirst(out)
	return out, nil
}

// SortWorstFirst orders by missed periods, then overdue amount, descending.
func SortWorstFirst(items []Overdue) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.MissedPeriods != b.MissedPeriods {
			return a.MissedPeriods > b.MissedPeriods
		}
		if a.OverdueAmount != b.OverdueAmount {
			return a.OverdueAmount > b.OverdueAmount
		}
		return a.LoanID.String() < b.LoanID.String()
	})
}
