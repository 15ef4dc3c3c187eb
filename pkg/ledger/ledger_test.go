package ledger

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/clock"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/money"
	"github.com/mcclellann/fredLedger/pkg/receipt"
	"github.com/mcclellann/fredLedger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	receipts []receipt.Receipt
	err      error
}

func (n *recordingNotifier) Notify(r receipt.Receipt) error {
	if n.err != nil {
		return n.err
	}
	n.receipts = append(n.receipts, r)
	return nil
}

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	opts = append([]Option{WithClock(clock.Fixed(testNow))}, opts...)
	return NewLedger(s, opts...), s
}

// forEachStore runs fn against a ledger backed by each Storage implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, l *Ledger, s store.Storage)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), zap.NewNop())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		fn(t, NewLedger(s, WithClock(clock.Fixed(testNow))), s)
	})
	t.Run("memory", func(t *testing.T) {
		l, s := newTestLedger(t)
		fn(t, l, s)
	})
}

func createCustomer(t *testing.T, l *Ledger) *models.Customer {
	t.Helper()
	c, err := l.CreateCustomer(context.Background(), "Murugan", "98765 43210")
	if err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	return c
}

func createLoan(t *testing.T, l *Ledger, principal, installment int64, start time.Time) *models.Loan {
	t.Helper()
	c := createCustomer(t, l)
	loan, err := l.CreateLoan(context.Background(), CreateLoanInput{
		CustomerID:  c.ID,
		Principal:   principal,
		PeriodUnit:  money.Weekly,
		Installment: installment,
		StartDate:   start,
		Label:       "Shop loan",
	})
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	return loan
}

func pay(t *testing.T, l *Ledger, loanID uuid.UUID, amount int64) *models.Payment {
	t.Helper()
	p, err := l.ApplyPayment(context.Background(), PaymentInput{LoanID: loanID, Amount: amount, OfflineAmount: amount})
	if err != nil {
		t.Fatalf("Failed to record payment of %d: %v", amount, err)
	}
	return p
}

func assertBalanceInvariant(t *testing.T, l *Ledger, loanID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	loan, err := l.GetLoan(ctx, loanID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	payments, err := l.ListPayments(ctx, loanID)
	if err != nil {
		t.Fatalf("Failed to list payments: %v", err)
	}
	if want := loan.Principal - sumPayments(payments); loan.Balance != want {
		t.Errorf("Expected balance %d (principal - payments), got %d", want, loan.Balance)
	}
	if loan.Balance < 0 {
		t.Errorf("Balance went negative: %d", loan.Balance)
	}
}

func TestCreateLoan(t *testing.T) {
	l, _ := newTestLedger(t)
	c := createCustomer(t, l)

	loan, err := l.CreateLoan(context.Background(), CreateLoanInput{
		CustomerID: c.ID,
		Principal:  10000,
		PeriodUnit: money.Monthly,
	})
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	if loan.Installment != 2000 {
		t.Errorf("Expected monthly default installment 2000, got %d", loan.Installment)
	}
	if loan.Balance != loan.Principal {
		t.Errorf("Expected balance %d, got %d", loan.Principal, loan.Balance)
	}
	if loan.Status != models.LoanStatusActive {
		t.Errorf("Expected status 'active', got %s", loan.Status)
	}
	if !loan.StartDate.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected start date to default to today, got %s", loan.StartDate)
	}
}

func TestCreateLoanCustomPolicy(t *testing.T) {
	l, _ := newTestLedger(t, WithPolicy(money.PeriodPolicy{money.Weekly: 20}))
	loan := createLoan(t, l, 10000, 0, testNow)
	if loan.Installment != 500 {
		t.Errorf("Expected installment 500 with a 20-week policy, got %d", loan.Installment)
	}
}

func TestCreateLoanValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	c := createCustomer(t, l)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateLoanInput
		want error
	}{
		{"zero principal", CreateLoanInput{CustomerID: c.ID, Principal: 0, PeriodUnit: money.Weekly}, models.ErrValidation},
		{"negative installment", CreateLoanInput{CustomerID: c.ID, Principal: 100, Installment: -1, PeriodUnit: money.Weekly}, models.ErrValidation},
		{"unknown unit", CreateLoanInput{CustomerID: c.ID, Principal: 100, PeriodUnit: "Yearly"}, models.ErrValidation},
		{"negative interest", CreateLoanInput{CustomerID: c.ID, Principal: 100, PeriodUnit: money.Weekly, InterestPercent: decimal.NewFromInt(-1)}, models.ErrValidation},
		{"unknown customer", CreateLoanInput{CustomerID: uuid.New(), Principal: 100, PeriodUnit: money.Weekly}, models.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.CreateLoan(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRecordPayment(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 1000, 100, testNow)

	p := pay(t, l, loan.ID, 400)
	if p.WeekNumber != 1 || p.BalanceAfter != 600 {
		t.Errorf("Expected week 1 balance 600, got week %d balance %d", p.WeekNumber, p.BalanceAfter)
	}
	if p.Mode != models.PaymentModeCash {
		t.Errorf("Expected derived mode cash, got %s", p.Mode)
	}

	// Pay off the loan
	p = pay(t, l, loan.ID, 600)
	if p.WeekNumber != 2 {
		t.Errorf("Expected week 2, got %d", p.WeekNumber)
	}
	loan, _ = l.GetLoan(context.Background(), loan.ID)
	if loan.Status != models.LoanStatusClosed {
		t.Errorf("Expected status 'closed', got %s", loan.Status)
	}
	if loan.Balance != 0 {
		t.Errorf("Expected balance 0, got %d", loan.Balance)
	}
	assertBalanceInvariant(t, l, loan.ID)
}

func TestApplyPaymentRejections(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 1000, 100, testNow)
	ctx := context.Background()

	cases := []struct {
		name string
		in   PaymentInput
		want error
	}{
		{"zero amount", PaymentInput{LoanID: loan.ID}, models.ErrInvalidAmount},
		{"split mismatch", PaymentInput{LoanID: loan.ID, Amount: 300, OfflineAmount: 100, OnlineAmount: 100}, models.ErrInvalidAmount},
		{"negative split", PaymentInput{LoanID: loan.ID, Amount: 100, OfflineAmount: 200, OnlineAmount: -100}, models.ErrInvalidAmount},
		{"exceeds balance", PaymentInput{LoanID: loan.ID, Amount: 1001, OnlineAmount: 1001}, models.ErrExceedsBalance},
		{"unknown mode", PaymentInput{LoanID: loan.ID, Amount: 100, OfflineAmount: 100, Mode: "barter"}, models.ErrValidation},
		{"unknown loan", PaymentInput{LoanID: uuid.New(), Amount: 100, OfflineAmount: 100}, models.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.ApplyPayment(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	after, _ := l.GetLoan(ctx, loan.ID)
	if after.Balance != 1000 {
		t.Errorf("Rejected payments changed the balance to %d", after.Balance)
	}
	payments, _ := l.ListPayments(ctx, loan.ID)
	if len(payments) != 0 {
		t.Errorf("Expected no payments, got %d", len(payments))
	}
}

func TestApplyPaymentMixedModeAndDate(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 1000, 100, testNow)

	backdated := time.Date(2024, 5, 30, 18, 0, 0, 0, time.UTC)
	p, err := l.ApplyPayment(context.Background(), PaymentInput{
		LoanID: loan.ID, Amount: 300, OfflineAmount: 100, OnlineAmount: 200, PaymentDate: backdated,
	})
	if err != nil {
		t.Fatalf("Failed to record payment: %v", err)
	}
	if p.Mode != models.PaymentModeMixed {
		t.Errorf("Expected mode mixed, got %s", p.Mode)
	}
	if !p.PaymentDate.Equal(time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected payment date truncated to the day, got %s", p.PaymentDate)
	}
}

func TestDeletePaymentRestoresState(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 1000, 100, testNow)
	ctx := context.Background()

	pay(t, l, loan.ID, 200)
	before, _ := l.GetLoan(ctx, loan.ID)

	p := pay(t, l, loan.ID, 300)
	if err := l.DeletePayment(ctx, p.ID); err != nil {
		t.Fatalf("Failed to delete payment: %v", err)
	}

	after, _ := l.GetLoan(ctx, loan.ID)
	if after.Balance != before.Balance {
		t.Errorf("Expected balance %d after delete, got %d", before.Balance, after.Balance)
	}
	payments, _ := l.ListPayments(ctx, loan.ID)
	if len(payments) != 1 {
		t.Errorf("Expected 1 payment after delete, got %d", len(payments))
	}

	if err := l.DeletePayment(ctx, p.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected not found for second delete, got %v", err)
	}
}

func TestDeletePaymentRestampsLaterPayments(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 1000, 100, testNow)
	ctx := context.Background()

	first := pay(t, l, loan.ID, 100)
	pay(t, l, loan.ID, 200)
	pay(t, l, loan.ID, 300)

	if err := l.DeletePayment(ctx, first.ID); err != nil {
		t.Fatalf("Failed to delete payment: %v", err)
	}
	payments, _ := l.ListPayments(ctx, loan.ID)
	want := []struct {
		week    int
		balance int64
	}{{1, 800}, {2, 500}}
	if len(payments) != len(want) {
		t.Fatalf("Expected %d payments, got %d", len(want), len(payments))
	}
	for i, w := range want {
		if payments[i].WeekNumber != w.week || payments[i].BalanceAfter != w.balance {
			t.Errorf("Payment %d: expected week %d balance %d, got week %d balance %d",
				i, w.week, w.balance, payments[i].WeekNumber, payments[i].BalanceAfter)
		}
	}
	assertBalanceInvariant(t, l, loan.ID)
}

func TestDeletePaymentReopensClosedLoan(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 500, 100, testNow)
	ctx := context.Background()

	p := pay(t, l, loan.ID, 500)
	if err := l.DeletePayment(ctx, p.ID); err != nil {
		t.Fatalf("Failed to delete payment: %v", err)
	}
	loan, _ = l.GetLoan(ctx, loan.ID)
	if loan.Status != models.LoanStatusActive || loan.Balance != 500 {
		t.Errorf("Expected active loan with balance 500, got %s with %d", loan.Status, loan.Balance)
	}
}

func TestTopUp(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 10000, 1000, testNow)
	ctx := context.Background()

	pay(t, l, loan.ID, 7000)
	loan, err := l.TopUp(ctx, loan.ID, 2000)
	if err != nil {
		t.Fatalf("Failed to top up: %v", err)
	}
	if loan.Balance != 5000 {
		t.Errorf("Expected balance 5000, got %d", loan.Balance)
	}
	if loan.Principal != 12000 {
		t.Errorf("Expected principal 12000, got %d", loan.Principal)
	}
	if got := Summarize(loan).PeriodsRemaining; got != 5 {
		t.Errorf("Expected 5 periods remaining, got %d", got)
	}
	payments, _ := l.ListPayments(ctx, loan.ID)
	if payments[0].WeekNumber != 1 || payments[0].BalanceAfter != 3000 {
		t.Errorf("Top-up must not alter past payments, got week %d balance %d", payments[0].WeekNumber, payments[0].BalanceAfter)
	}

	if _, err := l.TopUp(ctx, loan.ID, 0); !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("Expected invalid amount, got %v", err)
	}
	assertBalanceInvariant(t, l, loan.ID)
}

func TestTopUpRejectsOverflow(t *testing.T) {
	l, s := newTestLedger(t)
	loan := createLoan(t, l, 1000, 100, testNow)
	ctx := context.Background()

	if _, err := l.TopUp(ctx, loan.ID, math.MaxInt64); !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("Expected invalid amount for an overflowing top-up, got %v", err)
	}
	got, err := l.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if got.Principal != 1000 || got.Balance != 1000 {
		t.Errorf("Expected loan untouched at 1000/1000, got %d/%d", got.Principal, got.Balance)
	}
	if topUps, _ := s.GetTopUpsForLoan(ctx, loan.ID); len(topUps) != 0 {
		t.Errorf("Expected no top-ups recorded, got %d", len(topUps))
	}

	// The largest top-up that still fits is accepted.
	got, err = l.TopUp(ctx, loan.ID, math.MaxInt64-1000)
	if err != nil {
		t.Fatalf("Failed to top up to the limit: %v", err)
	}
	if got.Principal != math.MaxInt64 || got.Balance != math.MaxInt64 {
		t.Errorf("Expected principal and balance at MaxInt64, got %d/%d", got.Principal, got.Balance)
	}
	if sum := Summarize(got); sum.PeriodsRemaining <= 0 {
		t.Errorf("Expected positive periods remaining, got %d", sum.PeriodsRemaining)
	}
	assertBalanceInvariant(t, l, loan.ID)
}

func TestTopUpReopensClosedLoan(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 1000, 100, testNow)
	pay(t, l, loan.ID, 1000)

	loan, err := l.TopUp(context.Background(), loan.ID, 500)
	if err != nil {
		t.Fatalf("Failed to top up: %v", err)
	}
	if loan.Status != models.LoanStatusActive {
		t.Errorf("Expected status 'active', got %s", loan.Status)
	}
}

func TestRestampAcrossTopUp(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 10000, 1000, testNow)
	ctx := context.Background()

	first := pay(t, l, loan.ID, 2000)
	if _, err := l.TopUp(ctx, loan.ID, 5000); err != nil {
		t.Fatalf("Failed to top up: %v", err)
	}
	second := pay(t, l, loan.ID, 3000)
	if second.BalanceAfter != 10000 {
		t.Fatalf("Expected balance 10000 after second payment, got %d", second.BalanceAfter)
	}

	if err := l.DeletePayment(ctx, first.ID); err != nil {
		t.Fatalf("Failed to delete payment: %v", err)
	}
	payments, _ := l.ListPayments(ctx, loan.ID)
	if payments[0].WeekNumber != 1 || payments[0].BalanceAfter != 12000 {
		t.Errorf("Expected week 1 balance 12000, got week %d balance %d", payments[0].WeekNumber, payments[0].BalanceAfter)
	}
	assertBalanceInvariant(t, l, loan.ID)
}

func TestMarkDefaulted(t *testing.T) {
	l, _ := newTestLedger(t)
	loan := createLoan(t, l, 1000, 100, testNow)
	ctx := context.Background()

	loan, err := l.MarkDefaulted(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to mark defaulted: %v", err)
	}
	if loan.Status != models.LoanStatusDefaulted {
		t.Errorf("Expected status 'defaulted', got %s", loan.Status)
	}
	if _, err := l.TopUp(ctx, loan.ID, 100); !errors.Is(err, models.ErrIllegalStateTransition) {
		t.Errorf("Expected illegal transition for top-up of defaulted loan, got %v", err)
	}
	if _, err := l.MarkDefaulted(ctx, loan.ID); !errors.Is(err, models.ErrIllegalStateTransition) {
		t.Errorf("Expected illegal transition, got %v", err)
	}
	// Collections on a defaulted loan still count.
	pay(t, l, loan.ID, 100)
}

func TestProgress(t *testing.T) {
	loan := &models.Loan{Principal: 10000, Balance: 7000, Installment: 1000, InterestPercent: decimal.NewFromInt(2)}
	s := Summarize(loan)
	if s.Progress.TotalPaid != 3000 {
		t.Errorf("Expected total paid 3000, got %d", s.Progress.TotalPaid)
	}
	if !s.Progress.Percent.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected 30%%, got %s", s.Progress.Percent)
	}
	if s.TotalPeriods != 10 || s.PeriodsRemaining != 7 {
		t.Errorf("Expected 10 total / 7 remaining, got %d / %d", s.TotalPeriods, s.PeriodsRemaining)
	}
	if s.MonthlyInterest != 140 {
		t.Errorf("Expected monthly interest 140, got %d", s.MonthlyInterest)
	}
}

func TestReceiptIsSentAfterPayment(t *testing.T) {
	n := &recordingNotifier{}
	l, _ := newTestLedger(t, WithNotifier(n))
	loan := createLoan(t, l, 1000, 100, testNow)

	pay(t, l, loan.ID, 250)
	if len(n.receipts) != 1 {
		t.Fatalf("Expected 1 receipt, got %d", len(n.receipts))
	}
	r := n.receipts[0]
	if r.CustomerName != "Murugan" || r.Phone != "919876543210" {
		t.Errorf("Unexpected receipt customer %q %q", r.CustomerName, r.Phone)
	}
	if r.Amount != 250 || r.BalanceAfter != 750 || r.WeekNumber != 1 {
		t.Errorf("Unexpected receipt figures: %+v", r)
	}
}

func TestCustomerLifecycle(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	c := createCustomer(t, l)
	if c.Phone != "919876543210" {
		t.Errorf("Expected phone stored as 919876543210, got %s", c.Phone)
	}
	for _, phone := range []string{"9876543210", "+91 98765 43210", "(98765) 43210", "98765-43210", "919876543210"} {
		if _, err := l.CreateCustomer(ctx, "Other", phone); !errors.Is(err, models.ErrValidation) {
			t.Errorf("Expected duplicate phone %q to fail validation, got %v", phone, err)
		}
	}
	if _, err := l.CreateCustomer(ctx, "", "9876543211"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected missing name to fail validation, got %v", err)
	}
	if _, err := l.CreateCustomer(ctx, "Short", "12345"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected short phone to fail validation, got %v", err)
	}

	updated, err := l.UpdateCustomer(ctx, c.ID, "Murugan K", "+91 98765-43210")
	if err != nil {
		t.Fatalf("Failed to update customer: %v", err)
	}
	if updated.Name != "Murugan K" || updated.Phone != "919876543210" {
		t.Errorf("Unexpected customer after update: %+v", updated)
	}

	loan, err := l.CreateLoan(ctx, CreateLoanInput{CustomerID: c.ID, Principal: 100, PeriodUnit: money.Daily})
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	if err := l.DeleteCustomer(ctx, c.ID); !errors.Is(err, models.ErrIllegalStateTransition) {
		t.Errorf("Expected delete to be refused while a loan exists, got %v", err)
	}

	pay(t, l, loan.ID, 100)
	archived, err := l.Archive(ctx, loan.ID, false)
	if err != nil {
		t.Fatalf("Failed to archive: %v", err)
	}
	if err := l.DeleteCustomer(ctx, c.ID); !errors.Is(err, models.ErrIllegalStateTransition) {
		t.Errorf("Expected delete to be refused while an archived loan exists, got %v", err)
	}
	if err := l.DeletePermanently(ctx, archived.ID); err != nil {
		t.Fatalf("Failed to delete archive: %v", err)
	}
	if err := l.DeleteCustomer(ctx, c.ID); err != nil {
		t.Errorf("Expected delete to succeed, got %v", err)
	}
}
