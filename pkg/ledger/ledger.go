package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
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

// ReceiptNotifier accepts receipts for delivery. Implementations must not
// block; an error only means the receipt was not delivered.
type ReceiptNotifier interface {
	Notify(r receipt.Receipt) error
}

type discardNotifier struct{}

func (discardNotifier) Notify(receipt.Receipt) error { return nil }

// Ledger handles the business logic for customers, loans and payments.
//
// Every mutation runs in one storage transaction and is all-or-nothing.
// There is no optimistic locking: two operators recording against the same
// loan at the same instant race, and the last balance write wins.
type Ledger struct {
	storage     store.Storage
	notifier    ReceiptNotifier
	policy      money.PeriodPolicy
	countryCode string
	clock       clock.Clock
	log         *zap.Logger
}

type Option func(*Ledger)

func WithNotifier(n ReceiptNotifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithPolicy(p money.PeriodPolicy) Option {
	return func(l *Ledger) { l.policy = p }
}

// WithCountryCode sets the dialing code folded into bare 10-digit phone
// numbers before they are stored.
func WithCountryCode(code string) Option {
	return func(l *Ledger) { l.countryCode = code }
}

func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage:     s,
		notifier:    discardNotifier{},
		policy:      money.DefaultPeriodPolicy,
		countryCode: receipt.DefaultCountryCode,
		clock:       clock.SystemClock{},
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) now() time.Time {
	return l.clock.Now().UTC()
}

// today returns the current civil date at midnight UTC.
func (l *Ledger) today() time.Time {
	return dateOnly(l.now())
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// normalizePhone reduces phone to the digits-only form used as the
// customer's unique key, so every spelling of one number collides.
func (l *Ledger) normalizePhone(phone string) (string, error) {
	key, err := receipt.NormalizePhone(phone, l.countryCode)
	if err != nil {
		return "", models.Invalid("phone %q must have at least 10 digits", phone)
	}
	return key, nil
}

// CreateCustomer registers a customer. The phone number must be unique.
func (l *Ledger) CreateCustomer(ctx context.Context, name, phone string) (*models.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.Invalid("customer name is required")
	}
	phone, err := l.normalizePhone(phone)
	if err != nil {
		return nil, err
	}
	now := l.now()
	c := &models.Customer{ID: uuid.New(), Name: name, Phone: phone, CreatedAt: now, UpdatedAt: now}
	if err := l.storage.CreateCustomer(ctx, c); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, models.Invalid("phone %s is already registered", phone)
		}
		return nil, fmt.Errorf("failed to store customer: %w", err)
	}
	return c, nil
}

func (l *Ledger) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return l.storage.GetCustomer(ctx, id)
}

func (l *Ledger) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	return l.storage.GetAllCustomers(ctx)
}

// UpdateCustomer edits a customer's name and phone.
func (l *Ledger) UpdateCustomer(ctx context.Context, id uuid.UUID, name, phone string) (*models.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.Invalid("customer name is required")
	}
	phone, err := l.normalizePhone(phone)
	if err != nil {
		return nil, err
	}
	var updated *models.Customer
	err = l.storage.WithTx(ctx, func(tx store.Storage) error {
		c, err := tx.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		c.Name, c.Phone, c.UpdatedAt = name, phone, l.now()
		if err := tx.UpdateCustomer(ctx, c); err != nil {
			if errors.Is(err, models.ErrDuplicate) {
				return models.Invalid("phone %s is already registered", phone)
			}
			return err
		}
		updated = c
		return nil
	})
	return updated, err
}

// DeleteCustomer removes a customer that no loan, active or archived, references.
func (l *Ledger) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	return l.storage.WithTx(ctx, func(tx store.Storage) error {
		if _, err := tx.GetCustomer(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountLoansForCustomer(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: customer has %d loans", models.ErrIllegalStateTransition, n)
		}
		return tx.DeleteCustomer(ctx, id)
	})
}

type CreateLoanInput struct {
	CustomerID uuid.UUID
	Principal  int64
	PeriodUnit money.PeriodUnit
	// Installment of zero means the policy default for PeriodUnit.
	Installment     int64
	StartDate       time.Time
	Label           string
	InterestPercent decimal.Decimal
}

// CreateLoan initializes a new loan for a customer.
func (l *Ledger) CreateLoan(ctx context.Context, in CreateLoanInput) (*models.Loan, error) {
	if in.Principal <= 0 {
		return nil, fmt.Errorf("%w: principal must be positive", models.ErrInvalidAmount)
	}
	if in.Installment < 0 {
		return nil, fmt.Errorf("%w: installment must be positive", models.ErrInvalidAmount)
	}
	if !in.PeriodUnit.Valid() {
		return nil, models.Invalid("unknown period unit %q", in.PeriodUnit)
	}
	if in.InterestPercent.IsNegative() {
		return nil, models.Invalid("interest percent must not be negative")
	}
	installment := in.Installment
	if installment == 0 {
		var err error
		if installment, err = money.InstallmentFor(in.Principal, in.PeriodUnit, l.policy); err != nil {
			return nil, models.Invalid("%v", err)
		}
	}
	start := in.StartDate
	if start.IsZero() {
		start = l.today()
	}

	now := l.now()
	loan := &models.Loan{
		ID:              uuid.New(),
		CustomerID:      in.CustomerID,
		Label:           strings.TrimSpace(in.Label),
		Principal:       in.Principal,
		Installment:     installment,
		Balance:         in.Principal,
		PeriodUnit:      in.PeriodUnit,
		InterestPercent: in.InterestPercent,
		StartDate:       dateOnly(start),
		Status:          models.LoanStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		if _, err := tx.GetCustomer(ctx, in.CustomerID); err != nil {
			return err
		}
		return tx.CreateLoan(ctx, loan)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	l.log.Info("loan created",
		zap.Stringer("loan_id", loan.ID),
		zap.Int64("principal", loan.Principal),
		zap.Int64("installment", loan.Installment),
		zap.String("period_unit", string(loan.PeriodUnit)))
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(ctx, id)
}

// GetAllLoans retrieves every loan in the active set.
func (l *Ledger) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	return l.storage.GetAllLoans(ctx)
}

// ListPayments returns a loan's payments in insertion order.
func (l *Ledger) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.storage.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return l.storage.GetPaymentsForLoan(ctx, loanID)
}

// TopUp adds cash to an existing loan. Past payments keep their week numbers.
func (l *Ledger) TopUp(ctx context.Context, loanID uuid.UUID, additional int64) (*models.Loan, error) {
	if additional <= 0 {
		return nil, fmt.Errorf("%w: top-up must be positive", models.ErrInvalidAmount)
	}
	var loan *models.Loan
	err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		var err error
		if loan, err = tx.GetLoan(ctx, loanID); err != nil {
			return err
		}
		if loan.Status == models.LoanStatusDefaulted {
			return fmt.Errorf("%w: cannot top up a defaulted loan", models.ErrIllegalStateTransition)
		}
		if additional > math.MaxInt64-loan.Principal {
			return fmt.Errorf("%w: top-up of %d overflows principal %d", models.ErrInvalidAmount, additional, loan.Principal)
		}
		now := l.now()
		loan.Principal += additional
		loan.Balance += additional
		loan.Status = models.LoanStatusActive
		loan.UpdatedAt = now
		topUp := &models.TopUp{
			ID:        uuid.New(),
			LoanID:    loan.ID,
			Amount:    additional,
			Seq:       loan.NextSeq(),
			CreatedAt: now,
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		return tx.CreateTopUp(ctx, topUp)
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("loan topped up", zap.Stringer("loan_id", loanID), zap.Int64("amount", additional), zap.Int64("balance", loan.Balance))
	return loan, nil
}

// MarkDefaulted flags an active loan with an outstanding balance as defaulted.
func (l *Ledger) MarkDefaulted(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	var loan *models.Loan
	err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		var err error
		if loan, err = tx.GetLoan(ctx, loanID); err != nil {
			return err
		}
		if loan.Status != models.LoanStatusActive || loan.Balance == 0 {
			return fmt.Errorf("%w: loan is %s with balance %d", models.ErrIllegalStateTransition, loan.Status, loan.Balance)
		}
		loan.Status = models.LoanStatusDefaulted
		loan.UpdatedAt = l.now()
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

type Progress struct {
	TotalPaid int64           `json:"total_paid"`
	Percent   decimal.Decimal `json:"percent"`
}

// LoanProgress reports how much of the principal has been repaid.
func LoanProgress(loan *models.Loan) Progress {
	paid := loan.Principal - loan.Balance
	return Progress{TotalPaid: paid, Percent: money.Ratio(paid, loan.Principal)}
}

type Summary struct {
	Loan             *models.Loan `json:"loan"`
	TotalPeriods     int          `json:"total_periods"`
	PeriodsRemaining int          `json:"periods_remaining"`
	Progress         Progress     `json:"progress"`
	MonthlyInterest  int64        `json:"monthly_interest"`
}

// Summarize derives the figures shown alongside a loan.
func Summarize(loan *models.Loan) Summary {
	return Summary{
		Loan:             loan,
		TotalPeriods:     money.TotalPeriods(loan.Principal, loan.Installment),
		PeriodsRemaining: money.PeriodsRemaining(loan.Balance, loan.Installment),
		Progress:         LoanProgress(loan),
		MonthlyInterest:  money.PercentOf(loan.Balance, loan.InterestPercent),
	}
}
