package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/receipt"
	"github.com/mcclellann/fredLedger/pkg/store"
	"go.uber.org/zap"
)

type PaymentInput struct {
	LoanID        uuid.UUID
	Amount        int64
	OfflineAmount int64
	OnlineAmount  int64
	PaymentDate   time.Time
	// Mode may be empty; it is then derived from the offline/online split.
	Mode models.PaymentMode
}

func (in PaymentInput) validate() error {
	if in.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", models.ErrInvalidAmount)
	}
	if in.OfflineAmount < 0 || in.OnlineAmount < 0 {
		return fmt.Errorf("%w: split amounts must not be negative", models.ErrInvalidAmount)
	}
	if in.OfflineAmount+in.OnlineAmount != in.Amount {
		return fmt.Errorf("%w: offline %d + online %d does not equal %d",
			models.ErrInvalidAmount, in.OfflineAmount, in.OnlineAmount, in.Amount)
	}
	if in.Mode != "" && !in.Mode.Valid() {
		return models.Invalid("unknown payment mode %q", in.Mode)
	}
	return nil
}

func (in PaymentInput) mode() models.PaymentMode {
	switch {
	case in.Mode != "":
		return in.Mode
	case in.OnlineAmount == 0:
		return models.PaymentModeCash
	case in.OfflineAmount == 0:
		return models.PaymentModeUPI
	}
	return models.PaymentModeMixed
}

// ApplyPayment records a payment and reduces the loan's balance. A loan paid
// down to zero is closed. The receipt is dispatched after the payment is
// committed and its failure is only logged.
func (l *Ledger) ApplyPayment(ctx context.Context, in PaymentInput) (*models.Payment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	date := in.PaymentDate
	if date.IsZero() {
		date = l.today()
	}

	var (
		loan    *models.Loan
		payment *models.Payment
	)
	err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		var err error
		if loan, err = tx.GetLoan(ctx, in.LoanID); err != nil {
			return err
		}
		if in.Amount > loan.Balance {
			return fmt.Errorf("%w: amount %d, balance %d", models.ErrExceedsBalance, in.Amount, loan.Balance)
		}
		existing, err := tx.GetPaymentsForLoan(ctx, loan.ID)
		if err != nil {
			return err
		}

		now := l.now()
		loan.Balance -= in.Amount
		if loan.Balance == 0 {
			loan.Status = models.LoanStatusClosed
		}
		loan.UpdatedAt = now
		payment = &models.Payment{
			ID:            uuid.New(),
			LoanID:        loan.ID,
			Amount:        in.Amount,
			OfflineAmount: in.OfflineAmount,
			OnlineAmount:  in.OnlineAmount,
			PaymentDate:   dateOnly(date),
			WeekNumber:    len(existing) + 1,
			BalanceAfter:  loan.Balance,
			Mode:          in.mode(),
			Seq:           loan.NextSeq(),
			CreatedAt:     now,
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return fmt.Errorf("failed to update loan balance: %w", err)
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to store payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("payment recorded",
		zap.Stringer("loan_id", loan.ID),
		zap.Stringer("payment_id", payment.ID),
		zap.Int64("amount", payment.Amount),
		zap.Int64("balance", loan.Balance),
		zap.Int("week_number", payment.WeekNumber))
	l.sendReceipt(ctx, loan, payment)
	return payment, nil
}

func (l *Ledger) sendReceipt(ctx context.Context, loan *models.Loan, p *models.Payment) {
	customer, err := l.storage.GetCustomer(ctx, loan.CustomerID)
	if err != nil {
		l.log.Warn("receipt skipped: customer lookup failed", zap.Stringer("payment_id", p.ID), zap.Error(err))
		return
	}
	r := receipt.Receipt{
		PaymentID:    p.ID,
		CustomerName: customer.Name,
		Phone:        customer.Phone,
		LoanLabel:    loan.Label,
		Amount:       p.Amount,
		PaymentDate:  p.PaymentDate,
		WeekNumber:   p.WeekNumber,
		BalanceAfter: p.BalanceAfter,
		Mode:         string(p.Mode),
	}
	if err := l.notifier.Notify(r); err != nil {
		l.log.Warn("receipt not dispatched", zap.Stringer("payment_id", p.ID), zap.Error(err))
	}
}

// DeletePayment removes a payment, recomputes the loan balance and re-stamps
// the week number and balance-after of every remaining payment.
func (l *Ledger) DeletePayment(ctx context.Context, paymentID uuid.UUID) error {
	err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		payment, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		loan, err := tx.GetLoan(ctx, payment.LoanID)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, paymentID); err != nil {
			return err
		}
		payments, err := tx.GetPaymentsForLoan(ctx, loan.ID)
		if err != nil {
			return err
		}
		topUps, err := tx.GetTopUpsForLoan(ctx, loan.ID)
		if err != nil {
			return err
		}

		for _, p := range Restamp(loan, payments, topUps) {
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return err
			}
		}
		loan.Balance = loan.Principal - sumPayments(payments)
		if loan.Balance > 0 && loan.Status == models.LoanStatusClosed {
			loan.Status = models.LoanStatusActive
		}
		loan.UpdatedAt = l.now()
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		return err
	}
	l.log.Info("payment deleted", zap.Stringer("payment_id", paymentID))
	return nil
}

func sumPayments(payments []*models.Payment) int64 {
	var total int64
	for _, p := range payments {
		total += p.Amount
	}
	return total
}

// Restamp replays the loan's disbursement, top-ups and payments in seq order,
// rewriting each payment's week number and balance-after in place. It returns
// the payments whose stamps changed. payments and topUps must be seq-ordered.
func Restamp(loan *models.Loan, payments []*models.Payment, topUps []*models.TopUp) []*models.Payment {
	running := loan.Principal
	for _, t := range topUps {
		running -= t.Amount
	}

	var changed []*models.Payment
	ti := 0
	for i, p := range payments {
		for ti < len(topUps) && topUps[ti].Seq < p.Seq {
			running += topUps[ti].Amount
			ti++
		}
		running -= p.Amount
		if p.WeekNumber != i+1 || p.BalanceAfter != running {
			p.WeekNumber = i + 1
			p.BalanceAfter = running
			changed = append(changed, p)
		}
	}
	return changed
}
