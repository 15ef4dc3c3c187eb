package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/store"
	"go.uber.org/zap"
)

// Archive moves a closed loan and its history out of the active set. With
// override a loan that still carries a balance may be archived as written off.
func (l *Ledger) Archive(ctx context.Context, loanID uuid.UUID, override bool) (*models.ArchivedLoan, error) {
	var archived *models.ArchivedLoan
	err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		loan, err := tx.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusClosed && !override {
			return fmt.Errorf("%w: loan is %s with balance %d", models.ErrIllegalStateTransition, loan.Status, loan.Balance)
		}
		payments, err := tx.GetPaymentsForLoan(ctx, loanID)
		if err != nil {
			return err
		}
		topUps, err := tx.GetTopUpsForLoan(ctx, loanID)
		if err != nil {
			return err
		}

		snapshot := *loan
		snapshot.Status = models.LoanStatusArchived
		archived = &models.ArchivedLoan{
			ID:         uuid.New(),
			Loan:       snapshot,
			Payments:   payments,
			TopUps:     topUps,
			ArchivedAt: l.now(),
		}
		if err := tx.CreateArchivedLoan(ctx, archived); err != nil {
			return err
		}
		return tx.DeleteLoan(ctx, loanID)
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("loan archived", zap.Stringer("loan_id", loanID), zap.Stringer("archive_id", archived.ID), zap.Bool("override", override))
	return archived, nil
}

// Restore puts an archived loan back into the active set with its original
// ids and history. The loan is active when it still has a balance.
func (l *Ledger) Restore(ctx context.Context, archivedID uuid.UUID) (*models.Loan, error) {
	var loan *models.Loan
	err := l.storage.WithTx(ctx, func(tx store.Storage) error {
		archived, err := tx.GetArchivedLoan(ctx, archivedID)
		if err != nil {
			return err
		}
		switch _, err := tx.GetLoan(ctx, archived.Loan.ID); {
		case err == nil:
			return fmt.Errorf("%w: loan %s is already active", models.ErrIllegalStateTransition, archived.Loan.ID)
		case !errors.Is(err, models.ErrNotFound):
			return err
		}

		restored := archived.Loan
		restored.Status = models.LoanStatusClosed
		if restored.Balance > 0 {
			restored.Status = models.LoanStatusActive
		}
		if err := tx.CreateLoan(ctx, &restored); err != nil {
			return err
		}
		for _, p := range archived.Payments {
			if err := tx.CreatePayment(ctx, p); err != nil {
				return err
			}
		}
		for _, t := range archived.TopUps {
			if err := tx.CreateTopUp(ctx, t); err != nil {
				return err
			}
		}
		loan = &restored
		return tx.DeleteArchivedLoan(ctx, archivedID)
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("loan restored", zap.Stringer("loan_id", loan.ID), zap.Stringer("archive_id", archivedID))
	return loan, nil
}

// DeletePermanently drops an archived loan. There is no undo.
func (l *Ledger) DeletePermanently(ctx context.Context, archivedID uuid.UUID) error {
	if err := l.storage.DeleteArchivedLoan(ctx, archivedID); err != nil {
		return err
	}
	l.log.Warn("archived loan permanently deleted", zap.Stringer("archive_id", archivedID))
	return nil
}

func (l *Ledger) GetArchivedLoan(ctx context.Context, archivedID uuid.UUID) (*models.ArchivedLoan, error) {
	return l.storage.GetArchivedLoan(ctx, archivedID)
}

func (l *Ledger) ListArchived(ctx context.Context) ([]*models.ArchivedLoan, error) {
	return l.storage.GetAllArchivedLoans(ctx)
}
