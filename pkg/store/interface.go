package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/money"
)

// LoanStore persists customers, loans, their payment history and archives.
// Missing rows are reported with models.ErrNotFound, driver failures with
// models.ErrStorage.
type LoanStore interface {
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	DeleteCustomer(ctx context.Context, id uuid.UUID) error
	GetAllCustomers(ctx context.Context) ([]*models.Customer, error)
	// CountLoansForCustomer counts active-set and archived loans.
	CountLoansForCustomer(ctx context.Context, customerID uuid.UUID) (int, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	// DeleteLoan removes the loan with its payments and top-ups.
	DeleteLoan(ctx context.Context, id uuid.UUID) error
	GetAllLoans(ctx context.Context) ([]*models.Loan, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
	// GetPaymentsForLoan returns payments in insertion (seq) order.
	GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)

	CreateTopUp(ctx context.Context, topUp *models.TopUp) error
	GetTopUpsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.TopUp, error)

	CreateArchivedLoan(ctx context.Context, archived *models.ArchivedLoan) error
	GetArchivedLoan(ctx context.Context, id uuid.UUID) (*models.ArchivedLoan, error)
	GetAllArchivedLoans(ctx context.Context) ([]*models.ArchivedLoan, error)
	DeleteArchivedLoan(ctx context.Context, id uuid.UUID) error
}

// ChitStore persists chit groups, members, monthly payments and auctions.
type ChitStore interface {
	CreateChitGroup(ctx context.Context, group *models.ChitGroup) error
	GetChitGroup(ctx context.Context, id uuid.UUID) (*models.ChitGroup, error)
	GetAllChitGroups(ctx context.Context) ([]*models.ChitGroup, error)

	CreateChitMember(ctx context.Context, member *models.ChitMember) error
	GetChitMember(ctx context.Context, id uuid.UUID) (*models.ChitMember, error)
	GetChitMembers(ctx context.Context, groupID uuid.UUID) ([]*models.ChitMember, error)
	DeleteChitMember(ctx context.Context, id uuid.UUID) error
	// CountChitMemberReferences counts payments and auctions naming the member.
	CountChitMemberReferences(ctx context.Context, memberID uuid.UUID) (int, error)

	CreateChitPayment(ctx context.Context, payment *models.ChitPayment) error
	GetChitPayment(ctx context.Context, id uuid.UUID) (*models.ChitPayment, error)
	GetChitPaymentByMemberMonth(ctx context.Context, memberID uuid.UUID, month money.Month) (*models.ChitPayment, error)
	GetChitPaymentsForMonth(ctx context.Context, groupID uuid.UUID, month money.Month) ([]*models.ChitPayment, error)
	DeleteChitPayment(ctx context.Context, id uuid.UUID) error

	// SaveChitAuction inserts the auction or replaces the row with the same id.
	SaveChitAuction(ctx context.Context, auction *models.ChitAuction) error
	GetChitAuction(ctx context.Context, id uuid.UUID) (*models.ChitAuction, error)
	GetChitAuctionByMonth(ctx context.Context, groupID uuid.UUID, month money.Month) (*models.ChitAuction, error)
	// GetChitAuctions returns the group's auctions ordered by slot number.
	GetChitAuctions(ctx context.Context, groupID uuid.UUID) ([]*models.ChitAuction, error)
	DeleteChitAuction(ctx context.Context, id uuid.UUID) error
}

// Storage is the full persistence surface. WithTx runs fn against a
// transactional view; fn's error rolls every write back.
type Storage interface {
	LoanStore
	ChitStore

	WithTx(ctx context.Context, fn func(tx Storage) error) error
	Close() error
}
