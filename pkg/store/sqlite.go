package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/mcclellann/fredLedger/pkg/models"
	"go.uber.org/zap"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db   *sql.DB
	q    querier
	inTx bool
}

// NewSQLiteStore opens the database and applies the embedded migrations.
func NewSQLiteStore(dataSourceName string, log *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// One connection serialises writers; the ledger assumes a single writer per entity.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}

	log.Info("database connection established", zap.String("dsn", dataSourceName))
	return &SQLiteStore{db: db, q: db}, nil
}

// WithTx runs fn inside a database transaction. Nested calls join the
// outer transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Storage) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit transaction", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

func storageErr(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: %w: %v", op, models.ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, models.ErrNotFound)
}

func storageErrDuplicate(kind string, key any) error {
	return fmt.Errorf("%s %v: %w", kind, key, models.ErrDuplicate)
}

// expectOne turns a zero-row update or delete into a not-found error.
func expectOne(result sql.Result, kind string, id any) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to check rows affected", err)
	}
	if rowsAffected == 0 {
		return notFound(kind, id)
	}
	return nil
}

const customerColumns = `id, name, phone, created_at, updated_at`

func scanCustomer(row scanner) (*models.Customer, error) {
	var c models.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCustomer inserts a new customer.
func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Phone, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return storageErr("failed to create customer", err)
	}
	return nil
}

// GetCustomer retrieves a customer by ID.
func (s *SQLiteStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("customer", id)
		}
		return nil, storageErr("failed to get customer", err)
	}
	return c, nil
}

// UpdateCustomer updates name and phone.
func (s *SQLiteStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE customers SET name = ?, phone = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Phone, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return storageErr("failed to update customer", err)
	}
	return expectOne(result, "customer", c.ID)
}

// DeleteCustomer removes a customer.
func (s *SQLiteStore) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return storageErr("failed to delete customer", err)
	}
	return expectOne(result, "customer", id)
}

// GetAllCustomers retrieves all customers ordered by name.
func (s *SQLiteStore) GetAllCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, storageErr("failed to get all customers", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, storageErr("failed to scan customer row", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error during rows iteration", err)
	}
	return customers, nil
}

// CountLoansForCustomer counts loans in the active set and in the archive.
func (s *SQLiteStore) CountLoansForCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM loans WHERE customer_id = ?) + (SELECT COUNT(*) FROM archived_loans WHERE customer_id = ?)`,
		customerID, customerID,
	).Scan(&n)
	if err != nil {
		return 0, storageErr("failed to count customer loans", err)
	}
	return n, nil
}

const loanColumns = `id, customer_id, label, principal, installment, balance, period_unit, interest_percent, start_date, status, entry_seq, created_at, updated_at`

func scanLoan(row scanner) (*models.Loan, error) {
	var l models.Loan
	err := row.Scan(&l.ID, &l.CustomerID, &l.Label, &l.Principal, &l.Installment, &l.Balance, &l.PeriodUnit,
		&l.InterestPercent, &l.StartDate, &l.Status, &l.EntrySeq, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(ctx context.Context, l *models.Loan) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CustomerID, l.Label, l.Principal, l.Installment, l.Balance, l.PeriodUnit,
		l.InterestPercent, l.StartDate, l.Status, l.EntrySeq, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return storageErr("failed to create loan", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	l, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("loan", id)
		}
		return nil, storageErr("failed to get loan", err)
	}
	return l, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(ctx context.Context, l *models.Loan) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE loans SET customer_id = ?, label = ?, principal = ?, installment = ?, balance = ?, period_unit = ?, interest_percent = ?, start_date = ?, status = ?, entry_seq = ?, updated_at = ? WHERE id = ?`,
		l.CustomerID, l.Label, l.Principal, l.Installment, l.Balance, l.PeriodUnit, l.InterestPercent,
		l.StartDate, l.Status, l.EntrySeq, l.UpdatedAt, l.ID,
	)
	if err != nil {
		return storageErr("failed to update loan", err)
	}
	return expectOne(result, "loan", l.ID)
}

// DeleteLoan removes a loan, its payments and its top-ups.
func (s *SQLiteStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	return s.WithTx(ctx, func(tx Storage) error {
		q := tx.(*SQLiteStore).q
		if _, err := q.ExecContext(ctx, `DELETE FROM payments WHERE loan_id = ?`, id); err != nil {
			return storageErr("failed to delete associated payments", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM loan_top_ups WHERE loan_id = ?`, id); err != nil {
			return storageErr("failed to delete associated top-ups", err)
		}
		result, err := q.ExecContext(ctx, `DELETE FROM loans WHERE id = ?`, id)
		if err != nil {
			return storageErr("failed to delete loan", err)
		}
		return expectOne(result, "loan", id)
	})
}

// GetAllLoans retrieves all loans in the active set.
func (s *SQLiteStore) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY created_at, id`)
	if err != nil {
		return nil, storageErr("failed to get all loans", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, storageErr("failed to scan loan row", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error during rows iteration", err)
	}
	return loans, nil
}

const paymentColumns = `id, loan_id, amount, offline_amount, online_amount, payment_date, week_number, balance_after, mode, seq, created_at`

func scanPayment(row scanner) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.LoanID, &p.Amount, &p.OfflineAmount, &p.OnlineAmount, &p.PaymentDate,
		&p.WeekNumber, &p.BalanceAfter, &p.Mode, &p.Seq, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePayment inserts a payment.
func (s *SQLiteStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LoanID, p.Amount, p.OfflineAmount, p.OnlineAmount, p.PaymentDate,
		p.WeekNumber, p.BalanceAfter, p.Mode, p.Seq, p.CreatedAt,
	)
	if err != nil {
		return storageErr("failed to create payment", err)
	}
	return nil
}

// GetPayment retrieves a payment by its ID.
func (s *SQLiteStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("payment", id)
		}
		return nil, storageErr("failed to get payment", err)
	}
	return p, nil
}

// UpdatePayment rewrites the derived columns of a payment.
func (s *SQLiteStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE payments SET week_number = ?, balance_after = ? WHERE id = ?`,
		p.WeekNumber, p.BalanceAfter, p.ID,
	)
	if err != nil {
		return storageErr("failed to update payment", err)
	}
	return expectOne(result, "payment", p.ID)
}

// DeletePayment removes a payment.
func (s *SQLiteStore) DeletePayment(ctx context.Context, id uuid.UUID) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return storageErr("failed to delete payment", err)
	}
	return expectOne(result, "payment", id)
}

// GetPaymentsForLoan retrieves a loan's payments in insertion order.
func (s *SQLiteStore) GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE loan_id = ? ORDER BY seq ASC`, loanID)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to get payments for loan %s", loanID), err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, storageErr("failed to scan payment row", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error during rows iteration for loan payments", err)
	}
	return payments, nil
}

// CreateTopUp inserts a top-up entry.
func (s *SQLiteStore) CreateTopUp(ctx context.Context, t *models.TopUp) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO loan_top_ups (id, loan_id, amount, seq, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.LoanID, t.Amount, t.Seq, t.CreatedAt,
	)
	if err != nil {
		return storageErr("failed to create top-up", err)
	}
	return nil
}

// GetTopUpsForLoan retrieves a loan's top-ups in insertion order.
func (s *SQLiteStore) GetTopUpsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.TopUp, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, loan_id, amount, seq, created_at FROM loan_top_ups WHERE loan_id = ? ORDER BY seq ASC`, loanID)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to get top-ups for loan %s", loanID), err)
	}
	defer rows.Close()

	var topUps []*models.TopUp
	for rows.Next() {
		var t models.TopUp
		if err := rows.Scan(&t.ID, &t.LoanID, &t.Amount, &t.Seq, &t.CreatedAt); err != nil {
			return nil, storageErr("failed to scan top-up row", err)
		}
		topUps = append(topUps, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error during rows iteration for loan top-ups", err)
	}
	return topUps, nil
}

// CreateArchivedLoan stores the archive as a JSON snapshot.
func (s *SQLiteStore) CreateArchivedLoan(ctx context.Context, a *models.ArchivedLoan) error {
	snapshot, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode archived loan: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO archived_loans (id, loan_id, customer_id, snapshot, archived_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Loan.ID, a.Loan.CustomerID, string(snapshot), a.ArchivedAt,
	)
	if err != nil {
		return storageErr("failed to create archived loan", err)
	}
	return nil
}

func scanArchivedLoan(row scanner) (*models.ArchivedLoan, error) {
	var snapshot string
	if err := row.Scan(&snapshot); err != nil {
		return nil, err
	}
	var a models.ArchivedLoan
	if err := json.Unmarshal([]byte(snapshot), &a); err != nil {
		return nil, fmt.Errorf("failed to decode archived loan: %w", err)
	}
	return &a, nil
}

// GetArchivedLoan retrieves an archived loan by its archive ID.
func (s *SQLiteStore) GetArchivedLoan(ctx context.Context, id uuid.UUID) (*models.ArchivedLoan, error) {
	row := s.q.QueryRowContext(ctx, `SELECT snapshot FROM archived_loans WHERE id = ?`, id)
	a, err := scanArchivedLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("archived loan", id)
		}
		return nil, storageErr("failed to get archived loan", err)
	}
	return a, nil
}

// GetAllArchivedLoans retrieves every archive, most recent first.
func (s *SQLiteStore) GetAllArchivedLoans(ctx context.Context) ([]*models.ArchivedLoan, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT snapshot FROM archived_loans ORDER BY archived_at DESC, id`)
	if err != nil {
		return nil, storageErr("failed to get archived loans", err)
	}
	defer rows.Close()

	var archived []*models.ArchivedLoan
	for rows.Next() {
		a, err := scanArchivedLoan(rows)
		if err != nil {
			return nil, storageErr("failed to scan archived loan row", err)
		}
		archived = append(archived, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error during rows iteration", err)
	}
	return archived, nil
}

// DeleteArchivedLoan removes an archive permanently.
func (s *SQLiteStore) DeleteArchivedLoan(ctx context.Context, id uuid.UUID) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM archived_loans WHERE id = ?`, id)
	if err != nil {
		return storageErr("failed to delete archived loan", err)
	}
	return expectOne(result, "archived loan", id)
}
