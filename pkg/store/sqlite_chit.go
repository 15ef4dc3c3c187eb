package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/money"
)

const chitGroupColumns = `id, name, chit_amount, member_count, monthly_amount, due_day, duration_months, start_month, commission_percent, created_at`

func scanChitGroup(row scanner) (*models.ChitGroup, error) {
	var g models.ChitGroup
	err := row.Scan(&g.ID, &g.Name, &g.ChitAmount, &g.MemberCount, &g.MonthlyAmount, &g.DueDay,
		&g.DurationMonths, &g.StartMonth, &g.CommissionPercent, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateChitGroup inserts a chit group.
func (s *SQLiteStore) CreateChitGroup(ctx context.Context, g *models.ChitGroup) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO chit_groups (`+chitGroupColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.ChitAmount, g.MemberCount, g.MonthlyAmount, g.DueDay, g.DurationMonths,
		g.StartMonth, g.CommissionPercent, g.CreatedAt,
	)
	if err != nil {
		return storageErr("failed to create chit group", err)
	}
	return nil
}

// GetChitGroup retrieves a chit group by ID.
func (s *SQLiteStore) GetChitGroup(ctx context.Context, id uuid.UUID) (*models.ChitGroup, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+chitGroupColumns+` FROM chit_groups WHERE id = ?`, id)
	g, err := scanChitGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("chit group", id)
		}
		return nil, storageErr("failed to get chit group", err)
	}
	return g, nil
}

// GetAllChitGroups retrieves every chit group.
func (s *SQLiteStore) GetAllChitGroups(ctx context.Context) ([]*models.ChitGroup, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+chitGroupColumns+` FROM chit_groups ORDER BY created_at, id`)
	if err != nil {
		return nil, storageErr("failed to get chit groups", err)
	}
	defer rows.Close()

	var groups []*models.ChitGroup
	for rows.Next() {
		g, err := scanChitGroup(rows)
		if err != nil {
			return nil, storageErr("failed to scan chit group row", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error during rows iteration", err)
	}
	return groups, nil
}

const chitMemberColumns = `id, group_id, name, phone, member_number, created_at`

func scanChitMember(row scanner) (*models.ChitMember, error) {
	var m models.ChitMember
	var number sql.NullInt64
	if err := row.Scan(&m.ID, &m.GroupID, &m.Name, &m.Phone, &number, &m.CreatedAt); err != nil {
		return nil, err
	}
	if number.Valid {
		n := int(number.Int64)
		m.MemberNumber = &n
	}
	return &m, nil
}

// CreateChitMember inserts a member.
func (s *SQLiteStore) CreateChitMember(ctx context.Context, m *models.ChitMember) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO chit_members (`+chitMemberColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.Name, m.Phone, m.MemberNumber, m.CreatedAt,
	)
	if err != nil {
		return storageErr("failed to create chit member", err)
	}
	return nil
}

// GetChitMember retrieves a member by ID.
func (s *SQLiteStore) GetChitMember(ctx context.Context, id uuid.UUID) (*models.ChitMember, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+chitMemberColumns+` FROM chit_members WHERE id = ?`, id)
	m, err := scanChitMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("chit member", id)
		}
		return nil, storageErr("failed to get chit member", err)
	}
	return m, nil
}

// GetChitMembers retrieves a group's members, numbered members first.
func (s *SQLiteStore) GetChitMembers(ctx context.Context, groupID uuid.UUID) ([]*models.ChitMember, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+chitMemberColumns+` FROM chit_members WHERE group_id = ? ORDER BY member_number IS NULL, member_number, created_at, id`,
		groupID)
	if err != nil {
		return nil, storageErr("failed to get chit members", err)
	}
	defer rows.Close()

	var members []*models.ChitMember
	for rows.Next() {
		m, err := scanChitMember(rows)
		if err != nil {
			return nil, storageErr("failed to scan chit member row", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error during rows iteration", err)
	}
	return members, nil
}

// DeleteChitMember removes a member.
func (s *SQLiteStore) DeleteChitMember(ctx context.Context, id uuid.UUID) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM chit_members WHERE id = ?`, id)
	if err != nil {
		return storageErr("failed to delete chit member", err)
	}
	return expectOne(result, "chit member", id)
}

// CountChitMemberReferences counts payments and auctions naming the member.
func (s *SQLiteStore) CountChitMemberReferences(ctx context.Context, memberID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM chit_payments WHERE member_id = ?) + (SELECT COUNT(*) FROM chit_auctions WHERE winner_member_id = ?)`,
		memberID, memberID,
	).Scan(&n)
	if err != nil {
		return 0, storageErr("failed to count chit member references", err)
	}
	return n, nil
}

const chitPaymentColumns = `id, group_id, member_id, month, amount, paid_on, created_at`

func scanChitPayment(row scanner) (*models.ChitPayment, error) {
	var p models.ChitPayment
	if err := row.Scan(&p.ID, &p.GroupID, &p.MemberID, &p.Month, &p.Amount, &p.PaidOn, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateChitPayment inserts a monthly contribution.
func (s *SQLiteStore) CreateChitPayment(ctx context.Context, p *models.ChitPayment) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO chit_payments (`+chitPaymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GroupID, p.MemberID, p.Month, p.Amount, p.PaidOn, p.CreatedAt,
	)
	if err != nil {
		return storageErr("failed to create chit payment", err)
	}
	return nil
}

// GetChitPayment retrieves a contribution by ID.
func (s *SQLiteStore) GetChitPayment(ctx context.Context, id uuid.UUID) (*models.ChitPayment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+chitPaymentColumns+` FROM chit_payments WHERE id = ?`, id)
	p, err := scanChitPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("chit payment", id)
		}
		return nil, storageErr("failed to get chit payment", err)
	}
	return p, nil
}

// GetChitPaymentByMemberMonth retrieves the member's contribution for month.
func (s *SQLiteStore) GetChitPaymentByMemberMonth(ctx context.Context, memberID uuid.UUID, month money.Month) (*models.ChitPayment, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+chitPaymentColumns+` FROM chit_payments WHERE member_id = ? AND month = ?`, memberID, month)
	p, err := scanChitPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("chit payment for month", month)
		}
		return nil, storageErr("failed to get chit payment", err)
	}
	return p, nil
}

// GetChitPaymentsForMonth retrieves all contributions of a group for month.
func (s *SQLiteStore) GetChitPaymentsForMonth(ctx context.Context, groupID uuid.UUID, month money.Month) ([]*models.ChitPayment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+chitPaymentColumns+` FROM chit_payments WHERE group_id = ? AND month = ? ORDER BY created_at, id`,
		groupID, month)
	if err != nil {
		return nil, storageErr("failed to get chit payments", err)
	}
	defer rows.Close()

	var payments []*models.ChitPayment
	for rows.Next() {
		p, err := scanChitPayment(rows)
		if err != nil {
			return nil, storageErr("failed to scan chit payment row", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error during rows iteration", err)
	}
	return payments, nil
}

// DeleteChitPayment removes a contribution.
func (s *SQLiteStore) DeleteChitPayment(ctx context.Context, id uuid.UUID) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM chit_payments WHERE id = ?`, id)
	if err != nil {
		return storageErr("failed to delete chit payment", err)
	}
	return expectOne(result, "chit payment", id)
}

const chitAuctionColumns = `id, group_id, month, slot_number, winner_member_id, winner_name, bid_amount, commission, total_collected, amount_to_winner, carry_forward, auction_date, disbursement_date, photo_ref, signature_ref, notes, created_at, updated_at`

func scanChitAuction(row scanner) (*models.ChitAuction, error) {
	var a models.ChitAuction
	var disbursed sql.NullTime
	err := row.Scan(&a.ID, &a.GroupID, &a.Month, &a.SlotNumber, &a.WinnerMemberID, &a.WinnerName,
		&a.BidAmount, &a.Commission, &a.TotalCollected, &a.AmountToWinner, &a.CarryForward,
		&a.AuctionDate, &disbursed, &a.PhotoRef, &a.SignatureRef, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if disbursed.Valid {
		a.DisbursementDate = &disbursed.Time
	}
	return &a, nil
}

// SaveChitAuction inserts the auction or replaces the row with the same ID.
func (s *SQLiteStore) SaveChitAuction(ctx context.Context, a *models.ChitAuction) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO chit_auctions (`+chitAuctionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			month = excluded.month,
			slot_number = excluded.slot_number,
			winner_member_id = excluded.winner_member_id,
			winner_name = excluded.winner_name,
			bid_amount = excluded.bid_amount,
			commission = excluded.commission,
			total_collected = excluded.total_collected,
			amount_to_winner = excluded.amount_to_winner,
			carry_forward = excluded.carry_forward,
			auction_date = excluded.auction_date,
			disbursement_date = excluded.disbursement_date,
			photo_ref = excluded.photo_ref,
			signature_ref = excluded.signature_ref,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		a.ID, a.GroupID, a.Month, a.SlotNumber, a.WinnerMemberID, a.WinnerName, a.BidAmount, a.Commission,
		a.TotalCollected, a.AmountToWinner, a.CarryForward, a.AuctionDate, a.DisbursementDate,
		a.PhotoRef, a.SignatureRef, a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return storageErr("failed to save chit auction", err)
	}
	return nil
}

// GetChitAuction retrieves an auction by ID.
func (s *SQLiteStore) GetChitAuction(ctx context.Context, id uuid.UUID) (*models.ChitAuction, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+chitAuctionColumns+` FROM chit_auctions WHERE id = ?`, id)
	a, err := scanChitAuction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("chit auction", id)
		}
		return nil, storageErr("failed to get chit auction", err)
	}
	return a, nil
}

// GetChitAuctionByMonth retrieves the group's auction for month.
func (s *SQLiteStore) GetChitAuctionByMonth(ctx context.Context, groupID uuid.UUID, month money.Month) (*models.ChitAuction, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+chitAuctionColumns+` FROM chit_auctions WHERE group_id = ? AND month = ?`, groupID, month)
	a, err := scanChitAuction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("chit auction for month", month)
		}
		return nil, storageErr("failed to get chit auction", err)
	}
	return a, nil
}

// GetChitAuctions retrieves a group's auctions ordered by slot.
func (s *SQLiteStore) GetChitAuctions(ctx context.Context, groupID uuid.UUID) ([]*models.ChitAuction, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+chitAuctionColumns+` FROM chit_auctions WHERE group_id = ? ORDER BY slot_number`, groupID)
	if err != nil {
		return nil, storageErr("failed to get chit auctions", err)
	}
	defer rows.Close()

	var auctions []*models.ChitAuction
	for rows.Next() {
		a, err := scanChitAuction(rows)
		if err != nil {
			return nil, storageErr("failed to scan chit auction row", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error during rows iteration", err)
	}
	return auctions, nil
}

// DeleteChitAuction removes an auction.
func (s *SQLiteStore) DeleteChitAuction(ctx context.Context, id uuid.UUID) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM chit_auctions WHERE id = ?`, id)
	if err != nil {
		return storageErr("failed to delete chit auction", err)
	}
	return expectOne(result, "chit auction", id)
}
