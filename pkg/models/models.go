package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/money"
	"github.com/shopspring/decimal"
)

type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"` // natural key
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusClosed    LoanStatus = "closed"
	LoanStatusDefaulted LoanStatus = "defaulted"
	LoanStatusArchived  LoanStatus = "archived"
)

type Loan struct {
	ID              uuid.UUID        `json:"id"`
	CustomerID      uuid.UUID        `json:"customer_id"`
	Label           string           `json:"label,omitempty"`
	Principal       int64            `json:"principal"` // includes every top-up
	Installment     int64            `json:"installment"`
	Balance         int64            `json:"balance"`
	PeriodUnit      money.PeriodUnit `json:"period_unit"`
	InterestPercent decimal.Decimal  `json:"interest_percent"` // flat monthly vaddi percent
	StartDate       time.Time        `json:"start_date"`
	Status          LoanStatus       `json:"status"`
	EntrySeq        int64            `json:"entry_seq"` // last seq handed to a payment or top-up
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NextSeq advances and returns the loan's entry sequence.
func (l *Loan) NextSeq() int64 {
	l.EntrySeq++
	return l.EntrySeq
}

type PaymentMode string

const (
	PaymentModeCash         PaymentMode = "cash"
	PaymentModeUPI          PaymentMode = "upi"
	PaymentModeBankTransfer PaymentMode = "bank_transfer"
	PaymentModeCheque       PaymentMode = "cheque"
	PaymentModeMixed        PaymentMode = "mixed"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeCash, PaymentModeUPI, PaymentModeBankTransfer, PaymentModeCheque, PaymentModeMixed:
		return true
	}
	return false
}

type Payment struct {
	ID            uuid.UUID   `json:"id"`
	LoanID        uuid.UUID   `json:"loan_id"`
	Amount        int64       `json:"amount"`
	OfflineAmount int64       `json:"offline_amount"`
	OnlineAmount  int64       `json:"online_amount"`
	PaymentDate   time.Time   `json:"payment_date"`
	WeekNumber    int         `json:"week_number"`
	BalanceAfter  int64       `json:"balance_after"` // projection, re-stamped on delete
	Mode          PaymentMode `json:"mode"`
	Seq           int64       `json:"seq"`
	CreatedAt     time.Time   `json:"created_at"`
}

type TopUp struct {
	ID        uuid.UUID `json:"id"`
	LoanID    uuid.UUID `json:"loan_id"`
	Amount    int64     `json:"amount"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchivedLoan is a settled or written-off loan with its full history.
type ArchivedLoan struct {
	ID         uuid.UUID  `json:"id"`
	Loan       Loan       `json:"loan"`
	Payments   []*Payment `json:"payments"`
	TopUps     []*TopUp   `json:"top_ups"`
	ArchivedAt time.Time  `json:"archived_at"`
}

type ChitGroup struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	ChitAmount        int64           `json:"chit_amount"`
	MemberCount       int             `json:"member_count"`
	MonthlyAmount     int64           `json:"monthly_amount"`
	DueDay            int             `json:"due_day"`
	DurationMonths    int             `json:"duration_months"`
	StartMonth        money.Month     `json:"start_month"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	CreatedAt         time.Time       `json:"created_at"`
}

// EndMonth is the last month covered by the group.
func (g *ChitGroup) EndMonth() money.Month {
	return g.StartMonth.AddMonths(g.DurationMonths - 1)
}

// Covers reports whether m falls within the group's lifetime.
func (g *ChitGroup) Covers(m money.Month) bool {
	return !m.Before(g.StartMonth) && !g.EndMonth().Before(m)
}

// TotalCollected is the fully funded pool for one month.
func (g *ChitGroup) TotalCollected() int64 {
	return g.MonthlyAmount * int64(g.MemberCount)
}

type ChitMember struct {
	ID           uuid.UUID `json:"id"`
	GroupID      uuid.UUID `json:"group_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	MemberNumber *int      `json:"member_number,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ChitPayment struct {
	ID        uuid.UUID   `json:"id"`
	GroupID   uuid.UUID   `json:"group_id"`
	MemberID  uuid.UUID   `json:"member_id"`
	Month     money.Month `json:"month"`
	Amount    int64       `json:"amount"`
	PaidOn    time.Time   `json:"paid_on"`
	CreatedAt time.Time   `json:"created_at"`
}

type ChitAuction struct {
	ID               uuid.UUID   `json:"id"`
	GroupID          uuid.UUID   `json:"group_id"`
	Month            money.Month `json:"month"`
	SlotNumber       int         `json:"slot_number"`
	WinnerMemberID   uuid.UUID   `json:"winner_member_id"`
	WinnerName       string      `json:"winner_name"`
	BidAmount        int64       `json:"bid_amount"`
	Commission       int64       `json:"commission"`
	TotalCollected   int64       `json:"total_collected"`
	AmountToWinner   int64       `json:"amount_to_winner"`
	CarryForward     int64       `json:"carry_forward"`
	AuctionDate      time.Time   `json:"auction_date"`
	DisbursementDate *time.Time  `json:"disbursement_date,omitempty"`
	PhotoRef         string      `json:"photo_ref,omitempty"`
	SignatureRef     string      `json:"signature_ref,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}
