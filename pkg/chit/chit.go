// Package chit runs rotating chit-fund groups: members pay a fixed
// contribution every month and one member per month takes the pool at
// auction, leaving their bid behind as carry-forward.
package chit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/clock"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/money"
	"github.com/mcclellann/fredLedger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	storage store.Storage
	clock   clock.Clock
	log     *zap.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(s store.Storage, opts ...Option) *Service {
	svc := &Service{storage: s, clock: clock.SystemClock{}, log: zap.NewNop()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Upper bounds on a group's shape. Slot and collection views are sized by
// MemberCount.
const (
	MaxMembers        = 500
	MaxDurationMonths = 600
)

type CreateGroupInput struct {
	Name        string
	ChitAmount  int64
	MemberCount int
	DueDay      int
	// DurationMonths of zero runs the group for MemberCount months.
	DurationMonths    int
	StartMonth        money.Month
	CommissionPercent decimal.Decimal
}

func (in CreateGroupInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return models.Invalid("group name is required")
	case in.ChitAmount <= 0:
		return fmt.Errorf("%w: chit amount must be positive", models.ErrInvalidAmount)
	case in.MemberCount <= 0:
		return models.Invalid("member count must be positive")
	case in.MemberCount > MaxMembers:
		return models.Invalid("member count %d exceeds %d", in.MemberCount, MaxMembers)
	case money.Split(in.ChitAmount, in.MemberCount) < 1:
		return fmt.Errorf("%w: chit amount %d gives no monthly contribution across %d members",
			models.ErrInvalidAmount, in.ChitAmount, in.MemberCount)
	case in.DueDay < 1 || in.DueDay > 31:
		return models.Invalid("due day %d is outside 1..31", in.DueDay)
	case in.DurationMonths < 0:
		return models.Invalid("duration must not be negative")
	case in.DurationMonths > MaxDurationMonths:
		return models.Invalid("duration %d exceeds %d months", in.DurationMonths, MaxDurationMonths)
	case !in.StartMonth.Valid():
		return models.Invalid("start month %q is not YYYY-MM", in.StartMonth)
	case in.CommissionPercent.IsNegative():
		return models.Invalid("commission percent must not be negative")
	}
	return nil
}

// CreateGroup sets up a chit group. The monthly contribution is the chit
// amount split evenly across members, rounded to the whole unit.
func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.ChitGroup, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	duration := in.DurationMonths
	if duration == 0 {
		duration = in.MemberCount
	}
	g := &models.ChitGroup{
		ID:                uuid.New(),
		Name:              strings.TrimSpace(in.Name),
		ChitAmount:        in.ChitAmount,
		MemberCount:       in.MemberCount,
		MonthlyAmount:     money.Split(in.ChitAmount, in.MemberCount),
		DueDay:            in.DueDay,
		DurationMonths:    duration,
		StartMonth:        in.StartMonth,
		CommissionPercent: in.CommissionPercent,
		CreatedAt:         s.now(),
	}
	if err := s.storage.CreateChitGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to store chit group: %w", err)
	}
	s.log.Info("chit group created",
		zap.Stringer("group_id", g.ID),
		zap.Int64("chit_amount", g.ChitAmount),
		zap.Int("member_count", g.MemberCount),
		zap.Int64("monthly_amount", g.MonthlyAmount))
	return g, nil
}

func (s *Service) GetGroup(ctx context.Context, id uuid.UUID) (*models.ChitGroup, error) {
	return s.storage.GetChitGroup(ctx, id)
}

func (s *Service) ListGroups(ctx context.Context) ([]*models.ChitGroup, error) {
	return s.storage.GetAllChitGroups(ctx)
}

type AddMemberInput struct {
	GroupID      uuid.UUID
	Name         string
	Phone        string
	MemberNumber *int
}

// AddMember enrolls a member. A group never holds more than MemberCount
// members, and member numbers are unique within it.
func (s *Service) AddMember(ctx context.Context, in AddMemberInput) (*models.ChitMember, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.Invalid("member name is required")
	}
	member := &models.ChitMember{
		ID:           uuid.New(),
		GroupID:      in.GroupID,
		Name:         name,
		Phone:        strings.TrimSpace(in.Phone),
		MemberNumber: in.MemberNumber,
		CreatedAt:    s.now(),
	}
	err := s.storage.WithTx(ctx, func(tx store.Storage) error {
		g, err := tx.GetChitGroup(ctx, in.GroupID)
		if err != nil {
			return err
		}
		if n := in.MemberNumber; n != nil && (*n < 1 || *n > g.MemberCount) {
			return models.Invalid("member number %d is outside 1..%d", *n, g.MemberCount)
		}
		members, err := tx.GetChitMembers(ctx, g.ID)
		if err != nil {
			return err
		}
		if len(members) >= g.MemberCount {
			return models.Invalid("group already has %d members", g.MemberCount)
		}
		if err := tx.CreateChitMember(ctx, member); err != nil {
			if errors.Is(err, models.ErrDuplicate) && in.MemberNumber != nil {
				return models.Invalid("member number %d is already taken", *in.MemberNumber)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (s *Service) ListMembers(ctx context.Context, groupID uuid.UUID) ([]*models.ChitMember, error) {
	if _, err := s.storage.GetChitGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.storage.GetChitMembers(ctx, groupID)
}

// DeleteMember removes a member no payment or auction refers to.
func (s *Service) DeleteMember(ctx context.Context, groupID, memberID uuid.UUID) error {
	return s.storage.WithTx(ctx, func(tx store.Storage) error {
		member, err := tx.GetChitMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member.GroupID != groupID {
			return fmt.Errorf("chit member %s in group %s: %w", memberID, groupID, models.ErrNotFound)
		}
		refs, err := tx.CountChitMemberReferences(ctx, memberID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %d records", models.ErrMemberInUse, refs)
		}
		return tx.DeleteChitMember(ctx, memberID)
	})
}

type MemberPaymentInput struct {
	GroupID  uuid.UUID
	MemberID uuid.UUID
	Month    money.Month
	// Amount of zero records the group's monthly contribution.
	Amount int64
	PaidOn time.Time
}

// RecordMemberPayment marks a member's contribution for a month as paid.
func (s *Service) RecordMemberPayment(ctx context.Context, in MemberPaymentInput) (*models.ChitPayment, error) {
	if in.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", models.ErrInvalidAmount)
	}
	if !in.Month.Valid() {
		return nil, models.Invalid("month %q is not YYYY-MM", in.Month)
	}
	paidOn := in.PaidOn
	if paidOn.IsZero() {
		paidOn = s.today()
	}

	var payment *models.ChitPayment
	err := s.storage.WithTx(ctx, func(tx store.Storage) error {
		g, member, err := groupMember(ctx, tx, in.GroupID, in.MemberID)
		if err != nil {
			return err
		}
		if !g.Covers(in.Month) {
			return models.Invalid("month %s is outside %s..%s", in.Month, g.StartMonth, g.EndMonth())
		}
		switch _, err := tx.GetChitPaymentByMemberMonth(ctx, member.ID, in.Month); {
		case err == nil:
			return fmt.Errorf("%w: %s for %s", models.ErrAlreadyPaid, member.Name, in.Month)
		case !errors.Is(err, models.ErrNotFound):
			return err
		}
		amount := in.Amount
		if amount == 0 {
			amount = g.MonthlyAmount
		}
		payment = &models.ChitPayment{
			ID:        uuid.New(),
			GroupID:   g.ID,
			MemberID:  member.ID,
			Month:     in.Month,
			Amount:    amount,
			PaidOn:    paidOn,
			CreatedAt: s.now(),
		}
		if err := tx.CreateChitPayment(ctx, payment); err != nil {
			if errors.Is(err, models.ErrDuplicate) {
				return fmt.Errorf("%w: %s for %s", models.ErrAlreadyPaid, member.Name, in.Month)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("chit payment recorded",
		zap.Stringer("group_id", payment.GroupID),
		zap.Stringer("member_id", payment.MemberID),
		zap.String("month", string(payment.Month)),
		zap.Int64("amount", payment.Amount))
	return payment, nil
}

// UndoMemberPayment deletes a recorded contribution.
func (s *Service) UndoMemberPayment(ctx context.Context, paymentID uuid.UUID) error {
	if err := s.storage.DeleteChitPayment(ctx, paymentID); err != nil {
		return err
	}
	s.log.Info("chit payment undone", zap.Stringer("payment_id", paymentID))
	return nil
}

type Collection struct {
	GroupID        uuid.UUID             `json:"group_id"`
	Month          money.Month           `json:"month"`
	Expected       int64                 `json:"expected"`
	Collected      int64                 `json:"collected"`
	Payments       []*models.ChitPayment `json:"payments"`
	PendingMembers []*models.ChitMember  `json:"pending_members"`
}

// MonthlyCollection reports who has paid for a month and who has not.
func (s *Service) MonthlyCollection(ctx context.Context, groupID uuid.UUID, month money.Month) (*Collection, error) {
	if !month.Valid() {
		return nil, models.Invalid("month %q is not YYYY-MM", month)
	}
	g, err := s.storage.GetChitGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.storage.GetChitMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	payments, err := s.storage.GetChitPaymentsForMonth(ctx, groupID, month)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		GroupID:        g.ID,
		Month:          month,
		Expected:       g.TotalCollected(),
		Payments:       payments,
		PendingMembers: []*models.ChitMember{},
	}
	paid := make(map[uuid.UUID]bool, len(payments))
	for _, p := range payments {
		c.Collected += p.Amount
		paid[p.MemberID] = true
	}
	for _, m := range members {
		if !paid[m.ID] {
			c.PendingMembers = append(c.PendingMembers, m)
		}
	}
	return c, nil
}

func groupMember(ctx context.Context, tx store.Storage, groupID, memberID uuid.UUID) (*models.ChitGroup, *models.ChitMember, error) {
	g, err := tx.GetChitGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	member, err := tx.GetChitMember(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}
	if member.GroupID != g.ID {
		return nil, nil, fmt.Errorf("chit member %s in group %s: %w", memberID, groupID, models.ErrNotFound)
	}
	return g, member, nil
}
