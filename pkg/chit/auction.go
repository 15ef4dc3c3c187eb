package chit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/money"
	"github.com/mcclellann/fredLedger/pkg/store"
	"go.uber.org/zap"
)

// Settlement is the split of one month's pool.
type Settlement struct {
	TotalCollected int64
	Commission     int64
	AmountToWinner int64
	CarryForward   int64
}

// Settle pays the winner what is left of total after the bid discount and
// the organiser's commission, never less than zero. The bid stays in the
// pool as carry-forward.
func Settle(total, bid, commission int64) Settlement {
	return Settlement{
		TotalCollected: total,
		Commission:     commission,
		AmountToWinner: max(0, total-bid-commission),
		CarryForward:   bid,
	}
}

type AuctionInput struct {
	GroupID        uuid.UUID
	Month          money.Month
	SlotNumber     int
	WinnerMemberID uuid.UUID
	BidAmount      int64
	// Commission of nil charges the group's commission percent of the pool.
	Commission       *int64
	AuctionDate      time.Time
	DisbursementDate *time.Time
	PhotoRef         string
	SignatureRef     string
	Notes            string
}

func (in AuctionInput) validate() error {
	if in.WinnerMemberID == uuid.Nil {
		return models.ErrMissingWinner
	}
	if !in.Month.Valid() {
		return models.Invalid("month %q is not YYYY-MM", in.Month)
	}
	if in.BidAmount < 0 {
		return fmt.Errorf("%w: bid must not be negative", models.ErrInvalidAmount)
	}
	if in.Commission != nil && *in.Commission < 0 {
		return fmt.Errorf("%w: commission must not be negative", models.ErrInvalidAmount)
	}
	return nil
}

// RecordAuction settles the auction for a month. Recording a month that
// already has an auction replaces it.
func (s *Service) RecordAuction(ctx context.Context, in AuctionInput) (*models.ChitAuction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	auctionDate := in.AuctionDate
	if auctionDate.IsZero() {
		auctionDate = s.today()
	}

	var auction *models.ChitAuction
	err := s.storage.WithTx(ctx, func(tx store.Storage) error {
		g, winner, err := groupMember(ctx, tx, in.GroupID, in.WinnerMemberID)
		if err != nil {
			return err
		}
		if !g.Covers(in.Month) {
			return models.Invalid("month %s is outside %s..%s", in.Month, g.StartMonth, g.EndMonth())
		}
		if in.SlotNumber < 1 || in.SlotNumber > g.MemberCount {
			return fmt.Errorf("%w: slot %d is outside 1..%d", models.ErrInvalidSlot, in.SlotNumber, g.MemberCount)
		}

		existing, err := tx.GetChitAuctionByMonth(ctx, g.ID, in.Month)
		switch {
		case errors.Is(err, models.ErrNotFound):
			existing = nil
		case err != nil:
			return err
		}
		auctions, err := tx.GetChitAuctions(ctx, g.ID)
		if err != nil {
			return err
		}
		for _, a := range auctions {
			if a.SlotNumber == in.SlotNumber && a.Month != in.Month {
				return fmt.Errorf("%w: slot %d already went to %s in %s", models.ErrInvalidSlot, a.SlotNumber, a.WinnerName, a.Month)
			}
		}

		total := g.TotalCollected()
		commission := money.PercentOf(total, g.CommissionPercent)
		if in.Commission != nil {
			commission = *in.Commission
		}
		settled := Settle(total, in.BidAmount, commission)

		now := s.now()
		auction = &models.ChitAuction{
			ID:               uuid.New(),
			GroupID:          g.ID,
			Month:            in.Month,
			SlotNumber:       in.SlotNumber,
			WinnerMemberID:   winner.ID,
			WinnerName:       winner.Name,
			BidAmount:        in.BidAmount,
			Commission:       settled.Commission,
			TotalCollected:   settled.TotalCollected,
			AmountToWinner:   settled.AmountToWinner,
			CarryForward:     settled.CarryForward,
			AuctionDate:      auctionDate,
			DisbursementDate: in.DisbursementDate,
			PhotoRef:         strings.TrimSpace(in.PhotoRef),
			SignatureRef:     strings.TrimSpace(in.SignatureRef),
			Notes:            strings.TrimSpace(in.Notes),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if existing != nil {
			auction.ID = existing.ID
			auction.CreatedAt = existing.CreatedAt
		}
		return tx.SaveChitAuction(ctx, auction)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("chit auction recorded",
		zap.Stringer("group_id", auction.GroupID),
		zap.String("month", string(auction.Month)),
		zap.Int("slot", auction.SlotNumber),
		zap.Int64("bid", auction.BidAmount),
		zap.Int64("amount_to_winner", auction.AmountToWinner))
	return auction, nil
}

// DeleteAuction removes a mistakenly recorded auction, freeing its slot.
func (s *Service) DeleteAuction(ctx context.Context, auctionID uuid.UUID) error {
	if err := s.storage.DeleteChitAuction(ctx, auctionID); err != nil {
		return err
	}
	s.log.Info("chit auction deleted", zap.Stringer("auction_id", auctionID))
	return nil
}

// ListAuctions returns the group's auctions ordered by slot.
func (s *Service) ListAuctions(ctx context.Context, groupID uuid.UUID) ([]*models.ChitAuction, error) {
	if _, err := s.storage.GetChitGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.storage.GetChitAuctions(ctx, groupID)
}

type SlotStatus struct {
	SlotNumber int                 `json:"slot_number"`
	Completed  bool                `json:"completed"`
	Auction    *models.ChitAuction `json:"auction,omitempty"`
}

// SlotsDashboard lists every slot of the group with its auction, if any.
func (s *Service) SlotsDashboard(ctx context.Context, groupID uuid.UUID) ([]SlotStatus, error) {
	g, err := s.storage.GetChitGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	auctions, err := s.storage.GetChitAuctions(ctx, groupID)
	if err != nil {
		return nil, err
	}
	bySlot := make(map[int]*models.ChitAuction, len(auctions))
	for _, a := range auctions {
		bySlot[a.SlotNumber] = a
	}

	slots := make([]SlotStatus, g.MemberCount)
	for i := range slots {
		n := i + 1
		slots[i] = SlotStatus{SlotNumber: n, Auction: bySlot[n], Completed: bySlot[n] != nil}
	}
	return slots, nil
}
