package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredLedger/pkg/chit"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/money"
	"github.com/shopspring/decimal"
)

func (s *Server) createChitGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string          `json:"name"`
		ChitAmount        int64           `json:"chit_amount"`
		MemberCount       int             `json:"member_count"`
		DueDay            int             `json:"due_day"`
		DurationMonths    int             `json:"duration_months"`
		StartMonth        money.Month     `json:"start_month"`
		CommissionPercent decimal.Decimal `json:"commission_percent"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.chits.CreateGroup(r.Context(), chit.CreateGroupInput{
		Name:              req.Name,
		ChitAmount:        req.ChitAmount,
		MemberCount:       req.MemberCount,
		DueDay:            req.DueDay,
		DurationMonths:    req.DurationMonths,
		StartMonth:        req.StartMonth,
		CommissionPercent: req.CommissionPercent,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, g)
}

func (s *Server) listChitGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := s.chits.ListGroups(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, orEmpty(groups))
}

func (s *Server) getChitGroupHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	g, err := s.chits.GetGroup(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, g)
}

func (s *Server) addChitMemberHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Name         string `json:"name"`
		Phone        string `json:"phone"`
		MemberNumber *int   `json:"member_number"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.chits.AddMember(r.Context(), chit.AddMemberInput{
		GroupID:      groupID,
		Name:         req.Name,
		Phone:        req.Phone,
		MemberNumber: req.MemberNumber,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, m)
}

func (s *Server) listChitMembersHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	members, err := s.chits.ListMembers(r.Context(), groupID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, orEmpty(members))
}

func (s *Server) deleteChitMemberHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	memberID, ok := s.pathID(w, r, "memberId")
	if !ok {
		return
	}
	if err := s.chits.DeleteMember(r.Context(), groupID, memberID); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordChitPaymentHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		MemberID uuid.UUID   `json:"member_id"`
		Month    money.Month `json:"month"`
		Amount   int64       `json:"amount"`
		PaidOn   string      `json:"paid_on"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	paidOn, err := parseDate(req.PaidOn)
	if err != nil {
		s.respondError(w, err)
		return
	}
	p, err := s.chits.RecordMemberPayment(r.Context(), chit.MemberPaymentInput{
		GroupID:  groupID,
		MemberID: req.MemberID,
		Month:    req.Month,
		Amount:   req.Amount,
		PaidOn:   paidOn,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) undoChitPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.chits.UndoMemberPayment(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pathMonth(w http.ResponseWriter, r *http.Request) (money.Month, bool) {
	m, err := money.ParseMonth(mux.Vars(r)["month"])
	if err != nil {
		s.respondError(w, models.Invalid("%v", err))
		return "", false
	}
	return m, true
}

func (s *Server) monthlyCollectionHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	month, ok := s.pathMonth(w, r)
	if !ok {
		return
	}
	c, err := s.chits.MonthlyCollection(r.Context(), groupID, month)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) recordAuctionHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	month, ok := s.pathMonth(w, r)
	if !ok {
		return
	}
	var req struct {
		SlotNumber       int       `json:"slot_number"`
		WinnerMemberID   uuid.UUID `json:"winner_member_id"`
		BidAmount        int64     `json:"bid_amount"`
		Commission       *int64    `json:"commission"`
		AuctionDate      string    `json:"auction_date"`
		DisbursementDate string    `json:"disbursement_date"`
		PhotoRef         string    `json:"photo_ref"`
		SignatureRef     string    `json:"signature_ref"`
		Notes            string    `json:"notes"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	auctionDate, err := parseDate(req.AuctionDate)
	if err != nil {
		s.respondError(w, err)
		return
	}
	disbursed, err := parseDate(req.DisbursementDate)
	if err != nil {
		s.respondError(w, err)
		return
	}
	var disbursement *time.Time
	if !disbursed.IsZero() {
		disbursement = &disbursed
	}

	a, err := s.chits.RecordAuction(r.Context(), chit.AuctionInput{
		GroupID:          groupID,
		Month:            month,
		SlotNumber:       req.SlotNumber,
		WinnerMemberID:   req.WinnerMemberID,
		BidAmount:        req.BidAmount,
		Commission:       req.Commission,
		AuctionDate:      auctionDate,
		DisbursementDate: disbursement,
		PhotoRef:         req.PhotoRef,
		SignatureRef:     req.SignatureRef,
		Notes:            req.Notes,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, a)
}

func (s *Server) listAuctionsHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	auctions, err := s.chits.ListAuctions(r.Context(), groupID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, orEmpty(auctions))
}

func (s *Server) deleteAuctionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.chits.DeleteAuction(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) slotsHandler(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	slots, err := s.chits.SlotsDashboard(r.Context(), groupID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, slots)
}
