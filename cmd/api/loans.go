package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredLedger/pkg/ledger"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/money"
	"github.com/shopspring/decimal"
)

type customerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.ledger.CreateCustomer(r.Context(), req.Name, req.Phone)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, c)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := s.ledger.ListCustomers(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, orEmpty(customers))
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := s.ledger.GetCustomer(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req customerRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.ledger.UpdateCustomer(r.Context(), id, req.Name, req.Phone)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.ledger.DeleteCustomer(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID      uuid.UUID        `json:"customer_id"`
		Principal       int64            `json:"principal"`
		PeriodUnit      money.PeriodUnit `json:"period_unit"`
		Installment     int64            `json:"installment"`
		StartDate       string           `json:"start_date"`
		Label           string           `json:"label"`
		InterestPercent decimal.Decimal  `json:"interest_percent"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		s.respondError(w, err)
		return
	}

	loan, err := s.ledger.CreateLoan(r.Context(), ledger.CreateLoanInput{
		CustomerID:      req.CustomerID,
		Principal:       req.Principal,
		PeriodUnit:      req.PeriodUnit,
		Installment:     req.Installment,
		StartDate:       start,
		Label:           req.Label,
		InterestPercent: req.InterestPercent,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, ledger.Summarize(loan))
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ledger.Summarize(loan))
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	summaries := make([]ledger.Summary, 0, len(loans))
	for _, loan := range loans {
		summaries = append(summaries, ledger.Summarize(loan))
	}
	s.respondJSON(w, http.StatusOK, summaries)
}

// asOf reads the as_of query parameter, defaulting to the server clock.
func (s *Server) asOf(r *http.Request) (time.Time, error) {
	t, err := parseDate(r.URL.Query().Get("as_of"))
	if err != nil || !t.IsZero() {
		return t, err
	}
	return s.clock.Now().UTC(), nil
}

func (s *Server) listOverdueHandler(w http.ResponseWriter, r *http.Request) {
	at, err := s.asOf(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	items, err := s.ledger.OverdueLoans(r.Context(), at)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, orEmpty(items))
}

func (s *Server) getOverdueHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	at, err := s.asOf(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	o, err := s.ledger.Overdue(r.Context(), id, at)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, o)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	payments, err := s.ledger.ListPayments(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, orEmpty(payments))
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Amount        int64              `json:"amount"`
		OfflineAmount int64              `json:"offline_amount"`
		OnlineAmount  int64              `json:"online_amount"`
		PaymentDate   string             `json:"payment_date"`
		Mode          models.PaymentMode `json:"mode"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.PaymentDate)
	if err != nil {
		s.respondError(w, err)
		return
	}
	// A body without a split books the whole amount to the mode's channel.
	if req.OfflineAmount == 0 && req.OnlineAmount == 0 {
		switch req.Mode {
		case models.PaymentModeUPI, models.PaymentModeBankTransfer:
			req.OnlineAmount = req.Amount
		default:
			req.OfflineAmount = req.Amount
		}
	}

	payment, err := s.ledger.ApplyPayment(r.Context(), ledger.PaymentInput{
		LoanID:        loanID,
		Amount:        req.Amount,
		OfflineAmount: req.OfflineAmount,
		OnlineAmount:  req.OnlineAmount,
		PaymentDate:   date,
		Mode:          req.Mode,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, payment)
}

func (s *Server) deletePaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.ledger.DeletePayment(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) topUpHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	loan, err := s.ledger.TopUp(r.Context(), id, req.Amount)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ledger.Summarize(loan))
}

func (s *Server) markDefaultedHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	loan, err := s.ledger.MarkDefaulted(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ledger.Summarize(loan))
}

func (s *Server) archiveLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Override bool `json:"override"`
	}
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	archived, err := s.ledger.Archive(r.Context(), id, req.Override)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, archived)
}

func (s *Server) listArchivedHandler(w http.ResponseWriter, r *http.Request) {
	archived, err := s.ledger.ListArchived(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, orEmpty(archived))
}

func (s *Server) getArchivedHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	archived, err := s.ledger.GetArchivedLoan(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, archived)
}

func (s *Server) restoreLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	loan, err := s.ledger.Restore(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ledger.Summarize(loan))
}

func (s *Server) deleteArchivedHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.ledger.DeletePermanently(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// orEmpty keeps empty lists encoding as [] rather than null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
