package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredLedger/pkg/chit"
	"github.com/mcclellann/fredLedger/pkg/clock"
	"github.com/mcclellann/fredLedger/pkg/ledger"
	"github.com/mcclellann/fredLedger/pkg/models"
	"github.com/mcclellann/fredLedger/pkg/store"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Server holds the ledger and chit services behind the HTTP API.
type Server struct {
	ledger  *ledger.Ledger
	chits   *chit.Service
	storage store.Storage // Keep a reference to the storage to close it
	clock   clock.Clock
	log     *zap.Logger
}

func NewServer(s store.Storage, l *ledger.Ledger, c *chit.Service, clk clock.Clock, log *zap.Logger) *Server {
	return &Server{
		ledger:  l,
		chits:   c,
		storage: s,
		clock:   clk,
		log:     log,
	}
}

// Router registers every route. Literal paths are registered before the
// {id} patterns they would otherwise collide with.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	router.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	router.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")
	router.HandleFunc("/customers/{id}", s.updateCustomerHandler).Methods("PUT")
	router.HandleFunc("/customers/{id}", s.deleteCustomerHandler).Methods("DELETE")

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/overdue", s.listOverdueHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/overdue", s.getOverdueHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/topup", s.topUpHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/default", s.markDefaultedHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/archive", s.archiveLoanHandler).Methods("POST")
	router.HandleFunc("/payments/{id}", s.deletePaymentHandler).Methods("DELETE")

	router.HandleFunc("/archived-loans", s.listArchivedHandler).Methods("GET")
	router.HandleFunc("/archived-loans/{id}", s.getArchivedHandler).Methods("GET")
	router.HandleFunc("/archived-loans/{id}", s.deleteArchivedHandler).Methods("DELETE")
	router.HandleFunc("/archived-loans/{id}/restore", s.restoreLoanHandler).Methods("POST")

	router.HandleFunc("/chits", s.listChitGroupsHandler).Methods("GET")
	router.HandleFunc("/chits", s.createChitGroupHandler).Methods("POST")
	router.HandleFunc("/chits/{id}", s.getChitGroupHandler).Methods("GET")
	router.HandleFunc("/chits/{id}/members", s.listChitMembersHandler).Methods("GET")
	router.HandleFunc("/chits/{id}/members", s.addChitMemberHandler).Methods("POST")
	router.HandleFunc("/chits/{id}/members/{memberId}", s.deleteChitMemberHandler).Methods("DELETE")
	router.HandleFunc("/chits/{id}/payments", s.recordChitPaymentHandler).Methods("POST")
	router.HandleFunc("/chits/{id}/collections/{month}", s.monthlyCollectionHandler).Methods("GET")
	router.HandleFunc("/chits/{id}/auctions", s.listAuctionsHandler).Methods("GET")
	router.HandleFunc("/chits/{id}/auctions/{month}", s.recordAuctionHandler).Methods("PUT")
	router.HandleFunc("/chits/{id}/slots", s.slotsHandler).Methods("GET")
	router.HandleFunc("/chit-payments/{id}", s.undoChitPaymentHandler).Methods("DELETE")
	router.HandleFunc("/chit-auctions/{id}", s.deleteAuctionHandler).Methods("DELETE")

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrExceedsBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrMissingWinner):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyPaid),
		errors.Is(err, models.ErrInvalidSlot),
		errors.Is(err, models.ErrMemberInUse),
		errors.Is(err, models.ErrIllegalStateTransition),
		errors.Is(err, models.ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	s.respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, models.Invalid("malformed request body: %v", err))
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		s.respondError(w, models.Invalid("invalid %s %q", name, mux.Vars(r)[name]))
		return uuid.Nil, false
	}
	return id, true
}

// parseDate reads a YYYY-MM-DD date. An empty string is the zero time.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, models.Invalid("date %q is not YYYY-MM-DD", value)
	}
	return t, nil
}
