package rpc

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lendfi/native/lending"
	"lendfi/rpc/modules"
)

// Server exposes the lending module over JSON HTTP.
type Server struct {
	lending *modules.LendingModule
	logger  *slog.Logger
}

func NewServer(module *modules.LendingModule, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{lending: module, logger: logger}
}

// Router assembles the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/lending", func(r chi.Router) {
		r.Post("/pools", s.handleCreatePool)
		r.Route("/pools/{poolID}", func(r chi.Router) {
			r.Get("/", s.handleGetPool)
			r.Post("/accrue", s.handleAccrue)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/deposit-single", s.handleDepositSingle)
			r.Post("/borrow", s.handleBorrow)
			r.Get("/yield", s.handlePendingYield)
			r.Post("/claim", s.handleClaimYield)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/deactivate", s.handleDeactivate)
		})
		r.Post("/loans/{slotID}/repay", s.handleRepay)
	})
	return r
}

type createPoolRequest struct {
	Creator    string `json:"creator"`
	TokenA     string `json:"tokenA"`
	TokenB     string `json:"tokenB"`
	TokenFee   string `json:"tokenFee"`
	FeeTierBps uint64 `json:"feeTierBps"`
	TickLower  int32  `json:"tickLower"`
	TickUpper  int32  `json:"tickUpper"`

	BaseRateBps        uint64 `json:"baseRateBps"`
	SlopeBeforeKinkBps uint64 `json:"slopeBeforeKinkBps"`
	SlopeAfterKinkBps  uint64 `json:"slopeAfterKinkBps"`
	KinkUtilisationBps uint64 `json:"kinkUtilisationBps"`
	RiskFactorIndex    uint8  `json:"riskFactorIndex"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if !s.decode(w, r, &req) {
		return
	}
	pool, merr := s.lending.CreatePool(req.Creator, lending.PoolSpec{
		TokenA:     req.TokenA,
		TokenB:     req.TokenB,
		TokenFee:   req.TokenFee,
		FeeTierBps: req.FeeTierBps,
		TickLower:  req.TickLower,
		TickUpper:  req.TickUpper,
		Model: lending.InterestModel{
			BaseRateBps:        req.BaseRateBps,
			SlopeBeforeKinkBps: req.SlopeBeforeKinkBps,
			SlopeAfterKinkBps:  req.SlopeAfterKinkBps,
			KinkUtilisationBps: req.KinkUtilisationBps,
			RiskFactorIndex:    req.RiskFactorIndex,
		},
	})
	s.respond(w, r, pool, merr)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, merr := s.lending.GetPool(chi.URLParam(r, "poolID"))
	s.respond(w, r, pool, merr)
}

func (s *Server) handleAccrue(w http.ResponseWriter, r *http.Request) {
	pool, merr := s.lending.Accrue(chi.URLParam(r, "poolID"))
	s.respond(w, r, pool, merr)
}

type depositRequest struct {
	Lender   string `json:"lender"`
	DesiredA string `json:"desiredA"`
	DesiredB string `json:"desiredB"`
	MinA     string `json:"minA,omitempty"`
	MinB     string `json:"minB,omitempty"`
	Deadline int64  `json:"deadline,omitempty"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	desiredA, ok := parseAmount(w, req.DesiredA, "desiredA")
	if !ok {
		return
	}
	desiredB, ok := parseAmount(w, req.DesiredB, "desiredB")
	if !ok {
		return
	}
	minA, ok := parseOptionalAmount(w, req.MinA, "minA")
	if !ok {
		return
	}
	minB, ok := parseOptionalAmount(w, req.MinB, "minB")
	if !ok {
		return
	}
	receipt, merr := s.lending.Deposit(req.Lender, chi.URLParam(r, "poolID"), desiredA, desiredB, minA, minB, req.Deadline)
	s.respond(w, r, receipt, merr)
}

type depositSingleRequest struct {
	Lender     string `json:"lender"`
	TokenIn    string `json:"tokenIn"`
	AmountIn   string `json:"amountIn"`
	MinSwapOut string `json:"minSwapOut,omitempty"`
	Deadline   int64  `json:"deadline,omitempty"`
}

func (s *Server) handleDepositSingle(w http.ResponseWriter, r *http.Request) {
	var req depositSingleRequest
	if !s.decode(w, r, &req) {
		return
	}
	amountIn, ok := parseAmount(w, req.AmountIn, "amountIn")
	if !ok {
		return
	}
	minSwapOut, ok := parseOptionalAmount(w, req.MinSwapOut, "minSwapOut")
	if !ok {
		return
	}
	receipt, merr := s.lending.DepositSingle(req.Lender, chi.URLParam(r, "poolID"), req.TokenIn, amountIn, minSwapOut, req.Deadline)
	s.respond(w, r, receipt, merr)
}

func (s *Server) handlePendingYield(w http.ResponseWriter, r *http.Request) {
	view, merr := s.lending.PendingYield(r.URL.Query().Get("lender"), chi.URLParam(r, "poolID"))
	s.respond(w, r, view, merr)
}

type borrowRequest struct {
	Borrower    string `json:"borrower"`
	TokenFee    string `json:"tokenFee"`
	Amount      string `json:"amount"`
	DurationIdx uint8  `json:"durationIdx"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	receipt, merr := s.lending.Borrow(req.Borrower, chi.URLParam(r, "poolID"), req.TokenFee, amount, req.DurationIdx)
	s.respond(w, r, receipt, merr)
}

type repayRequest struct {
	Borrower string `json:"borrower"`
	Amount   string `json:"amount"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	receipt, merr := s.lending.Repay(req.Borrower, chi.URLParam(r, "slotID"), amount)
	s.respond(w, r, receipt, merr)
}

type claimRequest struct {
	Lender string `json:"lender"`
}

func (s *Server) handleClaimYield(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !s.decode(w, r, &req) {
		return
	}
	receipt, merr := s.lending.ClaimYield(req.Lender, chi.URLParam(r, "poolID"))
	s.respond(w, r, receipt, merr)
}

type withdrawRequest struct {
	Lender   string `json:"lender"`
	Amount   string `json:"amount"`
	MinA     string `json:"minA,omitempty"`
	MinB     string `json:"minB,omitempty"`
	Deadline int64  `json:"deadline,omitempty"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	minA, ok := parseOptionalAmount(w, req.MinA, "minA")
	if !ok {
		return
	}
	minB, ok := parseOptionalAmount(w, req.MinB, "minB")
	if !ok {
		return
	}
	receipt, merr := s.lending.Withdraw(req.Lender, chi.URLParam(r, "poolID"), amount, minA, minB, req.Deadline)
	s.respond(w, r, receipt, merr)
}

type deactivateRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	var req deactivateRequest
	if !s.decode(w, r, &req) {
		return
	}
	pool, merr := s.lending.Deactivate(req.Caller, chi.URLParam(r, "poolID"))
	s.respond(w, r, pool, merr)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, payload interface{}, merr *modules.ModuleError) {
	if merr != nil {
		s.logger.Warn("lending request failed",
			"path", r.URL.Path,
			"status", merr.HTTPStatus,
			"error", merr.Message,
		)
		writeError(w, merr.HTTPStatus, merr.Message)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func parseAmount(w http.ResponseWriter, raw, field string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, field+": invalid amount")
		return nil, false
	}
	return amount, true
}

func parseOptionalAmount(w http.ResponseWriter, raw, field string) (*big.Int, bool) {
	if raw == "" {
		return nil, true
	}
	return parseAmount(w, raw, field)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
