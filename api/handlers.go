package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantifylabs/quantify/ledger"
	"github.com/quantifylabs/quantify/oracle"
	"github.com/quantifylabs/quantify/pkg/id"
	"github.com/quantifylabs/quantify/trading"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrExists), errors.Is(err, ledger.ErrNotPending):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, oracle.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// --- accounts ---

type createAccountRequest struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Deposit decimal.Decimal `json:"deposit"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}
	if req.ID == "" {
		req.ID = id.New()
	}
	if req.Deposit.Sign() < 0 {
		s.badRequest(w, "deposit must not be negative")
		return
	}

	acct := ledger.Account{
		ID:        req.ID,
		Name:      req.Name,
		Balance:   req.Deposit,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateAccount(r.Context(), acct); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, accountView(acct))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.store.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountView(acct))
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if s.handleBalanceChange(w, r, s.store.Deposit) {
		// A topped-up balance can make a deferred BUY eligible.
		s.kickSettle()
	}
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleBalanceChange(w, r, s.store.Withdraw)
}

// handleBalanceChange reports whether the mutation succeeded.
func (s *Server) handleBalanceChange(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, id string, amount decimal.Decimal) error) bool {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return false
	}
	if req.Amount.Sign() <= 0 {
		s.badRequest(w, "amount must be positive")
		return false
	}

	holderID := mux.Vars(r)["id"]
	if err := apply(r.Context(), holderID, req.Amount); err != nil {
		s.writeError(w, err)
		return false
	}
	acct, err := s.store.GetAccount(r.Context(), holderID)
	if err != nil {
		s.writeError(w, err)
		return false
	}
	s.writeJSON(w, http.StatusOK, accountView(acct))
	return true
}

// --- orders ---

type submitOrderRequest struct {
	HolderID     string          `json:"holder_id"`
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	Side         string          `json:"side"`
	Kind         string          `json:"kind"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid JSON body")
		return
	}

	order, err := s.desk.PlaceOrder(r.Context(), trading.OrderRequest{
		HolderID:     req.HolderID,
		Symbol:       req.Symbol,
		Quantity:     req.Quantity,
		Side:         ledger.Side(req.Side),
		Kind:         ledger.Kind(req.Kind),
		TriggerPrice: req.TriggerPrice,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// New conditional orders may already be eligible.
	if order.Conditional() {
		s.kickSettle()
	}
	s.writeJSON(w, http.StatusCreated, orderView(order))
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListOrdersByHolder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView(o))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.desk.CancelOrder(r.Context(), vars["id"], vars["orderID"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleGetHoldings(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.Holdings(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		views = append(views, map[string]any{
			"symbol":   p.Symbol,
			"quantity": p.Quantity,
			"invested": p.Invested,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

// --- market ---

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.oracle.GetQuote(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"symbol":      q.Symbol,
		"price":       q.Price,
		"observed_at": q.Time,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	// Fetch one extra so dropping the house account keeps the limit.
	ranked, err := s.store.Leaderboard(r.Context(), limit+1)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(ranked))
	for _, a := range ranked {
		if a.ID == s.houseID {
			continue
		}
		if len(views) == limit {
			break
		}
		views = append(views, accountView(a))
	}
	s.writeJSON(w, http.StatusOK, views)
}

// --- settlement ---

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	fills, err := s.engine.SettlePendingOrders(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"settled": len(fills),
		"fills":   fills,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- views ---

func accountView(a ledger.Account) map[string]any {
	return map[string]any{
		"id":      a.ID,
		"name":    a.Name,
		"balance": a.Balance,
	}
}

func orderView(o ledger.Order) map[string]any {
	v := map[string]any{
		"id":       o.ID,
		"holder":   o.HolderID,
		"symbol":   o.Symbol,
		"quantity": o.Quantity,
		"side":     o.Side,
		"kind":     o.Kind,
		"status":   o.Status,
	}
	if o.Conditional() {
		v["trigger_price"] = o.TriggerPrice
	}
	if !o.RefPrice.IsZero() {
		v["ref_price"] = o.RefPrice
	}
	if o.Status == ledger.StatusComplete {
		v["settle_price"] = o.SettlePrice
		v["settled_at"] = o.SettledAt
	}
	return v
}
