// Package api is the browser-facing HTTP surface of the simulator. It
// exposes accounts, quotes, and orders, and drives the settlement
// engine the way the old UI did: on user activity plus a periodic tick.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/quantifylabs/quantify/ledger"
	"github.com/quantifylabs/quantify/oracle"
	"github.com/quantifylabs/quantify/settle"
	"github.com/quantifylabs/quantify/trading"
)

// Server wires the store, desk, engine, and oracle behind REST routes.
type Server struct {
	store   ledger.Store
	desk    *trading.Desk
	engine  *settle.Engine
	oracle  oracle.Oracle
	houseID string
	router  *mux.Router
	log     *zap.Logger
}

func NewServer(store ledger.Store, desk *trading.Desk, engine *settle.Engine, o oracle.Oracle, houseID string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		store:   store,
		desk:    desk,
		engine:  engine,
		oracle:  o,
		houseID: houseID,
		router:  mux.NewRouter(),
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Account endpoints
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	api.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/{id}/withdraw", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/accounts/{id}/holdings", s.handleGetHoldings).Methods("GET")
	api.HandleFunc("/accounts/{id}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{id}/orders/{orderID}", s.handleCancelOrder).Methods("DELETE")

	// Market endpoints
	api.HandleFunc("/quotes/{symbol}", s.handleGetQuote).Methods("GET")
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")

	// Order submission and settlement
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/settle", s.handleSettle).Methods("POST")

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS for the browser client.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Run serves HTTP on addr until ctx is cancelled. When settleInterval
// is positive a background ticker invokes the settlement engine; user
// activity (order placement) triggers extra cycles in between.
func (s *Server) Run(ctx context.Context, addr string, settleInterval time.Duration) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	if settleInterval > 0 {
		go s.settleLoop(ctx, settleInterval)
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server starting", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) settleLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.engine.SettlePendingOrders(ctx); err != nil {
				s.log.Warn("settle cycle failed", zap.Error(err))
			}
		}
	}
}

// kickSettle runs one settlement cycle in the background, used after
// user activity that may have made orders eligible.
func (s *Server) kickSettle() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.engine.SettlePendingOrders(ctx); err != nil {
			s.log.Warn("settle cycle failed", zap.Error(err))
		}
	}()
}
