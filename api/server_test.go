package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantifylabs/quantify/ledger"
	"github.com/quantifylabs/quantify/market"
	"github.com/quantifylabs/quantify/oracle"
	"github.com/quantifylabs/quantify/settle"
	"github.com/quantifylabs/quantify/trading"
)

const houseID = "HOUSE"

func newTestServer(t *testing.T) (*Server, *ledger.MemoryStore, *oracle.Static) {
	t.Helper()

	store := ledger.NewMemoryStore()
	require.NoError(t, store.CreateAccount(context.Background(), ledger.Account{
		ID: houseID, Name: "House", CreatedAt: time.Now(),
	}))

	static := oracle.NewStatic()
	static.Set(market.Quote{Symbol: "TCS.NS", Price: decimal.NewFromInt(100), Time: time.Now()})

	fees := settle.DefaultFees()
	desk := trading.NewDesk(store, static, fees, houseID, nil)
	engine := settle.NewEngine(store, static, fees, houseID, nil)

	return NewServer(store, desk, engine, static, houseID, nil), store, static
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func createAccount(t *testing.T, h http.Handler, id, deposit string) {
	t.Helper()
	w := doJSON(t, h, "POST", "/api/v1/accounts",
		fmt.Sprintf(`{"id":%q,"name":%q,"deposit":%q}`, id, id, deposit))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestAccountEndpoints(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	createAccount(t, h, "alice", "1000.00")

	// Duplicate IDs conflict.
	w := doJSON(t, h, "POST", "/api/v1/accounts", `{"id":"alice"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, h, "GET", "/api/v1/accounts/alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	var acct map[string]any
	decode(t, w, &acct)
	assert.Equal(t, "alice", acct["id"])
	assert.Equal(t, "1000", acct["balance"])

	w = doJSON(t, h, "GET", "/api/v1/accounts/nobody", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, "POST", "/api/v1/accounts", `{"deposit":"-5"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDepositWithdrawEndpoints(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t)
	h := srv.Handler()
	createAccount(t, h, "alice", "100.00")

	w := doJSON(t, h, "POST", "/api/v1/accounts/alice/deposit", `{"amount":"50.00"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, "POST", "/api/v1/accounts/alice/withdraw", `{"amount":"30.00"}`)
	require.Equal(t, http.StatusOK, w.Code)

	balance, err := store.GetBalance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "120.00", balance.StringFixed(2))

	// Overdraw maps to 422.
	w = doJSON(t, h, "POST", "/api/v1/accounts/alice/withdraw", `{"amount":"9999"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Non-positive amounts are a bad request.
	w = doJSON(t, h, "POST", "/api/v1/accounts/alice/deposit", `{"amount":"0"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, "POST", "/api/v1/accounts/alice/deposit", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitMarketOrder(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t)
	h := srv.Handler()
	createAccount(t, h, "alice", "2000.00")

	w := doJSON(t, h, "POST", "/api/v1/orders",
		`{"holder_id":"alice","symbol":"TCS.NS","quantity":10,"side":"BUY","kind":"MARKET"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order map[string]any
	decode(t, w, &order)
	assert.Equal(t, "COMPLETE", order["status"])
	assert.Equal(t, "100", order["settle_price"])

	balance, err := store.GetBalance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "980.00", balance.StringFixed(2))
}

func TestSubmitConditionalOrder(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	h := srv.Handler()
	createAccount(t, h, "alice", "2000.00")

	// Trigger well below the quote so the kicked settle cycle leaves it
	// pending.
	w := doJSON(t, h, "POST", "/api/v1/orders",
		`{"holder_id":"alice","symbol":"TCS.NS","quantity":10,"side":"BUY","kind":"LIMIT_BUY","trigger_price":"90.00"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order map[string]any
	decode(t, w, &order)
	assert.Equal(t, "PENDING", order["status"])
	assert.Equal(t, "90", order["trigger_price"])

	w = doJSON(t, h, "GET", "/api/v1/accounts/alice/orders", "")
	require.Equal(t, http.StatusOK, w.Code)

	var orders []map[string]any
	decode(t, w, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, order["id"], orders[0]["id"])
}

func TestSubmitOrderFailures(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	h := srv.Handler()
	createAccount(t, h, "alice", "100.00")

	// Unaffordable market buy.
	w := doJSON(t, h, "POST", "/api/v1/orders",
		`{"holder_id":"alice","symbol":"TCS.NS","quantity":10,"side":"BUY","kind":"MARKET"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Unknown symbol.
	w = doJSON(t, h, "POST", "/api/v1/orders",
		`{"holder_id":"alice","symbol":"GHOST.NS","quantity":1,"side":"BUY","kind":"MARKET"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Unknown holder.
	w = doJSON(t, h, "POST", "/api/v1/orders",
		`{"holder_id":"nobody","symbol":"TCS.NS","quantity":1,"side":"BUY","kind":"MARKET"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed body.
	w = doJSON(t, h, "POST", "/api/v1/orders", `}{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Invalid order shape.
	w = doJSON(t, h, "POST", "/api/v1/orders",
		`{"holder_id":"alice","symbol":"TCS.NS","quantity":1,"side":"BUY","kind":"ICEBERG"}`)
	assert.GreaterOrEqual(t, w.Code, 400)
}

func TestCancelOrderEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	h := srv.Handler()
	createAccount(t, h, "alice", "2000.00")

	w := doJSON(t, h, "POST", "/api/v1/orders",
		`{"holder_id":"alice","symbol":"TCS.NS","quantity":1,"side":"BUY","kind":"LIMIT_BUY","trigger_price":"90.00"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var order map[string]any
	decode(t, w, &order)
	orderID := order["id"].(string)

	w = doJSON(t, h, "DELETE", "/api/v1/accounts/alice/orders/"+orderID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, "DELETE", "/api/v1/accounts/alice/orders/"+orderID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHoldingsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	h := srv.Handler()
	createAccount(t, h, "alice", "2000.00")

	w := doJSON(t, h, "POST", "/api/v1/orders",
		`{"holder_id":"alice","symbol":"TCS.NS","quantity":10,"side":"BUY","kind":"MARKET"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "GET", "/api/v1/accounts/alice/holdings", "")
	require.Equal(t, http.StatusOK, w.Code)

	var positions []map[string]any
	decode(t, w, &positions)
	require.Len(t, positions, 1)
	assert.Equal(t, "TCS.NS", positions[0]["symbol"])
	assert.Equal(t, float64(10), positions[0]["quantity"])
}

func TestQuoteEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, static := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, "GET", "/api/v1/quotes/TCS.NS", "")
	require.Equal(t, http.StatusOK, w.Code)

	var quote map[string]any
	decode(t, w, &quote)
	assert.Equal(t, "TCS.NS", quote["symbol"])
	assert.Equal(t, "100", quote["price"])

	static.Delete("TCS.NS")
	w = doJSON(t, h, "GET", "/api/v1/quotes/TCS.NS", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLeaderboardExcludesHouse(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t)
	h := srv.Handler()

	createAccount(t, h, "alice", "300.00")
	createAccount(t, h, "bob", "500.00")

	// Give the house the top balance; it must still not appear.
	require.NoError(t, store.Deposit(context.Background(), houseID, decimal.NewFromInt(10000)))

	w := doJSON(t, h, "GET", "/api/v1/leaderboard?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var ranked []map[string]any
	decode(t, w, &ranked)
	require.Len(t, ranked, 2)
	assert.Equal(t, "bob", ranked[0]["id"])
	assert.Equal(t, "alice", ranked[1]["id"])

	w = doJSON(t, h, "GET", "/api/v1/leaderboard?limit=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettleEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, static := newTestServer(t)
	h := srv.Handler()
	createAccount(t, h, "alice", "2000.00")

	w := doJSON(t, h, "POST", "/api/v1/orders",
		`{"holder_id":"alice","symbol":"TCS.NS","quantity":10,"side":"BUY","kind":"LIMIT_BUY","trigger_price":"90.00"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// Price drops through the trigger.
	static.Set(market.Quote{Symbol: "TCS.NS", Price: decimal.NewFromInt(89), Time: time.Now()})

	// The settle endpoint may race the kicked background cycle; between
	// the two the order must end up COMPLETE exactly once.
	w = doJSON(t, h, "POST", "/api/v1/settle", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Eventually(t, func() bool {
		w := doJSON(t, h, "GET", "/api/v1/accounts/alice", "")
		var acct map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &acct); err != nil {
			return false
		}
		// 2000 - 890 - 20
		return acct["balance"] == "1090"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	w := doJSON(t, srv.Handler(), "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest("OPTIONS", "/api/v1/leaderboard", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
