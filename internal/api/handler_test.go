package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"dawapos/m/internal/migrations"
)

type testServer struct {
	t      *testing.T
	server *httptest.Server
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	migrations.Run(db)

	h := New(db, "test_secret")
	server := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	ts := &testServer{t: t, server: server}
	resp := ts.do(http.MethodPost, "/auth/register", map[string]any{
		"username": "asha", "email": "asha@example.com", "password": "secret", "role": "owner",
	}, http.StatusCreated)
	ts.token = resp["token"].(string)
	return ts
}

func (ts *testServer) do(method, path string, body any, wantStatus int) map[string]any {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	require.Equal(ts.t, wantStatus, resp.StatusCode, "%s %s", method, path)

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil
	}
	return decoded
}

func (ts *testServer) createItem(name string, sourcePrice float64, opening int64) int64 {
	ts.t.Helper()
	resp := ts.do(http.MethodPost, "/catalog", map[string]any{
		"name":              name,
		"category":          "Analgesic",
		"reorder_level":     5,
		"cost_price":        5,
		"source_unit":       "BOX",
		"source_unit_price": sourcePrice,
		"opening_stock":     opening,
		"units": []map[string]any{
			{"type": "SINGLE", "base_quantity": 1},
			{"type": "STRIP", "base_quantity": 10},
			{"type": "BOX", "base_quantity": 100},
		},
	}, http.StatusCreated)
	item := resp["item"].(map[string]any)
	return int64(item["id"].(float64))
}

func TestCreateItemDerivesUnitPrices(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(http.MethodPost, "/catalog", map[string]any{
		"name":              "Panadol",
		"source_unit":       "BOX",
		"source_unit_price": 1000,
		"units": []map[string]any{
			{"type": "SINGLE", "base_quantity": 1},
			{"type": "STRIP", "base_quantity": 10},
			{"type": "BOX", "base_quantity": 100},
		},
	}, http.StatusCreated)

	assert.Equal(t, 10.0, resp["price_per_base_unit"])
	units := resp["item"].(map[string]any)["units"].([]any)
	require.Len(t, units, 3)
	assert.Equal(t, 10.0, units[0].(map[string]any)["price"])
	assert.Equal(t, 100.0, units[1].(map[string]any)["price"])
	assert.Equal(t, 1000.0, units[2].(map[string]any)["price"])
}

func TestCartCheckoutAndCreditFlow(t *testing.T) {
	ts := newTestServer(t)
	itemID := ts.createItem("Panadol", 1000, 200)

	// Build a cart: 4 strips (400) + 10 singles (100).
	ts.do(http.MethodPost, "/cart/lines", map[string]any{
		"item_id": itemID, "unit_type": "STRIP", "quantity": 4,
	}, http.StatusCreated)
	ts.do(http.MethodPost, "/cart/lines", map[string]any{
		"item_id": itemID, "unit_type": "SINGLE", "quantity": 10,
	}, http.StatusCreated)
	ts.do(http.MethodPut, "/cart/customer", map[string]any{
		"customer_name": "Juma", "customer_phone": "0700111222",
	}, http.StatusOK)

	cartResp := ts.do(http.MethodGet, "/cart?discount=50", nil, http.StatusOK)
	totals := cartResp["totals"].(map[string]any)
	assert.Equal(t, 500.0, totals["subtotal"])
	assert.Equal(t, 450.0, totals["total"])

	// Checkout on credit opens a PENDING account for the full total.
	checkoutResp := ts.do(http.MethodPost, "/checkout", map[string]any{
		"payment_method": "credit", "discount": 50,
	}, http.StatusCreated)
	sale := checkoutResp["sale"].(map[string]any)
	assert.Equal(t, 450.0, sale["total"])

	accounts := ts.doList(http.MethodGet, "/credit", http.StatusOK)
	require.Len(t, accounts, 1)
	acc := accounts[0].(map[string]any)
	assert.Equal(t, "PENDING", acc["status"])
	assert.Equal(t, 450.0, acc["balance_amount"])
	accID := int64(acc["id"].(float64))

	// Stock deducted: 200 - (4*10 + 10) = 150.
	itemResp := ts.do(http.MethodGet, fmt.Sprintf("/catalog/%d", itemID), nil, http.StatusOK)
	assert.Equal(t, 150.0, itemResp["item"].(map[string]any)["on_hand"])

	// Partial payments until settled, then rejection.
	payResp := ts.do(http.MethodPost, fmt.Sprintf("/credit/%d/payments", accID), map[string]any{
		"amount": 300, "method": "cash",
	}, http.StatusCreated)
	assert.Equal(t, "PARTIAL", payResp["status"])
	assert.Equal(t, 150.0, payResp["balance_amount"])

	payResp = ts.do(http.MethodPost, fmt.Sprintf("/credit/%d/payments", accID), map[string]any{
		"amount": 150, "method": "mpesa",
	}, http.StatusCreated)
	assert.Equal(t, "PAID", payResp["status"])

	ts.do(http.MethodPost, fmt.Sprintf("/credit/%d/payments", accID), map[string]any{
		"amount": 1, "method": "cash",
	}, http.StatusConflict)
}

func TestPrescriptionToCartFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.createItem("Panadol", 1000, 20)

	prescResp := ts.do(http.MethodPost, "/prescriptions", map[string]any{
		"patient_name":  "Juma",
		"patient_phone": "0700111222",
		"items": []map[string]any{
			{"medicine_text": "Panadol", "dosage_text": "2 tablets", "frequency_text": "Three times daily", "duration_text": "5 days"},
			{"medicine_text": "Ventolin", "dosage_text": "1", "frequency_text": "bd", "duration_text": "5 days"},
		},
	}, http.StatusCreated)
	prescID := int64(prescResp["id"].(float64))

	resolveResp := ts.do(http.MethodPost, fmt.Sprintf("/cart/prescription/%d", prescID), nil, http.StatusOK)
	assert.Equal(t, 1.0, resolveResp["unmatched"])
	lines := resolveResp["lines"].([]any)
	require.Len(t, lines, 1)
	line := lines[0].(map[string]any)
	// 2*3*5 = 30 requested, capped to 20 on hand with shortfall 10.
	assert.Equal(t, 30.0, line["requested"])
	assert.Equal(t, 20.0, line["quantity"])
	assert.Equal(t, 10.0, line["shortfall"])

	// Checkout dispenses the prescription.
	ts.do(http.MethodPost, "/checkout", map[string]any{"payment_method": "cash"}, http.StatusCreated)
	pending := ts.doList(http.MethodGet, "/prescriptions/pending", http.StatusOK)
	assert.Empty(t, pending)
}

func TestCheckoutEmptyCart(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodPost, "/checkout", map[string]any{"payment_method": "cash"}, http.StatusBadRequest)
}

func TestAddLineOutOfStockItem(t *testing.T) {
	ts := newTestServer(t)
	itemID := ts.createItem("Panadol", 1000, 0)
	ts.do(http.MethodPost, "/cart/lines", map[string]any{
		"item_id": itemID, "unit_type": "SINGLE", "quantity": 1,
	}, http.StatusConflict)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	ts.do(http.MethodGet, "/cart", nil, http.StatusUnauthorized)
}

// doList is do for endpoints returning a JSON array.
func (ts *testServer) doList(method, path string, wantStatus int) []any {
	ts.t.Helper()
	req, err := http.NewRequest(method, ts.server.URL+path, nil)
	require.NoError(ts.t, err)
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	require.Equal(ts.t, wantStatus, resp.StatusCode, "%s %s", method, path)

	var decoded []any
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}
