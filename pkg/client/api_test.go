package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stablesell/pkg/settlement"
)

func TestFetchPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/sell/plan" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if req["wallet_id"] != "wlt_1" || req["token_amount"] != "100" {
			t.Errorf("request body = %v", req)
		}

		json.NewEncoder(w).Encode(settlement.TransactionPlan{
			Network:           settlement.NetworkSolana,
			FromAddress:       "FromAddr",
			ToAddress:         "ToAddr",
			TokenAmount:       "100",
			TokenAmountRaw:    100_000_000,
			DestAccountExists: false,
			Quote:             settlement.Quote{FiatToReceive: "540.00"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")
	plan, err := c.FetchPlan(context.Background(), "wlt_1", "100", settlement.NetworkSolana)
	if err != nil {
		t.Fatalf("FetchPlan() error = %v", err)
	}
	if plan.FromAddress != "FromAddr" || plan.TokenAmountRaw != 100_000_000 {
		t.Errorf("plan = %+v", plan)
	}
	if plan.DestAccountExists {
		t.Errorf("DestAccountExists = true, want false")
	}
	if plan.Quote.FiatToReceive != "540.00" {
		t.Errorf("quote = %+v", plan.Quote)
	}
}

func TestSubmitMapsInitialStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sell/submit" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["transaction_hash"] != "0xdeadbeef" {
			t.Errorf("transaction_hash = %v", req["transaction_hash"])
		}
		json.NewEncoder(w).Encode(map[string]string{
			"settlement_id":  "stl_9",
			"initial_status": "pending",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	id, initial, err := c.Submit(context.Background(), "wlt_1", "100", settlement.NetworkSolana, "0xdeadbeef")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id != "stl_9" {
		t.Errorf("settlement id = %q, want stl_9", id)
	}
	if initial != settlement.StatusPending {
		t.Errorf("initial status = %v, want PENDING", initial)
	}
}

func TestGetSettlement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/settlements/stl_9" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(settlement.Record{
			ID:     "stl_9",
			Status: "CRYPTO_SOLD",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	rec, err := c.GetSettlement(context.Background(), "stl_9")
	if err != nil {
		t.Fatalf("GetSettlement() error = %v", err)
	}
	if rec.ID != "stl_9" || rec.Status != "CRYPTO_SOLD" {
		t.Errorf("record = %+v", rec)
	}
}

func TestListWallets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/wallets" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"wallets": []settlement.WalletRef{
				{ID: "wlt_1", Network: settlement.NetworkSolana, Label: "Main"},
				{ID: "wlt_2", Network: settlement.NetworkEVM, Label: "Polygon"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	wallets, err := c.ListWallets(context.Background())
	if err != nil {
		t.Fatalf("ListWallets() error = %v", err)
	}
	if len(wallets) != 2 || wallets[1].Network != settlement.NetworkEVM {
		t.Errorf("wallets = %+v", wallets)
	}
}

func TestAPIErrorsCarryServiceMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "amount exceeds wallet balance"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.FetchPlan(context.Background(), "wlt_1", "100000", settlement.NetworkEVM)
	if err == nil {
		t.Fatal("FetchPlan() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "amount exceeds wallet balance") {
		t.Errorf("error %v does not carry the service message", err)
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("error %v does not carry the status code", err)
	}
}
