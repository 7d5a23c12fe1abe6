// Package client speaks to the external settlement service: quote/plan
// issuance, deposit submission, settlement status, and the read-only wallet
// registry. The service is authoritative for addresses and amounts; the
// chain adapters only re-validate address syntax.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stablesell/pkg/settlement"
)

const defaultTimeout = 15 * time.Second

// Client is an HTTP client for the settlement service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the service at baseURL, authenticating with the
// given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// planRequest is the quote/plan request body.
type planRequest struct {
	WalletID    string             `json:"wallet_id"`
	TokenAmount string             `json:"token_amount"`
	Network     settlement.Network `json:"network"`
}

// submitRequest reports a broadcast receipt.
type submitRequest struct {
	WalletID        string             `json:"wallet_id"`
	TokenAmount     string             `json:"token_amount"`
	Network         settlement.Network `json:"network"`
	TransactionHash string             `json:"transaction_hash"`
}

type submitResponse struct {
	SettlementID  string `json:"settlement_id"`
	InitialStatus string `json:"initial_status"`
}

type walletsResponse struct {
	Wallets []settlement.WalletRef `json:"wallets"`
}

// FetchPlan requests a fresh transaction plan for one sell attempt. Plans
// are single-use; callers must re-fetch whenever the amount or wallet
// changes.
func (c *Client) FetchPlan(ctx context.Context, walletID, tokenAmount string, network settlement.Network) (*settlement.TransactionPlan, error) {
	var plan settlement.TransactionPlan
	err := c.do(ctx, http.MethodPost, "/v1/sell/plan", planRequest{
		WalletID:    walletID,
		TokenAmount: tokenAmount,
		Network:     network,
	}, &plan)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plan: %w", err)
	}
	return &plan, nil
}

// Submit reports the broadcast transaction hash and returns the settlement
// id with its initial canonical status (PENDING on a fresh submission).
func (c *Client) Submit(ctx context.Context, walletID, tokenAmount string, network settlement.Network, txHash string) (string, settlement.Status, error) {
	var resp submitResponse
	err := c.do(ctx, http.MethodPost, "/v1/sell/submit", submitRequest{
		WalletID:        walletID,
		TokenAmount:     tokenAmount,
		Network:         network,
		TransactionHash: txHash,
	}, &resp)
	if err != nil {
		return "", settlement.StatusPending, fmt.Errorf("failed to submit settlement: %w", err)
	}

	initial, ok := settlement.MapRawStatus(resp.InitialStatus)
	if !ok {
		initial = settlement.StatusPending
	}
	return resp.SettlementID, initial, nil
}

// GetSettlement fetches the current server-side record. Implements
// settlement.StatusFetcher.
func (c *Client) GetSettlement(ctx context.Context, id string) (*settlement.Record, error) {
	var rec settlement.Record
	if err := c.do(ctx, http.MethodGet, "/v1/settlements/"+id, nil, &rec); err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return &rec, nil
}

// ListWallets returns the selectable wallets from the registry.
func (c *Client) ListWallets(ctx context.Context) ([]settlement.WalletRef, error) {
	var resp walletsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/wallets", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return resp.Wallets, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// apiError extracts the service's error message when the body carries one.
func apiError(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err == nil && len(raw) > 0 {
		var body map[string]interface{}
		if jsonErr := json.Unmarshal(raw, &body); jsonErr == nil {
			if message, ok := body["message"].(string); ok {
				return fmt.Errorf("api error (status %d): %s", resp.StatusCode, message)
			}
			if errs, ok := body["errors"]; ok {
				return fmt.Errorf("api error (status %d): %v", resp.StatusCode, errs)
			}
		}
	}
	return fmt.Errorf("api error (status %d)", resp.StatusCode)
}
