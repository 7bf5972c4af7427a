package wallet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Wallet is a smart account provisioned for a user on one chain.
type Wallet struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
	Created bool   `json:"created"`
}

// RelayerError is a non-2xx answer from the relayer.
type RelayerError struct {
	StatusCode int
	Body       string
}

func (e *RelayerError) Error() string {
	return fmt.Sprintf("relayer returned HTTP %d: %s", e.StatusCode, e.Body)
}

// RelayerClient provisions wallets through the relayer HTTP API.
type RelayerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRelayerClient(baseURL, apiKey string, timeout time.Duration) *RelayerClient {
	return &RelayerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateWallet returns the user's wallet on chain, creating it when missing.
func (c *RelayerClient) CreateWallet(ctx context.Context, userID, chain string) (*Wallet, error) {
	payload, err := json.Marshal(map[string]string{"userId": userID, "chain": chain})
	if err != nil {
		return nil, fmt.Errorf("failed to encode wallet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wallets", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relayer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read relayer response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &RelayerError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var wallet Wallet

	err = json.Unmarshal(body, &wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to decode relayer response: %w", err)
	}

	if wallet.Chain == "" {
		wallet.Chain = chain
	}

	return &wallet, nil
}
