// Package node is a client for the Ergo node wallet REST API, used to check
// wallet readiness and submit payment transactions.
package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sigmanauts/ergodist/pkg/retry"
)

// DefaultBaseURL is a node running locally with the default mainnet port.
const DefaultBaseURL = "http://localhost:9053"

// ErrWalletLocked is returned when the node wallet exists but has not been
// unlocked; payments cannot be signed until the operator unlocks it.
var ErrWalletLocked = errors.New("node wallet is locked; unlock it via /wallet/unlock before distributing")

// ErrWalletUninitialized is returned when the node has no wallet at all.
var ErrWalletUninitialized = errors.New("node wallet is not initialized")

// WalletStatus mirrors the node's /wallet/status response.
type WalletStatus struct {
	IsInitialized bool   `json:"isInitialized"`
	IsUnlocked    bool   `json:"isUnlocked"`
	WalletHeight  int64  `json:"walletHeight"`
	Error         string `json:"error"`
}

// WalletBalances mirrors the node's /wallet/balances response. Assets maps
// token id to raw (undecimaled) amount.
type WalletBalances struct {
	Height  int64            `json:"height"`
	Balance int64            `json:"balance"`
	Assets  map[string]int64 `json:"assets"`
}

// PaymentAsset is a token transfer inside a payment output.
type PaymentAsset struct {
	TokenID string `json:"tokenId"`
	Amount  int64  `json:"amount"`
}

// PaymentOutput is one recipient box in a /wallet/payment/send request.
type PaymentOutput struct {
	Address string         `json:"address"`
	Value   int64          `json:"value"`
	Assets  []PaymentAsset `json:"assets,omitempty"`
}

type Config struct {
	Logger     *slog.Logger
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Retry      retry.Config
	HTTPClient *http.Client
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

type Client struct {
	log     *slog.Logger
	baseURL string
	apiKey  string
	http    *http.Client
	retry   retry.Config
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		log:     cfg.Logger,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
		retry:   cfg.Retry,
	}, nil
}

// WalletStatus fetches the wallet status from the node.
func (c *Client) WalletStatus(ctx context.Context) (*WalletStatus, error) {
	var status WalletStatus
	if err := c.do(ctx, http.MethodGet, "/wallet/status", nil, &status); err != nil {
		return nil, fmt.Errorf("failed to fetch wallet status: %w", err)
	}
	return &status, nil
}

// RequireUnlocked fetches the wallet status and returns an error unless the
// wallet is initialized and unlocked.
func (c *Client) RequireUnlocked(ctx context.Context) error {
	status, err := c.WalletStatus(ctx)
	if err != nil {
		return err
	}
	if !status.IsInitialized {
		return ErrWalletUninitialized
	}
	if !status.IsUnlocked {
		return ErrWalletLocked
	}
	return nil
}

// WalletBalances fetches the confirmed wallet balances from the node.
func (c *Client) WalletBalances(ctx context.Context) (*WalletBalances, error) {
	var balances WalletBalances
	if err := c.do(ctx, http.MethodGet, "/wallet/balances", nil, &balances); err != nil {
		return nil, fmt.Errorf("failed to fetch wallet balances: %w", err)
	}
	return &balances, nil
}

// SendPayment submits a multi-output payment and returns the transaction id.
// This is not retried: a timeout after submission could double-send.
func (c *Client) SendPayment(ctx context.Context, outputs []PaymentOutput) (string, error) {
	if len(outputs) == 0 {
		return "", errors.New("payment has no outputs")
	}

	body, err := json.Marshal(outputs)
	if err != nil {
		return "", fmt.Errorf("failed to encode payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wallet/payment/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit payment: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		trimmed := strings.TrimSpace(string(raw))
		c.log.Error("node: payment rejected", "status", resp.StatusCode, "body", trimmed, "outputs", len(outputs))
		return "", fmt.Errorf("node rejected payment: status %d: %s", resp.StatusCode, trimmed)
	}

	// The node returns the transaction id as a bare JSON string.
	var txID string
	if err := json.Unmarshal(raw, &txID); err != nil {
		return "", fmt.Errorf("failed to decode payment response %q: %w", strings.TrimSpace(string(raw)), err)
	}
	return txID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	return retry.Do(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}

		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api_key", c.apiKey)
	}
}
