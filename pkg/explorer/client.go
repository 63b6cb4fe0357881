// Package explorer is a client for the Ergo block-explorer REST API, the
// source of address transaction history and confirmed balances.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sigmanauts/ergodist/pkg/metrics"
	"github.com/sigmanauts/ergodist/pkg/retry"
)

// DefaultBaseURL is the public mainnet explorer API.
const DefaultBaseURL = "https://api.ergoplatform.com/api/v1"

// MaxPageSize is the largest transaction page the explorer serves.
const MaxPageSize = 200

type Config struct {
	Logger  *slog.Logger
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing calls; the public explorer rate
	// limits aggressive pagination. Zero disables throttling.
	RequestsPerSecond float64
	Retry             retry.Config
	HTTPClient        *http.Client
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
	http    *http.Client
	limiter *rate.Limiter
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
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		log:     cfg.Logger,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		limiter: limiter,
		retry:   cfg.Retry,
	}, nil
}

// BaseURL returns the configured explorer API base.
func (c *Client) BaseURL() string { return c.baseURL }

// Transactions fetches one page of the address transaction listing, newest
// first. Concise mode omits full box data beyond addresses and values.
func (c *Client) Transactions(ctx context.Context, address string, offset, limit int, concise bool) (*TransactionPage, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	if concise {
		params.Set("concise", "true")
	}

	var page TransactionPage
	path := fmt.Sprintf("/addresses/%s/transactions", url.PathEscape(address))
	if err := c.get(ctx, "transactions", path, params, &page); err != nil {
		return nil, fmt.Errorf("failed to fetch transactions for %s: %w", address, err)
	}
	return &page, nil
}

// ConfirmedBalance fetches the confirmed balance of an address.
func (c *Client) ConfirmedBalance(ctx context.Context, address string) (*Balance, error) {
	var balance Balance
	path := fmt.Sprintf("/addresses/%s/balance/confirmed", url.PathEscape(address))
	if err := c.get(ctx, "balance", path, nil, &balance); err != nil {
		return nil, fmt.Errorf("failed to fetch confirmed balance for %s: %w", address, err)
	}
	return &balance, nil
}

// TransactionByID fetches a single transaction.
func (c *Client) TransactionByID(ctx context.Context, txID string) (*Transaction, error) {
	var tx Transaction
	path := fmt.Sprintf("/transactions/%s", url.PathEscape(txID))
	if err := c.get(ctx, "transaction", path, nil, &tx); err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txID, err)
	}
	return &tx, nil
}

// NetworkInfo fetches the explorer's network summary.
func (c *Client) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	var info NetworkInfo
	if err := c.get(ctx, "info", "/info", nil, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch network info: %w", err)
	}
	return &info, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	err := retry.Do(ctx, c.retry, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		return json.NewDecoder(resp.Body).Decode(out)
	})

	status := "success"
	if err != nil {
		status = "error"
		c.log.Debug("explorer: request failed", "endpoint", endpoint, "url", u, "error", err)
	}
	metrics.ExplorerRequestsTotal.WithLabelValues(endpoint, status).Inc()
	return err
}
