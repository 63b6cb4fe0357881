// Package participation fetches per-miner participation snapshots and
// allocates a distribution pool across miners proportionally.
package participation

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

	"github.com/shopspring/decimal"

	"github.com/sigmanauts/ergodist/pkg/metrics"
	"github.com/sigmanauts/ergodist/pkg/retry"
)

// Miner is one participation record for a fixed block-height window.
type Miner struct {
	Address string `json:"miner_address"`
	// Percentage is the miner's average participation over the window. The
	// API serves it as a JSON number; it is kept as a string-backed decimal
	// so 8-decimal-place math stays exact.
	Percentage decimal.Decimal `json:"-"`
}

type minerJSON struct {
	Address    string      `json:"miner_address"`
	Percentage json.Number `json:"avg_participation_percentage"`
}

type minersResponse struct {
	Miners []minerJSON `json:"miners"`
}

type ClientConfig struct {
	Logger *slog.Logger
	// BaseURL is the average-participation endpoint, e.g.
	// https://api.ergominers.com/sigscore/miners/average-participation
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Retry      retry.Config
	HTTPClient *http.Client
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("participation API base URL is required")
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
	log  *slog.Logger
	cfg  ClientConfig
	http *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{log: cfg.Logger, cfg: cfg, http: httpClient}, nil
}

// AverageParticipation fetches miner participation percentages for a set of
// block heights. Records with a missing address or an unparseable percentage
// are skipped with a warning.
func (c *Client) AverageParticipation(ctx context.Context, heights []int64) ([]Miner, error) {
	if len(heights) == 0 {
		return nil, errors.New("at least one block height is required")
	}

	blocks := make([]string, len(heights))
	for i, h := range heights {
		blocks[i] = strconv.FormatInt(h, 10)
	}
	params := url.Values{}
	params.Set("blocks", strings.Join(blocks, ","))
	u := c.cfg.BaseURL + "?" + params.Encode()

	var decoded minersResponse
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("X-API-Key", c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return json.NewDecoder(resp.Body).Decode(&decoded)
	})
	if err != nil {
		metrics.ParticipationRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch miner participation: %w", err)
	}
	metrics.ParticipationRequestsTotal.WithLabelValues("success").Inc()

	miners := make([]Miner, 0, len(decoded.Miners))
	for _, m := range decoded.Miners {
		if m.Address == "" {
			c.log.Warn("participation: skipping miner record with missing address")
			continue
		}
		pct, err := decimal.NewFromString(m.Percentage.String())
		if err != nil {
			c.log.Warn("participation: skipping miner with unparseable percentage",
				"address", m.Address, "value", m.Percentage.String())
			continue
		}
		miners = append(miners, Miner{Address: m.Address, Percentage: pct})
	}

	c.log.Debug("participation: fetched miner snapshot", "blocks", len(heights), "miners", len(miners))
	return miners, nil
}
