// Package collector determines which block heights require a payout by
// scanning the wallet's transaction history on the block explorer.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sigmanauts/ergodist/pkg/explorer"
)

// TransactionSource is the slice of the explorer client the collector needs.
type TransactionSource interface {
	Transactions(ctx context.Context, address string, offset, limit int, concise bool) (*explorer.TransactionPage, error)
}

type Config struct {
	Logger        *slog.Logger
	Explorer      TransactionSource
	WalletAddress string
	// PageSize per explorer request, capped at the explorer maximum.
	PageSize int
	// MaxPages bounds the scan so a busy wallet cannot trigger unbounded
	// API calls.
	MaxPages int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Explorer == nil {
		return errors.New("explorer client is required")
	}
	if cfg.WalletAddress == "" {
		return errors.New("wallet address is required")
	}
	if cfg.PageSize <= 0 || cfg.PageSize > explorer.MaxPageSize {
		cfg.PageSize = explorer.MaxPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	return nil
}

type Collector struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collector{log: cfg.Logger, cfg: cfg}, nil
}

// LatestOutgoingHeight pages the wallet's transactions newest-first and
// returns the inclusion height of the most recent transaction that spends one
// of the wallet's own boxes. Returns 0 when no outgoing transaction is found
// within the page cap.
func (c *Collector) LatestOutgoingHeight(ctx context.Context) (int64, error) {
	offset := 0
	for page := 0; page < c.cfg.MaxPages; page++ {
		txPage, err := c.cfg.Explorer.Transactions(ctx, c.cfg.WalletAddress, offset, c.cfg.PageSize, false)
		if err != nil {
			return 0, fmt.Errorf("failed to look up latest outgoing transaction: %w", err)
		}
		if len(txPage.Items) == 0 {
			break
		}

		for _, tx := range txPage.Items {
			for _, in := range tx.Inputs {
				if in.Address == c.cfg.WalletAddress {
					c.log.Debug("collector: found latest outgoing transaction",
						"tx", tx.ID, "height", tx.InclusionHeight)
					return tx.InclusionHeight, nil
				}
			}
		}

		if len(txPage.Items) < c.cfg.PageSize {
			break
		}
		offset += c.cfg.PageSize
	}

	c.log.Debug("collector: no outgoing transaction found", "max_pages", c.cfg.MaxPages)
	return 0, nil
}

// HeightsSince re-pages the wallet's transactions from offset 0 and collects
// every inclusion height strictly greater than ref, deduplicated and sorted
// ascending.
//
// The scan deliberately has no height-based early stop: the explorer's
// newest-first ordering is by acceptance time, not inclusion height, and
// stopping at the first height <= ref was observed to miss blocks. The only
// stops are an empty page, a short page, and the page cap.
func (c *Collector) HeightsSince(ctx context.Context, ref int64) ([]int64, error) {
	seen := make(map[int64]struct{})
	offset := 0

	for page := 0; page < c.cfg.MaxPages; page++ {
		txPage, err := c.cfg.Explorer.Transactions(ctx, c.cfg.WalletAddress, offset, c.cfg.PageSize, true)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions page %d: %w", page+1, err)
		}
		if len(txPage.Items) == 0 {
			break
		}

		for _, tx := range txPage.Items {
			if tx.InclusionHeight > ref {
				seen[tx.InclusionHeight] = struct{}{}
			}
		}

		if len(txPage.Items) < c.cfg.PageSize {
			break
		}
		offset += c.cfg.PageSize
	}

	heights := make([]int64, 0, len(seen))
	for h := range seen {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights, nil
}

// BlocksSinceLastOutgoing combines the reference lookup with the height scan.
// A failed reference lookup is fatal; a failed scan degrades to "no blocks
// this cycle" so the caller skips the run instead of aborting.
func (c *Collector) BlocksSinceLastOutgoing(ctx context.Context) ([]int64, error) {
	ref, err := c.LatestOutgoingHeight(ctx)
	if err != nil {
		return nil, err
	}
	if ref == 0 {
		c.log.Info("collector: no outgoing transaction reference point, skipping")
		return nil, nil
	}

	heights, err := c.HeightsSince(ctx, ref)
	if err != nil {
		c.log.Warn("collector: height scan failed, treating as no blocks found", "error", err)
		return nil, nil
	}

	c.log.Info("collector: collected block heights", "reference", ref, "count", len(heights))
	return heights, nil
}
