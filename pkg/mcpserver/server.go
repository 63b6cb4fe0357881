// Package mcpserver exposes the distribution tooling to MCP clients as a set
// of read-only tools over stdio. Live submission stays in the CLI; the only
// distribution tool here, preview_demurrage, is forced to dry-run.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sigmanauts/ergodist/pkg/address"
	"github.com/sigmanauts/ergodist/pkg/curve"
	"github.com/sigmanauts/ergodist/pkg/explorer"
	"github.com/sigmanauts/ergodist/pkg/fees"
	"github.com/sigmanauts/ergodist/pkg/recipients"
	"github.com/sigmanauts/ergodist/pkg/service"
)

// ExplorerSource is the slice of the explorer client the tools need.
type ExplorerSource interface {
	ConfirmedBalance(ctx context.Context, addr string) (*explorer.Balance, error)
	TransactionByID(ctx context.Context, txID string) (*explorer.Transaction, error)
	NetworkInfo(ctx context.Context) (*explorer.NetworkInfo, error)
}

// HeightCollector yields the block heights since the last outgoing payout.
type HeightCollector interface {
	BlocksSinceLastOutgoing(ctx context.Context) ([]int64, error)
}

// DemurrageRunner runs one demurrage cycle.
type DemurrageRunner interface {
	Run(ctx context.Context, dryRun bool) service.Result
}

// MinerLister fetches the pool's active miner list.
type MinerLister interface {
	Fetch(ctx context.Context) ([]recipients.Recipient, error)
}

type Config struct {
	Logger        *slog.Logger
	Explorer      ExplorerSource
	Collector     HeightCollector
	Demurrage     DemurrageRunner
	Miners        MinerLister
	Estimator     fees.Estimator
	WalletAddress string
	NetworkType   string
	Version       string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Explorer == nil {
		return errors.New("explorer client is required")
	}
	if cfg.NetworkType == "" {
		cfg.NetworkType = "mainnet"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return nil
}

type Server struct {
	log *slog.Logger
	cfg Config
	mcp *mcp.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		mcp: mcp.NewServer(&mcp.Implementation{Name: "ergodist", Version: cfg.Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP over stdio until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcpserver: serving over stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

type addressArgs struct {
	Address string `json:"address" jsonschema:"Ergo address, base58"`
}

type txArgs struct {
	TxID string `json:"tx_id" jsonschema:"transaction id, hex"`
}

type estimateArgs struct {
	RecipientCount int `json:"recipient_count" jsonschema:"number of recipient outputs"`
}

type balanceResult struct {
	Address  string                `json:"address"`
	NanoErgs int64                 `json:"nano_ergs"`
	Erg      string                `json:"erg"`
	Tokens   []explorer.TokenValue `json:"tokens,omitempty"`
}

type validateResult struct {
	Address string `json:"address"`
	Network string `json:"network"`
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
}

type txResult struct {
	ID              string `json:"id"`
	InclusionHeight int64  `json:"inclusion_height"`
	Confirmations   int64  `json:"confirmations"`
	Inputs          int    `json:"inputs"`
	Outputs         int    `json:"outputs"`
}

type blocksResult struct {
	Heights []int64 `json:"heights"`
	Count   int     `json:"count"`
}

type minersArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum addresses to return, default 100"`
}

type minersResult struct {
	Count     int      `json:"count"`
	Addresses []string `json:"addresses"`
}

type estimateResult struct {
	RecipientCount int    `json:"recipient_count"`
	TotalCostNano  int64  `json:"total_cost_nano_erg"`
	TotalCostErg   string `json:"total_cost_erg"`
}

type curveArgs struct {
	CurveType      string `json:"curve_type" jsonschema:"one of: linear, quadratic, inverse_quadratic, sine, gaussian, logarithmic"`
	StartHeight    int64  `json:"start_height"`
	EndHeight      int64  `json:"end_height"`
	TotalTokens    int64  `json:"total_tokens" jsonschema:"target total to emit over the window"`
	TokensPerRound int64  `json:"tokens_per_round" jsonschema:"base per-block emission before the curve is applied"`
	RecipientCount int    `json:"recipient_count"`
	SampleHeights  int    `json:"sample_heights,omitempty" jsonschema:"number of evenly spaced heights to include in the schedule sample, default 10"`
}

type curvePoint struct {
	Height int64 `json:"height"`
	Tokens int64 `json:"tokens"`
}

type curveResult struct {
	CurveType          string       `json:"curve_type"`
	CalibratedPerRound int64        `json:"calibrated_tokens_per_round"`
	EstimatedTotal     float64      `json:"estimated_total"`
	Schedule           []curvePoint `json:"schedule"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "wallet_balance",
		Description: "Confirmed ERG and token balance of the distribution wallet, or of an explicit address.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args addressArgs) (*mcp.CallToolResult, balanceResult, error) {
		addr := args.Address
		if addr == "" {
			addr = s.cfg.WalletAddress
		}
		if addr == "" {
			return nil, balanceResult{}, errors.New("no address given and no wallet address configured")
		}
		out, err := s.balance(ctx, addr)
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "address_info",
		Description: "Validate an Ergo address and fetch its confirmed balance.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args addressArgs) (*mcp.CallToolResult, balanceResult, error) {
		if err := address.Validate(args.Address, s.cfg.NetworkType); err != nil {
			return nil, balanceResult{}, fmt.Errorf("invalid address: %w", err)
		}
		out, err := s.balance(ctx, args.Address)
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "validate_address",
		Description: "Check whether a string is a well-formed Ergo address for the configured network.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args addressArgs) (*mcp.CallToolResult, validateResult, error) {
		return nil, s.validateAddress(args.Address), nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "transaction_info",
		Description: "Look up a transaction on the block explorer.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args txArgs) (*mcp.CallToolResult, txResult, error) {
		out, err := s.transactionInfo(ctx, args.TxID)
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "network_status",
		Description: "Current Ergo network height and difficulty from the explorer.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, *explorer.NetworkInfo, error) {
		info, err := s.cfg.Explorer.NetworkInfo(ctx)
		if err != nil {
			return nil, nil, err
		}
		return nil, info, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "blocks_since_last_outgoing",
		Description: "Block heights mined since the wallet's last outgoing transaction.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, blocksResult, error) {
		out, err := s.blocksSince(ctx)
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pool_miners",
		Description: "Active miner addresses on the pool, with the total count.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args minersArgs) (*mcp.CallToolResult, minersResult, error) {
		out, err := s.poolMiners(ctx, args.Limit)
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "estimate_costs",
		Description: "Minimum ERG consumed by fees and box minimums for a distribution of the given size.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args estimateArgs) (*mcp.CallToolResult, estimateResult, error) {
		out, err := s.estimateCosts(args.RecipientCount)
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "curve_schedule",
		Description: "Preview an airdrop emission curve: calibrated per-round rate, estimated total, and a sampled per-height schedule.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args curveArgs) (*mcp.CallToolResult, curveResult, error) {
		out, err := s.curveSchedule(args)
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "preview_demurrage",
		Description: "Run a demurrage distribution in dry-run mode and return the result. Never submits a transaction.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, service.Result, error) {
		if s.cfg.Demurrage == nil {
			return nil, service.Result{}, errors.New("demurrage preview is not configured")
		}
		return nil, s.cfg.Demurrage.Run(ctx, true), nil
	})
}

func (s *Server) balance(ctx context.Context, addr string) (balanceResult, error) {
	balance, err := s.cfg.Explorer.ConfirmedBalance(ctx, addr)
	if err != nil {
		return balanceResult{}, err
	}
	return balanceResult{
		Address:  addr,
		NanoErgs: balance.NanoErgs,
		Erg:      fees.FormatErg(balance.NanoErgs),
		Tokens:   balance.Tokens,
	}, nil
}

func (s *Server) validateAddress(addr string) validateResult {
	out := validateResult{Address: addr, Network: s.cfg.NetworkType, Valid: true}
	if err := address.Validate(addr, s.cfg.NetworkType); err != nil {
		out.Valid = false
		out.Reason = err.Error()
	}
	return out
}

func (s *Server) transactionInfo(ctx context.Context, txID string) (txResult, error) {
	if txID == "" {
		return txResult{}, errors.New("tx_id is required")
	}
	tx, err := s.cfg.Explorer.TransactionByID(ctx, txID)
	if err != nil {
		return txResult{}, err
	}
	return txResult{
		ID:              tx.ID,
		InclusionHeight: tx.InclusionHeight,
		Confirmations:   tx.Confirmations,
		Inputs:          len(tx.Inputs),
		Outputs:         len(tx.Outputs),
	}, nil
}

func (s *Server) blocksSince(ctx context.Context) (blocksResult, error) {
	if s.cfg.Collector == nil {
		return blocksResult{}, errors.New("collector is not configured")
	}
	heights, err := s.cfg.Collector.BlocksSinceLastOutgoing(ctx)
	if err != nil {
		return blocksResult{}, err
	}
	return blocksResult{Heights: heights, Count: len(heights)}, nil
}

func (s *Server) poolMiners(ctx context.Context, limit int) (minersResult, error) {
	if s.cfg.Miners == nil {
		return minersResult{}, errors.New("miner list is not configured")
	}
	miners, err := s.cfg.Miners.Fetch(ctx)
	if err != nil {
		return minersResult{}, err
	}
	if limit <= 0 {
		limit = 100
	}
	out := minersResult{Count: len(miners)}
	for _, m := range miners {
		if len(out.Addresses) >= limit {
			break
		}
		out.Addresses = append(out.Addresses, m.Address)
	}
	return out, nil
}

func (s *Server) curveSchedule(args curveArgs) (curveResult, error) {
	calc, err := curve.NewCalculator(curve.Params{
		StartHeight:    args.StartHeight,
		EndHeight:      args.EndHeight,
		TotalTokens:    args.TotalTokens,
		TokensPerRound: args.TokensPerRound,
		RecipientCount: args.RecipientCount,
	}, curve.Type(args.CurveType))
	if err != nil {
		return curveResult{}, err
	}

	calibrated, err := calc.CalibratedTokensPerRound()
	if err != nil {
		return curveResult{}, err
	}

	samples := args.SampleHeights
	if samples <= 0 {
		samples = 10
	}
	window := args.EndHeight - args.StartHeight
	if int64(samples) > window+1 {
		samples = int(window + 1)
	}
	schedule := make([]curvePoint, 0, samples)
	for i := 0; i < samples; i++ {
		height := args.StartHeight
		if samples > 1 {
			height += window * int64(i) / int64(samples-1)
		}
		schedule = append(schedule, curvePoint{Height: height, Tokens: calc.TokensForHeight(height)})
	}

	return curveResult{
		CurveType:          args.CurveType,
		CalibratedPerRound: calibrated,
		EstimatedTotal:     calc.EstimateTotal(curve.DefaultSamplePoints),
		Schedule:           schedule,
	}, nil
}

func (s *Server) estimateCosts(recipientCount int) (estimateResult, error) {
	if recipientCount <= 0 {
		return estimateResult{}, errors.New("recipient_count must be positive")
	}
	cost := s.cfg.Estimator.TotalCost(recipientCount)
	return estimateResult{
		RecipientCount: recipientCount,
		TotalCostNano:  cost,
		TotalCostErg:   fees.FormatErg(cost),
	}, nil
}
