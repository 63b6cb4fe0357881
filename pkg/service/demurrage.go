package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/sigmanauts/ergodist/pkg/explorer"
	"github.com/sigmanauts/ergodist/pkg/fees"
	"github.com/sigmanauts/ergodist/pkg/metrics"
	"github.com/sigmanauts/ergodist/pkg/node"
	"github.com/sigmanauts/ergodist/pkg/participation"
	"github.com/sigmanauts/ergodist/pkg/plan"
)

// HeightCollector yields the block heights mined since the wallet's last
// outgoing transaction.
type HeightCollector interface {
	BlocksSinceLastOutgoing(ctx context.Context) ([]int64, error)
}

// ParticipationSource yields miner participation averaged over heights.
type ParticipationSource interface {
	AverageParticipation(ctx context.Context, heights []int64) ([]participation.Miner, error)
}

// BalanceSource yields the confirmed balance of an address.
type BalanceSource interface {
	ConfirmedBalance(ctx context.Context, address string) (*explorer.Balance, error)
}

type DemurrageConfig struct {
	Logger          *slog.Logger
	Collector       HeightCollector
	Participation   ParticipationSource
	Balances        BalanceSource
	Wallet          WalletClient
	Allocator       *participation.Allocator
	Estimator       fees.Estimator
	WalletAddress   string
	ExplorerAPIBase string
	OutputDir       string
	Clock           clockwork.Clock
}

func (cfg *DemurrageConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Collector == nil {
		return errors.New("collector is required")
	}
	if cfg.Participation == nil {
		return errors.New("participation source is required")
	}
	if cfg.Balances == nil {
		return errors.New("balance source is required")
	}
	if cfg.Allocator == nil {
		return errors.New("allocator is required")
	}
	if cfg.WalletAddress == "" {
		return errors.New("wallet address is required")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Demurrage distributes the wallet's spendable ERG to miners in proportion
// to their participation over the blocks since the last payout.
type Demurrage struct {
	log *slog.Logger
	cfg DemurrageConfig
}

func NewDemurrage(cfg DemurrageConfig) (*Demurrage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Demurrage{log: cfg.Logger, cfg: cfg}, nil
}

// Run executes one demurrage cycle. Every error path is converted into a
// failed Result; the caller decides what to do with it.
func (d *Demurrage) Run(ctx context.Context, dryRun bool) (result Result) {
	result = newResult("demurrage")
	start := d.cfg.Clock.Now()
	defer func() {
		if r := recover(); r != nil {
			result = result.failed(fmt.Errorf("panic during demurrage run: %v", r))
		}
		metrics.DistributionRunsTotal.WithLabelValues("demurrage", string(result.Status)).Inc()
		metrics.DistributionRunDuration.WithLabelValues("demurrage").Observe(d.cfg.Clock.Since(start).Seconds())
	}()

	d.log.Info("demurrage: starting run", "run_id", result.RunID, "dry_run", dryRun)

	heights, err := d.cfg.Collector.BlocksSinceLastOutgoing(ctx)
	if err != nil {
		return result.failed(fmt.Errorf("failed to collect block heights: %w", err))
	}
	if len(heights) == 0 {
		d.log.Info("demurrage: no blocks since last payout, nothing to distribute", "run_id", result.RunID)
		result.Status = StatusCompleted
		result.Message = "no blocks since last payout"
		return result
	}
	d.log.Info("demurrage: collected blocks", "run_id", result.RunID, "count", len(heights),
		"first", heights[0], "last", heights[len(heights)-1])

	miners, err := d.cfg.Participation.AverageParticipation(ctx, heights)
	if err != nil {
		return result.failed(fmt.Errorf("failed to fetch participation: %w", err))
	}
	if len(miners) == 0 {
		d.log.Info("demurrage: no participating miners for collected blocks", "run_id", result.RunID)
		result.Status = StatusCompleted
		result.Message = "no participating miners"
		return result
	}

	balance, err := d.cfg.Balances.ConfirmedBalance(ctx, d.cfg.WalletAddress)
	if err != nil {
		return result.failed(fmt.Errorf("failed to fetch wallet balance: %w", err))
	}

	// One output per miner plus the pool fee output.
	outputCount := len(miners) + 1
	available, err := d.cfg.Estimator.Available(balance.NanoErgs, outputCount)
	if err != nil {
		return result.failed(err)
	}
	pool := decimal.New(available, 0).Div(decimal.NewFromInt(fees.NanoErgPerErg))
	d.log.Info("demurrage: pool computed", "run_id", result.RunID,
		"balance_erg", fees.FormatErg(balance.NanoErgs), "pool_erg", pool.String())

	allocs, err := d.cfg.Allocator.Allocate(pool, miners)
	if err != nil {
		return result.failed(fmt.Errorf("failed to allocate pool: %w", err))
	}
	if len(allocs) == 0 {
		result.Status = StatusCompleted
		result.Message = "allocation produced no payable shares"
		return result
	}

	p := plan.FromAllocations("ERG", allocs)
	if err := p.Validate(); err != nil {
		return result.failed(fmt.Errorf("generated plan is invalid: %w", err))
	}
	result.RecipientCount = p.RecipientCount()

	if dryRun {
		path := filepath.Join(d.cfg.OutputDir,
			fmt.Sprintf("demurrage_plan_%s.json", d.cfg.Clock.Now().UTC().Format("20060102T150405Z")))
		if err := p.Save(path); err != nil {
			return result.failed(err)
		}
		d.log.Info("demurrage: dry run complete", "run_id", result.RunID,
			"recipients", result.RecipientCount, "plan", path)
		result.Status = StatusDryRun
		result.PlanPath = path
		result.Message = fmt.Sprintf("plan written to %s", path)
		return result
	}

	if d.cfg.Wallet == nil {
		return result.failed(errors.New("node wallet client is required for live runs"))
	}
	if err := d.cfg.Wallet.RequireUnlocked(ctx); err != nil {
		return result.failed(err)
	}

	outputs, distributed := paymentOutputs(allocs)
	txID, err := d.cfg.Wallet.SendPayment(ctx, outputs)
	if err != nil {
		return result.failed(fmt.Errorf("failed to submit payment: %w", err))
	}

	metrics.DistributedNanoErg.WithLabelValues("demurrage").Add(float64(distributed))
	result.Status = StatusCompleted
	result.TxID = txID
	result.ExplorerURL = ExplorerTxURL(d.cfg.ExplorerAPIBase, txID)
	d.log.Info("demurrage: run complete", "run_id", result.RunID,
		"tx_id", txID, "recipients", result.RecipientCount,
		"distributed_erg", fees.FormatErg(distributed))
	return result
}

// paymentOutputs converts ERG allocations into node payment outputs and
// returns the total nanoERG they carry.
func paymentOutputs(allocs []participation.Allocation) ([]node.PaymentOutput, int64) {
	nanoPerErg := decimal.NewFromInt(fees.NanoErgPerErg)
	outputs := make([]node.PaymentOutput, 0, len(allocs))
	var total int64
	for _, a := range allocs {
		value := a.Amount.Mul(nanoPerErg).IntPart()
		outputs = append(outputs, node.PaymentOutput{Address: a.Address, Value: value})
		total += value
	}
	return outputs, total
}
