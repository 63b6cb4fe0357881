package participation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// AmountScale is the decimal precision of allocated amounts. Shares are
// truncated, never rounded up, so the sum of shares can never exceed the
// pool.
const AmountScale = 8

// Allocation is one recipient's final share of a distribution pool.
type Allocation struct {
	Address string
	Amount  decimal.Decimal
}

type AllocatorConfig struct {
	Logger *slog.Logger
	// PoolFeePercent is a ratio in [0,1] carved out for PoolFeeAddress
	// before miner shares are computed.
	PoolFeePercent decimal.Decimal
	PoolFeeAddress string
}

func (cfg *AllocatorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.PoolFeePercent.IsNegative() || cfg.PoolFeePercent.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("pool fee percentage must be in [0,1], got %s", cfg.PoolFeePercent)
	}
	if cfg.PoolFeePercent.IsPositive() && cfg.PoolFeeAddress == "" {
		return errors.New("pool fee address is required when pool fee percentage is set")
	}
	return nil
}

type Allocator struct {
	log *slog.Logger
	cfg AllocatorConfig
}

func NewAllocator(cfg AllocatorConfig) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Allocator{log: cfg.Logger, cfg: cfg}, nil
}

// Allocate splits pool across miners proportionally to their participation
// percentages, carving out the configured pool fee first. Shares are
// truncated to AmountScale decimal places; recipients with a non-positive
// share are dropped and the resulting dust is logged, never redistributed.
func (a *Allocator) Allocate(pool decimal.Decimal, miners []Miner) ([]Allocation, error) {
	if pool.IsNegative() || pool.IsZero() {
		return nil, fmt.Errorf("distribution pool must be positive, got %s", pool)
	}

	var allocations []Allocation

	poolFee := pool.Mul(a.cfg.PoolFeePercent).Truncate(AmountScale)
	minerPool := pool.Sub(poolFee)
	if poolFee.IsPositive() {
		allocations = append(allocations, Allocation{Address: a.cfg.PoolFeeAddress, Amount: poolFee})
	}

	totalPct := decimal.Zero
	for _, m := range miners {
		totalPct = totalPct.Add(m.Percentage)
	}

	if len(miners) == 0 {
		a.log.Warn("allocator: no miners in snapshot, only pool fee emitted")
		return allocations, nil
	}
	if !totalPct.IsPositive() {
		a.log.Warn("allocator: total participation percentage is zero, no miner shares computed")
		return allocations, nil
	}

	emitted := decimal.Zero
	skipped := 0
	for _, m := range miners {
		if m.Address == "" {
			a.log.Warn("allocator: skipping miner with missing address")
			skipped++
			continue
		}

		// Multiply before dividing so the division rounds at the share's
		// own scale; dividing the ratio first rounds at shopspring's
		// 16-digit default, which can carry across the truncation boundary
		// and push the share sum past the pool.
		share := minerPool.Mul(m.Percentage).DivRound(totalPct, AmountScale+4).Truncate(AmountScale)
		if !share.IsPositive() {
			a.log.Warn("allocator: skipping miner with non-positive share",
				"address", m.Address, "percentage", m.Percentage.String())
			skipped++
			continue
		}

		allocations = append(allocations, Allocation{Address: m.Address, Amount: share})
		emitted = emitted.Add(share)
	}

	// Truncation dust stays in the wallet; log the discrepancy so audits can
	// account for it.
	if dust := minerPool.Sub(emitted); dust.IsPositive() {
		a.log.Info("allocator: rounding dust not distributed",
			"dust", dust.String(), "pool", minerPool.String(), "skipped", skipped)
	}

	return allocations, nil
}

// SumAmounts totals the emitted allocation amounts.
func SumAmounts(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	return total
}
