package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/sigmanauts/ergodist/pkg/address"
	"github.com/sigmanauts/ergodist/pkg/fees"
	"github.com/sigmanauts/ergodist/pkg/metrics"
	"github.com/sigmanauts/ergodist/pkg/node"
	"github.com/sigmanauts/ergodist/pkg/plan"
	"github.com/sigmanauts/ergodist/pkg/recipients"
)

// RecipientSource supplies recipients for plan distributions that name none,
// e.g. the miners bonus API or an operator-maintained CSV file.
type RecipientSource interface {
	Fetch(ctx context.Context) ([]recipients.Recipient, error)
}

type BonusConfig struct {
	Logger          *slog.Logger
	Wallet          WalletClient
	Recipients      RecipientSource
	Estimator       fees.Estimator
	NetworkType     string
	ExplorerAPIBase string
	OutputDir       string
	Clock           clockwork.Clock
}

func (cfg *BonusConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.NetworkType == "" {
		cfg.NetworkType = "mainnet"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Bonus pays out token distributions described by a plan file.
type Bonus struct {
	log *slog.Logger
	cfg BonusConfig
}

func NewBonus(cfg BonusConfig) (*Bonus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bonus{log: cfg.Logger, cfg: cfg}, nil
}

// Run executes one bonus payout from the plan at planPath. Like demurrage,
// every error path becomes a failed Result.
func (b *Bonus) Run(ctx context.Context, planPath string, dryRun bool) (result Result) {
	result = newResult("bonus")
	start := b.cfg.Clock.Now()
	defer func() {
		if r := recover(); r != nil {
			result = result.failed(fmt.Errorf("panic during bonus run: %v", r))
		}
		metrics.DistributionRunsTotal.WithLabelValues("bonus", string(result.Status)).Inc()
		metrics.DistributionRunDuration.WithLabelValues("bonus").Observe(b.cfg.Clock.Since(start).Seconds())
	}()

	b.log.Info("bonus: starting run", "run_id", result.RunID, "plan", planPath, "dry_run", dryRun)

	p, err := plan.Load(planPath)
	if err != nil {
		return result.failed(err)
	}
	if err := b.resolveRecipients(ctx, p); err != nil {
		return result.failed(err)
	}
	if err := p.Validate(); err != nil {
		return result.failed(fmt.Errorf("plan %s is invalid: %w", planPath, err))
	}
	if p.RecipientCount() == 0 {
		return result.failed(fmt.Errorf("plan %s has no recipients", planPath))
	}
	for _, dist := range p.Distributions {
		for _, r := range dist.Recipients {
			if err := address.Validate(r.Address, b.cfg.NetworkType); err != nil {
				return result.failed(fmt.Errorf("invalid recipient address %s in %q: %w", r.Address, dist.TokenName, err))
			}
		}
	}
	result.RecipientCount = p.RecipientCount()

	outputs, tokenTotals, err := tokenOutputs(p, b.cfg.Estimator.MinBoxValue)
	if err != nil {
		return result.failed(err)
	}

	if b.cfg.Wallet == nil {
		return result.failed(errors.New("node wallet client is required"))
	}
	balances, err := b.cfg.Wallet.WalletBalances(ctx)
	if err != nil {
		return result.failed(fmt.Errorf("failed to fetch wallet balances: %w", err))
	}
	if _, err := b.cfg.Estimator.Available(balances.Balance, len(outputs)); err != nil {
		return result.failed(err)
	}
	for tokenID, needed := range tokenTotals {
		if have := balances.Assets[tokenID]; have < needed {
			return result.failed(fmt.Errorf("insufficient token balance for %s: need %d, have %d", tokenID, needed, have))
		}
	}

	if dryRun {
		path := filepath.Join(b.cfg.OutputDir,
			fmt.Sprintf("bonus_plan_%s.json", b.cfg.Clock.Now().UTC().Format("20060102T150405Z")))
		if err := p.Save(path); err != nil {
			return result.failed(err)
		}
		b.log.Info("bonus: dry run complete", "run_id", result.RunID,
			"recipients", result.RecipientCount, "plan", path)
		result.Status = StatusDryRun
		result.PlanPath = path
		result.Message = fmt.Sprintf("plan written to %s", path)
		return result
	}

	if err := b.cfg.Wallet.RequireUnlocked(ctx); err != nil {
		return result.failed(err)
	}
	txID, err := b.cfg.Wallet.SendPayment(ctx, outputs)
	if err != nil {
		return result.failed(fmt.Errorf("failed to submit payment: %w", err))
	}

	result.Status = StatusCompleted
	result.TxID = txID
	result.ExplorerURL = ExplorerTxURL(b.cfg.ExplorerAPIBase, txID)
	b.log.Info("bonus: run complete", "run_id", result.RunID,
		"tx_id", txID, "recipients", result.RecipientCount)
	return result
}

// resolveRecipients fills in distributions that name no recipients from the
// configured source. A recipient's own amount wins; otherwise the
// distribution's per-recipient amount applies.
func (b *Bonus) resolveRecipients(ctx context.Context, p *plan.Plan) error {
	var fetched []recipients.Recipient
	for i := range p.Distributions {
		dist := &p.Distributions[i]
		if len(dist.Recipients) > 0 {
			continue
		}
		if b.cfg.Recipients == nil {
			return fmt.Errorf("distribution %q names no recipients and no recipient source is configured", dist.TokenName)
		}
		if fetched == nil {
			var err error
			fetched, err = b.cfg.Recipients.Fetch(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch recipients: %w", err)
			}
			if len(fetched) == 0 {
				return errors.New("recipient source returned no recipients")
			}
		}
		for _, r := range fetched {
			amount := r.Amount
			if amount <= 0 {
				amount = dist.AmountPerRecipient
			}
			if amount <= 0 {
				return fmt.Errorf("distribution %q has no amount for recipient %s and no amount_per_recipient", dist.TokenName, r.Address)
			}
			dist.Recipients = append(dist.Recipients, plan.Recipient{Address: r.Address, Amount: amount})
		}
		b.log.Info("bonus: resolved recipients from source",
			"token", dist.TokenName, "count", len(dist.Recipients))
	}
	return nil
}

// tokenOutputs converts plan distributions into node payment outputs, one
// box per recipient carrying the min box value plus the token amount scaled
// by the token's decimals. Returns the raw token totals needed per token id.
func tokenOutputs(p *plan.Plan, minBoxValue int64) ([]node.PaymentOutput, map[string]int64, error) {
	var outputs []node.PaymentOutput
	totals := make(map[string]int64)
	for _, dist := range p.Distributions {
		if dist.TokenID == "" {
			return nil, nil, fmt.Errorf("distribution %q has no token id", dist.TokenName)
		}
		scale := math.Pow10(dist.Decimals)
		for _, r := range dist.Recipients {
			raw := int64(math.Round(r.Amount * scale))
			if raw <= 0 {
				return nil, nil, fmt.Errorf("distribution %q amount %v for %s scales to zero", dist.TokenName, r.Amount, r.Address)
			}
			outputs = append(outputs, node.PaymentOutput{
				Address: r.Address,
				Value:   minBoxValue,
				Assets:  []node.PaymentAsset{{TokenID: dist.TokenID, Amount: raw}},
			})
			totals[dist.TokenID] += raw
		}
	}
	return outputs, totals, nil
}
