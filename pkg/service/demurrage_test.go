package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sigmanauts/ergodist/pkg/explorer"
	"github.com/sigmanauts/ergodist/pkg/fees"
	"github.com/sigmanauts/ergodist/pkg/node"
	"github.com/sigmanauts/ergodist/pkg/participation"
	"github.com/sigmanauts/ergodist/pkg/testutil"
)

type fakeCollector struct {
	heights []int64
	err     error
}

func (f *fakeCollector) BlocksSinceLastOutgoing(ctx context.Context) ([]int64, error) {
	return f.heights, f.err
}

type fakeParticipation struct {
	miners []participation.Miner
	err    error
}

func (f *fakeParticipation) AverageParticipation(ctx context.Context, heights []int64) ([]participation.Miner, error) {
	return f.miners, f.err
}

type fakeBalances struct {
	nanoErgs int64
	err      error
}

func (f *fakeBalances) ConfirmedBalance(ctx context.Context, address string) (*explorer.Balance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &explorer.Balance{NanoErgs: f.nanoErgs}, nil
}

type fakeWallet struct {
	balances  node.WalletBalances
	unlockErr error
	sendErr   error
	txID      string
	sent      []node.PaymentOutput
}

func (f *fakeWallet) RequireUnlocked(ctx context.Context) error { return f.unlockErr }

func (f *fakeWallet) WalletBalances(ctx context.Context) (*node.WalletBalances, error) {
	return &f.balances, nil
}

func (f *fakeWallet) SendPayment(ctx context.Context, outputs []node.PaymentOutput) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = outputs
	return f.txID, nil
}

func newTestAllocator(t *testing.T) *participation.Allocator {
	t.Helper()
	alloc, err := participation.NewAllocator(participation.AllocatorConfig{Logger: testutil.NewLogger()})
	require.NoError(t, err)
	return alloc
}

func pct(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newDemurrage(t *testing.T, cfg DemurrageConfig) *Demurrage {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewLogger()
	}
	if cfg.Allocator == nil {
		cfg.Allocator = newTestAllocator(t)
	}
	if cfg.WalletAddress == "" {
		cfg.WalletAddress = "9walletaddr"
	}
	if cfg.Estimator == (fees.Estimator{}) {
		cfg.Estimator = fees.NewEstimator(0, 0, 0)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewFakeClock()
	}
	d, err := NewDemurrage(cfg)
	require.NoError(t, err)
	return d
}

func TestErgoDist_Demurrage_DryRun(t *testing.T) {
	t.Parallel()

	d := newDemurrage(t, DemurrageConfig{
		Collector: &fakeCollector{heights: []int64{100, 101, 102}},
		Participation: &fakeParticipation{miners: []participation.Miner{
			{Address: "9miner1", Percentage: pct("60")},
			{Address: "9miner2", Percentage: pct("40")},
		}},
		Balances:  &fakeBalances{nanoErgs: 1 * fees.NanoErgPerErg},
		OutputDir: t.TempDir(),
	})

	result := d.Run(context.Background(), true)
	require.Equal(t, StatusDryRun, result.Status, result.Error)
	require.Equal(t, 2, result.RecipientCount)
	require.NotEmpty(t, result.RunID)
	require.Empty(t, result.TxID)
	require.FileExists(t, result.PlanPath)
}

func TestErgoDist_Demurrage_LiveRun(t *testing.T) {
	t.Parallel()

	wallet := &fakeWallet{txID: "txabc"}
	d := newDemurrage(t, DemurrageConfig{
		Collector: &fakeCollector{heights: []int64{200}},
		Participation: &fakeParticipation{miners: []participation.Miner{
			{Address: "9miner1", Percentage: pct("60")},
			{Address: "9miner2", Percentage: pct("40")},
		}},
		Balances:        &fakeBalances{nanoErgs: 1 * fees.NanoErgPerErg},
		Wallet:          wallet,
		ExplorerAPIBase: "https://api.ergoplatform.com/api/v1",
		OutputDir:       t.TempDir(),
	})

	result := d.Run(context.Background(), false)
	require.Equal(t, StatusCompleted, result.Status, result.Error)
	require.Equal(t, "txabc", result.TxID)
	require.Equal(t, "https://api.ergoplatform.com/transactions/txabc", result.ExplorerURL)
	require.Len(t, wallet.sent, 2)

	// 1.0 ERG minus costs for 3 outputs (2 miners + fee output) leaves
	// 0.994 ERG; the payment must never exceed it.
	var sent int64
	for _, out := range wallet.sent {
		sent += out.Value
	}
	require.LessOrEqual(t, sent, int64(994_000_000))
	require.Greater(t, sent, int64(0))
}

func TestErgoDist_Demurrage_NoBlocksIsNotFailure(t *testing.T) {
	t.Parallel()

	d := newDemurrage(t, DemurrageConfig{
		Collector:     &fakeCollector{},
		Participation: &fakeParticipation{},
		Balances:      &fakeBalances{},
	})

	result := d.Run(context.Background(), false)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, "no blocks since last payout", result.Message)
	require.Zero(t, result.RecipientCount)
}

func TestErgoDist_Demurrage_Failures(t *testing.T) {
	t.Parallel()

	heights := &fakeCollector{heights: []int64{100}}
	miners := &fakeParticipation{miners: []participation.Miner{{Address: "9miner1", Percentage: pct("100")}}}

	cases := []struct {
		name string
		cfg  DemurrageConfig
		want string
	}{
		{
			name: "collector error",
			cfg: DemurrageConfig{
				Collector:     &fakeCollector{err: errors.New("explorer down")},
				Participation: miners,
				Balances:      &fakeBalances{nanoErgs: fees.NanoErgPerErg},
			},
			want: "failed to collect block heights",
		},
		{
			name: "participation error",
			cfg: DemurrageConfig{
				Collector:     heights,
				Participation: &fakeParticipation{err: errors.New("api down")},
				Balances:      &fakeBalances{nanoErgs: fees.NanoErgPerErg},
			},
			want: "failed to fetch participation",
		},
		{
			name: "balance error",
			cfg: DemurrageConfig{
				Collector:     heights,
				Participation: miners,
				Balances:      &fakeBalances{err: errors.New("timeout")},
			},
			want: "failed to fetch wallet balance",
		},
		{
			name: "insufficient funds",
			cfg: DemurrageConfig{
				Collector:     heights,
				Participation: miners,
				Balances:      &fakeBalances{nanoErgs: 1_000_000},
			},
			want: "insufficient balance",
		},
		{
			name: "wallet locked",
			cfg: DemurrageConfig{
				Collector:     heights,
				Participation: miners,
				Balances:      &fakeBalances{nanoErgs: fees.NanoErgPerErg},
				Wallet:        &fakeWallet{unlockErr: node.ErrWalletLocked},
			},
			want: "locked",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tc.cfg.OutputDir = t.TempDir()
			d := newDemurrage(t, tc.cfg)
			result := d.Run(context.Background(), false)
			require.Equal(t, StatusFailed, result.Status)
			require.Contains(t, result.Error, tc.want)
			require.True(t, result.Failed())
		})
	}
}

func TestErgoDist_Demurrage_SendFailureIsFailedResult(t *testing.T) {
	t.Parallel()

	d := newDemurrage(t, DemurrageConfig{
		Collector:     &fakeCollector{heights: []int64{100}},
		Participation: &fakeParticipation{miners: []participation.Miner{{Address: "9miner1", Percentage: pct("100")}}},
		Balances:      &fakeBalances{nanoErgs: fees.NanoErgPerErg},
		Wallet:        &fakeWallet{sendErr: errors.New("node rejected payment")},
		OutputDir:     t.TempDir(),
	})

	result := d.Run(context.Background(), false)
	require.Equal(t, StatusFailed, result.Status)
	require.Contains(t, result.Error, "failed to submit payment")
}

func TestErgoDist_ExplorerTxURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://api.ergoplatform.com/transactions/tx1",
		ExplorerTxURL("https://api.ergoplatform.com/api/v1", "tx1"))
	require.Equal(t, "https://explorer.example.com/transactions/tx1",
		ExplorerTxURL("https://explorer.example.com/", "tx1"))
}
