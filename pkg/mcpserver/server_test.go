package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigmanauts/ergodist/pkg/explorer"
	"github.com/sigmanauts/ergodist/pkg/fees"
	"github.com/sigmanauts/ergodist/pkg/recipients"
	"github.com/sigmanauts/ergodist/pkg/service"
	"github.com/sigmanauts/ergodist/pkg/testutil"
)

const validMainnetAddr = "9iAFh6SzzSbowjsJPaRQwJfx4Ts4EzXt78UVGLgGaYTdab8SiEt"

type fakeExplorer struct {
	balance *explorer.Balance
	tx      *explorer.Transaction
	err     error
}

func (f *fakeExplorer) ConfirmedBalance(ctx context.Context, addr string) (*explorer.Balance, error) {
	return f.balance, f.err
}

func (f *fakeExplorer) TransactionByID(ctx context.Context, txID string) (*explorer.Transaction, error) {
	return f.tx, f.err
}

func (f *fakeExplorer) NetworkInfo(ctx context.Context) (*explorer.NetworkInfo, error) {
	return &explorer.NetworkInfo{Height: 1_300_000}, f.err
}

type fakeCollector struct {
	heights []int64
	err     error
}

func (f *fakeCollector) BlocksSinceLastOutgoing(ctx context.Context) ([]int64, error) {
	return f.heights, f.err
}

type fakeMinerLister struct {
	miners []recipients.Recipient
	err    error
}

func (f *fakeMinerLister) Fetch(ctx context.Context) ([]recipients.Recipient, error) {
	return f.miners, f.err
}

type fakeDemurrage struct {
	result service.Result
	dryRun bool
}

func (f *fakeDemurrage) Run(ctx context.Context, dryRun bool) service.Result {
	f.dryRun = dryRun
	return f.result
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewLogger()
	}
	if cfg.Explorer == nil {
		cfg.Explorer = &fakeExplorer{}
	}
	if cfg.Estimator == (fees.Estimator{}) {
		cfg.Estimator = fees.NewEstimator(0, 0, 0)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestErgoDist_MCP_Balance(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{
		Explorer: &fakeExplorer{balance: &explorer.Balance{
			NanoErgs: 1_500_000_000,
			Tokens:   []explorer.TokenValue{{TokenID: "tok", Amount: 5}},
		}},
	})

	out, err := s.balance(context.Background(), validMainnetAddr)
	require.NoError(t, err)
	require.Equal(t, int64(1_500_000_000), out.NanoErgs)
	require.Equal(t, "1.500000000", out.Erg)
	require.Len(t, out.Tokens, 1)
}

func TestErgoDist_MCP_ValidateAddress(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{NetworkType: "mainnet"})

	out := s.validateAddress(validMainnetAddr)
	require.True(t, out.Valid)
	require.Empty(t, out.Reason)

	out = s.validateAddress("not-base58!")
	require.False(t, out.Valid)
	require.NotEmpty(t, out.Reason)
}

func TestErgoDist_MCP_TransactionInfo(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{
		Explorer: &fakeExplorer{tx: &explorer.Transaction{
			ID:              "tx1",
			InclusionHeight: 1_234_567,
			Confirmations:   12,
			Inputs:          []explorer.Box{{}},
			Outputs:         []explorer.Box{{}, {}},
		}},
	})

	out, err := s.transactionInfo(context.Background(), "tx1")
	require.NoError(t, err)
	require.Equal(t, int64(1_234_567), out.InclusionHeight)
	require.Equal(t, 1, out.Inputs)
	require.Equal(t, 2, out.Outputs)

	_, err = s.transactionInfo(context.Background(), "")
	require.Error(t, err)
}

func TestErgoDist_MCP_BlocksSince(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{Collector: &fakeCollector{heights: []int64{10, 11, 13}}})
	out, err := s.blocksSince(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, out.Count)
	require.Equal(t, []int64{10, 11, 13}, out.Heights)

	s = newTestServer(t, Config{})
	_, err = s.blocksSince(context.Background())
	require.ErrorContains(t, err, "collector is not configured")

	s = newTestServer(t, Config{Collector: &fakeCollector{err: errors.New("explorer down")}})
	_, err = s.blocksSince(context.Background())
	require.Error(t, err)
}

func TestErgoDist_MCP_PoolMiners(t *testing.T) {
	t.Parallel()

	miners := make([]recipients.Recipient, 150)
	for i := range miners {
		miners[i] = recipients.Recipient{Address: fmt.Sprintf("9addr%03d", i)}
	}
	s := newTestServer(t, Config{Miners: &fakeMinerLister{miners: miners}})

	out, err := s.poolMiners(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 150, out.Count)
	// The address sample is capped, the count is not.
	require.Len(t, out.Addresses, 100)
	require.Equal(t, "9addr000", out.Addresses[0])

	out, err = s.poolMiners(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 150, out.Count)
	require.Len(t, out.Addresses, 3)

	s = newTestServer(t, Config{})
	_, err = s.poolMiners(context.Background(), 0)
	require.ErrorContains(t, err, "miner list is not configured")

	s = newTestServer(t, Config{Miners: &fakeMinerLister{err: errors.New("sigscore down")}})
	_, err = s.poolMiners(context.Background(), 0)
	require.Error(t, err)
}

func TestErgoDist_MCP_EstimateCosts(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{})

	out, err := s.estimateCosts(10)
	require.NoError(t, err)
	require.Equal(t, int64(13_000_000), out.TotalCostNano)
	require.Equal(t, "0.013000000", out.TotalCostErg)

	_, err = s.estimateCosts(0)
	require.Error(t, err)
}

func TestErgoDist_MCP_CurveSchedule(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{})

	out, err := s.curveSchedule(curveArgs{
		CurveType:      "linear",
		StartHeight:    0,
		EndHeight:      100,
		TotalTokens:    1_000_000,
		TokensPerRound: 10_000,
		RecipientCount: 10,
		SampleHeights:  5,
	})
	require.NoError(t, err)
	require.Equal(t, "linear", out.CurveType)
	require.Len(t, out.Schedule, 5)
	require.Equal(t, int64(0), out.Schedule[0].Height)
	require.Equal(t, int64(100), out.Schedule[4].Height)
	// Midpoint of a linear ramp pays half the per-round rate.
	require.Equal(t, int64(5_000), out.Schedule[2].Tokens)
	require.Positive(t, out.CalibratedPerRound)
	require.Positive(t, out.EstimatedTotal)

	_, err = s.curveSchedule(curveArgs{CurveType: "spiral", StartHeight: 0, EndHeight: 10, TotalTokens: 1, TokensPerRound: 1, RecipientCount: 1})
	require.Error(t, err)
}

func TestErgoDist_MCP_PreviewIsAlwaysDryRun(t *testing.T) {
	t.Parallel()

	runner := &fakeDemurrage{result: service.Result{Service: "demurrage", Status: service.StatusDryRun}}
	s := newTestServer(t, Config{Demurrage: runner})

	result := s.cfg.Demurrage.Run(context.Background(), true)
	require.Equal(t, service.StatusDryRun, result.Status)
	require.True(t, runner.dryRun)
}
