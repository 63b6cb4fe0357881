package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigmanauts/ergodist/pkg/explorer"
	"github.com/sigmanauts/ergodist/pkg/testutil"
)

const wallet = "9fWalletAddr"

type fakeExplorer struct {
	pages []explorer.TransactionPage
	err   error
	calls int
}

func (f *fakeExplorer) Transactions(ctx context.Context, address string, offset, limit int, concise bool) (*explorer.TransactionPage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	page := offset / limit
	if page >= len(f.pages) {
		return &explorer.TransactionPage{}, nil
	}
	return &f.pages[page], nil
}

func tx(id string, height int64, fromWallet bool) explorer.Transaction {
	t := explorer.Transaction{ID: id, InclusionHeight: height}
	addr := "9fSomeoneElse"
	if fromWallet {
		addr = wallet
	}
	t.Inputs = []explorer.Box{{Address: addr, Value: 1_000_000}}
	return t
}

func newCollector(t *testing.T, src TransactionSource, pageSize int) *Collector {
	t.Helper()
	c, err := New(Config{
		Logger:        testutil.NewLogger(),
		Explorer:      src,
		WalletAddress: wallet,
		PageSize:      pageSize,
		MaxPages:      5,
	})
	require.NoError(t, err)
	return c
}

func TestErgoDist_Collector_LatestOutgoingHeight(t *testing.T) {
	t.Parallel()

	src := &fakeExplorer{pages: []explorer.TransactionPage{
		{Items: []explorer.Transaction{
			tx("in1", 1510299, false),
			tx("out1", 1510211, true),
			tx("out2", 1509996, true),
		}},
	}}

	c := newCollector(t, src, 3)
	ref, err := c.LatestOutgoingHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1510211), ref)
}

func TestErgoDist_Collector_LatestOutgoingHeight_NotFound(t *testing.T) {
	t.Parallel()

	src := &fakeExplorer{pages: []explorer.TransactionPage{
		{Items: []explorer.Transaction{tx("in1", 100, false), tx("in2", 99, false)}},
	}}

	c := newCollector(t, src, 2)
	ref, err := c.LatestOutgoingHeight(context.Background())
	require.NoError(t, err)
	require.Zero(t, ref)
}

func TestErgoDist_Collector_LatestOutgoingHeight_ErrorIsFatal(t *testing.T) {
	t.Parallel()

	src := &fakeExplorer{err: errors.New("explorer down")}
	c := newCollector(t, src, 10)

	_, err := c.LatestOutgoingHeight(context.Background())
	require.Error(t, err)

	_, err = c.BlocksSinceLastOutgoing(context.Background())
	require.Error(t, err)
}

func TestErgoDist_Collector_HeightsSince_DedupedSortedAboveRef(t *testing.T) {
	t.Parallel()

	// Heights intentionally out of descending order: acceptance-time
	// ordering does not guarantee height ordering.
	src := &fakeExplorer{pages: []explorer.TransactionPage{
		{Items: []explorer.Transaction{
			tx("a", 1510299, false),
			tx("b", 1509846, false), // below newer tx, must still be collected
			tx("c", 1510211, false),
		}},
		{Items: []explorer.Transaction{
			tx("d", 1510211, false), // duplicate height
			tx("e", 1509000, false), // at/below ref, excluded
		}},
	}}

	c := newCollector(t, src, 3)
	heights, err := c.HeightsSince(context.Background(), 1509000)
	require.NoError(t, err)
	require.Equal(t, []int64{1509846, 1510211, 1510299}, heights)

	for i := 1; i < len(heights); i++ {
		require.Greater(t, heights[i], heights[i-1])
	}
}

func TestErgoDist_Collector_HeightsSince_StopsOnShortPage(t *testing.T) {
	t.Parallel()

	src := &fakeExplorer{pages: []explorer.TransactionPage{
		{Items: []explorer.Transaction{tx("a", 200, false)}}, // short page (size < 3)
	}}

	c := newCollector(t, src, 3)
	heights, err := c.HeightsSince(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, []int64{200}, heights)
	require.Equal(t, 1, src.calls)
}

func TestErgoDist_Collector_HeightsSince_PageCapBoundsScan(t *testing.T) {
	t.Parallel()

	full := explorer.TransactionPage{Items: []explorer.Transaction{
		tx("a", 201, false), tx("b", 202, false),
	}}
	src := &fakeExplorer{pages: []explorer.TransactionPage{
		full, full, full, full, full, full, full, full, full, full,
	}}

	c := newCollector(t, src, 2)
	_, err := c.HeightsSince(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 5, src.calls) // MaxPages
}

func TestErgoDist_Collector_BlocksSinceLastOutgoing_ScanErrorDegrades(t *testing.T) {
	t.Parallel()

	src := &scanFailingExplorer{}
	c := newCollector(t, src, 2)

	heights, err := c.BlocksSinceLastOutgoing(context.Background())
	require.NoError(t, err)
	require.Empty(t, heights)
}

// scanFailingExplorer serves the reference lookup then fails the re-scan.
type scanFailingExplorer struct {
	calls int
}

func (f *scanFailingExplorer) Transactions(ctx context.Context, address string, offset, limit int, concise bool) (*explorer.TransactionPage, error) {
	f.calls++
	if f.calls == 1 {
		return &explorer.TransactionPage{Items: []explorer.Transaction{tx("out", 500, true)}}, nil
	}
	return nil, errors.New("explorer down")
}
