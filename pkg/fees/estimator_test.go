package fees

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErgoDist_Fees_TotalCost(t *testing.T) {
	t.Parallel()

	e := NewEstimator(0, 0, 0)

	// 10 recipients at 0.001 each + 0.001 fee + 0.001 buffer + 0.001 change
	// box = 0.013 ERG.
	require.Equal(t, int64(13_000_000), e.TotalCost(10))
	require.Equal(t, "0.013000000", FormatErg(e.TotalCost(10)))
}

func TestErgoDist_Fees_Available(t *testing.T) {
	t.Parallel()

	e := NewEstimator(0, 0, 0)

	available, err := e.Available(1*NanoErgPerErg, 10)
	require.NoError(t, err)
	require.Equal(t, int64(987_000_000), available)
	require.Equal(t, "0.987000000", FormatErg(available))
}

func TestErgoDist_Fees_InsufficientFunds(t *testing.T) {
	t.Parallel()

	e := NewEstimator(0, 0, 0)

	_, err := e.Available(10_000_000, 10) // 0.01 ERG < 0.013 ERG costs
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInsufficientFunds))

	// Exactly covering costs still fails: nothing left to distribute.
	_, err = e.Available(e.TotalCost(10), 10)
	require.True(t, errors.Is(err, ErrInsufficientFunds))
}

func TestErgoDist_Fees_Defaults(t *testing.T) {
	t.Parallel()

	e := NewEstimator(0, 0, 0)
	require.Equal(t, int64(DefaultMinBoxValue), e.MinBoxValue)
	require.Equal(t, int64(DefaultTxFee), e.TxFee)
	require.Equal(t, int64(DefaultWalletBuffer), e.WalletBuffer)

	custom := NewEstimator(2_000_000, 3_000_000, 4_000_000)
	require.Equal(t, int64(2_000_000), custom.MinBoxValue)
	require.Equal(t, int64(3_000_000), custom.TxFee)
	require.Equal(t, int64(4_000_000), custom.WalletBuffer)
}

func TestErgoDist_Fees_FormatErg(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0.000000000", FormatErg(0))
	require.Equal(t, "1.500000000", FormatErg(1_500_000_000))
	require.Equal(t, "-0.500000000", FormatErg(-500_000_000))
	require.Equal(t, "-1.500000000", FormatErg(-1_500_000_000))
}
