// Package fees computes the minimum ERG required to safely execute a
// multi-output transaction.
package fees

import (
	"errors"
	"fmt"
)

// NanoErgPerErg is the nanoERG/ERG conversion factor.
const NanoErgPerErg = 1_000_000_000

// Protocol-level defaults, in nanoERG.
const (
	DefaultMinBoxValue  = 1_000_000 // 0.001 ERG
	DefaultTxFee        = 1_000_000 // 0.001 ERG
	DefaultWalletBuffer = 1_000_000 // 0.001 ERG safety margin left in the wallet
)

// ErrInsufficientFunds is returned when the wallet balance cannot cover the
// transaction costs. The distribution is aborted, never retried.
var ErrInsufficientFunds = errors.New("insufficient balance for distribution")

// Estimator holds the per-transaction cost parameters, in nanoERG.
type Estimator struct {
	MinBoxValue  int64
	TxFee        int64
	WalletBuffer int64
}

// NewEstimator applies defaults for any unset parameter.
func NewEstimator(minBoxValue, txFee, walletBuffer int64) Estimator {
	if minBoxValue <= 0 {
		minBoxValue = DefaultMinBoxValue
	}
	if txFee <= 0 {
		txFee = DefaultTxFee
	}
	if walletBuffer <= 0 {
		walletBuffer = DefaultWalletBuffer
	}
	return Estimator{MinBoxValue: minBoxValue, TxFee: txFee, WalletBuffer: walletBuffer}
}

// TotalCost returns the nanoERG consumed by fees and box minimums for a
// transaction with outputCount recipient boxes plus one change box.
func (e Estimator) TotalCost(outputCount int) int64 {
	return int64(outputCount)*e.MinBoxValue + e.TxFee + e.WalletBuffer + e.MinBoxValue
}

// Available returns the nanoERG left for distribution after costs, or
// ErrInsufficientFunds when nothing remains.
func (e Estimator) Available(walletBalance int64, outputCount int) (int64, error) {
	costs := e.TotalCost(outputCount)
	available := walletBalance - costs
	if available <= 0 {
		return 0, fmt.Errorf("%w: need %s ERG for costs, have %s ERG",
			ErrInsufficientFunds, FormatErg(costs), FormatErg(walletBalance))
	}
	return available, nil
}

// FormatErg renders a nanoERG amount as a decimal ERG string.
func FormatErg(nanoErg int64) string {
	sign := ""
	if nanoErg < 0 {
		sign = "-"
		nanoErg = -nanoErg
	}
	return fmt.Sprintf("%s%d.%09d", sign, nanoErg/NanoErgPerErg, nanoErg%NanoErgPerErg)
}
