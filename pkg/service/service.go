// Package service orchestrates the distribution runs: demurrage (ERG to
// miners, participation-weighted) and bonus (token payouts from a plan
// file). Each run is a single attempt producing a structured Result; any
// failure mid-run becomes a failed Result, never a partial retry.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sigmanauts/ergodist/pkg/node"
)

// Status is the terminal state of a distribution run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusDryRun    Status = "dry_run"
	StatusFailed    Status = "failed"
)

// Result is the structured outcome of one distribution run.
type Result struct {
	Service        string `json:"service"`
	Status         Status `json:"status"`
	RunID          string `json:"run_id"`
	TxID           string `json:"tx_id,omitempty"`
	ExplorerURL    string `json:"explorer_url,omitempty"`
	RecipientCount int    `json:"recipient_count"`
	PlanPath       string `json:"plan_path,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Failed reports whether the run ended in failure.
func (r Result) Failed() bool { return r.Status == StatusFailed }

func newResult(service string) Result {
	return Result{Service: service, RunID: uuid.NewString()}
}

func (r Result) failed(err error) Result {
	r.Status = StatusFailed
	r.Error = err.Error()
	return r
}

// WalletClient is the slice of the node client the services need.
type WalletClient interface {
	RequireUnlocked(ctx context.Context) error
	WalletBalances(ctx context.Context) (*node.WalletBalances, error)
	SendPayment(ctx context.Context, outputs []node.PaymentOutput) (string, error)
}

// ExplorerTxURL builds a human-facing explorer link for a transaction from
// the API base URL.
func ExplorerTxURL(apiBase, txID string) string {
	base := strings.TrimRight(apiBase, "/")
	base = strings.TrimSuffix(base, "/api/v1")
	return fmt.Sprintf("%s/transactions/%s", base, txID)
}
