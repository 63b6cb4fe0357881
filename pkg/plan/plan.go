// Package plan defines the distribution plan artifact: the JSON document
// written for dry runs and audits and handed to the transaction layer.
// Plans are created fresh each run and never mutated after generation.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/sigmanauts/ergodist/pkg/participation"
)

// Recipient is one output of a distribution.
type Recipient struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// Distribution is a set of recipients for one token.
type Distribution struct {
	TokenName string `json:"token_name"`
	// TokenID is empty for ERG. Used by the bonus config file.
	TokenID            string      `json:"token_id,omitempty"`
	Decimals           int         `json:"decimals,omitempty"`
	TotalAmount        float64     `json:"total_amount,omitempty"`
	AmountPerRecipient float64     `json:"amount_per_recipient,omitempty"`
	Recipients         []Recipient `json:"recipients"`
}

// Plan is the persisted distribution artifact.
type Plan struct {
	Distributions []Distribution `json:"distributions"`
}

// FromAllocations builds a single-token plan from allocator output.
func FromAllocations(tokenName string, allocs []participation.Allocation) *Plan {
	recipients := make([]Recipient, 0, len(allocs))
	for _, a := range allocs {
		recipients = append(recipients, Recipient{
			Address: a.Address,
			Amount:  a.Amount.InexactFloat64(),
		})
	}
	return &Plan{Distributions: []Distribution{{TokenName: tokenName, Recipients: recipients}}}
}

// Validate checks the structural invariants of a plan before it reaches the
// transaction layer.
func (p *Plan) Validate() error {
	if len(p.Distributions) == 0 {
		return errors.New("plan has no distributions")
	}
	for _, d := range p.Distributions {
		if d.TokenName == "" {
			return errors.New("distribution is missing a token name")
		}
		for _, r := range d.Recipients {
			if r.Address == "" {
				return fmt.Errorf("distribution %q has a recipient with no address", d.TokenName)
			}
			if r.Amount <= 0 {
				return fmt.Errorf("distribution %q has a non-positive amount for %s", d.TokenName, r.Address)
			}
		}
	}
	return nil
}

// RecipientCount returns the total recipients across all distributions.
func (p *Plan) RecipientCount() int {
	n := 0
	for _, d := range p.Distributions {
		n += len(d.Recipients)
	}
	return n
}

// Total sums the recipient amounts of one distribution as a decimal.
func (d Distribution) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range d.Recipients {
		total = total.Add(decimal.NewFromFloat(r.Amount))
	}
	return total
}

// Save writes the plan as indented JSON, creating parent directories as
// needed.
func (p *Plan) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create plan directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan to %s: %w", path, err)
	}
	return nil
}

// Load reads a plan (or bonus config, which shares the shape) from disk.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan from %s: %w", path, err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	return &p, nil
}
