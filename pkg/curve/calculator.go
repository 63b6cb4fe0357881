package curve

import (
	"errors"
	"fmt"
)

// Params defines a distribution window. Immutable per run.
type Params struct {
	StartHeight    int64
	EndHeight      int64
	TotalTokens    int64
	TokensPerRound int64
	RecipientCount int
}

func (p Params) Validate() error {
	if p.EndHeight <= p.StartHeight {
		return errors.New("end height must be greater than start height")
	}
	if p.RecipientCount <= 0 {
		return errors.New("recipient count must be greater than 0")
	}
	if p.TokensPerRound <= 0 {
		return errors.New("tokens per round must be greater than 0")
	}
	return nil
}

// Calculator derives per-height token counts from a window and a curve.
type Calculator struct {
	params      Params
	fn          Func
	totalBlocks int64
}

// NewCalculator validates the parameters and curve type at construction time.
func NewCalculator(params Params, curveType Type) (*Calculator, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid distribution params: %w", err)
	}
	fn, err := Lookup(curveType)
	if err != nil {
		return nil, err
	}
	return &Calculator{
		params:      params,
		fn:          fn,
		totalBlocks: params.EndHeight - params.StartHeight,
	}, nil
}

// Params returns the window parameters.
func (c *Calculator) Params() Params { return c.params }

// TokensForHeight returns the token count releasable at height. The count is
// floored to a whole multiple of the recipient count; any remainder below one
// full recipient share is dropped, not carried forward.
func (c *Calculator) TokensForHeight(height int64) int64 {
	p := Progress(height, c.params.StartHeight, c.params.EndHeight)
	tokensThisRound := int64(float64(c.params.TokensPerRound) * c.fn(p))
	perRecipient := tokensThisRound / int64(c.params.RecipientCount)
	return perRecipient * int64(c.params.RecipientCount)
}

// DefaultSamplePoints is the sample count used by EstimateTotal when the
// caller passes 0.
const DefaultSamplePoints = 1000

// EstimateTotal estimates the total tokens distributed over the whole window
// by sampling the curve at evenly spaced heights and scaling the average to
// the window length. A heuristic: callers adjusting the rate should
// re-simulate the schedule afterwards to confirm convergence.
func (c *Calculator) EstimateTotal(samplePoints int) float64 {
	if samplePoints <= 1 {
		samplePoints = DefaultSamplePoints
	}

	var total int64
	for i := 0; i < samplePoints; i++ {
		progress := float64(i) / float64(samplePoints-1)
		height := c.params.StartHeight + int64(progress*float64(c.totalBlocks))
		total += c.TokensForHeight(height)
	}

	avgPerPoint := float64(total) / float64(samplePoints)
	return avgPerPoint * float64(c.totalBlocks)
}

// CalibratedTokensPerRound rescales TokensPerRound so the estimated total
// over the window matches TotalTokens.
func (c *Calculator) CalibratedTokensPerRound() (int64, error) {
	estimated := c.EstimateTotal(DefaultSamplePoints)
	if estimated <= 0 {
		return 0, errors.New("estimated total distribution is zero, cannot calibrate")
	}
	factor := float64(c.params.TotalTokens) / estimated
	return int64(float64(c.params.TokensPerRound) * factor), nil
}
