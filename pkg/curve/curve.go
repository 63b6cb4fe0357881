// Package curve implements the token release schedules used by longer-running
// distributions: a progress ratio over a block-height window is mapped through
// a named curve to a per-round release fraction.
package curve

import (
	"fmt"
	"math"
)

// Type names a release curve.
type Type string

const (
	Linear           Type = "linear"
	Quadratic        Type = "quadratic"
	InverseQuadratic Type = "inverse_quadratic"
	Sine             Type = "sine"
	Gaussian         Type = "gaussian"
	Logarithmic      Type = "logarithmic"
)

// Func maps a progress ratio in [0,1] to a release fraction in [0,1].
type Func func(progress float64) float64

var curves = map[Type]Func{
	Linear:           func(p float64) float64 { return p },
	Quadratic:        func(p float64) float64 { return p * p },
	InverseQuadratic: func(p float64) float64 { return 1 - (1-p)*(1-p) },
	Sine: func(p float64) float64 {
		return (math.Sin(p*math.Pi-math.Pi/2) + 1) / 2
	},
	Gaussian: func(p float64) float64 {
		// Peak at p=0.5, scaled so the curve fits the window.
		x := (p - 0.5) * 6
		return math.Exp(-(x * x) / 2)
	},
	Logarithmic: func(p float64) float64 {
		if p <= 0 {
			return 0
		}
		return math.Log10(1 + 9*p)
	},
}

// Lookup returns the curve function for a type, or an error for unknown types.
func Lookup(t Type) (Func, error) {
	fn, ok := curves[t]
	if !ok {
		return nil, fmt.Errorf("unsupported distribution curve: %q", t)
	}
	return fn, nil
}

// Types returns the supported curve type names.
func Types() []Type {
	return []Type{Linear, Quadratic, InverseQuadratic, Sine, Gaussian, Logarithmic}
}

// Progress returns the position of height within [start, end] as a ratio,
// clamped to [0,1].
func Progress(height, start, end int64) float64 {
	if height <= start {
		return 0
	}
	if height >= end {
		return 1
	}
	return float64(height-start) / float64(end-start)
}
