package market

import (
	"context"
	"math"

	"tradeterm/internal/client"
	"tradeterm/internal/domain"
)

// RoundPrice rounds p to the given number of decimal digits.
func RoundPrice(p float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(p*scale) / scale
}

// AlignVolume clamps v into the instrument's [min, max] range and rounds it
// to the nearest multiple of the volume step. The result is rounded once
// more to the step's own precision to shed binary float residue, so 0.157
// with a 0.01 step comes out as 0.16, not 0.16000000000000003.
func AlignVolume(v float64, meta domain.InstrumentMetadata) float64 {
	if v < meta.VolumeMin {
		v = meta.VolumeMin
	}
	if v > meta.VolumeMax {
		v = meta.VolumeMax
	}
	v = math.Round(v/meta.VolumeStep) * meta.VolumeStep
	v = RoundPrice(v, stepDecimals(meta.VolumeStep))

	// Rounding to a step multiple can step past a bound when the bound
	// itself is not on the grid.
	if v > meta.VolumeMax {
		v = RoundPrice(math.Floor(meta.VolumeMax/meta.VolumeStep)*meta.VolumeStep, stepDecimals(meta.VolumeStep))
	}
	if v < meta.VolumeMin {
		v = RoundPrice(math.Ceil(meta.VolumeMin/meta.VolumeStep)*meta.VolumeStep, stepDecimals(meta.VolumeStep))
	}
	return v
}

// stepDecimals returns the number of decimal places needed to represent
// step exactly, capped at 8.
func stepDecimals(step float64) int {
	for d := 0; d <= 8; d++ {
		scaled := step * math.Pow(10, float64(d))
		if math.Abs(scaled-math.Round(scaled)) < 1e-9 {
			return d
		}
	}
	return 8
}

// Normalizer aligns caller-supplied prices and volumes to the constraints
// the broker reports for an instrument. Every call fetches metadata fresh.
type Normalizer struct {
	catalog *Catalog
}

func NewNormalizer(c *Catalog) *Normalizer {
	return &Normalizer{catalog: c}
}

// NormalizePrice rounds price to the instrument's quote precision.
func (n *Normalizer) NormalizePrice(ctx context.Context, symbol string, price float64) (float64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, client.Validationf("price must be a positive finite number, got %v", price)
	}
	meta, err := n.catalog.SymbolInfo(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if meta.Digits < 0 {
		return 0, client.Validationf("instrument %s reports invalid digits %d", symbol, meta.Digits)
	}
	return RoundPrice(price, meta.Digits), nil
}

// NormalizeVolume clamps volume to the instrument's volume range and aligns
// it to the volume step.
func (n *Normalizer) NormalizeVolume(ctx context.Context, symbol string, volume float64) (float64, error) {
	if math.IsNaN(volume) || math.IsInf(volume, 0) || volume <= 0 {
		return 0, client.Validationf("volume must be a positive finite number, got %v", volume)
	}
	meta, err := n.catalog.SymbolInfo(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if err := checkVolumeConstraints(symbol, meta); err != nil {
		return 0, err
	}
	return AlignVolume(volume, meta), nil
}

func checkVolumeConstraints(symbol string, meta domain.InstrumentMetadata) error {
	if meta.VolumeStep <= 0 || meta.VolumeMin <= 0 || meta.VolumeMax < meta.VolumeMin {
		return client.Validationf("instrument %s reports unusable volume constraints (min=%v max=%v step=%v)",
			symbol, meta.VolumeMin, meta.VolumeMax, meta.VolumeStep)
	}
	return nil
}
