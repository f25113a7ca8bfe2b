package market

import (
	"context"

	"tradeterm/internal/client"
	"tradeterm/internal/domain"
)

// Sizer derives order volume from an accepted account-currency loss. The
// computation is a pure function of the request and the instrument's current
// tick economics; the resulting volume is step-aligned, so the realized risk
// is within half a volume step of the requested amount.
type Sizer struct {
	catalog *Catalog
}

func NewSizer(c *Catalog) *Sizer {
	return &Sizer{catalog: c}
}

// CalculateVolume returns the volume whose loss over the request's stop
// distance approximates the requested risk amount.
func (s *Sizer) CalculateVolume(ctx context.Context, req domain.RiskRequest) (float64, error) {
	if req.StopLossPoints <= 0 {
		return 0, client.Validationf("stop distance must be positive, got %v points", req.StopLossPoints)
	}
	if req.RiskAmount <= 0 {
		return 0, client.Validationf("risk amount must be positive, got %v", req.RiskAmount)
	}

	meta, err := s.catalog.SymbolInfo(ctx, req.Symbol)
	if err != nil {
		return 0, err
	}
	if meta.TickSize <= 0 || meta.TickValue <= 0 || meta.Point <= 0 {
		return 0, client.Validationf("instrument %s reports unusable tick economics (tick_value=%v tick_size=%v point=%v)",
			req.Symbol, meta.TickValue, meta.TickSize, meta.Point)
	}
	if err := checkVolumeConstraints(req.Symbol, meta); err != nil {
		return 0, err
	}

	valuePerPoint := meta.TickValue / meta.TickSize * meta.Point
	raw := req.RiskAmount / (req.StopLossPoints * valuePerPoint)
	return AlignVolume(raw, meta), nil
}
