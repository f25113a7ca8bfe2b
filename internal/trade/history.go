package trade

import (
	"context"
	"time"

	"tradeterm/internal/client"
	"tradeterm/internal/domain"
	"tradeterm/internal/terminal"
)

type historyParams struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// HistoryOrders returns completed orders in [from, to].
func (g *Gateway) HistoryOrders(ctx context.Context, from, to time.Time) ([]domain.HistoryOrder, error) {
	if to.Before(from) {
		return nil, client.Validationf("history range end %v precedes start %v", to, from)
	}
	var orders []domain.HistoryOrder
	if err := g.caller.Do(ctx, terminal.MethodHistoryOrders, historyParams{From: from, To: to}, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// HistoryDeals returns executed deals (fills) in [from, to].
func (g *Gateway) HistoryDeals(ctx context.Context, from, to time.Time) ([]domain.HistoryDeal, error) {
	if to.Before(from) {
		return nil, client.Validationf("history range end %v precedes start %v", to, from)
	}
	var deals []domain.HistoryDeal
	if err := g.caller.Do(ctx, terminal.MethodHistoryDeals, historyParams{From: from, To: to}, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}
