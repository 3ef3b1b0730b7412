package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// TradeExecutor executes one sized order, simulated or live.
type TradeExecutor interface {
	// Execute returns ok=false when the order was rejected or could not be
	// submitted. The only errors returned are domain.ErrInsufficientFunds
	// (fatal to the run) and context cancellation.
	Execute(ctx context.Context, req domain.ExecutionRequest) (domain.Trade, bool, error)
}

// OrderPlacer signs and submits a single order to the CLOB.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order domain.OrderRequest) (domain.PlacedOrder, error)
}

// BalanceSource reads the wallet's trading and gas balances.
type BalanceSource interface {
	Balances(ctx context.Context) (domain.Balances, error)
}
