package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// MarketGateway lista los mercados binarios tradables del exchange.
type MarketGateway interface {
	// ListTradableMarkets devuelve los mercados que pasan los flags de
	// tradabilidad y el filtro dado, en el orden del exchange.
	// Nunca devuelve error: ante un fallo registra un warning y devuelve
	// una lista vacía con stats en cero.
	ListTradableMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, domain.ScanStats)
}
