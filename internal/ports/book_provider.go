package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// BookProvider obtiene el orderbook de un token del CLOB.
type BookProvider interface {
	// GetOrderbook devuelve el book con ambos lados no vacíos, o false si el
	// book no existe, está vacío o no se pudo obtener.
	GetOrderbook(ctx context.Context, tokenID string) (domain.OrderBook, bool)
}
