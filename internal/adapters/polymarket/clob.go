package polymarket

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const bookPath = "/book"

// GetOrderbook implementa ports.BookProvider.
// Un único intento: el loop trata el book ausente como "saltar candidato",
// así que aquí no hay reintentos.
func (c *Client) GetOrderbook(ctx context.Context, tokenID string) (domain.OrderBook, bool) {
	if tokenID == "" {
		return domain.OrderBook{}, false
	}

	u := c.clobBase + bookPath + "?token_id=" + url.QueryEscape(tokenID)
	var resp bookResponse
	if err := c.getOnce(ctx, c.bookLimiter, u, &resp); err != nil {
		slog.Debug("order book fetch failed", "token", domain.ShortID(tokenID), "err", err)
		return domain.OrderBook{}, false
	}

	book := mapOrderBook(tokenID, resp)
	if book.IsEmpty() {
		slog.Debug("order book empty",
			"token", domain.ShortID(tokenID),
			"bids", len(book.Bids),
			"asks", len(book.Asks),
		)
		return domain.OrderBook{}, false
	}
	return book, true
}
