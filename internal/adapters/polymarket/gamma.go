package polymarket

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const (
	gammaMarketsPath  = "/markets"
	defaultFetchLimit = 100
)

// ListTradableMarkets implementa ports.MarketGateway.
// Pide a Gamma los mercados activos ordenados por volumen 24h y se queda con
// los tradables. Un fallo de red o un status no-2xx devuelve lista vacía y
// Total=0: no es un error para el loop, solo un scan sin candidatos.
func (c *Client) ListTradableMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, domain.ScanStats) {
	limit := filter.FetchLimit
	if limit <= 0 {
		limit = defaultFetchLimit
	}

	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("archived", "false")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	u := c.gammaBase + gammaMarketsPath + "?" + q.Encode()

	var raw []gammaMarket
	if err := c.get(ctx, c.gammaLimiter, u, &raw); err != nil {
		slog.Warn("gamma market listing failed", "err", err)
		return nil, domain.ScanStats{}
	}

	markets := make([]domain.Market, 0, len(raw))
	discarded := make(map[discardReason]int)
	for _, gm := range raw {
		m, reason := mapGammaMarket(gm, filter)
		if reason != "" {
			discarded[reason]++
			continue
		}
		markets = append(markets, m)
	}

	stats := domain.ScanStats{
		Total:     len(raw),
		Tradable:  len(markets),
		Discarded: len(raw) - len(markets),
	}

	slog.Debug("gamma markets listed",
		"total", stats.Total,
		"tradable", stats.Tradable,
		"not_tradable", discarded[discardFlags],
		"no_tokens", discarded[discardNoTokens],
		"not_binary", discarded[discardNotBinary],
		"category", discarded[discardCategory],
	)
	return markets, stats
}
