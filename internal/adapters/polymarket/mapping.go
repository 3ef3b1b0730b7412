package polymarket

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Etiquetas de outcome reconocidas como lado positivo / negativo.
var (
	positiveLabels = []string{"yes", "true", "will happen", "hit", "over"}
	negativeLabels = []string{"no", "false", "won't happen", "will not happen", "miss", "under"}
)

// discardReason explica por qué un mercado de Gamma no es tradable.
type discardReason string

const (
	discardFlags     discardReason = "not_tradable"
	discardNoTokens  discardReason = "no_tokens"
	discardNotBinary discardReason = "no_yes_outcome"
	discardCategory  discardReason = "category"
)

// mapGammaMarket convierte un DTO de Gamma a domain.Market aplicando el filtro.
// Devuelve la razón de descarte si el mercado no es tradable.
func mapGammaMarket(gm gammaMarket, filter domain.MarketFilter) (domain.Market, discardReason) {
	m := domain.Market{
		ID:               gm.ID,
		ConditionID:      gm.ConditionID,
		Question:         gm.Question,
		Slug:             gm.Slug,
		Category:         gm.Category,
		Active:           gm.Active,
		Closed:           gm.Closed,
		Archived:         gm.Archived,
		AcceptingOrders:  gm.AcceptingOrders,
		OrderBookEnabled: gm.EnableOrderBook,
		NegRisk:          gm.NegRisk,
		EndDate:          parseEndDate(gm.EndDateISO),
	}
	if v, err := gm.Volume24h.Float64(); err == nil {
		m.Volume24h = v
	}
	if v, err := gm.Liquidity.Float64(); err == nil {
		m.Liquidity = v
	}

	if !m.IsTradable() {
		return m, discardFlags
	}

	tokens := parseStringArray(gm.ClobTokenIDs)
	if len(tokens) == 0 {
		return m, discardNoTokens
	}
	outcomes := parseStringArray(gm.Outcomes)

	if filter.BinaryOnly && matchLabel(outcomes, []string{"yes"}, -1) < 0 {
		return m, discardNotBinary
	}
	if !categoryAllowed(m.Category, filter.Categories) {
		return m, discardCategory
	}

	pos := selectTokens(tokens, outcomes)
	m.YesTokenID = tokens[pos]
	if pos < len(outcomes) {
		m.YesOutcome = outcomes[pos]
	}
	if neg := selectNegative(tokens, outcomes, pos); neg >= 0 {
		m.NoTokenID = tokens[neg]
	}

	prices := parseStringArray(gm.OutcomePrices)
	if pos < len(prices) {
		if d, err := decimal.NewFromString(prices[pos]); err == nil {
			m.Price = d.InexactFloat64()
		}
	}
	if m.YesTokenID == "" {
		return m, discardNoTokens
	}
	return m, ""
}

// selectTokens devuelve el índice del token positivo.
// Si ninguna etiqueta coincide, usa el primer token.
func selectTokens(tokens, outcomes []string) int {
	idx := matchLabel(outcomes, positiveLabels, -1)
	if idx < 0 || idx >= len(tokens) {
		return 0
	}
	return idx
}

// selectNegative devuelve el índice del token negativo, distinto de pos.
// Si ninguna etiqueta coincide, usa el último token distinto de pos; -1 si no hay.
func selectNegative(tokens, outcomes []string, pos int) int {
	idx := matchLabel(outcomes, negativeLabels, pos)
	if idx >= 0 && idx < len(tokens) {
		return idx
	}
	for i := len(tokens) - 1; i >= 0; i-- {
		if i != pos {
			return i
		}
	}
	return -1
}

// matchLabel busca el primer outcome que coincida (sin distinguir mayúsculas)
// con alguna etiqueta del set, saltando el índice skip.
func matchLabel(outcomes, labels []string, skip int) int {
	for i, o := range outcomes {
		if i == skip {
			continue
		}
		o = strings.ToLower(strings.TrimSpace(o))
		for _, l := range labels {
			if o == l {
				return i
			}
		}
	}
	return -1
}

func categoryAllowed(category string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), category) {
			return true
		}
	}
	return false
}

// parseStringArray decodifica un array JSON serializado dentro de un string.
// Devuelve nil si el string está vacío o no es un array válido.
func parseStringArray(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func parseEndDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	// Polymarket usa varios formatos; intentamos los más comunes
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mapOrderBook convierte la respuesta de /book a domain.OrderBook.
func mapOrderBook(tokenID string, raw bookResponse) domain.OrderBook {
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    mapBookEntries(raw.Bids, false),
		Asks:    mapBookEntries(raw.Asks, true),
	}
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
// Niveles no parseables o con precio/tamaño no positivo se descartan.
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(strings.TrimSpace(r.Price))
		if err != nil || !price.IsPositive() {
			continue
		}
		size, err := decimal.NewFromString(strings.TrimSpace(r.Size))
		if err != nil || !size.IsPositive() {
			continue
		}
		entries = append(entries, domain.BookEntry{
			Price: price.InexactFloat64(),
			Size:  size.InexactFloat64(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
