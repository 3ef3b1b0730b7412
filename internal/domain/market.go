package domain

import (
	"time"
	"unicode/utf8"
)

// Market representa un mercado de predicción binario listado en Polymarket.
// Es un snapshot inmutable por iteración: se reconstruye en cada scan.
type Market struct {
	ID          string
	ConditionID string
	Question    string
	Slug        string
	Category    string

	YesTokenID string
	NoTokenID  string
	YesOutcome string  // etiqueta original del outcome elegido como "positivo"
	Price      float64 // precio del token positivo (proxy de probabilidad 0..1)

	Active           bool
	Closed           bool
	Archived         bool
	AcceptingOrders  bool
	OrderBookEnabled bool
	NegRisk          bool

	EndDate   time.Time
	Volume24h float64
	Liquidity float64
}

// IsTradable aplica los flags de tradabilidad del exchange.
// No comprueba la existencia de tokens: eso es responsabilidad del gateway.
func (m Market) IsTradable() bool {
	return !m.Closed && !m.Archived && m.AcceptingOrders && m.OrderBookEnabled
}

// MarketFilter parametriza el listado de mercados tradables.
type MarketFilter struct {
	BinaryOnly bool
	Categories []string // vacío = todas
	FetchLimit int      // mercados crudos a pedir al exchange
}

// ScanStats resume un listado de mercados: total recibido, descartados y tradables.
type ScanStats struct {
	Total     int
	Discarded int
	Tradable  int
}

// ShortID devuelve un prefijo legible de un identificador para logs.
func ShortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10]
}

// TruncateQuestion devuelve la pregunta del mercado truncada a maxLen runas.
// Si la pregunta está vacía usa los primeros caracteres del id como fallback.
// Corta en frontera de runa.
func TruncateQuestion(question, id string, maxLen int) string {
	q := question
	if q == "" {
		q = id
		if utf8.RuneCountInString(q) > 20 {
			q = string([]rune(q)[:20]) + "..."
		}
	}
	if utf8.RuneCountInString(q) > maxLen {
		keep := maxLen - 3
		if keep < 0 {
			keep = 0
		}
		q = string([]rune(q)[:keep]) + "..."
	}
	return q
}
