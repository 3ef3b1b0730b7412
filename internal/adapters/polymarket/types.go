package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Gamma API ---

// gammaMarket es un mercado de GET /markets de Gamma.
// Gamma devuelve algunos campos numéricos como strings JSON, usamos json.Number,
// y tokens/outcomes/precios como arrays JSON serializados dentro de un string.
type gammaMarket struct {
	ID              string      `json:"id"`
	ConditionID     string      `json:"conditionId"`
	Question        string      `json:"question"`
	Slug            string      `json:"slug"`
	Category        string      `json:"category"`
	EndDateISO      string      `json:"endDate"`
	Volume24h       json.Number `json:"volume24hr"`
	Liquidity       json.Number `json:"liquidityNum"`
	Active          bool        `json:"active"`
	Closed          bool        `json:"closed"`
	Archived        bool        `json:"archived"`
	AcceptingOrders bool        `json:"acceptingOrders"`
	EnableOrderBook bool        `json:"enableOrderBook"`
	NegRisk         bool        `json:"negRisk"`
	ClobTokenIDs    string      `json:"clobTokenIds"`
	Outcomes        string      `json:"outcomes"`
	OutcomePrices   string      `json:"outcomePrices"`
}

// --- CLOB API ---

// bookResponse es la respuesta de GET /book.
type bookResponse struct {
	Market  string         `json:"market"`
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}
