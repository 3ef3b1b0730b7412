package domain

import (
	"errors"
	"time"
)

// TradeStatus es el ciclo de vida de un trade. No existe camino de cierre en el
// loop: CLOSED solo lo asigna un proceso de settlement externo.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// Side es el lado de la orden en el CLOB.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade es el resultado de una ejecución exitosa (simulada o real).
type Trade struct {
	ID          string
	RunID       string
	MarketID    string
	ConditionID string
	Question    string
	TokenID     string
	Outcome     string
	Side        Side
	EntryPrice  float64
	Size        float64 // USDC
	Shares      float64
	Status      TradeStatus
	RealizedPnL float64
	Edge        float64 // EV por dólar en la entrada
	Probability float64
	Confidence  float64
	Simulated   bool
	OrderID     string // id del CLOB (vacío en simulación)
	CreatedAt   time.Time
}

// ExecutionRequest agrupa lo necesario para ejecutar una orden.
type ExecutionRequest struct {
	Mode   ExecutionMode
	Market Market
	Book   OrderBook
	Size   float64
	Side   Side
	Edge   float64
	Signal Signal
}

// Balances son los saldos de la wallet en moneda de trading y de gas.
type Balances struct {
	Trading float64 // USDC.e
	Gas     float64 // POL
}

// ErrInsufficientFunds indica que la wallet no puede liquidar una orden real.
// Es fatal para el run: ninguna iteración puede tener éxito sin financiación externa.
var ErrInsufficientFunds = errors.New("insufficient funds for live settlement")

// OrderRequest is the signed-order input sent to the CLOB.
type OrderRequest struct {
	TokenID    string
	Price      float64 // limit price
	Size       float64 // USDC to spend
	Side       Side
	NegRisk    bool
	OrderType  string
	Expiration time.Time // only GTD
}

// PlacedOrder is the CLOB response to a submitted order.
type PlacedOrder struct {
	OrderID      string
	Status       string
	MakingAmount float64 // USDC given
	TakingAmount float64 // shares received
}
