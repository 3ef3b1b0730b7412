package domain

import "math"

// ExpectedValue calcula el beneficio esperado por dólar apostado al comprar YES
// a `price` si la probabilidad real es `prob`.
//
// Fórmula: EV = prob × (1 - price) - (1 - prob) × price
//
// Solo está definido para 0 < price < 1; fuera de ese rango devuelve 0.
func ExpectedValue(price, prob float64) float64 {
	if !validPrice(price) {
		return 0
	}
	return prob*(1-price) - (1-prob)*price
}

// KellyFraction devuelve la fracción óptima de Kelly (sin descontar).
//
// Fórmula:
//
//	b = 1/price - 1    (cuota decimal neta)
//	f = (b×p - q) / b  (p = prob, q = 1 - p)
//
// Puede ser negativa: sin edge no hay apuesta.
func KellyFraction(price, prob float64) float64 {
	if !validPrice(price) {
		return 0
	}
	b := 1/price - 1
	p := prob
	q := 1 - p
	return (b*p - q) / b
}

// PositionSize calcula el tamaño en USDC con Kelly fraccional y los tres límites
// operativos independientes: fracción máxima de exposición, tamaño máximo y
// tamaño mínimo. Devuelve 0 cuando no hay edge o el tamaño no llega al mínimo.
func PositionSize(price, prob, balance float64, cfg BotConfig) float64 {
	if balance <= 0 {
		return 0
	}
	f := KellyFraction(price, prob)
	if f <= 0 {
		return 0
	}

	f *= cfg.KellyMultiplier
	f = math.Min(f, cfg.MaxExposurePerTrade)

	size := math.Min(f*balance, cfg.MaxTradeSize)
	if size < cfg.MinTradeSize || size <= 0 {
		return 0
	}
	return size
}

func validPrice(price float64) bool {
	return price > 0 && price < 1
}
