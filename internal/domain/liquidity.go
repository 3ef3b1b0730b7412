package domain

// LiquidityCheck contiene los números comparados por el validador de liquidez.
type LiquidityCheck struct {
	OK       bool
	Spread   float64
	Depth    float64 // USDC en los mejores asks
	Required float64 // tradeSize × multiplicador
	Reason   string
}

// CheckLiquidity valida spread y profundidad de asks contra el tamaño del trade.
// Un spread mayor que MaxSpread rechaza siempre, independientemente de la profundidad.
func CheckLiquidity(book OrderBook, tradeSize float64, cfg BotConfig) LiquidityCheck {
	c := LiquidityCheck{
		Spread:   book.Spread(),
		Required: tradeSize * cfg.MinLiquidityMultiplier,
	}
	if book.IsEmpty() {
		c.Reason = "empty book"
		return c
	}
	if c.Spread > cfg.MaxSpread {
		c.Reason = "spread above max"
		return c
	}

	c.Depth = book.AskDepthUSDC(cfg.DepthLevels)
	if c.Depth < c.Required {
		c.Reason = "insufficient ask depth"
		return c
	}
	c.OK = true
	return c
}

// HasSufficientLiquidity es la forma booleana de CheckLiquidity.
func HasSufficientLiquidity(book OrderBook, tradeSize float64, cfg BotConfig) bool {
	return CheckLiquidity(book, tradeSize, cfg).OK
}
