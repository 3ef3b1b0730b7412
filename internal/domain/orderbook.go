package domain

// OrderBook representa el libro de órdenes de un token.
// Un book con algún lado vacío se trata como ausente y nunca produce trade.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// IsEmpty devuelve true si falta cualquiera de los dos lados.
func (ob OrderBook) IsEmpty() bool {
	return len(ob.Bids) == 0 || len(ob.Asks) == 0
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// MidPrice devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) MidPrice() float64 {
	if ob.IsEmpty() {
		return 0
	}
	return (ob.BestBid() + ob.BestAsk()) / 2
}

// Spread devuelve el spread fraccional relativo al mid: (ask - bid) / mid.
func (ob OrderBook) Spread() float64 {
	mid := ob.MidPrice()
	if mid == 0 {
		return 0
	}
	return (ob.BestAsk() - ob.BestBid()) / mid
}

// AskDepthUSDC suma price × size de los mejores `levels` asks
// (o menos si el book es más corto).
func (ob OrderBook) AskDepthUSDC(levels int) float64 {
	n := len(ob.Asks)
	if levels > 0 && levels < n {
		n = levels
	}
	var total float64
	for _, a := range ob.Asks[:n] {
		total += a.Price * a.Size
	}
	return total
}
