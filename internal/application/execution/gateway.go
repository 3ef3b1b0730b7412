// Package execution turns a sized trade decision into a simulated fill or a
// signed order on the CLOB.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// Gateway implements ports.TradeExecutor for both execution modes.
// Live mode needs an OrderPlacer and a BalanceSource; simulated mode needs neither.
type Gateway struct {
	placer   ports.OrderPlacer
	balances ports.BalanceSource
	cfg      domain.BotConfig
	now      func() time.Time
}

// New creates an execution gateway. placer and balances may be nil when the
// session only runs simulated.
func New(cfg domain.BotConfig, placer ports.OrderPlacer, balances ports.BalanceSource) *Gateway {
	return &Gateway{
		placer:   placer,
		balances: balances,
		cfg:      cfg.Clone(),
		now:      time.Now,
	}
}

// Execute implements ports.TradeExecutor.
func (g *Gateway) Execute(ctx context.Context, req domain.ExecutionRequest) (domain.Trade, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Trade{}, false, err
	}
	if req.Size <= 0 || req.Book.IsEmpty() {
		slog.Warn("execution: invalid request", "market", domain.ShortID(req.Market.ID), "size", req.Size)
		return domain.Trade{}, false, nil
	}
	if req.Side == "" {
		req.Side = domain.SideBuy
	}

	switch req.Mode {
	case domain.ModeLive:
		return g.executeLive(ctx, req)
	default:
		return g.executeSimulated(req)
	}
}

// executeSimulated always fills at the book mid.
func (g *Gateway) executeSimulated(req domain.ExecutionRequest) (domain.Trade, bool, error) {
	price := req.Book.MidPrice()
	if price <= 0 || price >= 1 {
		slog.Warn("execution: mid price out of range", "market", domain.ShortID(req.Market.ID), "mid", price)
		return domain.Trade{}, false, nil
	}

	t := g.newTrade(req, price, req.Size, req.Size/price)
	t.Simulated = true
	slog.Info("execution: simulated fill",
		"market", domain.ShortID(req.Market.ID),
		"price", fmt.Sprintf("%.4f", price),
		"size", fmt.Sprintf("$%.2f", req.Size),
	)
	return t, true, nil
}

func (g *Gateway) executeLive(ctx context.Context, req domain.ExecutionRequest) (domain.Trade, bool, error) {
	if g.placer == nil || g.balances == nil {
		slog.Error("execution: live mode without order placer or wallet")
		return domain.Trade{}, false, nil
	}

	bal, err := g.balances.Balances(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Trade{}, false, ctx.Err()
		}
		slog.Warn("execution: balance refresh failed", "err", err)
		return domain.Trade{}, false, nil
	}
	if bal.Trading < req.Size {
		return domain.Trade{}, false, fmt.Errorf("execution.Execute: balance $%.2f < size $%.2f: %w",
			bal.Trading, req.Size, domain.ErrInsufficientFunds)
	}
	if bal.Gas < g.cfg.MinGasBalance {
		return domain.Trade{}, false, fmt.Errorf("execution.Execute: gas %.4f < min %.4f: %w",
			bal.Gas, g.cfg.MinGasBalance, domain.ErrInsufficientFunds)
	}

	order := domain.OrderRequest{
		TokenID:   req.Market.YesTokenID,
		Price:     req.Book.BestAsk(),
		Size:      req.Size,
		Side:      req.Side,
		NegRisk:   req.Market.NegRisk,
		OrderType: g.cfg.OrderType,
	}
	if order.OrderType == domain.OrderTypeGTD {
		order.Expiration = g.now().Add(g.cfg.OrderTTL)
	}

	placed, err := g.placer.PlaceOrder(ctx, order)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Trade{}, false, err
		}
		slog.Warn("execution: order not placed",
			"market", domain.ShortID(req.Market.ID),
			"price", order.Price,
			"size", fmt.Sprintf("$%.2f", order.Size),
			"err", err,
		)
		return domain.Trade{}, false, nil
	}

	spent, shares := req.Size, req.Size/order.Price
	if placed.MakingAmount > 0 {
		spent = placed.MakingAmount
	}
	if placed.TakingAmount > 0 {
		shares = placed.TakingAmount
	}

	t := g.newTrade(req, order.Price, spent, shares)
	t.OrderID = placed.OrderID
	slog.Info("execution: order placed",
		"market", domain.ShortID(req.Market.ID),
		"order_id", placed.OrderID,
		"status", placed.Status,
		"price", fmt.Sprintf("%.4f", order.Price),
		"size", fmt.Sprintf("$%.2f", spent),
	)
	return t, true, nil
}

func (g *Gateway) newTrade(req domain.ExecutionRequest, price, size, shares float64) domain.Trade {
	return domain.Trade{
		ID:          uuid.NewString(),
		MarketID:    req.Market.ID,
		ConditionID: req.Market.ConditionID,
		Question:    req.Market.Question,
		TokenID:     req.Market.YesTokenID,
		Outcome:     req.Market.YesOutcome,
		Side:        req.Side,
		EntryPrice:  price,
		Size:        size,
		Shares:      shares,
		Status:      domain.TradeOpen,
		Edge:        req.Edge,
		Probability: req.Signal.ImpliedProbability,
		Confidence:  req.Signal.Confidence,
		CreatedAt:   g.now(),
	}
}
