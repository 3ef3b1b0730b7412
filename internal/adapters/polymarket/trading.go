package polymarket

// Real order submission via the Polymarket CLOB API.
// Implements ports.OrderPlacer using AuthClient for L1/L2 auth.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// ErrOrderRejected is returned when the CLOB accepts the request but refuses
// the order (unfilled FOK, invalid tick, not enough allowance...).
var ErrOrderRejected = errors.New("order rejected")

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

// TradingClient implements ports.OrderPlacer.
type TradingClient struct {
	auth *AuthClient
}

// NewTradingClient creates a TradingClient on top of an AuthClient.
func NewTradingClient(auth *AuthClient) *TradingClient {
	return &TradingClient{auth: auth}
}

// PlaceOrder signs and submits an order to the CLOB.
// A refused order returns an error wrapping ErrOrderRejected with the CLOB reason.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: creds: %w", err)
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeFOK
	}
	req.OrderType = orderType

	signed, err := tc.auth.buildSignedOrder(req)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: sign: %w", err)
	}

	side := string(domain.SideBuy)
	if req.Side == domain.SideSell {
		side = string(domain.SideSell)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          side,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: orderType,
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: %w: %s", ErrOrderRejected, rejectionReason(apiErr.Body))
		}
		return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: post: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: %w: %s", ErrOrderRejected, resp.ErrorMsg)
	}

	return domain.PlacedOrder{
		OrderID:      resp.OrderID,
		Status:       resp.Status,
		MakingAmount: parseAmount(resp.MakingAmount),
		TakingAmount: parseAmount(resp.TakingAmount),
	}, nil
}

// rejectionReason extracts errorMsg from a CLOB error body, or returns it raw.
func rejectionReason(body string) string {
	var r clobOrderResponse
	if err := json.Unmarshal([]byte(body), &r); err == nil && r.ErrorMsg != "" {
		return r.ErrorMsg
	}
	return strings.TrimSpace(body)
}

// parseAmount parses a decimal amount string returned by the CLOB.
func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
