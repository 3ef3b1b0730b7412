package polymarket

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const testSecret = "c2VjcmV0" // base64url("secret")

func newTestAuthClient(t *testing.T, clobURL string) *AuthClient {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ac, err := NewAuthClient(clobURL, "", hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)
	return ac
}

func TestOrderAmounts(t *testing.T) {
	maker, taker, err := orderAmounts(0.5, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), maker)
	assert.Equal(t, int64(20_000_000), taker)

	// 10 / 0.44 = 22.727 → 22.72 shares; 22.72 × 0.44 = 9.9968 USDC
	maker, taker, err = orderAmounts(0.44, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(9_996_800), maker)
	assert.Equal(t, int64(22_720_000), taker)

	// tick de 0.001
	maker, taker, err = orderAmounts(0.125, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), maker)
	assert.Equal(t, int64(40_000_000), taker)
}

func TestOrderAmounts_Invalid(t *testing.T) {
	for _, tc := range []struct{ price, size float64 }{
		{0, 10}, {1, 10}, {1.2, 10}, {0.5, 0.001},
	} {
		_, _, err := orderAmounts(tc.price, tc.size)
		assert.Error(t, err, "price=%.3f size=%.3f", tc.price, tc.size)
	}
}

func TestPlaceOrder_SignsAndSubmits(t *testing.T) {
	var ac *AuthClient
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		ts := r.Header.Get("POLY_TIMESTAMP")
		secret, _ := base64.URLEncoding.DecodeString(testSecret)
		mac := hmac.New(sha256.New, secret)
		mac.Write([]byte(ts + "POST" + "/order" + string(body)))
		assert.Equal(t, base64.URLEncoding.EncodeToString(mac.Sum(nil)), r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, "api-key", r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, "pass", r.Header.Get("POLY_PASSPHRASE"))
		assert.Equal(t, ac.Address(), r.Header.Get("POLY_ADDRESS"))

		var req clobOrderRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "FOK", req.OrderType)
		assert.Equal(t, "api-key", req.Owner)
		assert.Equal(t, "BUY", req.Order.Side)
		assert.Equal(t, "123456", req.Order.TokenID)
		assert.Equal(t, "10000000", req.Order.MakerAmount)
		assert.Equal(t, "20000000", req.Order.TakerAmount)
		assert.Equal(t, "0", req.Order.Expiration)
		assert.NotEmpty(t, req.Order.Signature)

		w.Write([]byte(`{"success":true,"orderID":"0xorder","status":"matched","makingAmount":"10","takingAmount":"20"}`))
	}))
	defer srv.Close()

	ac = newTestAuthClient(t, srv.URL)
	ac.SetCredentials("api-key", testSecret, "pass")
	tc := NewTradingClient(ac)

	placed, err := tc.PlaceOrder(context.Background(), domain.OrderRequest{
		TokenID: "123456",
		Price:   0.5,
		Size:    10,
		Side:    domain.SideBuy,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xorder", placed.OrderID)
	assert.Equal(t, "matched", placed.Status)
	assert.InDelta(t, 10.0, placed.MakingAmount, 1e-9)
	assert.InDelta(t, 20.0, placed.TakingAmount, 1e-9)
}

func TestPlaceOrder_GTDExpiration(t *testing.T) {
	exp := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req clobOrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "GTD", req.OrderType)
		assert.Equal(t, strconv.FormatInt(exp.Unix(), 10), req.Order.Expiration)
		w.Write([]byte(`{"success":true,"orderID":"0xgtd","status":"live"}`))
	}))
	defer srv.Close()

	ac := newTestAuthClient(t, srv.URL)
	ac.SetCredentials("api-key", testSecret, "pass")

	placed, err := NewTradingClient(ac).PlaceOrder(context.Background(), domain.OrderRequest{
		TokenID:    "42",
		Price:      0.3,
		Size:       6,
		Side:       domain.SideBuy,
		OrderType:  domain.OrderTypeGTD,
		Expiration: exp,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xgtd", placed.OrderID)
}

func TestPlaceOrder_Rejected(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorMsg":"order couldn't be fully filled"}`))
	}))
	defer srv.Close()

	ac := newTestAuthClient(t, srv.URL)
	ac.SetCredentials("api-key", testSecret, "pass")

	_, err := NewTradingClient(ac).PlaceOrder(context.Background(), domain.OrderRequest{
		TokenID: "42", Price: 0.5, Size: 10, Side: domain.SideBuy,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrderRejected))
	assert.Contains(t, err.Error(), "couldn't be fully filled")
	assert.Equal(t, 1, calls)
}

func TestPlaceOrder_UnsuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"errorMsg":"not enough balance / allowance"}`))
	}))
	defer srv.Close()

	ac := newTestAuthClient(t, srv.URL)
	ac.SetCredentials("api-key", testSecret, "pass")

	_, err := NewTradingClient(ac).PlaceOrder(context.Background(), domain.OrderRequest{
		TokenID: "42", Price: 0.5, Size: 10, Side: domain.SideBuy,
	})
	assert.ErrorIs(t, err, ErrOrderRejected)
}

func TestEnsureCreds_CreatesWhenDeriveFails(t *testing.T) {
	var ac *AuthClient
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ac.Address(), r.Header.Get("POLY_ADDRESS"))
		sig := r.Header.Get("POLY_SIGNATURE")
		assert.Len(t, sig, 132) // 0x + 65 bytes hex
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/auth/derive-api-key":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/auth/api-key":
			w.Write([]byte(`{"apiKey":"new-key","secret":"` + testSecret + `","passphrase":"pp"}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	ac = newTestAuthClient(t, srv.URL)
	require.NoError(t, ac.EnsureCreds(context.Background()))
	require.NotNil(t, ac.creds)
	assert.Equal(t, "new-key", ac.creds.APIKey)

	// cacheadas: no hay más requests
	require.NoError(t, ac.EnsureCreds(context.Background()))
}
