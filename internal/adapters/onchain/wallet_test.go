package onchain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChain responde eth_call y eth_getBalance sin RPC real.
type fakeChain struct {
	usdc      *big.Int
	allowance *big.Int
	wei       *big.Int
	callErr   error
	lastTo    common.Address
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	f.lastTo = *msg.To
	method, err := erc20ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(f.usdc)
	case "allowance":
		return method.Outputs.Pack(f.allowance)
	}
	return nil, errors.New("unexpected method " + method.Name)
}

func (f *fakeChain) BalanceAt(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	return f.wei, nil
}

func TestWallet_Balances(t *testing.T) {
	chain := &fakeChain{
		usdc: big.NewInt(12_500_000), // 12.5 USDC.e
		wei:  new(big.Int).Mul(big.NewInt(3), big.NewInt(1e17)),
	}
	w := NewWallet(chain, common.HexToAddress("0x00000000000000000000000000000000000000aa"))

	bal, err := w.Balances(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 12.5, bal.Trading, 1e-9)
	assert.InDelta(t, 0.3, bal.Gas, 1e-9)
	assert.Equal(t, common.HexToAddress(usdcEAddress), chain.lastTo)
}

func TestWallet_Allowance(t *testing.T) {
	chain := &fakeChain{allowance: big.NewInt(1_000_000_000)}
	w := NewWallet(chain, common.HexToAddress("0x00000000000000000000000000000000000000aa"))

	a, err := w.Allowance(context.Background(), CTFExchange)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, a, 1e-9)
}

func TestWallet_RPCError(t *testing.T) {
	chain := &fakeChain{callErr: errors.New("connection refused")}
	w := NewWallet(chain, common.Address{})

	_, err := w.Balances(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFromUnits(t *testing.T) {
	assert.Equal(t, 0.0, fromUnits(nil, 6))
	assert.InDelta(t, 0.000001, fromUnits(big.NewInt(1), 6), 1e-12)
}
