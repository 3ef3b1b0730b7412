package onchain

// Wallet balances on Polygon: USDC.e (trading currency) and POL (gas).
// Read-only: no transaction is ever sent from here.

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const (
	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// Exchange contracts that pull USDC.e when an order fills
	CTFExchange     = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	NegRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

	usdcDecimals = 6
	polDecimals  = 18
)

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi: " + err.Error())
	}
}

// ChainReader is the subset of ethclient.Client used by Wallet.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Wallet implements ports.BalanceSource.
type Wallet struct {
	chain   ChainReader
	address common.Address
	usdc    common.Address
}

// NewWallet creates a Wallet reading balances of address through chain.
func NewWallet(chain ChainReader, address common.Address) *Wallet {
	return &Wallet{
		chain:   chain,
		address: address,
		usdc:    common.HexToAddress(usdcEAddress),
	}
}

// Dial connects to a Polygon RPC and derives the wallet address from the key.
// privateKeyHex may carry a 0x prefix.
func Dial(ctx context.Context, rpcURL, privateKeyHex string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: invalid private key: %w", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: dial rpc: %w", err)
	}
	return NewWallet(client, crypto.PubkeyToAddress(key.PublicKey)), nil
}

// Address returns the wallet address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// Balances returns the USDC.e and POL balances of the wallet.
func (w *Wallet) Balances(ctx context.Context) (domain.Balances, error) {
	usdc, err := w.erc20Call(ctx, "balanceOf", w.address)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("onchain.Balances: usdc: %w", err)
	}
	wei, err := w.chain.BalanceAt(ctx, w.address, nil)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("onchain.Balances: pol: %w", err)
	}
	return domain.Balances{
		Trading: fromUnits(usdc, usdcDecimals),
		Gas:     fromUnits(wei, polDecimals),
	}, nil
}

// Allowance returns the USDC.e amount spender may pull from the wallet.
func (w *Wallet) Allowance(ctx context.Context, spender string) (float64, error) {
	raw, err := w.erc20Call(ctx, "allowance", w.address, common.HexToAddress(spender))
	if err != nil {
		return 0, fmt.Errorf("onchain.Allowance: %w", err)
	}
	return fromUnits(raw, usdcDecimals), nil
}

// erc20Call runs a uint256-returning view method on the USDC.e contract.
func (w *Wallet) erc20Call(ctx context.Context, method string, args ...any) (*big.Int, error) {
	callData, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	result, err := w.chain.CallContract(ctx, ethereum.CallMsg{
		To:   &w.usdc,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	vals, err := erc20ABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	return raw, nil
}

func fromUnits(raw *big.Int, decimals int32) float64 {
	if raw == nil {
		return 0
	}
	return decimal.NewFromBigInt(raw, -decimals).InexactFloat64()
}
