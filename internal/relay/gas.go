package relay

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/polyswarm/polyswarmd-go/internal/chain"
)

// MaxGasLimit is the hard ceiling on any gas limit the gateway will build
// into a client-signed transaction, per §4.7.
const MaxGasLimit uint64 = 50_000_000

const gasMultiplier = 1.5

// GasBackend is the subset of ethclient.Client the gas policy needs.
type GasBackend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// GasPolicy computes the gas limit for a transaction the gateway builds on
// the caller's behalf: estimate at the given call, multiply by 1.5, and
// cap by the lesser of the chain's latest block gas limit and
// MaxGasLimit.
func GasPolicy(ctx context.Context, backend GasBackend, msg ethereum.CallMsg) (uint64, error) {
	estimated, err := backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("relay: estimate gas: %w", err)
	}

	block, err := backend.BlockByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("relay: fetch latest block: %w", err)
	}
	limit := block.GasLimit()
	if limit > MaxGasLimit {
		limit = MaxGasLimit
	}

	gas := uint64(float64(estimated) * gasMultiplier)
	if gas > limit {
		gas = limit
	}
	return gas, nil
}

// UnsignedTransaction is the JSON shape returned to a client for signing,
// e.g. by `POST /relay/deposit` and `POST /relay/withdrawal`.
type UnsignedTransaction struct {
	To       string  `json:"to"`
	Value    string  `json:"value"`
	Gas      uint64  `json:"gas"`
	GasPrice *string `json:"gasPrice,omitempty"`
	Data     string  `json:"data"`
	Nonce    uint64  `json:"nonce"`
	ChainID  uint64  `json:"chainId"`
}

var zeroGasPrice = "0"

// BuildNectarTransfer builds the unsigned `transfer(to, amount)` call on
// c's nectar-token contract, gated by the §4.7 gas policy. It is the
// common shape underlying both `/relay/deposit` (home) and
// `/relay/withdrawal` (side): a transfer of amount to the erc20-relay
// address.
// overrideNonce, when non-nil, is used instead of the backend's pending
// nonce, honoring a caller-supplied `base_nonce`.
func BuildNectarTransfer(ctx context.Context, c *chain.Chain, backend GasBackend, from common.Address, amount *big.Int, overrideNonce *uint64) (*UnsignedTransaction, error) {
	if c.NectarToken == nil || c.ERC20Relay == nil {
		return nil, fmt.Errorf("relay: chain %s is missing nectar-token or erc20-relay binding", c.Name)
	}

	data, err := c.NectarToken.ABI.Pack("transfer", c.ERC20Relay.Address, amount)
	if err != nil {
		return nil, fmt.Errorf("relay: pack transfer call: %w", err)
	}

	gas, err := GasPolicy(ctx, backend, ethereum.CallMsg{
		From: from,
		To:   &c.NectarToken.Address,
		Data: data,
	})
	if err != nil {
		return nil, err
	}

	nonce := uint64(0)
	if overrideNonce != nil {
		nonce = *overrideNonce
	} else {
		n, err := backend.PendingNonceAt(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("relay: fetch pending nonce: %w", err)
		}
		nonce = n
	}

	tx := &UnsignedTransaction{
		To:      c.NectarToken.Address.Hex(),
		Value:   "0",
		Gas:     gas,
		Data:    "0x" + common.Bytes2Hex(data),
		Nonce:   nonce,
		ChainID: c.ChainID,
	}
	if c.FreeGas {
		gp := zeroGasPrice
		tx.GasPrice = &gp
	}
	return tx, nil
}
