// Package chain owns the per-network configuration (home/side), the
// contract bindings deployed on each, and the bridge between raw
// contract logs and the wire-level event codec.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Name identifies one of the two configured networks.
type Name string

const (
	Home Name = "home"
	Side Name = "side"
)

// Chain is one configured network: its connection, its chain id, its gas
// policy, and its bound contracts. Bindings are immutable once
// constructed at startup.
type Chain struct {
	Name        Name
	ChainID     uint64
	RPCEndpoint string
	FreeGas     bool

	Client *ethclient.Client
	RPC    *rpc.Client

	NectarToken    *ContractBinding
	BountyRegistry *ContractBinding
	ArbiterStaking *ContractBinding
	ERC20Relay     *ContractBinding

	// OfferRegistry and the offer-multisig template ABI are only present
	// on the home chain.
	OfferRegistry       *ContractBinding
	OfferMultisigABI    abi.ABI
	hasOfferMultisigABI bool
}

// ContractBinding is a deployed contract's checksum address and parsed
// ABI, ready for view calls, gas estimation, and log decoding.
type ContractBinding struct {
	Name    string
	Address common.Address
	ABI     abi.ABI

	bound *bind.BoundContract
}

// NewContractBinding parses contractABI and constructs a binding usable
// for view calls against backend.
func NewContractBinding(name string, address common.Address, contractABI abi.ABI, backend bind.ContractBackend) *ContractBinding {
	return &ContractBinding{
		Name:    name,
		Address: address,
		ABI:     contractABI,
		bound:   bind.NewBoundContract(address, contractABI, backend, backend, backend),
	}
}

// Version calls the contract's VERSION() view function and returns the
// raw semver string it reports.
func (b *ContractBinding) Version(ctx context.Context) (string, error) {
	out := make([]interface{}, 1)
	if err := b.bound.Call(&bind.CallOpts{Context: ctx}, &out, "VERSION"); err != nil {
		return "", fmt.Errorf("chain: %s.VERSION(): %w", b.Name, err)
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("chain: %s.VERSION() returned non-string", b.Name)
	}
	return s, nil
}

// CallUint256 invokes a zero-argument view function that returns a single
// uint256, such as erc20-relay's fees().
func (b *ContractBinding) CallUint256(ctx context.Context, method string) (*big.Int, error) {
	out := make([]interface{}, 1)
	if err := b.bound.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return nil, fmt.Errorf("chain: %s.%s(): %w", b.Name, method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s.%s() returned non-uint256", b.Name, method)
	}
	return v, nil
}

// SetOfferMultisigABI records the ABI shared by every per-channel
// offer-multisig instance, installed on the home chain only.
func (c *Chain) SetOfferMultisigABI(a abi.ABI) {
	c.OfferMultisigABI = a
	c.hasOfferMultisigABI = true
}

// HasOfferMultisig reports whether this chain carries an offer-multisig
// template, i.e. whether it is the home chain with offers configured.
func (c *Chain) HasOfferMultisig() bool {
	return c.hasOfferMultisigABI
}

// Bindings returns every configured contract binding on this chain, used
// by startup version validation and by the transaction relay's
// recipient allow-list.
func (c *Chain) Bindings() []*ContractBinding {
	bindings := []*ContractBinding{c.NectarToken, c.BountyRegistry, c.ArbiterStaking, c.ERC20Relay}
	if c.OfferRegistry != nil {
		bindings = append(bindings, c.OfferRegistry)
	}
	out := make([]*ContractBinding, 0, len(bindings))
	for _, b := range bindings {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}
