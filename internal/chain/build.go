package chain

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ChainSource is the subset of config.ChainConfig New needs, duplicated
// here (rather than importing internal/config) to keep this package free
// of a dependency on the config file format.
type ChainSource struct {
	RPC     string
	FreeGas bool

	NectarToken    string
	BountyRegistry string
	ArbiterStaking string
	ERC20Relay     string
	OfferRegistry  string

	NectarTokenABIPath    string
	BountyRegistryABIPath string
	ArbiterStakingABIPath string
	ERC20RelayABIPath     string
	OfferRegistryABIPath  string
	OfferMultisigABIPath  string
}

// loadABI reads and parses the ABI JSON file at path.
func loadABI(path string) (abi.ABI, error) {
	f, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("chain: open ABI %s: %w", path, err)
	}
	defer f.Close()
	parsed, err := abi.JSON(f)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("chain: parse ABI %s: %w", path, err)
	}
	return parsed, nil
}

// New dials src.RPC and constructs a Chain with every contract binding
// src names. A binding is only built when both its address and ABI path
// are non-empty; ERC20Relay and OfferRegistry are optional like that,
// NectarToken/BountyRegistry/ArbiterStaking are required once src.RPC is
// set at all.
func New(ctx context.Context, name Name, src ChainSource) (*Chain, error) {
	rpcClient, err := rpc.DialContext(ctx, src.RPC)
	if err != nil {
		return nil, fmt.Errorf("chain: %s: dial %s: %w", name, src.RPC, err)
	}
	client := ethclient.NewClient(rpcClient)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: %s: fetch chain id: %w", name, err)
	}

	c := &Chain{
		Name:        name,
		ChainID:     chainID.Uint64(),
		RPCEndpoint: src.RPC,
		FreeGas:     src.FreeGas,
		Client:      client,
		RPC:         rpcClient,
	}

	nectarABI, err := loadABI(src.NectarTokenABIPath)
	if err != nil {
		return nil, err
	}
	c.NectarToken = NewContractBinding("NectarToken", common.HexToAddress(src.NectarToken), nectarABI, client)

	bountyABI, err := loadABI(src.BountyRegistryABIPath)
	if err != nil {
		return nil, err
	}
	c.BountyRegistry = NewContractBinding("BountyRegistry", common.HexToAddress(src.BountyRegistry), bountyABI, client)

	stakingABI, err := loadABI(src.ArbiterStakingABIPath)
	if err != nil {
		return nil, err
	}
	c.ArbiterStaking = NewContractBinding("ArbiterStaking", common.HexToAddress(src.ArbiterStaking), stakingABI, client)

	if src.ERC20Relay != "" && src.ERC20RelayABIPath != "" {
		relayABI, err := loadABI(src.ERC20RelayABIPath)
		if err != nil {
			return nil, err
		}
		c.ERC20Relay = NewContractBinding("ERC20Relay", common.HexToAddress(src.ERC20Relay), relayABI, client)
	}

	if src.OfferRegistry != "" && src.OfferRegistryABIPath != "" {
		registryABI, err := loadABI(src.OfferRegistryABIPath)
		if err != nil {
			return nil, err
		}
		c.OfferRegistry = NewContractBinding("OfferRegistry", common.HexToAddress(src.OfferRegistry), registryABI, client)

		if src.OfferMultisigABIPath != "" {
			multisigABI, err := loadABI(src.OfferMultisigABIPath)
			if err != nil {
				return nil, err
			}
			c.SetOfferMultisigABI(multisigABI)
		}
	}

	return c, nil
}

// ValidateAll runs ValidateChain over every chain in chains, failing fast
// at startup if a deployed contract does not answer its VERSION() view
// function or reports a version outside its VersionRanges entry. Bindings
// with no registered range are not checked.
func ValidateAll(ctx context.Context, chains map[Name]*Chain) error {
	for name, c := range chains {
		if err := ValidateChain(ctx, c); err != nil {
			return fmt.Errorf("chain: %s: %w", name, err)
		}
	}
	return nil
}
