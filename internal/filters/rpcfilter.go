package filters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Poller fetches the raw JSON entries a web3-style filter has accumulated
// since the last poll. Implementations correspond to one installed
// `eth_newFilter`/`eth_newBlockFilter` filter-id.
type Poller interface {
	GetNewEntries(ctx context.Context) (json.RawMessage, error)
	Uninstall(ctx context.Context) error
}

// RawFilter polls a single contract-event or new-block filter over a raw
// JSON-RPC client, using the classic web3 filter-id model
// (eth_newFilter/eth_getFilterChanges/eth_uninstallFilter) rather than
// ethclient's subscription API.
type RawFilter struct {
	client *rpc.Client
	id     string
}

// NewLogFilter installs an eth_newFilter for the given address/topic query
// and returns a Poller over its filter id.
func NewLogFilter(ctx context.Context, client *rpc.Client, address common.Address, topic common.Hash) (*RawFilter, error) {
	params := map[string]interface{}{
		"address": address,
		"topics":  []common.Hash{topic},
	}
	var id string
	if err := client.CallContext(ctx, &id, "eth_newFilter", params); err != nil {
		return nil, fmt.Errorf("eth_newFilter: %w", err)
	}
	return &RawFilter{client: client, id: id}, nil
}

// NewBlockFilter installs an eth_newBlockFilter, used for the 'latest'
// block-tick pseudo filter.
func NewBlockFilter(ctx context.Context, client *rpc.Client) (*RawFilter, error) {
	var id string
	if err := client.CallContext(ctx, &id, "eth_newBlockFilter"); err != nil {
		return nil, fmt.Errorf("eth_newBlockFilter: %w", err)
	}
	return &RawFilter{client: client, id: id}, nil
}

// GetNewEntries issues eth_getFilterChanges. The result is either an array
// of log objects (event filters) or an array of block hashes (block
// filter); the caller's Decoder knows which shape to expect.
func (f *RawFilter) GetNewEntries(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := f.client.CallContext(ctx, &raw, "eth_getFilterChanges", f.id); err != nil {
		return nil, fmt.Errorf("eth_getFilterChanges(%s): %w", f.id, err)
	}
	return raw, nil
}

// Uninstall issues eth_uninstallFilter. It is best-effort: a false result
// from the node is logged by the caller, not treated as fatal.
func (f *RawFilter) Uninstall(ctx context.Context) error {
	var ok bool
	if err := f.client.CallContext(ctx, &ok, "eth_uninstallFilter", f.id); err != nil {
		return fmt.Errorf("eth_uninstallFilter(%s): %w", f.id, err)
	}
	if !ok {
		return fmt.Errorf("eth_uninstallFilter(%s): node reported failure", f.id)
	}
	return nil
}

// currentBlockNumber fetches eth_blockNumber, used by the latest-block
// wrapper to stamp each new-block tick.
func currentBlockNumber(ctx context.Context, client *rpc.Client) (uint64, error) {
	var hex hexutil.Uint64
	if err := client.CallContext(ctx, &hex, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return uint64(hex), nil
}
