package filters

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
)

const blockNumberTimeout = 5 * time.Second

// latestBlockDecoder builds the Decoder for the 'latest' pseudo filter: an
// eth_newBlockFilter reply is an array of new block hashes, and the
// original system stamps every one of them with the chain's current block
// height (rather than decoding the hash itself), so a batch of N new
// heads produces N identical block ticks.
func latestBlockDecoder(client *rpc.Client) Decoder {
	return func(raw json.RawMessage) ([]*codec.EventMessage, error) {
		var hashes []common.Hash
		if err := json.Unmarshal(raw, &hashes); err != nil {
			return nil, err
		}
		if len(hashes) == 0 {
			return nil, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), blockNumberTimeout)
		defer cancel()
		number, err := currentBlockNumber(ctx, client)
		if err != nil {
			return nil, err
		}
		out := make([]*codec.EventMessage, len(hashes))
		for i := range hashes {
			out[i] = codec.DecodeBlockTick(number)
		}
		return out, nil
	}
}

// NewLatestBlockWrapper builds the always-present, non-backoff 'latest'
// filter wrapper.
func NewLatestBlockWrapper(ctx context.Context, client *rpc.Client) (*Wrapper, error) {
	poll, err := NewBlockFilter(ctx, client)
	if err != nil {
		return nil, err
	}
	return &Wrapper{
		Name:    "latest",
		Kind:    codec.EventBlock,
		Backoff: false,
		Poll:    poll,
		Decode:  latestBlockDecoder(client),
	}, nil
}
