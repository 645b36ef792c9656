package codec

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LogRecord is a single contract log entry after ABI decoding: its indexed
// and non-indexed arguments flattened into a single map by argument name,
// the block it was mined in, and the transaction that produced it.
type LogRecord struct {
	Args        map[string]interface{}
	BlockNumber uint64
	TxHash      common.Hash
}

// EventMessage is the wire frame emitted to subscribers and returned by the
// event extractor.
type EventMessage struct {
	Event       string                 `json:"event"`
	Data        map[string]interface{} `json:"data"`
	BlockNumber *uint64                `json:"block_number,omitempty"`
	TxHash      string                 `json:"txhash,omitempty"`
}

// MetadataResolver fetches and validates off-chain metadata referenced by
// an event payload. Implementations never return an error: on any failure
// they return the original uri unchanged, per §4.2.
type MetadataResolver interface {
	Resolve(ctx context.Context, uri string) interface{}
}

// noopResolver is used when a Codec is constructed without a resolver; it
// degrades metadata fields to the bare URI, matching §4.2's fetch-error path.
type noopResolver struct{}

func (noopResolver) Resolve(_ context.Context, uri string) interface{} { return uri }

// Codec decodes raw contract log records into EventMessages using the fixed
// per-event-kind extraction schema of §4.1.
type Codec struct {
	Resolver MetadataResolver
}

// New constructs a Codec. A nil resolver degrades metadata fields to the
// literal URI string, which is a valid §4.2 outcome.
func New(resolver MetadataResolver) *Codec {
	if resolver == nil {
		resolver = noopResolver{}
	}
	return &Codec{Resolver: resolver}
}

type extractFunc func(ctx context.Context, c *Codec, args map[string]interface{}) (map[string]interface{}, error)

var extractors = map[EventKind]extractFunc{
	EventFeeUpdate:          extractFeeUpdate,
	EventWindowUpdate:       extractWindowUpdate,
	EventBounty:             extractBounty,
	EventAssertion:          extractAssertion,
	EventReveal:             extractReveal,
	EventVote:               extractVote,
	EventQuorum:             extractQuorum,
	EventSettledBounty:      extractSettledBounty,
	EventDeprecated:         extractDeprecated,
	EventUndeprecated:       extractUndeprecated,
	EventInitializedChannel: extractInitializedChannel,
	EventClosedAgreement:    extractClosedAgreement,
	EventSettleStarted:      extractSettleStarted,
	EventSettleChallenged:   extractSettleChallenged,
	EventTransfer:           extractTransfer,
	EventNewWithdrawal:      extractWithdrawal,
	EventNewDeposit:         extractDeposit,
	EventOpenedAgreement:    extractOpenedAgreement,
	EventCanceledAgreement:  extractCanceledAgreement,
	EventJoinedAgreement:    extractJoinedAgreement,
}

// Decode translates a raw log record for the given EventKind into an
// EventMessage. It returns a *SchemaMismatch when a required source field is
// absent; callers (the filter worker) log and skip the event rather than
// propagate the error further.
func (c *Codec) Decode(ctx context.Context, kind EventKind, rec LogRecord) (*EventMessage, error) {
	extract, ok := extractors[kind]
	if !ok {
		return nil, missingField(kind, "<unregistered event kind>")
	}
	data, err := extract(ctx, c, rec.Args)
	if err != nil {
		return nil, err
	}
	blockNumber := rec.BlockNumber
	return &EventMessage{
		Event:       string(kind),
		Data:        data,
		BlockNumber: &blockNumber,
		TxHash:      rec.TxHash.Hex(),
	}, nil
}

// DecodeBlockTick builds the synthetic `block` frame for a latest-block
// pseudo-filter tick. It carries only {number}; block_number/txhash are
// omitted per §3.
func DecodeBlockTick(number uint64) *EventMessage {
	return &EventMessage{
		Event: string(EventBlock),
		Data:  map[string]interface{}{"number": number},
	}
}

// --- argument extraction helpers -------------------------------------------------

func toBigInt(v interface{}) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		return n, true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case int64:
		return big.NewInt(n), true
	default:
		return nil, false
	}
}

func getBigInt(kind EventKind, args map[string]interface{}, key string) (*big.Int, error) {
	raw, ok := args[key]
	if !ok {
		return nil, missingField(kind, key)
	}
	n, ok := toBigInt(raw)
	if !ok {
		return nil, missingField(kind, key)
	}
	return n, nil
}

func getAddress(kind EventKind, args map[string]interface{}, key string) (common.Address, error) {
	raw, ok := args[key]
	if !ok {
		return common.Address{}, missingField(kind, key)
	}
	addr, ok := raw.(common.Address)
	if !ok {
		return common.Address{}, missingField(kind, key)
	}
	return addr, nil
}

func getBool(kind EventKind, args map[string]interface{}, key string) (bool, error) {
	raw, ok := args[key]
	if !ok {
		return false, missingField(kind, key)
	}
	b, ok := raw.(bool)
	if !ok {
		return false, missingField(kind, key)
	}
	return b, nil
}

func getString(kind EventKind, args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", missingField(kind, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", missingField(kind, key)
	}
	return s, nil
}

// getBitVector decodes a packed-uint field into a length-numArtifacts bool
// list, per the bit-vector rule of §4.1.
func getBitVector(kind EventKind, args map[string]interface{}, key string) ([]bool, error) {
	numArtifacts, err := getBigInt(kind, args, "numArtifacts")
	if err != nil {
		return nil, err
	}
	packed, err := getBigInt(kind, args, key)
	if err != nil {
		return nil, err
	}
	return IntToBoolList(packed, int(numArtifacts.Int64())), nil
}

func getBigIntSlice(kind EventKind, args map[string]interface{}, key string) ([]*big.Int, error) {
	raw, ok := args[key]
	if !ok {
		return nil, missingField(kind, key)
	}
	switch vs := raw.(type) {
	case []*big.Int:
		return vs, nil
	default:
		return nil, missingField(kind, key)
	}
}

func decimalStrings(ns []*big.Int) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.String()
	}
	return out
}
