package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
	"github.com/polyswarm/polyswarmd-go/internal/filters"
)

// unpackLogArgs flattens a log's indexed and non-indexed arguments into a
// single map keyed by Solidity argument name, the shape every codec
// extraction function expects.
func unpackLogArgs(contractABI abi.ABI, event abi.Event, lg types.Log) (map[string]interface{}, error) {
	args := make(map[string]interface{})
	if err := contractABI.UnpackIntoMap(args, event.Name, lg.Data); err != nil {
		return nil, fmt.Errorf("chain: unpack %s data: %w", event.Name, err)
	}
	indexed := make(abi.Arguments, 0)
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(indexed) > 0 {
		topics := lg.Topics
		if len(topics) > 0 {
			topics = topics[1:] // topics[0] is the event signature hash
		}
		if err := abi.ParseTopicsIntoMap(args, indexed, topics); err != nil {
			return nil, fmt.Errorf("chain: unpack %s topics: %w", event.Name, err)
		}
	}
	return args, nil
}

// DecodeLogForKind decodes lg as an occurrence of kind's ABI event if
// lg.Topics[0] matches that event's signature hash; matched reports
// whether it was. Used by the event extractor to scan a receipt's full
// log list against the extraction table without assuming contract
// address binding (the offer-multisig ABI is shared by every per-channel
// instance, so its logs are matched by signature alone).
func DecodeLogForKind(ctx context.Context, cdc *codec.Codec, contractABI abi.ABI, kind codec.EventKind, lg types.Log) (msg *codec.EventMessage, matched bool, err error) {
	eventName := codec.SourceLogName[kind]
	event, ok := contractABI.Events[eventName]
	if !ok {
		return nil, false, nil
	}
	if len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
		return nil, false, nil
	}

	args, err := unpackLogArgs(contractABI, event, lg)
	if err != nil {
		return nil, true, fmt.Errorf("chain: unpack %s: %w", event.Name, err)
	}
	rec := codec.LogRecord{Args: args, BlockNumber: lg.BlockNumber, TxHash: lg.TxHash}
	out, err := cdc.Decode(ctx, kind, rec)
	if err != nil {
		return nil, true, err
	}
	return out, true, nil
}

// NewEventDecoder builds a filters.Decoder that turns one
// eth_getFilterChanges response (an array of raw logs) for binding's kind
// event into decoded EventMessages. A single entry's schema mismatch or
// unpack failure is logged and skipped; it does not fail the batch.
func NewEventDecoder(ctx context.Context, binding *ContractBinding, kind codec.EventKind, cdc *codec.Codec) filters.Decoder {
	eventName := codec.SourceLogName[kind]
	event, ok := binding.ABI.Events[eventName]
	if !ok {
		return func(json.RawMessage) ([]*codec.EventMessage, error) {
			return nil, fmt.Errorf("chain: %s: no ABI event named %q", binding.Name, eventName)
		}
	}

	return func(raw json.RawMessage) ([]*codec.EventMessage, error) {
		var logs []types.Log
		if err := json.Unmarshal(raw, &logs); err != nil {
			return nil, fmt.Errorf("chain: unmarshal filter entries: %w", err)
		}

		out := make([]*codec.EventMessage, 0, len(logs))
		for _, lg := range logs {
			args, err := unpackLogArgs(binding.ABI, event, lg)
			if err != nil {
				log.Warn("skipping undecodable log", "event", kind, "err", err)
				continue
			}
			rec := codec.LogRecord{Args: args, BlockNumber: lg.BlockNumber, TxHash: lg.TxHash}
			msg, err := cdc.Decode(ctx, kind, rec)
			if err != nil {
				log.Warn("skipping event", "event", kind, "err", err)
				continue
			}
			out = append(out, msg)
		}
		return out, nil
	}
}
