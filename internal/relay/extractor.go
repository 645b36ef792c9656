package relay

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/polyswarm/polyswarmd-go/internal/chain"
	"github.com/polyswarm/polyswarmd-go/internal/codec"
)

// Timeouts for receipt-wait, per §4.8.
const (
	HomeReceiptTimeout = 60 * time.Second
	SideReceiptTimeout = 10 * time.Second
)

// receiptPollInterval is how often the wait loop re-checks transaction
// status; §5 calls out deadline-based (not interval-based) timeouts, this
// governs only the polling cadence within that deadline.
const receiptPollInterval = time.Second

// ReceiptBackend is the subset of ethclient.Client the extractor's
// receipt wait needs. ethclient.Client satisfies this directly.
type ReceiptBackend interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// RevertReasonFunc decodes a failed transaction's revert reason, e.g. via
// debug_traceTransaction. A nil func means tracing is disabled; callers
// then omit the reason from the failure message.
type RevertReasonFunc func(ctx context.Context, txHash common.Hash) (string, error)

// ReceiptTimeout selects the §4.8 wait timeout for chain name.
func ReceiptTimeout(name chain.Name) time.Duration {
	if name == chain.Home {
		return HomeReceiptTimeout
	}
	return SideReceiptTimeout
}

// WaitForReceipt polls backend for txHash's transaction and receipt,
// requiring at least one confirming block beyond the mining block, bounded
// by timeout. It returns a plain error (not wrapped) whose message is
// already in the wire-ready form §4.8 specifies.
func WaitForReceipt(ctx context.Context, backend ReceiptBackend, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	hex := txHash.Hex()

	for {
		_, pending, err := backend.TransactionByHash(deadlineCtx, txHash)
		if err == nil && !pending {
			receipt, rerr := backend.TransactionReceipt(deadlineCtx, txHash)
			if rerr == nil && receipt != nil && receipt.BlockNumber != nil {
				current, berr := backend.BlockNumber(deadlineCtx)
				if berr == nil && current >= receipt.BlockNumber.Uint64()+1 {
					return receipt, nil
				}
			}
		}

		select {
		case <-time.After(receiptPollInterval):
		case <-deadlineCtx.Done():
			return nil, fmt.Errorf("transaction %s: timeout during wait for receipt", hex)
		}
	}
}

// extraction pairs a contract binding's ABI with an EventKind and the
// output key its decoded messages are grouped under, per §4.8's
// extraction table.
type extraction struct {
	abi    abi.ABI
	kind   codec.EventKind
	outKey string
}

func extractionTable(c *chain.Chain) []extraction {
	var table []extraction
	if c.NectarToken != nil {
		table = append(table, extraction{c.NectarToken.ABI, codec.EventTransfer, "transfers"})
	}
	if c.BountyRegistry != nil {
		table = append(table,
			extraction{c.BountyRegistry.ABI, codec.EventBounty, "bounties"},
			extraction{c.BountyRegistry.ABI, codec.EventAssertion, "assertions"},
			extraction{c.BountyRegistry.ABI, codec.EventVote, "votes"},
			extraction{c.BountyRegistry.ABI, codec.EventReveal, "reveals"},
		)
	}
	if c.ArbiterStaking != nil {
		table = append(table,
			extraction{c.ArbiterStaking.ABI, codec.EventNewWithdrawal, "withdrawals"},
			extraction{c.ArbiterStaking.ABI, codec.EventNewDeposit, "deposits"},
		)
	}
	if c.OfferRegistry != nil {
		table = append(table, extraction{c.OfferRegistry.ABI, codec.EventInitializedChannel, "offers_initialized"})
	}
	if c.HasOfferMultisig() {
		table = append(table,
			extraction{c.OfferMultisigABI, codec.EventOpenedAgreement, "offers_opened"},
			extraction{c.OfferMultisigABI, codec.EventCanceledAgreement, "offers_canceled"},
			extraction{c.OfferMultisigABI, codec.EventJoinedAgreement, "offers_joined"},
			extraction{c.OfferMultisigABI, codec.EventClosedAgreement, "offers_closed"},
			extraction{c.OfferMultisigABI, codec.EventSettleStarted, "offers_settled"},
			extraction{c.OfferMultisigABI, codec.EventSettleChallenged, "offers_challenged"},
		)
	}
	return table
}

// ExtractEvents decodes receipt.Logs against c's extraction table,
// grouping decoded EventMessages by output key. Every entry is matched by
// log topic/signature alone, not by the emitting contract's address; for
// the offer-multisig ABI, which is shared by every per-channel instance,
// this mirrors the template-bind-to-zero-address approach of the source
// system.
func ExtractEvents(ctx context.Context, c *chain.Chain, cdc *codec.Codec, receipt *types.Receipt) map[string][]*codec.EventMessage {
	table := extractionTable(c)
	out := make(map[string][]*codec.EventMessage)

	for _, lg := range receipt.Logs {
		for _, entry := range table {
			msg, matched, err := chain.DecodeLogForKind(ctx, cdc, entry.abi, entry.kind, *lg)
			if err != nil || !matched {
				continue
			}
			out[entry.outKey] = append(out[entry.outKey], msg)
			break
		}
	}
	return out
}

// EventsFromTransaction implements §4.8 end to end: wait for txHash's
// receipt under chain c's timeout, classify gas/status failures, and
// extract decoded events from a successful receipt. revertReason may be
// nil when tracing is disabled.
func EventsFromTransaction(ctx context.Context, c *chain.Chain, cdc *codec.Codec, backend ReceiptBackend, txHash common.Hash, revertReason RevertReasonFunc) (map[string][]*codec.EventMessage, error) {
	receipt, err := WaitForReceipt(ctx, backend, txHash, ReceiptTimeout(c.Name))
	if err != nil {
		return nil, err
	}

	hex := txHash.Hex()
	if receipt.GasUsed == MaxGasLimit {
		return nil, fmt.Errorf("transaction %s: out of gas", hex)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		if revertReason != nil {
			reason, rerr := revertReason(ctx, txHash)
			if rerr == nil {
				return nil, fmt.Errorf("transaction %s: transaction failed at block %d, error: %s", hex, receipt.BlockNumber.Uint64(), reason)
			}
		}
		return nil, fmt.Errorf("transaction %s: transaction failed at block %d, check parameters", hex, receipt.BlockNumber.Uint64())
	}

	return ExtractEvents(ctx, c, cdc, receipt), nil
}

// RevertReasonSelector is the `Error(string)` function selector a revert
// reason payload is expected to begin with, per §4.8.
const RevertReasonSelector = "08c379a0"

// DecodeRevertReason strips the Error(string) selector from a
// debug_traceTransaction returnValue and ABI-decodes the remaining
// string. It returns an error if the payload does not begin with the
// expected selector.
func DecodeRevertReason(returnValue []byte) (string, error) {
	selector := common.FromHex("0x" + RevertReasonSelector)
	if len(returnValue) < 4 || !bytes.Equal(returnValue[:4], selector) {
		return "", fmt.Errorf("relay: revert encoding does not begin with selector %s", RevertReasonSelector)
	}

	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		return "", err
	}
	args := abi.Arguments{{Type: stringType}}
	values, err := args.Unpack(returnValue[4:])
	if err != nil || len(values) != 1 {
		return "", fmt.Errorf("relay: could not decode revert reason: %w", err)
	}
	reason, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("relay: revert reason was not a string")
	}
	return reason, nil
}
