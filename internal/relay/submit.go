// Package relay validates and submits client-signed transactions, and
// extracts decoded contract events from a mined transaction's receipt.
package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/polyswarm/polyswarmd-go/internal/chain"
)

const maxBatchSize = 10

// ErrAPIKeyRequired is returned by SubmitBatch when an unauthenticated
// caller posts more than one transaction; per §8 scenario 3 this is a 403,
// distinct from the 400 the other batch-validation failures carry.
var ErrAPIKeyRequired = errors.New("Posting multiple transactions requires an API key")

var zeroAddress common.Address

var transferSignatureHash = mustTransferSelector()

func mustTransferSelector() [4]byte {
	nectarABI, err := abi.JSON(bytes.NewReader([]byte(`[{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`)))
	if err != nil {
		panic(err)
	}
	var sel [4]byte
	copy(sel[:], nectarABI.Methods["transfer"].ID)
	return sel
}

// Outcome is the per-transaction result of a POST /transactions batch, per
// §4.7: a tx hash on success, an error string on failure.
type Outcome struct {
	IsError bool   `json:"is_error"`
	Message string `json:"message"`
}

// Submitter is the boundary to the node's transaction pool. ethclient.Client
// satisfies this directly.
type Submitter interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// DecodeRawTransactions parses each hex string in rawTxs as a signed
// transaction (RLP or EIP-2718 typed envelope). It rejects batches over
// maxBatchSize before attempting to decode any entry.
func DecodeRawTransactions(rawTxs []string) ([]*types.Transaction, error) {
	if len(rawTxs) == 0 {
		return nil, fmt.Errorf("relay: empty transaction batch")
	}
	if len(rawTxs) > maxBatchSize {
		return nil, fmt.Errorf("relay: at most %d transactions per batch", maxBatchSize)
	}

	txs := make([]*types.Transaction, len(rawTxs))
	for i, raw := range rawTxs {
		raw := trimHexPrefix(raw)
		data, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("relay: transaction %d: invalid hex encoding: %w", i, err)
		}
		var tx types.Transaction
		if err := tx.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("relay: transaction %d: could not decode signed transaction: %w", i, err)
		}
		txs[i] = &tx
	}
	return txs, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// senderOf recovers tx's sender using the signer implied by its chain id.
func senderOf(tx *types.Transaction) (common.Address, error) {
	signer := types.LatestSignerForChainID(tx.ChainId())
	return types.Sender(signer, tx)
}

// recipientAllowed reports whether to is one of c's known contract
// addresses, per §4.7's recipient allow-list.
func recipientAllowed(c *chain.Chain, to common.Address) bool {
	for _, b := range c.Bindings() {
		if b.Address == to {
			return true
		}
	}
	return false
}

// isWithdrawal reports whether tx is exactly the shape §4.7 carves out
// for unauthenticated callers: a call to nectar-token's
// transfer(address,uint256) on the side chain, recipient = erc20-relay,
// zero value, positive amount, matching network id.
func isWithdrawal(c *chain.Chain, sideChainID uint64, tx *types.Transaction) bool {
	if c.Name != chain.Side || tx.To() == nil {
		return false
	}
	if c.NectarToken == nil || *tx.To() != c.NectarToken.Address {
		return false
	}
	if tx.Value().Sign() != 0 {
		return false
	}
	if tx.ChainId() == nil || tx.ChainId().Uint64() != sideChainID {
		return false
	}

	data := tx.Data()
	if len(data) < 4 || [4]byte{data[0], data[1], data[2], data[3]} != transferSignatureHash {
		return false
	}

	args := abi.Arguments{{Type: mustAddressType()}, {Type: mustUint256Type()}}
	values, err := args.Unpack(data[4:])
	if err != nil || len(values) != 2 {
		return false
	}
	recipient, ok := values[0].(common.Address)
	if !ok || c.ERC20Relay == nil || recipient != c.ERC20Relay.Address {
		return false
	}
	amount, ok := values[1].(*big.Int)
	if !ok || amount.Sign() <= 0 {
		return false
	}
	return true
}

// SubmitBatch validates and submits rawTxs against chain c. authenticated
// selects the withdrawal-only carve-out of §4.7: an unauthenticated
// caller's batch must contain exactly one withdrawal transaction.
// sideChainID is required to validate a withdrawal's network id even when
// c itself is the side chain.
func SubmitBatch(
	ctx context.Context,
	c *chain.Chain,
	sideChainID uint64,
	submitter Submitter,
	authenticated bool,
	caller common.Address,
	rawTxs []string,
) ([]Outcome, bool, error) {
	txs, err := DecodeRawTransactions(rawTxs)
	if err != nil {
		return nil, false, err
	}

	if !authenticated {
		if len(txs) != 1 {
			return nil, false, ErrAPIKeyRequired
		}
	}

	outcomes := make([]Outcome, len(txs))
	anyError := false
	for i, tx := range txs {
		outcome := validateAndSubmit(ctx, c, sideChainID, submitter, authenticated, caller, tx)
		outcomes[i] = outcome
		if outcome.IsError {
			anyError = true
		}
	}
	return outcomes, anyError, nil
}

func validateAndSubmit(
	ctx context.Context,
	c *chain.Chain,
	sideChainID uint64,
	submitter Submitter,
	authenticated bool,
	caller common.Address,
	tx *types.Transaction,
) Outcome {
	sender, err := senderOf(tx)
	if err != nil {
		return Outcome{IsError: true, Message: fmt.Sprintf("could not recover sender: %v", err)}
	}
	if authenticated && sender != caller {
		return Outcome{IsError: true, Message: "transaction sender does not match authenticated caller"}
	}

	to := tx.To()
	if to == nil || *to == zeroAddress {
		return Outcome{IsError: true, Message: "contract deployment is not permitted"}
	}
	if !recipientAllowed(c, *to) {
		return Outcome{IsError: true, Message: fmt.Sprintf("recipient %s is not a known contract", to.Hex())}
	}

	if !authenticated && !isWithdrawal(c, sideChainID, tx) {
		return Outcome{IsError: true, Message: "only withdrawals allowed without an API key"}
	}

	if err := submitter.SendTransaction(ctx, tx); err != nil {
		return Outcome{IsError: true, Message: err.Error()}
	}
	return Outcome{IsError: false, Message: tx.Hash().Hex()}
}

func mustAddressType() abi.Type {
	t, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

func mustUint256Type() abi.Type {
	t, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return t
}
