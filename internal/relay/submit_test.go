package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/polyswarm/polyswarmd-go/internal/chain"
)

const nectarTokenABIJSON = `[
  {"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

func mustParseNectarABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(bytes.NewReader([]byte(nectarTokenABIJSON)))
	if err != nil {
		t.Fatalf("parse nectar abi: %v", err)
	}
	return parsed
}

func testChain(t *testing.T, name chain.Name, chainID uint64) *chain.Chain {
	t.Helper()
	nectarABI := mustParseNectarABI(t)
	c := &chain.Chain{
		Name:           name,
		ChainID:        chainID,
		NectarToken:    chain.NewContractBinding("NectarToken", common.HexToAddress("0x1111111111111111111111111111111111111111"), nectarABI, nil),
		BountyRegistry: chain.NewContractBinding("BountyRegistry", common.HexToAddress("0x2222222222222222222222222222222222222222"), abi.ABI{}, nil),
		ArbiterStaking: chain.NewContractBinding("ArbiterStaking", common.HexToAddress("0x3333333333333333333333333333333333333333"), abi.ABI{}, nil),
		ERC20Relay:     chain.NewContractBinding("ERC20Relay", common.HexToAddress("0x4444444444444444444444444444444444444444"), abi.ABI{}, nil),
	}
	return c
}

func signedTx(t *testing.T, key []byte, chainID uint64, to common.Address, value *big.Int, data []byte) (*types.Transaction, common.Address) {
	t.Helper()
	prv, err := crypto.ToECDSA(key)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	signer := types.NewEIP155Signer(big.NewInt(int64(chainID)))
	txdata := &types.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    value,
		Gas:      200000,
		GasPrice: big.NewInt(1),
		Data:     data,
	}
	tx, err := types.SignNewTx(prv, signer, txdata)
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx, crypto.PubkeyToAddress(prv.PublicKey)
}

var testKey = func() []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}()

func hexEncodeTx(t *testing.T, tx *types.Transaction) string {
	t.Helper()
	data, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}
	return "0x" + hex.EncodeToString(data)
}

func TestDecodeRawTransactionsRejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	raws := make([]string, 11)
	if _, err := DecodeRawTransactions(raws); err == nil {
		t.Fatal("expected error for batch over 10 transactions")
	}
}

func TestDecodeRawTransactionsRoundTrips(t *testing.T) {
	t.Parallel()

	sideChainID := uint64(109)
	c := testChain(t, chain.Side, sideChainID)
	data, err := c.NectarToken.ABI.Pack("transfer", c.ERC20Relay.Address, big.NewInt(5))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	tx, sender := signedTx(t, testKey, sideChainID, c.NectarToken.Address, big.NewInt(0), data)

	decoded, err := DecodeRawTransactions([]string{hexEncodeTx(t, tx)})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 decoded tx, got %d", len(decoded))
	}
	gotSender, err := senderOf(decoded[0])
	if err != nil {
		t.Fatalf("senderOf: %v", err)
	}
	if gotSender != sender {
		t.Fatalf("recovered sender %s, want %s", gotSender, sender)
	}
}

func TestIsWithdrawalAcceptsSideChainTransfer(t *testing.T) {
	t.Parallel()

	sideChainID := uint64(109)
	c := testChain(t, chain.Side, sideChainID)
	data, err := c.NectarToken.ABI.Pack("transfer", c.ERC20Relay.Address, big.NewInt(1))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	tx, _ := signedTx(t, testKey, sideChainID, c.NectarToken.Address, big.NewInt(0), data)

	if !isWithdrawal(c, sideChainID, tx) {
		t.Fatal("expected side-chain nectar transfer to erc20-relay to qualify as a withdrawal")
	}
}

func TestIsWithdrawalRejectsHomeChain(t *testing.T) {
	t.Parallel()

	sideChainID := uint64(109)
	c := testChain(t, chain.Home, uint64(42))
	data, err := c.NectarToken.ABI.Pack("transfer", c.ERC20Relay.Address, big.NewInt(1))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	tx, _ := signedTx(t, testKey, 42, c.NectarToken.Address, big.NewInt(0), data)

	if isWithdrawal(c, sideChainID, tx) {
		t.Fatal("a home-chain transaction must never qualify as a withdrawal")
	}
}

type stubSubmitter struct {
	sent []*types.Transaction
	err  error
}

func (s *stubSubmitter) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, tx)
	return nil
}

func TestSubmitBatchRejectsMultipleWithoutAuth(t *testing.T) {
	t.Parallel()

	sideChainID := uint64(109)
	c := testChain(t, chain.Side, sideChainID)
	data, _ := c.NectarToken.ABI.Pack("transfer", c.ERC20Relay.Address, big.NewInt(1))
	tx1, _ := signedTx(t, testKey, sideChainID, c.NectarToken.Address, big.NewInt(0), data)
	tx2, _ := signedTx(t, testKey, sideChainID, c.NectarToken.Address, big.NewInt(0), data)

	raws := []string{hexEncodeTx(t, tx1), hexEncodeTx(t, tx2)}
	sub := &stubSubmitter{}
	_, _, err := SubmitBatch(context.Background(), c, sideChainID, sub, false, common.Address{}, raws)
	if !errors.Is(err, ErrAPIKeyRequired) {
		t.Fatalf("err = %v, want ErrAPIKeyRequired", err)
	}
	if !strings.Contains(err.Error(), "Posting multiple transactions requires an API key") {
		t.Fatalf("err = %v", err)
	}
}

func TestSubmitBatchAcceptsSingleUnauthenticatedWithdrawal(t *testing.T) {
	t.Parallel()

	sideChainID := uint64(109)
	c := testChain(t, chain.Side, sideChainID)
	data, _ := c.NectarToken.ABI.Pack("transfer", c.ERC20Relay.Address, big.NewInt(1))
	tx, _ := signedTx(t, testKey, sideChainID, c.NectarToken.Address, big.NewInt(0), data)

	sub := &stubSubmitter{}
	outcomes, anyError, err := SubmitBatch(context.Background(), c, sideChainID, sub, false, common.Address{}, []string{hexEncodeTx(t, tx)})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if anyError {
		t.Fatalf("outcomes = %+v, expected no error", outcomes)
	}
	if len(sub.sent) != 1 {
		t.Fatalf("expected exactly 1 submitted transaction, got %d", len(sub.sent))
	}
	if outcomes[0].Message != tx.Hash().Hex() {
		t.Fatalf("message = %q, want tx hash", outcomes[0].Message)
	}
}

func TestSubmitBatchRejectsNonWithdrawalWithoutAuth(t *testing.T) {
	t.Parallel()

	sideChainID := uint64(109)
	homeChainID := uint64(42)
	c := testChain(t, chain.Home, homeChainID)
	data, _ := c.NectarToken.ABI.Pack("transfer", c.ERC20Relay.Address, big.NewInt(1))
	tx, _ := signedTx(t, testKey, homeChainID, c.NectarToken.Address, big.NewInt(0), data)

	sub := &stubSubmitter{}
	outcomes, anyError, err := SubmitBatch(context.Background(), c, sideChainID, sub, false, common.Address{}, []string{hexEncodeTx(t, tx)})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if !anyError || !outcomes[0].IsError {
		t.Fatal("expected a non-withdrawal home-chain tx to be rejected without an API key")
	}
	if !strings.Contains(outcomes[0].Message, "only withdrawals allowed without an API key") {
		t.Fatalf("message = %q", outcomes[0].Message)
	}
	if len(sub.sent) != 0 {
		t.Fatal("rejected transaction must not be submitted")
	}
}

func TestSubmitBatchRejectsUnknownRecipient(t *testing.T) {
	t.Parallel()

	homeChainID := uint64(42)
	c := testChain(t, chain.Home, homeChainID)
	stranger := common.HexToAddress("0x9999999999999999999999999999999999999999")
	tx, sender := signedTx(t, testKey, homeChainID, stranger, big.NewInt(0), nil)

	sub := &stubSubmitter{}
	outcomes, anyError, err := SubmitBatch(context.Background(), c, uint64(109), sub, true, sender, []string{hexEncodeTx(t, tx)})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if !anyError {
		t.Fatal("expected an unknown recipient to be rejected")
	}
	if !strings.Contains(outcomes[0].Message, "not a known contract") {
		t.Fatalf("message = %q", outcomes[0].Message)
	}
}

func TestSubmitBatchRejectsDeployment(t *testing.T) {
	t.Parallel()

	homeChainID := uint64(42)
	c := testChain(t, chain.Home, homeChainID)
	prv, err := crypto.ToECDSA(testKey)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	signer := types.NewEIP155Signer(big.NewInt(int64(homeChainID)))
	txdata := &types.LegacyTx{Nonce: 0, To: nil, Value: big.NewInt(0), Gas: 200000, GasPrice: big.NewInt(1), Data: []byte{0x60, 0x60}}
	tx, err := types.SignNewTx(prv, signer, txdata)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sender := crypto.PubkeyToAddress(prv.PublicKey)

	sub := &stubSubmitter{}
	outcomes, anyError, err := SubmitBatch(context.Background(), c, uint64(109), sub, true, sender, []string{hexEncodeTx(t, tx)})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if !anyError || !strings.Contains(outcomes[0].Message, "deployment is not permitted") {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestSubmitBatchRejectsSenderMismatch(t *testing.T) {
	t.Parallel()

	homeChainID := uint64(42)
	c := testChain(t, chain.Home, homeChainID)
	tx, _ := signedTx(t, testKey, homeChainID, c.NectarToken.Address, big.NewInt(0), nil)

	sub := &stubSubmitter{}
	otherCaller := common.HexToAddress("0x5555555555555555555555555555555555555555")
	outcomes, anyError, err := SubmitBatch(context.Background(), c, uint64(109), sub, true, otherCaller, []string{hexEncodeTx(t, tx)})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if !anyError || !strings.Contains(outcomes[0].Message, "does not match authenticated caller") {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}
