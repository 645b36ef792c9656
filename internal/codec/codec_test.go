package codec

import (
	"context"
	"math/big"
	"regexp"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", s, err)
	}
	return id
}

var uuidRE = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

type stubResolver struct {
	value interface{}
}

func (s stubResolver) Resolve(_ context.Context, uri string) interface{} {
	if s.value != nil {
		return s.value
	}
	return uri
}

func TestBoolListRoundTrip(t *testing.T) {
	t.Parallel()

	for _, k := range []int64{0, 1, 2, 127, 128, 255, 256} {
		m := big.NewInt(k)
		bits := IntToBoolList(m, 256)
		got := BoolListToInt(bits)
		if got.Cmp(m) != 0 {
			t.Fatalf("round trip failed for %d: got %s", k, got.String())
		}
	}
}

func TestIntToBoolListWidth(t *testing.T) {
	t.Parallel()

	// 128 has bit 7 set, so with width 8 it is the last entry; 64 has bit 6
	// set, so with width 7 it is the last entry.
	got := IntToBoolList(big.NewInt(128), 8)
	want := []bool{false, false, false, false, false, false, false, true}
	if !boolSliceEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	got = IntToBoolList(big.NewInt(64), 7)
	want = []bool{false, false, false, false, false, false, true}
	if !boolSliceEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func boolSliceEqual(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGuidRoundTrip(t *testing.T) {
	t.Parallel()

	g := big.NewInt(16577)
	s := guidToUUID(g)
	if !uuidRE.MatchString(s) {
		t.Fatalf("guid %q does not match canonical form", s)
	}
	back := uuidToGUID(mustParseUUID(t, s))
	if back.Cmp(g) != 0 {
		t.Fatalf("round trip mismatch: got %s want %s", back.String(), g.String())
	}
}

func TestDecodeBounty(t *testing.T) {
	t.Parallel()

	c := New(stubResolver{})
	author := common.HexToAddress("0x4F8612f7948Cb29bb72f18c24f3Fa97d1b8ED979")
	args := map[string]interface{}{
		"guid":            big.NewInt(16577),
		"artifactType":    big.NewInt(1),
		"author":          author,
		"amount":          big.NewInt(10),
		"artifactURI":     "http://s3/bounty_uri",
		"expirationBlock": big.NewInt(118),
	}
	rec := LogRecord{
		Args:        args,
		BlockNumber: 117,
		TxHash:      common.HexToHash("0x0b00000000000000000000000000000000000000000000000000000000000011"),
	}
	msg, err := c.Decode(context.Background(), EventBounty, rec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Event != "bounty" {
		t.Fatalf("event = %q", msg.Event)
	}
	if *msg.BlockNumber != 117 {
		t.Fatalf("block_number = %d", *msg.BlockNumber)
	}
	if msg.Data["guid"] != "00000000-0000-0000-0000-0000000040c1" {
		t.Fatalf("guid = %v", msg.Data["guid"])
	}
	if msg.Data["artifact_type"] != "url" {
		t.Fatalf("artifact_type = %v", msg.Data["artifact_type"])
	}
	if msg.Data["amount"] != "10" {
		t.Fatalf("amount = %v", msg.Data["amount"])
	}
	if msg.Data["expiration"] != "118" {
		t.Fatalf("expiration = %v", msg.Data["expiration"])
	}
	if msg.Data["metadata"] != "http://s3/bounty_uri" {
		t.Fatalf("metadata fallback = %v", msg.Data["metadata"])
	}
}

func TestDecodeBountyWithResolvedMetadata(t *testing.T) {
	t.Parallel()

	resolved := map[string]interface{}{"name": "sample"}
	c := New(stubResolver{value: resolved})
	args := map[string]interface{}{
		"guid":            big.NewInt(1),
		"artifactType":    big.NewInt(0),
		"author":          common.Address{},
		"amount":          big.NewInt(1),
		"artifactURI":     "ipfs://Qm",
		"expirationBlock": big.NewInt(1),
	}
	msg, err := c.Decode(context.Background(), EventBounty, LogRecord{Args: args, BlockNumber: 1})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := msg.Data["metadata"].(map[string]interface{})
	if !ok || got["name"] != "sample" {
		t.Fatalf("metadata = %v", msg.Data["metadata"])
	}
}

func TestDecodeAssertionBitVector(t *testing.T) {
	t.Parallel()

	c := New(nil)
	args := map[string]interface{}{
		"bountyGuid":   big.NewInt(751207),
		"author":       common.HexToAddress("0xf2e1f4a3b2c9a09e2d8e7b6c5d4e3f2a1b0c395b"),
		"index":        big.NewInt(1),
		"bid":          []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
		"mask":         big.NewInt(128),
		"commitment":   big.NewInt(100),
		"numArtifacts": big.NewInt(8),
	}
	msg, err := c.Decode(context.Background(), EventAssertion, LogRecord{Args: args, BlockNumber: 5})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mask, ok := msg.Data["mask"].([]bool)
	if !ok || len(mask) != 8 {
		t.Fatalf("mask = %v", msg.Data["mask"])
	}
	want := []bool{false, false, false, false, false, false, false, true}
	if !boolSliceEqual(mask, want) {
		t.Fatalf("mask = %v want %v", mask, want)
	}
}

func TestDecodeMissingFieldIsSchemaMismatch(t *testing.T) {
	t.Parallel()

	c := New(nil)
	_, err := c.Decode(context.Background(), EventFeeUpdate, LogRecord{Args: map[string]interface{}{}})
	if err == nil {
		t.Fatal("expected error")
	}
	var mismatch *SchemaMismatch
	if !asSchemaMismatch(err, &mismatch) {
		t.Fatalf("expected *SchemaMismatch, got %T: %v", err, err)
	}
}

func asSchemaMismatch(err error, target **SchemaMismatch) bool {
	if m, ok := err.(*SchemaMismatch); ok {
		*target = m
		return true
	}
	return false
}

func TestDecodeBlockTick(t *testing.T) {
	t.Parallel()

	msg := DecodeBlockTick(118)
	if msg.Event != "block" {
		t.Fatalf("event = %q", msg.Event)
	}
	if msg.BlockNumber != nil {
		t.Fatalf("block_number should be omitted, got %v", msg.BlockNumber)
	}
	if msg.TxHash != "" {
		t.Fatalf("txhash should be omitted, got %q", msg.TxHash)
	}
	if msg.Data["number"] != uint64(118) {
		t.Fatalf("number = %v", msg.Data["number"])
	}
}
