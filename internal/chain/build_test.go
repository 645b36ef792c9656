package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func writeABIFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write abi file: %v", err)
	}
	return path
}

func newChainCallServer(t *testing.T, versionResult []byte) *httptest.Server {
	t.Helper()
	hexResult := "0x" + common.Bytes2Hex(versionResult)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Fatalf("decode rpc call: %v", err)
		}
		var res interface{}
		switch call.Method {
		case "eth_chainId":
			res = "0x539"
		case "eth_call":
			res = hexResult
		default:
			t.Fatalf("unexpected rpc method %s", call.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: call.ID, Result: res})
	}))
}

func TestNewBuildsAllConfiguredBindings(t *testing.T) {
	t.Parallel()

	contractABI := mustParseABI(t, erc20RelayCallABI)
	versionPacked, err := contractABI.Methods["VERSION"].Outputs.Pack("1.6.3")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	srv := newChainCallServer(t, versionPacked)
	defer srv.Close()

	dir := t.TempDir()
	abiPath := writeABIFile(t, dir, "erc20relay.json", erc20RelayCallABI)

	src := ChainSource{
		RPC:                   srv.URL,
		NectarToken:           "0x1111111111111111111111111111111111111111",
		NectarTokenABIPath:    abiPath,
		BountyRegistry:        "0x2222222222222222222222222222222222222222",
		BountyRegistryABIPath: abiPath,
		ArbiterStaking:        "0x3333333333333333333333333333333333333333",
		ArbiterStakingABIPath: abiPath,
		ERC20Relay:            "0x4444444444444444444444444444444444444444",
		ERC20RelayABIPath:     abiPath,
	}

	c, err := New(context.Background(), Home, src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.ChainID != 0x539 {
		t.Fatalf("ChainID = %d, want 1337", c.ChainID)
	}
	if c.NectarToken == nil || c.BountyRegistry == nil || c.ArbiterStaking == nil || c.ERC20Relay == nil {
		t.Fatal("expected all four required/optional bindings to be constructed")
	}
	if c.OfferRegistry != nil {
		t.Fatal("offer-registry should be absent when not configured")
	}
}

func TestValidateAllFailsFastOnBrokenVersionCall(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: call.ID, Result: "0x"})
	}))
	defer srv.Close()

	contractABI := mustParseABI(t, erc20RelayCallABI)
	binding := NewContractBinding("ERC20Relay", common.HexToAddress("0x1111111111111111111111111111111111111111"), contractABI, testClient(t, srv.URL))

	chains := map[Name]*Chain{
		Home: {Name: Home, BountyRegistry: binding},
	}

	if err := ValidateAll(context.Background(), chains); err == nil {
		t.Fatal("expected ValidateAll to fail when a binding's VERSION() call fails")
	}
}

func TestValidateAllPassesWhenEveryBindingAnswers(t *testing.T) {
	t.Parallel()

	contractABI := mustParseABI(t, erc20RelayCallABI)
	versionPacked, err := contractABI.Methods["VERSION"].Outputs.Pack("1.6.3")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	srv := newChainCallServer(t, versionPacked)
	defer srv.Close()

	binding := NewContractBinding("BountyRegistry", common.HexToAddress("0x2222222222222222222222222222222222222222"), contractABI, testClient(t, srv.URL))
	chains := map[Name]*Chain{
		Home: {Name: Home, BountyRegistry: binding},
	}

	if err := ValidateAll(context.Background(), chains); err != nil {
		t.Fatalf("ValidateAll: %v", err)
	}
}
