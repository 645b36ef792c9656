package api

import (
	"net/http/httptest"
	"testing"

	"github.com/polyswarm/polyswarmd-go/internal/chain"
)

func TestResolveChainDefaultsToHome(t *testing.T) {
	t.Parallel()

	home := &chain.Chain{Name: chain.Home}
	s := &Server{Chains: map[chain.Name]*chain.Chain{chain.Home: home}}

	req := httptest.NewRequest("GET", "/nonce", nil)
	c, apiErr := resolveChain(s, req)
	if apiErr != nil {
		t.Fatalf("resolveChain: %v", apiErr)
	}
	if c != home {
		t.Fatal("expected resolveChain to default to the home chain")
	}
}

func TestResolveChainRejectsUnconfiguredSide(t *testing.T) {
	t.Parallel()

	home := &chain.Chain{Name: chain.Home}
	s := &Server{Chains: map[chain.Name]*chain.Chain{chain.Home: home}}

	req := httptest.NewRequest("GET", "/nonce?chain=side", nil)
	if _, apiErr := resolveChain(s, req); apiErr == nil {
		t.Fatal("expected an error for an unconfigured side chain")
	}
}

func TestResolveChainRejectsUnknownName(t *testing.T) {
	t.Parallel()

	s := &Server{Chains: map[chain.Name]*chain.Chain{chain.Home: {Name: chain.Home}}}

	req := httptest.NewRequest("GET", "/nonce?chain=moon", nil)
	if _, apiErr := resolveChain(s, req); apiErr == nil {
		t.Fatal("expected an error for an unrecognized chain name")
	}
}

func TestResolveAccountRequiresValidAddress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		query string
		ok    bool
	}{
		{"", false},
		{"account=not-an-address", false},
		{"account=0x1111111111111111111111111111111111111111", true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/nonce?"+tc.query, nil)
		_, apiErr := resolveAccount(req)
		if (apiErr == nil) != tc.ok {
			t.Errorf("resolveAccount(%q) error = %v, want ok=%v", tc.query, apiErr, tc.ok)
		}
	}
}
