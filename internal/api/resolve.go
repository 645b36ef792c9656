package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polyswarm/polyswarmd-go/internal/chain"
)

// resolveChain selects the network a request targets via `?chain=`,
// defaulting to home and rejecting a `side` chain the deployment never
// configured, mirroring the Python original's select_chain decorator.
func resolveChain(s *Server, r *http.Request) (*chain.Chain, *apiError) {
	name := chain.Name(r.URL.Query().Get("chain"))
	if name == "" {
		name = chain.Home
	}
	if name != chain.Home && name != chain.Side {
		return nil, failValidation("Chain must be either home or side")
	}
	c, ok := s.Chains[name]
	if !ok || c == nil {
		return nil, failValidation("Side chain not supported in this instance of polyswarmd")
	}
	return c, nil
}

// resolveAccount reads and validates the caller's `?account=` query
// parameter, required by every route that builds or looks up a
// transaction on the caller's behalf.
func resolveAccount(r *http.Request) (common.Address, *apiError) {
	account := r.URL.Query().Get("account")
	if account == "" || !common.IsHexAddress(account) {
		return common.Address{}, failAuth("Source account required")
	}
	return common.HexToAddress(account), nil
}
