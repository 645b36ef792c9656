package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polyswarm/polyswarmd-go/internal/chain"
	"github.com/polyswarm/polyswarmd-go/internal/relay"
)

const maxTransactionsPerBatch = 10

// isTransactionHash reports whether raw is a 32-byte hash in hex, with or
// without a 0x prefix, per the `GET /transactions` request schema.
func isTransactionHash(raw string) bool {
	trimmed := raw
	if len(trimmed) >= 2 && trimmed[0] == '0' && (trimmed[1] == 'x' || trimmed[1] == 'X') {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != 64 {
		return false
	}
	for _, r := range trimmed {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// handleStatus answers the public `GET /status` with community identity
// and per-service reachability, per §10.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]interface{}{"community": s.Config.Community}
	for name, c := range s.Chains {
		status[string(name)] = map[string]bool{"reachable": chainReachable(ctx, c)}
	}
	if s.Config.Auth.RequireAPIKey() {
		status["auth"] = map[string]bool{"reachable": s.Auth.Reachable(ctx)}
	}
	writeSuccess(w, http.StatusOK, status)
}

func chainReachable(ctx context.Context, c *chain.Chain) bool {
	if c == nil || c.Client == nil {
		return false
	}
	_, err := c.Client.BlockNumber(ctx)
	return err == nil
}

// handleNonce answers `GET /nonce?account=&chain=&ignore_pending`, per §4.8.
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	c, apiErr := resolveChain(s, r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	account, apiErr := resolveAccount(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	var (
		nonce uint64
		err   error
	)
	if _, ignorePending := r.URL.Query()["ignore_pending"]; ignorePending {
		nonce, err = c.Client.NonceAt(r.Context(), account, nil)
	} else {
		nonce, err = c.Client.PendingNonceAt(r.Context(), account)
	}
	if err != nil {
		writeAPIError(w, failUpstream(err.Error()))
		return
	}
	writeSuccess(w, http.StatusOK, nonce)
}

type transactionsRequest struct {
	Transactions []string `json:"transactions"`
}

// handleGetTransactions answers `GET /transactions`: it waits for each
// listed transaction hash to be mined and merges the decoded events it
// produced, failing the whole batch with HTTP 400 if any transaction
// itself failed, per §4.8.
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	c, apiErr := resolveChain(s, r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	var body transactionsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, failValidation("Invalid JSON: "+err.Error()))
		return
	}
	if len(body.Transactions) == 0 || len(body.Transactions) > maxTransactionsPerBatch {
		writeAPIError(w, failValidation("transactions must contain between 1 and 10 hashes"))
		return
	}

	ret := map[string][]interface{}{}
	for _, raw := range body.Transactions {
		if !isTransactionHash(raw) {
			ret["errors"] = append(ret["errors"], "invalid transaction hash: "+raw)
			continue
		}
		events, err := relay.EventsFromTransaction(r.Context(), c, s.Codec, c.Client, common.HexToHash(raw), nil)
		if err != nil {
			ret["errors"] = append(ret["errors"], err.Error())
			continue
		}
		for k, v := range events {
			for _, msg := range v {
				ret[k] = append(ret[k], msg)
			}
		}
	}

	if len(ret["errors"]) > 0 {
		writeFailure(w, http.StatusBadRequest, ret)
		return
	}
	writeSuccess(w, http.StatusOK, ret)
}

// handlePostTransactions answers `POST /transactions`: it decodes,
// validates, and relays a batch of client-signed transactions, per §4.7.
// An unauthenticated caller may submit only a single withdrawal
// transaction.
func (s *Server) handlePostTransactions(w http.ResponseWriter, r *http.Request) {
	c, apiErr := resolveChain(s, r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	account, apiErr := resolveAccount(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	var body transactionsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, failValidation("Invalid JSON: "+err.Error()))
		return
	}

	user := userFromContext(r.Context())
	authenticated := user.Authorized && s.Config.Auth.RequireAPIKey()
	sideChainID := uint64(0)
	if side, ok := s.Chains[chain.Side]; ok {
		sideChainID = side.ChainID
	}

	outcomes, anyError, err := relay.SubmitBatch(r.Context(), c, sideChainID, c.Client, authenticated, account, body.Transactions)
	if err != nil {
		if errors.Is(err, relay.ErrAPIKeyRequired) {
			writeAPIError(w, failForbidden(err.Error()))
			return
		}
		writeAPIError(w, failValidation(err.Error()))
		return
	}
	if anyError {
		writeFailure(w, http.StatusBadRequest, outcomes)
		return
	}
	writeSuccess(w, http.StatusOK, outcomes)
}

// handleRelayFees answers `GET /relay/fees` with the erc20-relay
// contract's current flat fee, per §4.7.
func (s *Server) handleRelayFees(w http.ResponseWriter, r *http.Request) {
	c, apiErr := resolveChain(s, r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if c.ERC20Relay == nil {
		writeAPIError(w, failNotFound("erc20-relay is not configured on this chain"))
		return
	}
	fees, err := c.ERC20Relay.CallUint256(r.Context(), "fees")
	if err != nil {
		writeAPIError(w, failUpstream(err.Error()))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"fees": fees.String()})
}

type sendFundsRequest struct {
	Amount string `json:"amount"`
}

// handleRelayDeposit answers `POST /relay/deposit`: it always resolves
// the home chain and builds an unsigned nectar transfer to erc20-relay,
// moving funds home-to-side once the client signs and relays it.
func (s *Server) handleRelayDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleSendFunds(w, r, chain.Home)
}

// handleRelayWithdrawal answers `POST /relay/withdrawal`: it always
// resolves the side chain, the mirror image of deposit.
func (s *Server) handleRelayWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.handleSendFunds(w, r, chain.Side)
}

func (s *Server) handleSendFunds(w http.ResponseWriter, r *http.Request, name chain.Name) {
	c, ok := s.Chains[name]
	if !ok || c == nil {
		writeAPIError(w, failValidation(string(name)+" chain is not configured on this instance"))
		return
	}
	account, apiErr := resolveAccount(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	var body sendFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, failValidation("Invalid JSON: "+err.Error()))
		return
	}
	amount, ok := new(big.Int).SetString(body.Amount, 10)
	if !ok || body.Amount == "" {
		writeAPIError(w, failValidation("amount must be a base-10 integer string"))
		return
	}

	var overrideNonce *uint64
	if raw := r.URL.Query().Get("base_nonce"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeAPIError(w, failValidation("base_nonce must be an integer"))
			return
		}
		overrideNonce = &n
	}

	tx, err := relay.BuildNectarTransfer(r.Context(), c, c.Client, account, amount, overrideNonce)
	if err != nil {
		writeAPIError(w, failUpstream(err.Error()))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"transactions": []*relay.UnsignedTransaction{tx}})
}
