package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polyswarm/polyswarmd-go/internal/codec"
	"github.com/polyswarm/polyswarmd-go/internal/filters"
)

// lowLatencyKinds never back off: low-latency delivery is required.
var lowLatencyKinds = map[codec.EventKind]bool{
	codec.EventBounty: true,
}

// bountyRegistryKinds is the required filter set over the bounty-registry
// contract, per the Filter Manager's startup contract.
var bountyRegistryKinds = []codec.EventKind{
	codec.EventBounty,
	codec.EventFeeUpdate,
	codec.EventWindowUpdate,
	codec.EventAssertion,
	codec.EventVote,
	codec.EventQuorum,
	codec.EventSettledBounty,
	codec.EventReveal,
	codec.EventDeprecated,
	codec.EventUndeprecated,
}

// offerChannelKinds is the subset installed on a scoped /events/<guid>
// Filter Manager over a single offer-multisig instance.
var offerChannelKinds = []codec.EventKind{
	codec.EventClosedAgreement,
	codec.EventSettleStarted,
	codec.EventSettleChallenged,
}

func registerEventWrapper(ctx context.Context, m *filters.Manager, c *Chain, binding *ContractBinding, kind codec.EventKind, cdc *codec.Codec) error {
	event, ok := binding.ABI.Events[codec.SourceLogName[kind]]
	if !ok {
		return fmt.Errorf("chain: %s: no ABI event for %s", binding.Name, kind)
	}
	poll, err := filters.NewLogFilter(ctx, c.RPC, binding.Address, event.ID)
	if err != nil {
		return fmt.Errorf("chain: install filter for %s: %w", kind, err)
	}
	return m.Register(&filters.Wrapper{
		Name:    string(kind),
		Kind:    kind,
		Backoff: !lowLatencyKinds[kind],
		Poll:    poll,
		Decode:  NewEventDecoder(ctx, binding, kind, cdc),
	})
}

// BuildManager constructs the Filter Manager for c's full required filter
// set: the always-present latest-block pseudo filter, every bounty-
// registry event, and InitializedChannel if c carries an offer-registry
// binding.
func BuildManager(ctx context.Context, c *Chain, cdc *codec.Codec) (*filters.Manager, error) {
	m := filters.NewManager()

	latest, err := filters.NewLatestBlockWrapper(ctx, c.RPC)
	if err != nil {
		return nil, fmt.Errorf("chain: %s: install latest-block filter: %w", c.Name, err)
	}
	if err := m.Register(latest); err != nil {
		return nil, err
	}

	if c.BountyRegistry == nil {
		return nil, fmt.Errorf("chain: %s: bounty-registry binding is required", c.Name)
	}
	for _, kind := range bountyRegistryKinds {
		if err := registerEventWrapper(ctx, m, c, c.BountyRegistry, kind, cdc); err != nil {
			return nil, err
		}
	}

	if c.OfferRegistry != nil {
		if err := registerEventWrapper(ctx, m, c, c.OfferRegistry, codec.EventInitializedChannel, cdc); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// BuildChannelManager constructs the scoped Filter Manager a /events/<guid>
// subscription installs over a single offer-multisig instance at
// channelAddress, using c's offer-multisig ABI.
func BuildChannelManager(ctx context.Context, c *Chain, channelAddress common.Address, cdc *codec.Codec) (*filters.Manager, error) {
	if !c.HasOfferMultisig() {
		return nil, fmt.Errorf("chain: %s: no offer-multisig template configured", c.Name)
	}
	binding := &ContractBinding{Name: "OfferMultisig", Address: channelAddress, ABI: c.OfferMultisigABI}

	m := filters.NewManager()
	for _, kind := range offerChannelKinds {
		if err := registerEventWrapper(ctx, m, c, binding, kind, cdc); err != nil {
			return nil, err
		}
	}
	return m, nil
}
