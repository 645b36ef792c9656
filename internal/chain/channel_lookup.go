package chain

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ChannelAddress looks up the offer-multisig instance address for guid via
// the offer-registry's guidToChannel(uint256) view function. The function
// returns a single tuple value (a dynamically reflected struct); this
// walks its fields for the first common.Address, matching the struct's
// `msig_address`-shaped field regardless of its exact name.
func (c *Chain) ChannelAddress(ctx context.Context, guid *big.Int) (common.Address, error) {
	if c.OfferRegistry == nil {
		return common.Address{}, fmt.Errorf("chain: %s: offer-registry is not configured", c.Name)
	}

	out := make([]interface{}, 1)
	if err := c.OfferRegistry.bound.Call(&bind.CallOpts{Context: ctx}, &out, "guidToChannel", guid); err != nil {
		return common.Address{}, fmt.Errorf("chain: %s.guidToChannel(%s): %w", c.OfferRegistry.Name, guid, err)
	}

	addr, ok := firstAddressField(out[0])
	if !ok {
		return common.Address{}, fmt.Errorf("chain: guidToChannel(%s) did not return a channel address", guid)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("chain: no channel found for guid %s", guid)
	}
	return addr, nil
}

// firstAddressField walks v's struct fields (or a single common.Address
// itself) looking for the channel's multisig address.
func firstAddressField(v interface{}) (common.Address, bool) {
	if addr, ok := v.(common.Address); ok {
		return addr, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Struct {
		return common.Address{}, false
	}
	addressType := reflect.TypeOf(common.Address{})
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		if field.Type() == addressType {
			if strings.Contains(strings.ToLower(rv.Type().Field(i).Name), "msig") {
				return field.Interface().(common.Address), true
			}
		}
	}
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		if field.Type() == addressType {
			return field.Interface().(common.Address), true
		}
	}
	return common.Address{}, false
}
