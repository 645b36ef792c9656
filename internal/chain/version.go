package chain

import (
	"context"
	"fmt"

	"github.com/coreos/go-semver/semver"
)

// versionRange is a half-open [Min, Max) semver range a contract's
// VERSION() must satisfy.
type versionRange struct {
	Min semver.Version
	Max semver.Version
}

// VersionRanges enumerates the supported on-chain contract versions. A
// binding whose VERSION() falls outside its range fails startup.
var VersionRanges = map[string]versionRange{
	"ArbiterStaking": {Min: *semver.New("1.2.0"), Max: *semver.New("1.3.0")},
	"BountyRegistry": {Min: *semver.New("1.6.0"), Max: *semver.New("1.7.0")},
	"ERC20Relay":     {Min: *semver.New("1.2.0"), Max: *semver.New("1.4.0")},
	"OfferRegistry":  {Min: *semver.New("1.2.0"), Max: *semver.New("1.3.0")},
}

// ValidateVersion fetches b's on-chain VERSION() and checks it against
// the range registered for b.Name. A contract with no registered range
// is not version-checked.
func ValidateVersion(ctx context.Context, b *ContractBinding) error {
	rng, ok := VersionRanges[b.Name]
	if !ok {
		return nil
	}
	raw, err := b.Version(ctx)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("chain: %s: unparseable VERSION() %q: %w", b.Name, raw, err)
	}
	if !inRange(*v, rng.Min, rng.Max) {
		return fmt.Errorf("chain: %s: VERSION() %s outside supported range [%s, %s)", b.Name, v, rng.Min, rng.Max)
	}
	return nil
}

// inRange reports whether v falls in the half-open range [min, max).
func inRange(v, min, max semver.Version) bool {
	return !v.LessThan(min) && v.LessThan(max)
}

// ValidateChain runs ValidateVersion over every configured binding on c,
// returning the first failure.
func ValidateChain(ctx context.Context, c *Chain) error {
	for _, b := range c.Bindings() {
		if err := ValidateVersion(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
