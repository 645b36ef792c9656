// Package config loads the gateway's TOML configuration file and
// overlays it with POLYSWARMD_* environment variables, following the
// same naoina/toml decoder settings the teacher's own cmd/geth-style
// config loader uses.
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/naoina/toml"
)

const defaultFallbackArtifactSize = 10 * 1024 * 1024

// ChainConfig describes one configured network (home or side). Each
// contract carries both its deployed address and the path to its ABI
// JSON file, mirroring the Python source's `bind_contract(web3, address,
// json_path)` convention.
type ChainConfig struct {
	RPC     string `toml:"rpc"`
	FreeGas bool   `toml:"free_gas"`

	NectarToken    string `toml:"nectar_token"`
	BountyRegistry string `toml:"bounty_registry"`
	ArbiterStaking string `toml:"arbiter_staking"`
	ERC20Relay     string `toml:"erc20_relay"`
	OfferRegistry  string `toml:"offer_registry"`

	NectarTokenABIPath    string `toml:"nectar_token_abi_path"`
	BountyRegistryABIPath string `toml:"bounty_registry_abi_path"`
	ArbiterStakingABIPath string `toml:"arbiter_staking_abi_path"`
	ERC20RelayABIPath     string `toml:"erc20_relay_abi_path"`
	OfferRegistryABIPath  string `toml:"offer_registry_abi_path"`
	OfferMultisigABIPath  string `toml:"offer_multisig_abi_path"`
}

// Enabled reports whether this chain was configured at all. The side
// chain is optional; home is mandatory (checked in Config.Validate).
func (c ChainConfig) Enabled() bool {
	return c.RPC != ""
}

// AuthConfig points at the external API-key service. An empty URI means
// the deployment does not require API keys at all.
type AuthConfig struct {
	URI string `toml:"uri"`
}

// RequireAPIKey mirrors the Python source's Auth.require_api_key.
func (a AuthConfig) RequireAPIKey() bool {
	return a.URI != ""
}

// ArtifactConfig governs the content-addressed artifact service and its
// per-account size limits.
type ArtifactConfig struct {
	BaseURI         string `toml:"base_uri"`
	Limit           int    `toml:"limit"`
	MaxSize         int64  `toml:"max_size"`
	FallbackMaxSize int64  `toml:"fallback_max_size"`
}

// EthConfig carries relay-wide Ethereum behavior flags.
type EthConfig struct {
	TraceTransactions bool `toml:"trace_transactions"`
}

// Config is the fully loaded, defaulted, and env-overlaid gateway
// configuration.
type Config struct {
	Community string         `toml:"community"`
	Auth      AuthConfig     `toml:"auth"`
	Artifact  ArtifactConfig `toml:"artifact"`
	Eth       EthConfig      `toml:"eth"`
	Home      ChainConfig    `toml:"home"`
	Side      ChainConfig    `toml:"side"`

	LogFormat string `toml:"-"`
	LogLevel  string `toml:"-"`
}

// tomlSettings mirrors the teacher's own geth-derived config decoder:
// dotted lower_snake_case keys, normalized against the exported Go
// field names, with unknown fields rejected rather than silently
// dropped.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return strings.ToLower(strings.ReplaceAll(key, "_", ""))
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return toSnakeCase(field)
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("config: field '%s' is not defined in %s", field, rt.String())
	},
}

func toSnakeCase(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// Load reads path, decodes it as TOML, applies POLYSWARMD_* environment
// overlays and the dedicated LOG_FORMAT/LOG_LEVEL/MAX_ARTIFACT_SIZE
// variables, fills in defaults, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	overlayEnv(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults mirrors the finish() defaulting logic of the Python
// source's Artifact/Auth config sections.
func (c *Config) applyDefaults() {
	if c.Artifact.Limit == 0 {
		c.Artifact.Limit = 256
	}
	if c.Artifact.FallbackMaxSize == 0 {
		c.Artifact.FallbackMaxSize = defaultFallbackArtifactSize
	}
	if c.Artifact.MaxSize == 0 {
		c.Artifact.MaxSize = c.Artifact.FallbackMaxSize
	}
	if c.LogFormat == "" {
		c.LogFormat = "term"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate enforces the invariants the Python source's Config.finish()
// hooks check at startup.
func (c *Config) Validate() error {
	if c.Community == "" {
		return fmt.Errorf("config: community is required")
	}
	if !c.Home.Enabled() {
		return fmt.Errorf("config: home chain rpc is required")
	}
	if c.Artifact.Limit < 1 || c.Artifact.Limit > 256 {
		return fmt.Errorf("config: artifact limit must be between 1 and 256")
	}
	if c.Artifact.FallbackMaxSize < 1 {
		return fmt.Errorf("config: artifact fallback_max_size must be above 0")
	}
	return nil
}

// overlayEnv applies POLYSWARMD_<PATH> overrides (each toml key
// uppercased, nesting levels joined by underscores, so home.free_gas is
// POLYSWARMD_HOME_FREE_GAS) plus the three directly-recognized
// environment variables.
func overlayEnv(cfg *Config) {
	overlayStruct(reflect.ValueOf(cfg).Elem(), "POLYSWARMD")

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MAX_ARTIFACT_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Artifact.MaxSize = n
		}
	}
}

func overlayStruct(rv reflect.Value, prefix string) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("toml")
		if tag == "-" || tag == "" {
			continue
		}
		key := prefix + "_" + strings.ToUpper(tag)
		fv := rv.Field(i)

		if fv.Kind() == reflect.Struct {
			overlayStruct(fv, key)
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Bool:
			if b, err := strconv.ParseBool(raw); err == nil {
				fv.SetBool(b)
			}
		case reflect.Int, reflect.Int64:
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				fv.SetInt(n)
			}
		}
	}
}
