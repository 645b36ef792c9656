// polyswarmd is the gateway daemon: it loads its TOML configuration,
// dials the configured home/side chains, and serves the unified
// HTTP/WebSocket API described in SPEC_FULL.md.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/polyswarm/polyswarmd-go/internal/api"
	"github.com/polyswarm/polyswarmd-go/internal/artifactclient"
	"github.com/polyswarm/polyswarmd-go/internal/authclient"
	"github.com/polyswarm/polyswarmd-go/internal/chain"
	"github.com/polyswarm/polyswarmd-go/internal/codec"
	"github.com/polyswarm/polyswarmd-go/internal/config"
	"github.com/polyswarm/polyswarmd-go/internal/filters"
	"github.com/polyswarm/polyswarmd-go/internal/hub"
	"github.com/polyswarm/polyswarmd-go/internal/metadata"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the polyswarmd TOML configuration file",
		Value:   "polyswarmd.toml",
	}
	addrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "address to serve the HTTP/WebSocket API on",
		Value: ":31337",
	}
)

func main() {
	app := &cli.App{
		Name:  "polyswarmd",
		Usage: "gateway daemon for the PolySwarm home/side chain ecosystem",
		Flags: []cli.Flag{configFlag, addrFlag},
		Action: func(ctx *cli.Context) error {
			return run(ctx)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.Load(cliCtx.String(configFlag.Name))
	if err != nil {
		log.Crit("failed to load configuration", "err", err)
	}

	lvl, err := log.LvlFromString(cfg.LogLevel)
	if err != nil {
		log.Error("invalid log level", "level", cfg.LogLevel, "err", err)
		os.Exit(10)
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat(cfg.LogFormat == "term"))))

	ctx := context.Background()

	chains, err := buildChains(ctx, cfg)
	if err != nil {
		log.Crit("failed to initialize chains", "err", err)
	}
	if err := chain.ValidateAll(ctx, chains); err != nil {
		log.Crit("contract version validation failed", "err", err)
	}

	var artifacts metadata.ArtifactFetcher
	if cfg.Artifact.BaseURI != "" {
		artifacts = artifactclient.New(cfg.Artifact.BaseURI, nil)
	}
	resolver, err := metadata.New(artifacts, metadata.BountyAssertionSchema())
	if err != nil {
		log.Crit("failed to build metadata resolver", "err", err)
	}
	cdc := codec.New(resolver)

	authClient := authclient.New(cfg.Auth.URI, cfg.Community, cfg.Artifact.FallbackMaxSize, nil)

	hubs := make(map[chain.Name]*hub.Hub, len(chains))
	for name, c := range chains {
		c := c
		hubs[name] = hub.New(func() hub.FilterManager {
			m, err := chain.BuildManager(ctx, c, cdc)
			if err != nil {
				log.Error("failed to build filter manager", "chain", c.Name, "err", err)
				return filters.NewManager()
			}
			return m
		})
	}

	srv := api.NewServer(cfg, chains, hubs, authClient, cdc)

	log.Info("polyswarmd listening", "addr", cliCtx.String(addrFlag.Name), "community", cfg.Community)
	return http.ListenAndServe(cliCtx.String(addrFlag.Name), srv.Routes())
}

func buildChains(ctx context.Context, cfg *config.Config) (map[chain.Name]*chain.Chain, error) {
	chains := make(map[chain.Name]*chain.Chain, 2)

	home, err := chain.New(ctx, chain.Home, chainSourceOf(cfg.Home))
	if err != nil {
		return nil, fmt.Errorf("home chain: %w", err)
	}
	chains[chain.Home] = home

	if cfg.Side.Enabled() {
		side, err := chain.New(ctx, chain.Side, chainSourceOf(cfg.Side))
		if err != nil {
			return nil, fmt.Errorf("side chain: %w", err)
		}
		chains[chain.Side] = side
	}

	return chains, nil
}

func chainSourceOf(cc config.ChainConfig) chain.ChainSource {
	return chain.ChainSource{
		RPC:                   cc.RPC,
		FreeGas:               cc.FreeGas,
		NectarToken:           cc.NectarToken,
		BountyRegistry:        cc.BountyRegistry,
		ArbiterStaking:        cc.ArbiterStaking,
		ERC20Relay:            cc.ERC20Relay,
		OfferRegistry:         cc.OfferRegistry,
		NectarTokenABIPath:    cc.NectarTokenABIPath,
		BountyRegistryABIPath: cc.BountyRegistryABIPath,
		ArbiterStakingABIPath: cc.ArbiterStakingABIPath,
		ERC20RelayABIPath:     cc.ERC20RelayABIPath,
		OfferRegistryABIPath:  cc.OfferRegistryABIPath,
		OfferMultisigABIPath:  cc.OfferMultisigABIPath,
	}
}
