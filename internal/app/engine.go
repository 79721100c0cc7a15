package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/ammarb/internal/arbitrage"
	"github.com/alanyoungcy/ammarb/internal/chain"
	"github.com/alanyoungcy/ammarb/internal/config"
	"github.com/alanyoungcy/ammarb/internal/crypto"
	"github.com/alanyoungcy/ammarb/internal/domain"
	"github.com/alanyoungcy/ammarb/internal/feed"
	"github.com/alanyoungcy/ammarb/internal/market/uniswapv2"
	"github.com/alanyoungcy/ammarb/internal/relay/flashbots"
	"github.com/alanyoungcy/ammarb/internal/service"
)

// Engine is the signing side of the app: chain access, discovered markets,
// the orchestrator and the intent service.
type Engine struct {
	Chain        *chain.Client
	Signer       *crypto.Signer
	Relay        *flashbots.Client
	Loader       *uniswapv2.Loader
	Universe     *uniswapv2.Universe
	Tracker      *domain.BlockTracker
	Orchestrator *arbitrage.Orchestrator
	Arb          *service.ArbService
	Feed         *feed.BlockFeed
}

// BuildEngine dials the node, loads keys, discovers markets and assembles
// the orchestrator. The returned cleanup closes the chain client.
func BuildEngine(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*Engine, func(), error) {
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.RPCTimeout.Duration, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}
	cleanup := client.Close
	fail := func(err error) (*Engine, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("engine: %w", err)
	}

	chainID := big.NewInt(cfg.Chain.ChainID)
	if cfg.Chain.ChainID == 0 {
		if chainID, err = client.ChainID(ctx); err != nil {
			return fail(err)
		}
	}

	signer, err := crypto.NewSignerFromSource(crypto.KeySource{
		Raw:      cfg.Wallet.PrivateKey,
		FilePath: cfg.Wallet.EncryptedKeyPath,
		Password: cfg.Wallet.KeyPassword,
	}, chainID)
	if err != nil {
		return fail(fmt.Errorf("wallet: %w", err))
	}

	relayKey, err := relaySigner(cfg.Relay, logger)
	if err != nil {
		return fail(fmt.Errorf("relay key: %w", err))
	}
	relay := flashbots.NewClient(cfg.Relay.URL, relayKey, cfg.Relay.Timeout.Duration, logger)

	loaderCfg := uniswapv2.LoaderConfig{
		FlashQuery:  common.HexToAddress(cfg.Arbitrage.FlashQuery),
		BatchSize:   cfg.Arbitrage.BatchSize,
		BatchLimit:  cfg.Arbitrage.BatchLimit,
		CallTimeout: cfg.Chain.RPCTimeout.Duration,
		Cache:       deps.ReserveCache,
		Logger:      logger,
	}
	loader := uniswapv2.NewLoader(client, loaderCfg)

	// Reserves are read at this head so the tracker can mark it refreshed.
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return fail(err)
	}
	base := common.HexToAddress(cfg.Arbitrage.BaseToken)
	universe, err := loader.Discover(ctx, addresses(cfg.Arbitrage.Factories), base, addressSet(cfg.Arbitrage.Blacklist), head)
	if err != nil {
		return fail(err)
	}

	searcher, err := buildSearcher(cfg.Arbitrage)
	if err != nil {
		return fail(err)
	}

	orch := arbitrage.NewOrchestrator(arbitrage.OrchestratorConfig{
		Signer:          signer,
		Relay:           relay,
		Chain:           client,
		Executors:       arbitrage.NewExecutorBook(executorMap(cfg.Arbitrage, universe.ByToken)),
		Searcher:        searcher,
		Base:            base,
		GasCeiling:      cfg.Arbitrage.GasCeiling,
		EstimateTimeout: cfg.Arbitrage.EstimateTimeout.Duration,
		RelayTimeout:    cfg.Relay.Timeout.Duration,
		Logger:          logger,
	})

	tracker := domain.NewBlockTracker()
	tracker.MarkRefreshed(head)

	arbCfg := service.ArbServiceConfig{
		Orchestrator:   orch,
		Universe:       universe,
		Loader:         loader,
		Tracker:        tracker,
		Locks:          deps.LockManager,
		History:        deps.History,
		MinerRewardPct: int64(cfg.Arbitrage.MinerRewardPct),
		LockTTL:        cfg.Arbitrage.LockTTL.Duration,
		RefreshWait:    cfg.Arbitrage.RefreshWait.Duration,
		Logger:         logger,
	}

	feedCfg := feed.BlockFeedConfig{
		PollInterval: cfg.Chain.PollInterval.Duration,
		Bus:          deps.SignalBus,
		Logger:       logger,
	}

	logger.InfoContext(ctx, "engine ready",
		slog.String("searcher_address", signer.Address().Hex()),
		slog.String("relay_address", relayKey.Address().Hex()),
		slog.String("chain_id", chainID.String()),
		slog.Uint64("head", head),
		slog.Int("tokens", len(universe.ByToken)),
		slog.Int("pairs", len(universe.Pairs)),
		slog.String("volume_searcher", searcher.Name()),
	)

	return &Engine{
		Chain:        client,
		Signer:       signer,
		Relay:        relay,
		Loader:       loader,
		Universe:     universe,
		Tracker:      tracker,
		Orchestrator: orch,
		Arb:          service.NewArbService(arbCfg),
		Feed:         feed.NewBlockFeed(client, tracker, feedCfg),
	}, cleanup, nil
}

// relaySigner loads the relay identity. Without one a throwaway key is
// generated; the relay only uses it for reputation.
func relaySigner(cfg config.RelayConfig, logger *slog.Logger) (*crypto.Signer, error) {
	src := crypto.KeySource{Raw: cfg.SigningKey, FilePath: cfg.SigningKeyPath, Password: cfg.SigningKeyPassword}
	if src.Empty() {
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		logger.Warn("no relay signing key configured, using an ephemeral one")
		return crypto.NewSigner(key, nil), nil
	}
	return crypto.NewSignerFromSource(src, nil)
}

func buildSearcher(cfg config.ArbitrageConfig) (arbitrage.VolumeSearcher, error) {
	reg := arbitrage.DefaultRegistry()
	if cfg.Searcher == "ternary" {
		tcfg := arbitrage.TernarySearchConfig{MaxSteps: cfg.Ternary.MaxSteps}
		for _, b := range []struct {
			name string
			in   string
			dst  **big.Int
		}{
			{"min_eth", cfg.Ternary.MinETH, &tcfg.Min},
			{"max_eth", cfg.Ternary.MaxETH, &tcfg.Max},
			{"tolerance_eth", cfg.Ternary.ToleranceETH, &tcfg.Tolerance},
		} {
			if strings.TrimSpace(b.in) == "" {
				continue
			}
			v, err := domain.ParseEther(b.in)
			if err != nil {
				return nil, fmt.Errorf("ternary %s: %w", b.name, err)
			}
			*b.dst = v
		}
		reg.Register(arbitrage.NewTernarySearch(tcfg))
	}
	return reg.Get(cfg.Searcher)
}

// executorMap assigns the default executor to every discovered token, then
// applies per-token overrides.
func executorMap(cfg config.ArbitrageConfig, markets domain.MarketsByToken) map[common.Address]common.Address {
	out := make(map[common.Address]common.Address, len(markets)+len(cfg.Executors))
	if cfg.ExecutorAddress != "" {
		def := common.HexToAddress(cfg.ExecutorAddress)
		for token := range markets {
			out[token] = def
		}
	}
	for token, exec := range cfg.Executors {
		out[common.HexToAddress(token)] = common.HexToAddress(exec)
	}
	return out
}

func addresses(in []string) []common.Address {
	out := make([]common.Address, 0, len(in))
	for _, s := range in {
		out = append(out, common.HexToAddress(s))
	}
	return out
}

func addressSet(in []string) map[common.Address]bool {
	out := make(map[common.Address]bool, len(in))
	for _, s := range in {
		out[common.HexToAddress(s)] = true
	}
	return out
}
