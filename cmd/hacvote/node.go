package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmtconfig "github.com/cometbft/cometbft/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/calehh/hac-vote/agent"
	"github.com/calehh/hac-vote/app"
	app_config "github.com/calehh/hac-vote/config"
	"github.com/calehh/hac-vote/event"
	"github.com/calehh/hac-vote/gate"
	"github.com/calehh/hac-vote/types"
	"github.com/calehh/hac-vote/zkp"
)

var nodeHome string

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a hacvote node",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNode(); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	homeFlag(nodeCmd, &nodeHome)
}

func genesisState(cfg *app_config.Config) (gs types.GenesisState, err error) {
	doc, err := cmttypes.GenesisDocFromFile(cfg.GenesisFile())
	if err != nil {
		return
	}
	return types.ParseGenesisState(doc.AppState)
}

func buildOptions(cfg *app_config.Config, logger cmtlog.Logger) (opts app.Options, closers []func(), err error) {
	opts = app.Options{
		Home:      cfg.RootDir,
		CacheSize: cfg.Vote.ProposalCacheSize,
	}
	if cfg.Instrumentation.Prometheus {
		opts.Registerer = prometheus.WrapRegistererWithPrefix(cfg.Vote.MetricsNamespace+"_", prometheus.DefaultRegisterer)
	}
	opts.Bus = event.NewBus(opts.Registerer, logger)

	if vkFile := cfg.Vote.Path(cfg.Vote.VerifyingKeyFile); vkFile != "" {
		gs, err := genesisState(cfg)
		if err != nil {
			return opts, closers, fmt.Errorf("read genesis: %w", err)
		}
		vk, err := zkp.ReadVerifyingKey(vkFile)
		if err != nil {
			return opts, closers, fmt.Errorf("read verifying key: %w", err)
		}
		opts.Verifier = zkp.NewVerifier(gs.MerkleDepth, vk)
	}

	if cfg.Vote.EthRPC != "" {
		var block *big.Int
		if cfg.Vote.EthBlock > 0 {
			block = new(big.Int).SetUint64(cfg.Vote.EthBlock)
		}
		ctx, cancel := context.WithTimeout(context.Background(), gate.DefaultTimeout)
		checker, err := gate.Dial(ctx, cfg.Vote.EthRPC, block, logger)
		cancel()
		if err != nil {
			return opts, closers, fmt.Errorf("dial eth rpc: %w", err)
		}
		opts.Balances = checker
		closers = append(closers, checker.Close)
	}

	if cfg.Vote.NatsURL != "" {
		relay, err := agent.NewNatsRelay(cfg.Vote.NatsURL, cfg.Vote.NatsSubject, logger)
		if err != nil {
			return opts, closers, fmt.Errorf("connect nats: %w", err)
		}
		opts.Bus.Register(event.All, relay)
	}
	return
}

func runNode() error {
	cfg, err := app_config.Load(nodeHome)
	if err != nil {
		return err
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err = cmtflags.ParseLogLevel(cfg.LogLevel, logger, cmtconfig.DefaultLogLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	pv := privval.LoadFilePV(
		cfg.PrivValidatorKeyFile(),
		cfg.PrivValidatorStateFile(),
	)
	nodeKey, err := p2p.LoadNodeKey(cfg.NodeKeyFile())
	if err != nil {
		return fmt.Errorf("failed to load node's key: %w", err)
	}

	opts, closers, err := buildOptions(cfg, logger)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	if err != nil {
		return err
	}
	var (
		indexer *agent.ChainIndexer
		service *agent.Service
	)
	if dbPath := cfg.Vote.Path(cfg.Vote.IndexerDB); dbPath != "" {
		rpcUrl, err := url.Parse(cfg.RPC.ListenAddress)
		if err != nil {
			return fmt.Errorf("parse rpc address: %w", err)
		}
		rpcUrl.Scheme = "http"
		if indexer, err = agent.NewChainIndexer(logger, dbPath, rpcUrl.String()); err != nil {
			return fmt.Errorf("new chain indexer: %w", err)
		}
		defer indexer.Close()
		if cfg.Vote.ServiceListen != "" {
			service = agent.NewService(cfg.Vote.ServiceListen, indexer)
		}
	}

	voteApp, err := app.NewVoteApp(opts, logger)
	if err != nil {
		return fmt.Errorf("new app: %w", err)
	}

	node, err := nm.NewNode(
		cfg.Config,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(voteApp),
		nm.DefaultGenesisDocProviderFunc(cfg.Config),
		cmtconfig.DefaultDBProvider,
		nm.DefaultMetricsProvider(cfg.Instrumentation),
		logger,
	)
	if err != nil {
		voteApp.Stop()
		return fmt.Errorf("creating node: %w", err)
	}
	if err = node.Start(); err != nil {
		voteApp.Stop()
		return fmt.Errorf("start comet node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if indexer != nil {
		g.Go(func() error { return indexer.Start(ctx) })
	}
	if service != nil {
		g.Go(service.Start)
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return service.Stop(sctx)
		})
	}

	<-ctx.Done()
	logger.Info("shutting down")
	if err := g.Wait(); err != nil {
		logger.Error("background service fail", "err", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := node.Stop(); err != nil {
			logger.Error("stop comet node fail", "err", err)
		}
		node.Wait()
		voteApp.Stop()
	}()
	select {
	case <-time.After(10 * time.Second):
		return fmt.Errorf("shutdown timed out")
	case <-done:
	}
	return nil
}
