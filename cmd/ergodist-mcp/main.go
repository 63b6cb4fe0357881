package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/sigmanauts/ergodist/pkg/collector"
	"github.com/sigmanauts/ergodist/pkg/config"
	"github.com/sigmanauts/ergodist/pkg/explorer"
	"github.com/sigmanauts/ergodist/pkg/fees"
	"github.com/sigmanauts/ergodist/pkg/logger"
	"github.com/sigmanauts/ergodist/pkg/mcpserver"
	"github.com/sigmanauts/ergodist/pkg/participation"
	"github.com/sigmanauts/ergodist/pkg/recipients"
	"github.com/sigmanauts/ergodist/pkg/service"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	envFileFlag := flag.String("env-file", "", "dotenv file to load before reading configuration")
	flag.Parse()

	if *envFileFlag != "" {
		if err := godotenv.Load(*envFileFlag); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", *envFileFlag, err)
		}
	} else {
		_ = godotenv.Load(".env")
	}

	log := logger.New(*debugFlag)
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	explorerClient, err := explorer.NewClient(explorer.Config{
		Logger:            log,
		BaseURL:           cfg.APIs.ExplorerBase,
		RequestsPerSecond: 4,
	})
	if err != nil {
		return err
	}
	estimator := fees.NewEstimator(cfg.Distribution.MinBoxValue, cfg.Distribution.TxFee, cfg.Distribution.WalletBuffer)

	minersSource, err := recipients.NewMinersSource(recipients.MinersConfig{
		Logger: log,
		URL:    cfg.APIs.SigscoreURL,
		APIKey: cfg.APIs.MiningWaveAPIKey,
	})
	if err != nil {
		return err
	}

	mcpCfg := mcpserver.Config{
		Logger:        log,
		Explorer:      explorerClient,
		Miners:        minersSource,
		Estimator:     estimator,
		WalletAddress: cfg.Wallet.Address,
		NetworkType:   cfg.Node.NetworkType,
		Version:       version,
	}

	// The collector and demurrage preview need a wallet address; without
	// one the remaining read-only tools still work.
	if cfg.Wallet.Address != "" {
		heightCollector, err := collector.New(collector.Config{
			Logger:        log,
			Explorer:      explorerClient,
			WalletAddress: cfg.Wallet.Address,
		})
		if err != nil {
			return err
		}
		mcpCfg.Collector = heightCollector

		participationClient, err := participation.NewClient(participation.ClientConfig{
			Logger:  log,
			BaseURL: cfg.APIs.ParticipationURL,
			APIKey:  cfg.APIs.MiningWaveAPIKey,
		})
		if err != nil {
			return err
		}
		allocator, err := participation.NewAllocator(participation.AllocatorConfig{
			Logger:         log,
			PoolFeePercent: cfg.Distribution.PoolFeePercent,
			PoolFeeAddress: cfg.Distribution.PoolFeeAddress,
		})
		if err != nil {
			return err
		}
		demurrage, err := service.NewDemurrage(service.DemurrageConfig{
			Logger:          log,
			Collector:       heightCollector,
			Participation:   participationClient,
			Balances:        explorerClient,
			Allocator:       allocator,
			Estimator:       estimator,
			WalletAddress:   cfg.Wallet.Address,
			ExplorerAPIBase: cfg.APIs.ExplorerBase,
			OutputDir:       cfg.Distribution.OutputDir,
		})
		if err != nil {
			return err
		}
		mcpCfg.Demurrage = demurrage
	}

	srv, err := mcpserver.New(mcpCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
