package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/sigmanauts/ergodist/pkg/collector"
	"github.com/sigmanauts/ergodist/pkg/config"
	"github.com/sigmanauts/ergodist/pkg/explorer"
	"github.com/sigmanauts/ergodist/pkg/fees"
	"github.com/sigmanauts/ergodist/pkg/logger"
	"github.com/sigmanauts/ergodist/pkg/metrics"
	"github.com/sigmanauts/ergodist/pkg/node"
	"github.com/sigmanauts/ergodist/pkg/notify"
	"github.com/sigmanauts/ergodist/pkg/participation"
	"github.com/sigmanauts/ergodist/pkg/recipients"
	"github.com/sigmanauts/ergodist/pkg/scheduler"
	"github.com/sigmanauts/ergodist/pkg/server"
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
	serviceFlag := flag.String("service", "", "distribution service to run: bonus or demurrage")
	dryRunFlag := flag.Bool("dry-run", false, "write the distribution plan without submitting a transaction")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	configFileFlag := flag.String("config-file", "", "distribution plan file (required for the bonus service)")
	runOnceFlag := flag.Bool("run-once", false, "execute a single run and exit")
	scheduleFlag := flag.String("schedule", "", "cron expression for scheduled runs")
	envFileFlag := flag.String("env-file", "", "dotenv file to load before reading configuration")
	outputDirFlag := flag.String("output-dir", "", "directory for dry-run plan files (default from OUTPUT_DIR)")
	recipientsFileFlag := flag.String("recipients-file", "", "CSV file of recipients for bonus distributions that name none (default: miners bonus API)")
	httpAddrFlag := flag.String("http-addr", ":8080", "ops server listen address in scheduled mode")
	flag.Parse()

	if *serviceFlag != "bonus" && *serviceFlag != "demurrage" {
		return fmt.Errorf("--service must be 'bonus' or 'demurrage', got %q", *serviceFlag)
	}
	if *serviceFlag == "bonus" && *configFileFlag == "" {
		return fmt.Errorf("--config-file is required for the bonus service")
	}

	if *envFileFlag != "" {
		if err := godotenv.Load(*envFileFlag); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", *envFileFlag, err)
		}
	} else {
		// Best effort: service-specific overrides first, then the base file.
		_ = godotenv.Load(".env." + *serviceFlag)
		_ = godotenv.Load(".env")
	}

	log := logger.New(*debugFlag)
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if *outputDirFlag != "" {
		cfg.Distribution.OutputDir = *outputDirFlag
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Release: version}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	metrics.BuildInfo.WithLabelValues(version, "unknown", "unknown").Set(1)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runJob, err := buildJob(log, cfg, *serviceFlag, *configFileFlag, *recipientsFileFlag)
	if err != nil {
		return err
	}

	notifier, err := notify.New(notify.Config{
		Logger:      log,
		BotToken:    cfg.Telegram.BotToken,
		ChatID:      cfg.Telegram.ChatID,
		AdminToken:  cfg.Telegram.AdminToken,
		AdminChatID: cfg.Telegram.AdminChatID,
	})
	if err != nil {
		return err
	}

	execute := func(ctx context.Context) service.Result {
		notifier.JobStarted(*serviceFlag, *dryRunFlag)
		result := runJob(ctx, *dryRunFlag)
		notifier.JobResult(result)
		if result.Failed() && cfg.SentryDSN != "" {
			sentry.CaptureMessage(fmt.Sprintf("%s run %s failed: %s", result.Service, result.RunID, result.Error))
		}
		return result
	}

	if *runOnceFlag || *scheduleFlag == "" {
		result := execute(ctx)
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		if result.Failed() {
			return fmt.Errorf("%s run failed: %s", result.Service, result.Error)
		}
		return nil
	}

	return runScheduled(ctx, log, *scheduleFlag, *httpAddrFlag, execute)
}

// buildJob wires the packages together for the selected service and returns
// a closure running one distribution.
func buildJob(log *slog.Logger, cfg *config.Config, svc, configFile, recipientsFile string) (func(context.Context, bool) service.Result, error) {
	nodeClient, err := node.NewClient(node.Config{
		Logger:  log,
		BaseURL: cfg.Node.URL,
		APIKey:  cfg.Node.APIKey,
	})
	if err != nil {
		return nil, err
	}
	estimator := fees.NewEstimator(cfg.Distribution.MinBoxValue, cfg.Distribution.TxFee, cfg.Distribution.WalletBuffer)

	if svc == "bonus" {
		var source service.RecipientSource
		if recipientsFile != "" {
			source = recipients.NewFileSource(log, recipientsFile)
		} else {
			source, err = recipients.NewMinersSource(recipients.MinersConfig{
				Logger: log,
				URL:    cfg.APIs.MinersBonusURL,
				APIKey: cfg.APIs.MiningWaveAPIKey,
			})
			if err != nil {
				return nil, err
			}
		}
		bonus, err := service.NewBonus(service.BonusConfig{
			Logger:          log,
			Wallet:          nodeClient,
			Recipients:      source,
			Estimator:       estimator,
			NetworkType:     cfg.Node.NetworkType,
			ExplorerAPIBase: cfg.APIs.ExplorerBase,
			OutputDir:       cfg.Distribution.OutputDir,
		})
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, dryRun bool) service.Result {
			return bonus.Run(ctx, configFile, dryRun)
		}, nil
	}

	if cfg.Wallet.Address == "" {
		return nil, fmt.Errorf("WALLET_ADDRESS is required for the demurrage service")
	}
	explorerClient, err := explorer.NewClient(explorer.Config{
		Logger:            log,
		BaseURL:           cfg.APIs.ExplorerBase,
		RequestsPerSecond: 4,
	})
	if err != nil {
		return nil, err
	}
	heightCollector, err := collector.New(collector.Config{
		Logger:        log,
		Explorer:      explorerClient,
		WalletAddress: cfg.Wallet.Address,
	})
	if err != nil {
		return nil, err
	}
	participationClient, err := participation.NewClient(participation.ClientConfig{
		Logger:  log,
		BaseURL: cfg.APIs.ParticipationURL,
		APIKey:  cfg.APIs.MiningWaveAPIKey,
	})
	if err != nil {
		return nil, err
	}
	allocator, err := participation.NewAllocator(participation.AllocatorConfig{
		Logger:         log,
		PoolFeePercent: cfg.Distribution.PoolFeePercent,
		PoolFeeAddress: cfg.Distribution.PoolFeeAddress,
	})
	if err != nil {
		return nil, err
	}
	demurrage, err := service.NewDemurrage(service.DemurrageConfig{
		Logger:          log,
		Collector:       heightCollector,
		Participation:   participationClient,
		Balances:        explorerClient,
		Wallet:          nodeClient,
		Allocator:       allocator,
		Estimator:       estimator,
		WalletAddress:   cfg.Wallet.Address,
		ExplorerAPIBase: cfg.APIs.ExplorerBase,
		OutputDir:       cfg.Distribution.OutputDir,
	})
	if err != nil {
		return nil, err
	}
	return demurrage.Run, nil
}

// runScheduled runs the cron loop alongside the ops HTTP server until a
// shutdown signal arrives.
func runScheduled(ctx context.Context, log *slog.Logger, schedule, httpAddr string, execute func(context.Context) service.Result) error {
	sched, err := scheduler.New(scheduler.Config{
		Logger:   log,
		Schedule: schedule,
		Job:      func(ctx context.Context) { execute(ctx) },
	})
	if err != nil {
		return err
	}
	ops, err := server.New(server.Config{Logger: log, Addr: httpAddr})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() { serverErr <- ops.Run(ctx) }()

	schedErr := sched.Run(ctx)
	cancel()
	if err := <-serverErr; err != nil {
		return err
	}
	if schedErr != nil && !errors.Is(schedErr, context.Canceled) {
		return schedErr
	}
	return nil
}
