package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"aptoswarm/internal/app"
	"aptoswarm/internal/config"
	"aptoswarm/internal/models"
	"aptoswarm/internal/tasks"
	"aptoswarm/internal/wallet"
)

func main() {
	walletsPath := flag.String("wallets", "", "Wallet CSV file (required)")
	bundlePath := flag.String("bundle", "", "YAML bundle with actions and run settings (required)")
	strategy := flag.String("strategy", "", "Override strategy: sequential, pool, detached")
	workers := flag.Int("workers", 0, "Override pool worker count")
	testMode := flag.Bool("test-mode", false, "Simulate every task without submitting")
	estimate := flag.Bool("estimate", false, "Print the fee bound of the run and exit")
	noProxyCheck := flag.Bool("no-proxy-check", false, "Skip proxy validation before tasks")
	flag.Parse()

	if *walletsPath == "" || *bundlePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	wallets, err := loadWallets(*walletsPath)
	if err != nil {
		logger.Fatal("Failed to load wallets", zap.Error(err))
	}

	bundle, err := tasks.LoadBundle(*bundlePath)
	if err != nil {
		logger.Fatal("Failed to load bundle", zap.Error(err))
	}
	settings := bundle.RunSettings
	if *strategy != "" {
		settings.Strategy = models.Strategy(*strategy)
	}
	if *workers > 0 {
		settings.MaxWorkers = *workers
	}
	if *testMode {
		for _, t := range bundle.Actions {
			t.TestMode = true
		}
	}

	var opts []app.Option
	if *noProxyCheck {
		opts = append(opts, app.WithoutProxyCheck())
	}
	application, err := app.New(cfg, logger, opts...)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	out := newConsole(os.Stdout)

	if *estimate {
		est, err := application.Fees.EstimateRun(context.Background(), bundle.Actions, len(wallets))
		if err != nil {
			logger.Fatal("Failed to estimate fees", zap.Error(err))
		}
		fmt.Printf("%d wallets x %d tasks: up to %s APT per wallet, %s APT total\n",
			est.Wallets, est.TasksPerWallet, est.PerWalletAPT.String(), est.TotalAPT.String())
		return
	}

	application.Events.Subscribe(out.handle)

	run, err := application.Runs.Start(wallets, bundle.Actions, settings)
	if err != nil {
		logger.Fatal("Failed to start run", zap.Error(err))
	}

	// first signal stops the run, a second one exits at once
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Info("Received signal, stopping run", zap.String("signal", sig.String()))
		application.Runs.Stop()
		<-quit
		logger.Warn("Forced exit")
		os.Exit(1)
	}()

	if err := application.Runs.Wait(context.Background()); err != nil {
		logger.Error("Failed to wait for run", zap.Error(err))
	}

	if finished, ok := application.Runs.Current(); ok {
		run = &finished
	}
	out.summary(*run, application.Monitor.Snapshot())

	if err := application.Close(10 * time.Second); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}

func loadWallets(path string) ([]*models.Wallet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet file: %w", err)
	}
	defer f.Close()

	return wallet.ImportCSV(f)
}

func initLogger() (*zap.Logger, error) {
	if os.Getenv("ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
