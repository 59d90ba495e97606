package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/skydrive-app/skydrive/internal/app"
	"github.com/skydrive-app/skydrive/internal/config"
	"github.com/skydrive-app/skydrive/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "skydrive:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger := logging.NewDefault(cfg.LogFile, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts app.Options
	if cfg.EncryptIndex && cfg.UsePassphrase {
		pass, err := readPassphrase()
		if err != nil {
			return err
		}
		opts.Passphrase = pass
	}

	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}

	stale, err := a.Index.NeedsRefresh(ctx, cfg.IndexRefreshAge)
	if err != nil {
		logger.Warn(ctx, "index freshness check failed", "error", err)
	}
	if stale {
		if err := a.Index.StartIndexing(ctx, true); err != nil {
			logger.Warn(ctx, "indexing not started", "error", err)
		}
	}

	runDiscoveryLoop(ctx, a)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Close(shutdownCtx)
}

// runDiscoveryLoop periodically re-reads peer manifests until the context
// is cancelled.
func runDiscoveryLoop(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(a.Config.DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			peers := a.Exchange.DeviceConfigs(ctx)
			a.Logger.Debug(ctx, "peer discovery", "manifests", len(peers))
		}
	}
}

func readPassphrase() ([]byte, error) {
	fmt.Fprint(os.Stderr, "Index passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return pass, nil
}
