// Command reconcile scans the project namespace once and removes blobs that
// no longer decode into a project owning their key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"projectstore/internal/bootstrap"
	"projectstore/internal/config"
	"projectstore/internal/logger"
	"projectstore/internal/reconcile"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report orphans without deleting them")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := bootstrap.OpenBackend(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("storage_init_failed", zap.Error(err))
	}

	r := reconcile.New(backend, bootstrap.Resolver(cfg.Storage), log, nil, cfg.Storage.FetchConcurrency)
	rep, err := r.Scan(ctx, reconcile.Options{DryRun: *dryRun})
	if err != nil {
		log.Fatal("reconcile_failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		log.Fatal("report_write_failed", zap.Error(err))
	}
	if rep.Errored > 0 {
		os.Exit(1)
	}
}
