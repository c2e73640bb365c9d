// Command server runs the batch image recognition API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tovell/argus-api/internal/config"
	"github.com/tovell/argus-api/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run database migrations (up|down|status) and exit")
	flag.Parse()

	if err := run(*migrateCmd); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	if migrateCmd != "" {
		return runMigrations(cfg, log, migrateCmd)
	}

	ctx := context.Background()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Resume tasks interrupted by the previous shutdown before serving.
	if err := app.dispatcher.Recover(ctx); err != nil {
		log.Warn("startup recovery failed, continuing", "error", err)
	}

	return app.startHTTPServer(ctx, app.setupRouter())
}
