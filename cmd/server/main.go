// Command server runs the field-visit report ingestion service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/sitevisit/internal/server"
	"github.com/dmitrijs2005/sitevisit/internal/server/config"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("server failed to start", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	app.Run(ctx)
	return nil
}
