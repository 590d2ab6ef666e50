package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"plugin/backend/libs/db"
	"plugin/backend/libs/logging"
	app "plugin/backend/services/marketplace/internal/app"
	"plugin/backend/services/marketplace/internal/config"
	"plugin/backend/services/marketplace/internal/store/postgres"
)

var cli struct {
	Serve   serveCmd   `cmd:"" default:"1" help:"Run the marketplace API and realtime endpoint."`
	Migrate migrateCmd `cmd:"" help:"Create the document table in Postgres."`
}

type serveCmd struct{}

func (serveCmd) Run(ctx context.Context, logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type migrateCmd struct {
	DSN string `name:"dsn" env:"PLUGIN_POSTGRES_DSN" required:"" help:"Postgres DSN."`
}

func (m migrateCmd) Run(ctx context.Context, logger *zap.Logger) error {
	sqlDB, err := db.NewPostgresDB(ctx, m.DSN, db.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := postgres.Migrate(ctx, sqlDB); err != nil {
		return err
	}
	logger.Info("migration applied")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewLogger("marketplace")
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // best-effort flush

	kctx := kong.Parse(&cli,
		kong.Name("marketplace"),
		kong.Description("Plug-In peer-to-peer charger marketplace."),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(logger),
	)
	if err := kctx.Run(); err != nil {
		logger.Fatal("command failed", zap.String("command", kctx.Command()), zap.Error(err))
	}
}
