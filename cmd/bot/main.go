package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hl-aevo-arb/internal/app"
	"hl-aevo-arb/internal/config"
	"hl-aevo-arb/internal/logging"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	cmd := &cli.Command{
		Name:  "hl-aevo-arb",
		Usage: "Funding-rate arbitrage between Hyperliquid and Aevo perpetuals",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Value:   "config.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "optional .env file with venue credentials",
				Value: ".env",
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the arbitrage engine",
				Action: runAction,
			},
			{
				Name:   "status",
				Usage:  "print account snapshots and funding spreads without trading",
				Action: statusAction,
			},
			{
				Name:  "values",
				Usage: "print the recorded equity history",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "number of newest entries, 0 for all",
						Value:   24,
					},
				},
				Action: valuesAction,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(ctx context.Context, cmd *cli.Command) (*app.App, *zap.Logger, error) {
	if err := config.LoadEnv(cmd.String("env-file")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
	}
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", path))
	secrets, err := config.LoadSecrets()
	if err != nil {
		return nil, log, err
	}
	application, err := app.New(ctx, cfg, secrets, log)
	if err != nil {
		return nil, log, fmt.Errorf("initialize app: %w", err)
	}
	return application, log, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	application, log, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	log.Info("app initialized")
	if err := application.Run(ctx); err != nil {
		log.Error("app terminated", zap.Error(err))
		return err
	}
	log.Info("app stopped")
	return nil
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	application, _, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer application.Close()
	rep, err := application.Report(ctx)
	if err != nil {
		return err
	}
	return app.WriteReport(os.Stdout, rep)
}

func valuesAction(ctx context.Context, cmd *cli.Command) error {
	application, _, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer application.Close()
	entries, err := application.Values(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	return app.WriteValues(os.Stdout, entries)
}
