// Command migrate applies or lists the database migrations without starting
// the web server.
//
//	migrate [up|status]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/pressly/goose/v3"

	"opendays/config"
	"opendays/utils"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|status]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	if cmd != "up" && cmd != "status" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cmd, cfg, logger); err != nil {
		logger.Error("migrate failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, cfg *config.Config, logger *slog.Logger) error {
	db, err := utils.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := apply(cmd, "sqlite", logger,
		func() error { return utils.MigrateSQLite(ctx, db) },
		func() ([]*goose.MigrationStatus, error) { return utils.SQLiteMigrationStatus(ctx, db) },
	); err != nil {
		return err
	}

	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, skipping postgres")
		return nil
	}

	pool, err := utils.OpenDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	return apply(cmd, "postgres", logger,
		func() error { return utils.MigratePostgres(ctx, pool) },
		func() ([]*goose.MigrationStatus, error) { return utils.PostgresMigrationStatus(ctx, pool) },
	)
}

func apply(cmd, name string, logger *slog.Logger, up func() error, status func() ([]*goose.MigrationStatus, error)) error {
	if cmd == "up" {
		if err := up(); err != nil {
			return err
		}
		logger.Info("migrations applied", "database", name)
		return nil
	}

	list, err := status()
	if err != nil {
		return err
	}
	printStatus(name, list)
	return nil
}

func printStatus(name string, list []*goose.MigrationStatus) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tVERSION\tSTATE\tAPPLIED AT\n", name)
	for _, m := range list {
		applied := "-"
		if !m.AppliedAt.IsZero() {
			applied = m.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "\t%d\t%s\t%s\n", m.Source.Version, m.State, applied)
	}
	_ = tw.Flush()
}
