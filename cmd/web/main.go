package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ocd-calaccess/internal/config"
	"github.com/ocd-calaccess/internal/db"
	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/store/sqlstore"
	"github.com/ocd-calaccess/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.NewConnection(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("database connected", "driver", cfg.DBDriver)

	server := web.NewServer(web.ConfigFrom(cfg), sqlstore.New(conn, log), log)
	return server.Start(ctx)
}
