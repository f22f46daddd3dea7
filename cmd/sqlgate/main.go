// Command sqlgate serves named SQL Server sessions over HTTP.
//
//	sqlgate -config /etc/sqlgate/sqlgate.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/sqlgate/internal/command"
	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/database/sqlserver"
	"github.com/koustreak/sqlgate/internal/filestore/minio"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/koustreak/sqlgate/internal/server"
	"github.com/koustreak/sqlgate/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "sqlgate:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(&cfg.Log)
	log.InfoWith("sqlgate starting", map[string]interface{}{
		"addr":    cfg.Server.Addr,
		"host":    cfg.SQLServer.Host,
		"archive": cfg.Archive.Enabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector := sqlserver.NewConnector(
		sqlserver.WithLogger(log),
		sqlserver.WithDialTimeout(cfg.SQLServer.DialTimeout),
	)
	registry := session.NewRegistry(connector, cfg.Descriptor(), session.WithLogger(log))

	opts := []command.Option{
		command.WithLogger(log),
		command.WithQueryTimeout(cfg.SQLServer.QueryTimeout),
	}
	if cfg.Archive.Enabled {
		store, err := minio.New(ctx, &cfg.Archive.Config)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, command.WithArchive(store, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Archive.URLTTL))
		log.With().Str("endpoint", cfg.Archive.Endpoint).Str("bucket", cfg.Archive.Bucket).Logger().
			Info("result archive enabled")
	}
	svc := command.New(registry, opts...)

	srv := server.New(cfg.Server, svc, log)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorWith("http shutdown failed", err, nil)
	}
	if err := registry.Close(shutdownCtx); err != nil {
		log.ErrorWith("closing sessions failed", err, nil)
	}
	log.Info("stopped")
	return nil
}
