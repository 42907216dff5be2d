package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/FranksOps/shopscout/internal/config"
	"github.com/FranksOps/shopscout/internal/metrics"
	"github.com/FranksOps/shopscout/internal/pipeline"
	"github.com/FranksOps/shopscout/internal/shopee"
	"github.com/FranksOps/shopscout/internal/storage"
	"github.com/FranksOps/shopscout/internal/storage/csvbackend"
	"github.com/FranksOps/shopscout/internal/storage/jsonbackend"
	"github.com/FranksOps/shopscout/internal/storage/postgres"
	"github.com/FranksOps/shopscout/internal/storage/sqlite"
)

// errNoData signals an empty result. The message has already been printed.
var errNoData = errors.New("no data")

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"storage-type": "storage.type",
	"storage-dsn":  "storage.dsn",
	"metrics-port": "metrics.port",
	"concurrency":  "pipeline.concurrency",
	"delay":        "ratelimit.delay",
	"addr":         "server.addr",
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "shopscout",
		Short:         "Find Shopee storefronts selling a keyword",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.Flags())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default ./shopscout.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("storage-type", "none", "history backend: none, csv, json, sqlite, postgres")
	pf.String("storage-dsn", "", "history file path or database DSN")
	pf.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")

	root.AddCommand(newSearchCmd(a), newHistoryCmd(a), newServeCmd(a))
	return root
}

func (a *app) load(fs *pflag.FlagSet) error {
	bound := make(map[string]*pflag.Flag, len(flagKeys))
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			bound[key] = f
		}
	}

	cfg, err := config.Load(a.cfgPath, bound)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Log.Logger(a.stderr)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	client, err := shopee.NewClient(a.cfg.Shopee.ClientConfig(), a.logger)
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{
		Searcher:    client,
		Resolver:    client,
		Limiter:     a.cfg.RateLimit.Waiter(),
		Logger:      a.logger,
		Concurrency: a.cfg.Pipeline.Concurrency,
	}, nil
}

// openStore returns nil when history is disabled.
func (a *app) openStore(ctx context.Context) (storage.Backend, error) {
	sc := a.cfg.Storage
	switch sc.Type {
	case "none":
		return nil, nil
	case "csv":
		return csvbackend.New(sc.DSN)
	case "json":
		return jsonbackend.New(sc.DSN)
	case "sqlite":
		return sqlite.New(sc.DSN)
	case "postgres":
		return postgres.New(ctx, sc.DSN)
	}
	return nil, fmt.Errorf("unknown storage type %q", sc.Type)
}

// startMetrics starts the standalone metrics listener when a port is set.
// The returned function stops it.
func (a *app) startMetrics() func(context.Context) {
	if a.cfg.Metrics.Port == 0 {
		return func(context.Context) {}
	}
	srv := metrics.Start(a.cfg.Metrics.Port, a.logger)
	a.logger.Info("metrics listening", "port", a.cfg.Metrics.Port)
	return func(ctx context.Context) {
		if err := srv.Stop(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("metrics server shutdown", "err", err)
		}
	}
}
