package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sxyafiq/snowflaked/internal/config"
	"github.com/sxyafiq/snowflaked/internal/logging"
	"github.com/sxyafiq/snowflaked/internal/metrics"
	"github.com/sxyafiq/snowflaked/internal/server"
	"github.com/sxyafiq/snowflaked/pool"
)

type serveOptions struct {
	configPath    string
	httpAddr      string
	nodes         string
	queueCapacity int
	logLevel      string
	logFormat     string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"run", "server"},
		Short:   "Run the HTTP ID service",
		Long: `Run the HTTP ID service until SIGINT or SIGTERM.

Configuration is read from the defaults, then --config (YAML or JSON), then
SNOWFLAKED_* environment variables, then the flags below.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to a .yaml or .json config file")
	f.StringVar(&opts.httpAddr, "http-addr", "", "HTTP listen address (default :8080)")
	f.StringVar(&opts.nodes, "nodes", "", `node IDs, e.g. "0-9" or "1,4,7"`)
	f.IntVar(&opts.queueCapacity, "queue-capacity", 0, "request queue capacity")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	return cmd
}

// load builds the configuration from every source and validates it.
func (o *serveOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if err := config.FromEnv(&cfg); err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("http-addr") {
		cfg.HTTPAddr = o.httpAddr
	}
	// --layout and --epoch are inherited from the root command.
	if f.Changed("layout") {
		cfg.Layout, _ = f.GetString("layout")
	}
	if f.Changed("epoch") {
		cfg.Epoch, _ = f.GetInt64("epoch")
	}
	if f.Changed("nodes") {
		nodes, err := config.ParseNodeList(o.nodes)
		if err != nil {
			return cfg, err
		}
		cfg.Nodes = nodes
	}
	if f.Changed("queue-capacity") {
		cfg.QueueCapacity = o.queueCapacity
	}
	if f.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	return cfg, cfg.Validate()
}

// serve runs the pool and the HTTP server until ctx ends.
func serve(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return err
	}
	defer logging.RedirectStdLog(logger)()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	pcfg, err := cfg.PoolConfig()
	if err != nil {
		return err
	}
	pcfg.Logger = logger
	pcfg.Observer = m
	p, err := pool.New(pcfg)
	if err != nil {
		return err
	}
	if err := metrics.RegisterPool(reg, p); err != nil {
		return err
	}
	p.Start()

	srv := server.New(server.Options{
		Pool:            p,
		Layout:          pcfg.Layout,
		Epoch:           pcfg.Epoch,
		RequestTimeout:  cfg.RequestTimeout.D(),
		ShutdownTimeout: cfg.ShutdownTimeout.D(),
		Logger:          logging.Component(logger, "http"),
		Gatherer:        reg,
	})

	logger.WithFields(logrus.Fields{
		"addr":   cfg.HTTPAddr,
		"layout": pcfg.Layout.String(),
		"nodes":  len(pcfg.NodeIDs),
		"queue":  pcfg.QueueCapacity,
	}).Info("snowflaked starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.D())
		defer cancel()
		return p.Shutdown(sctx)
	})

	err = g.Wait()
	logger.Info("snowflaked stopped")
	return err
}
