package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/govbot/internal/config"
	"github.com/roach88/govbot/internal/dispatch"
	"github.com/roach88/govbot/internal/engine"
	"github.com/roach88/govbot/internal/metrics"
	"github.com/roach88/govbot/internal/service"
	"github.com/roach88/govbot/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the query and notification services",
		Long: `Run the bot core.

Opens the configured store, listens on the query and notification sockets,
and runs the subscription refresh loop until interrupted. Entries pushed to
the notification socket trigger a refresh; a periodic refresh and
compaction run on the configured intervals.

Examples:
  govbot serve
  govbot serve --config ./govbot.cue
  GOVBOT_STORAGE_BACKEND=sqlite govbot serve --log-format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cmd.ErrOrStderr(), cfg.LogLevel)

	d, err := newDaemon(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("govbot starting",
		"backend", cfg.Storage.Backend,
		"path", cfg.Storage.Path,
		"query_socket", cfg.Sockets.Query,
		"notification_socket", cfg.Sockets.Notification,
		"metrics_addr", cfg.MetricsAddr)
	if err := d.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "govbot stopped", err)
	}
	logger.Info("govbot stopped")
	return nil
}

// daemon wires the store, engine, dispatcher and both socket services.
type daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	engine  *engine.Engine
	metrics *metrics.Metrics
	query   *service.SocketServer
	notify  *service.SocketServer
}

func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	st, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path,
		store.WithCacheSize(cfg.Storage.CacheSize),
		store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := metrics.New()
	// Broadcasts and query answers reach the dispatcher the way a remote
	// producer's would.
	notifier := service.NewNotifyClient(cfg.Sockets.Notification)

	eng, err := engine.New(st, cfg.Index,
		engine.WithSink(notifier),
		engine.WithObserver(m),
		engine.WithLogger(logger.With("component", "engine")))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	m.TrackQueue(eng.QueueLen)
	disp := dispatch.New(st,
		dispatch.WithLoginURL(cfg.LoginURL),
		dispatch.WithLogger(logger.With("component", "dispatch")))

	sockOpts := []service.Option{
		service.WithLogger(logger),
		service.WithObserver(m),
		service.WithTimeouts(cfg.Sockets.ReadTimeout, cfg.Sockets.WriteTimeout),
		service.WithMaxRequestSize(cfg.Sockets.MaxRequestSize),
	}
	qs := service.NewQueryService(eng, notifier, logger.With("component", "query"))
	ns := service.NewNotificationService(st, disp,
		service.WithRefresh(eng),
		service.WithNotifyObserver(m),
		service.WithNotificationLogger(logger.With("component", "notification")))

	return &daemon{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		engine:  eng,
		metrics: m,
		query:   service.NewSocketServer("query", cfg.Sockets.Query, qs, sockOpts...),
		notify:  service.NewSocketServer("notification", cfg.Sockets.Notification, ns, sockOpts...),
	}, nil
}

// Run serves until ctx is cancelled or a component fails, then closes the
// store.
func (d *daemon) Run(ctx context.Context) error {
	defer func() {
		if err := d.store.Close(); err != nil {
			d.logger.Error("closing store", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.query.Serve(gctx) })
	g.Go(func() error { return d.notify.Serve(gctx) })
	g.Go(func() error {
		if err := d.engine.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// Indices are built before the first query arrives.
	d.engine.Enqueue(engine.Event{Type: engine.EventReindex})

	if iv := d.cfg.RefreshInterval; iv > 0 {
		g.Go(func() error {
			every(gctx, iv, func(context.Context) {
				d.engine.Enqueue(engine.Event{Type: engine.EventEntriesChanged})
			})
			return nil
		})
	}
	if iv := d.cfg.CompactionInterval; iv > 0 {
		g.Go(func() error {
			every(gctx, iv, d.compact)
			return nil
		})
	}
	if d.cfg.MetricsAddr != "" {
		g.Go(func() error { return d.serveMetrics(gctx) })
	}

	return g.Wait()
}

// Ready is closed once both sockets accept connections.
func (d *daemon) Ready() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		<-d.query.Ready()
		<-d.notify.Ready()
		close(ch)
	}()
	return ch
}

func (d *daemon) compact(ctx context.Context) {
	stats, err := d.store.Compact(ctx)
	if err != nil {
		d.logger.Error("compaction failed", "error", err)
		return
	}
	d.metrics.ObserveCompaction(stats)
	if stats.Total() > 0 {
		d.logger.Info("compacted store",
			"dangling_refs", stats.DanglingRefs,
			"empty_indices", stats.EmptyIndices,
			"superseded_indices", stats.SupersededIndices,
			"trimmed_results", stats.TrimmedResults)
	}
}

func (d *daemon) serveMetrics(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.cfg.MetricsAddr,
		Handler:           metrics.Handler(d.metrics, d.engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	d.logger.Info("metrics listening", "addr", d.cfg.MetricsAddr)

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// every calls fn each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}
