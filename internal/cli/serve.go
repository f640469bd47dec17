package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/kfreplay/internal/keyframe"
	"github.com/roach88/kfreplay/internal/stream"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	DB          string
	Session     string
	Addr        string
	MetricsAddr string
	Interval    time.Duration
}

const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve --session <id>",
		Short: "Stream a stored session to websocket viewers",
		Long: `Publish a stored session's keyframes to websocket subscribers and
keep serving until interrupted. Viewers that connect late receive every
keyframe published so far before live ones.

Prometheus metrics are served at /metrics, on the stream listener unless
a separate metrics address is configured.

Examples:
  kfreplay serve --session 3f2a... --addr :8765
  kfreplay serve --session 3f2a... --interval 33ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.config()
			if !cmd.Flags().Changed("addr") {
				opts.Addr = cfg.Stream.Addr
			}
			if !cmd.Flags().Changed("metrics-addr") {
				opts.MetricsAddr = cfg.Metrics.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "database path (default from config)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "separate metrics listen address")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "delay between published keyframes")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.config()
	logger := opts.logger()

	st, err := openStore(opts.dbPath(opts.DB), false)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := st.ReadSession(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	hub := stream.NewHub(stream.HubConfig{
		SendBuffer:       cfg.Stream.SendBuffer,
		MaxDecimalPlaces: sess.MaxDecimalPlaces,
	}, stream.WithLogger(logger))
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle(cfg.Stream.Path, hub)
	if opts.MetricsAddr == "" {
		mux.Handle("/metrics", promhttp.Handler())
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	servers := []*http.Server{{Handler: mux}}
	serveErr := make(chan error, 2)
	go func() { serveErr <- servers[0].Serve(ln) }()

	if opts.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsLn, err := net.Listen("tcp", opts.MetricsAddr)
		if err != nil {
			_ = servers[0].Close()
			return WrapExitError(ExitCommandError, "failed to listen for metrics", err)
		}
		srv := &http.Server{Handler: metricsMux}
		servers = append(servers, srv)
		go func() { serveErr <- srv.Serve(metricsLn) }()
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
	}()

	url := fmt.Sprintf("ws://%s%s", ln.Addr(), cfg.Stream.Path)
	logger.Info("serving session", "session_id", sess.ID, "url", url, "keyframes", sess.Keyframes)
	fmt.Fprintf(cmd.ErrOrStderr(), "Streaming session %s at %s\n", sess.ID, url)

	err = st.Replay(ctx, sess.ID, func(seq int64, kf keyframe.Keyframe) error {
		if err := hub.Publish(kf); err != nil {
			return fmt.Errorf("publish keyframe %d: %w", seq, err)
		}
		if opts.Interval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Interval):
			return nil
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "failed to publish session", err)
	}
	logger.Info("session published", "session_id", sess.ID, "published", hub.Published())

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return WrapExitError(ExitFailure, "server failed", err)
	}
}
