package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/eventguard/internal/api"
	"github.com/roach88/eventguard/internal/engine"
	"github.com/roach88/eventguard/internal/metrics"
	"github.com/roach88/eventguard/internal/relay"
	"github.com/roach88/eventguard/internal/store"
)

// joinTimeout bounds the wait for the host link when --join is given.
const joinTimeout = 15 * time.Second

// StationOptions holds flags for the station command.
type StationOptions struct {
	*RootOptions
	Listen string // API listen address, overrides api.listen
	Host   bool   // start hosting on startup
	Join   string // session code to join on startup
}

// NewStationCommand creates the station command.
func NewStationCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StationOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "station",
		Short: "Run a check-in station",
		Long: `Run a check-in station with its HTTP API.

The station loads its guests and scan logs from the configured store,
serves the API and metrics, and optionally hosts or joins a sync session
on startup. It runs until interrupted (Ctrl+C).

Examples:
  eventguard station
  eventguard station --listen :8081 --host
  eventguard station --join 123456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStation(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "API listen address (default from api.listen)")
	cmd.Flags().BoolVar(&opts.Host, "host", false, "host a sync session on startup")
	cmd.Flags().StringVar(&opts.Join, "join", "", "join the sync session with this code on startup")
	cmd.MarkFlagsMutuallyExclusive("host", "join")

	return cmd
}

func runStation(cmd *cobra.Command, opts *StationOptions) (err error) {
	if err := opts.setup(cmd.ErrOrStderr()); err != nil {
		return err
	}
	cfg := opts.Config
	logger := opts.Logger
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		err = multierr.Append(err, st.Close())
	}()

	factory, err := newFactory(cfg.Transport, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure transport", err)
	}

	m := metrics.New()
	engineOpts, err := engineOptions(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid station settings", err)
	}
	eng := engine.New(st, factory, append(engineOpts, engine.WithMetrics(m))...)

	engineErr := make(chan error, 1)
	go func() {
		engineErr <- eng.Run(ctx)
	}()
	defer func() {
		eng.Stop()
		<-eng.Done()
	}()

	if err := awaitLoad(ctx, eng, engineErr); err != nil {
		return err
	}

	f.VerboseLog("Station %s starting (store=%s, transport=%s)", eng.NodeID(), cfg.Store.Backend, cfg.Transport.Backend)

	switch {
	case opts.Host:
		code, herr := eng.StartHosting(ctx)
		if herr != nil {
			return WrapExitError(ExitFailure, "failed to start hosting", herr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Hosting session %s\n", code)

	case opts.Join != "":
		if jerr := join(ctx, eng, opts.Join); jerr != nil {
			return WrapExitError(ExitFailure, engine.MsgJoinFailed, jerr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Joined session %s\n", opts.Join)
	}

	listen := cfg.API.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	srv := api.New(eng, m, logger, cfg.API.Release)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx, listen)
	}()
	logger.Info("station ready", "api", listen, "node", eng.NodeID())

	select {
	case err := <-serveErr:
		cancel()
		if err != nil {
			return WrapExitError(ExitFailure, "API server failed", err)
		}
	case err := <-engineErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "engine stopped", err)
		}
		cancel()
		<-serveErr
	}

	logger.Info("station stopped")
	return nil
}

func join(ctx context.Context, eng *engine.Engine, code string) error {
	if err := eng.JoinSession(ctx, code); err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	return eng.AwaitSession(wctx)
}

// NewRelayCommand creates the relay command.
func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the sync relay",
		Long: `Run the WebSocket relay that brokers sync sessions between stations.

Stations using the relay transport register with it, hosts claim the
address derived from their session code, and clients connect to that
address. The relay only forwards frames; it keeps no event data.

Examples:
  eventguard relay
  eventguard relay --listen :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.setup(cmd.ErrOrStderr()); err != nil {
				return err
			}
			if listen == "" {
				listen = rootOpts.Config.Relay.Listen
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			srv := relay.New(rootOpts.Logger)
			rootOpts.Logger.Info("relay ready", "listen", listen)
			if err := srv.ListenAndServe(ctx, listen); err != nil {
				return WrapExitError(ExitFailure, "relay failed", err)
			}
			rootOpts.Logger.Info("relay stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from relay.listen)")
	return cmd
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
