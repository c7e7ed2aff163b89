package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/roach88/eventguard/internal/config"
	"github.com/roach88/eventguard/internal/engine"
	"github.com/roach88/eventguard/internal/store"
	"github.com/roach88/eventguard/internal/transport"
)

// newFactory builds the sync transport selected by cfg.
func newFactory(cfg config.Transport, logger *slog.Logger) (transport.Factory, error) {
	switch cfg.Backend {
	case config.TransportRelay:
		return transport.NewWebSocketFactory(cfg.RelayURL, logger), nil
	case config.TransportNATS:
		return transport.NewNATSFactory(cfg.NATSURL, cfg.Namespace, logger), nil
	case config.TransportMemory:
		return transport.NewHub().Factory(), nil
	default:
		return nil, fmt.Errorf("unknown transport backend %q", cfg.Backend)
	}
}

// engineOptions maps station settings onto engine options.
func engineOptions(cfg *config.Config, logger *slog.Logger) ([]engine.Option, error) {
	loc, err := cfg.Station.Location()
	if err != nil {
		return nil, err
	}
	return []engine.Option{
		engine.WithLocation(loc),
		engine.WithPhoneRegion(cfg.Station.PhoneRegion),
		engine.WithNamespace(cfg.Transport.Namespace),
		engine.WithLogger(logger),
	}, nil
}

// withEngine runs op against a station engine backed by the configured
// store, without any sync session. Offline commands share the store with
// a running station only when the backend allows concurrent access.
func withEngine(ctx context.Context, opts *RootOptions, op func(ctx context.Context, eng *engine.Engine) error) (err error) {
	cfg := opts.Config

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		err = multierr.Append(err, st.Close())
	}()

	engineOpts, err := engineOptions(cfg, opts.Logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid station settings", err)
	}
	eng := engine.New(st, transport.NewHub().Factory(), engineOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(runCtx)
	}()
	defer func() {
		eng.Stop()
		<-eng.Done()
	}()

	if err := awaitLoad(ctx, eng, runErr); err != nil {
		return err
	}
	return op(ctx, eng)
}

// awaitLoad returns once eng has loaded its store. A store that could not
// be read stops Run, and its error is returned as a command error.
func awaitLoad(ctx context.Context, eng *engine.Engine, runErr <-chan error) error {
	err := eng.Barrier(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrStopped) {
		if rerr := <-runErr; rerr != nil {
			return WrapExitError(ExitCommandError, "failed to load store", rerr)
		}
	}
	return WrapExitError(ExitCommandError, "engine did not start", err)
}
