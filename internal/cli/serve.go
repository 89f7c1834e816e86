package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"phasebus/internal/config"
	"phasebus/internal/event"
	"phasebus/internal/host"
	"phasebus/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *Options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the host loop and the HTTP API",
		Example: "  phasebusd serve --addr :8080\n  PHASEBUS_TICK_MS=33 phasebusd serve --config phasebus.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			lg, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, lg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080 (overrides config)")
	return cmd
}

// serve runs the host loop and the HTTP server until ctx is canceled or the
// listener fails, then shuts both down.
func serve(ctx context.Context, cfg config.Config, lg zerolog.Logger) error {
	bus := event.NewBus()
	bus.SetLogger(lg)
	loop := host.New(bus, cfg)
	loop.SetLogger(lg.With().Str("component", "host").Logger())

	httpapi.SetLogger(lg.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOrigins(cfg.CORSOrigins)

	loop.Start()
	defer loop.Close()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(loop), ReadHeaderTimeout: 5 * time.Second}
	srvErr := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", cfg.Addr).Int("tick_ms", cfg.TickMS).Msg("phasebusd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn().Err(err).Msg("graceful shutdown error")
	}
	cancelLoop()
	if err := <-loopDone; err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
