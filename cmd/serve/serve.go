package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/toastd/internal/conf"
	"github.com/tphakala/toastd/internal/engine"
	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/httpserver"
	"github.com/tphakala/toastd/internal/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Command creates the serve command, which runs the engine until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	var noHTTP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the toast engine",
		Long:  "Runs the toast engine with its HTTP adapter until SIGINT or SIGTERM. SIGHUP rotates the log file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if noHTTP {
				settings.HTTP.Enabled = false
			}
			return Run(cmd.Context(), settings)
		},
	}

	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Disable the HTTP adapter")

	return cmd
}

// Run starts the engine and blocks until ctx is cancelled or a termination signal arrives.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("serve")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(settings)
	if err != nil {
		return err
	}
	eng.Start()

	g, gctx := errgroup.WithContext(ctx)

	if settings.HTTP.Enabled {
		srv := httpserver.New(eng, settings.HTTP, settings.Version)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := logger.Global().Rotate(); err != nil {
					log.Warn("log rotation failed", logger.Error(err))
				}
			}
		}
	})

	log.Info("toastd running",
		logger.String("version", settings.Version),
		logger.Bool("http", settings.HTTP.Enabled),
		logger.String("listen", settings.HTTP.Listen))

	runErr := g.Wait()

	log.Info("shutting down")
	timeout := settings.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return errors.Join(runErr, eng.Close(closeCtx))
}
