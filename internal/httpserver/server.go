// Package httpserver exposes an engine over HTTP: REST toast operations,
// presentation adapter events, a server-sent change stream, the audit log
// and Prometheus metrics.
package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/toastd/internal/conf"
	"github.com/tphakala/toastd/internal/engine"
	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/logger"
)

const (
	readTimeout  = 15 * time.Second
	idleTimeout  = 60 * time.Second
	bodyLimit    = "64K"
	defaultWait  = 10 * time.Second
	apiPrefix    = "/api/v1"
	streamSuffix = "/toasts/stream"
)

// Server serves one engine
type Server struct {
	echo     *echo.Echo
	engine   *engine.Engine
	settings conf.HTTPSettings
	version  string
	started  time.Time

	// done ends open streams so shutdown does not wait for them
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a server and registers its routes. Nothing listens until Run.
func New(eng *engine.Engine, settings conf.HTTPSettings, version string) *Server {
	s := &Server{
		echo:     echo.New(),
		engine:   eng,
		settings: settings,
		version:  version,
		started:  time.Now(),
		done:     make(chan struct{}),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	// SSE responses stay open, so only reads are bounded
	s.echo.Server.ReadTimeout = readTimeout
	s.echo.Server.IdleTimeout = idleTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger())
	s.echo.Use(newMetricsMiddleware(s.engine.Metrics().HTTP))
	s.echo.Use(echomw.BodyLimit(bodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.health)
	s.echo.GET("/metrics", echo.WrapHandler(s.engine.Metrics().Handler()))

	api := s.echo.Group(apiPrefix, newRateLimiter(s.settings.RateLimit, s.settings.Burst))

	api.GET("/toasts", s.listToasts)
	api.POST("/toasts", s.enqueueToast)
	api.DELETE("/toasts", s.clearToasts)
	api.GET(streamSuffix, s.streamChanges)
	api.GET("/toasts/:id", s.getToast)
	api.PATCH("/toasts/:id", s.updateToast)
	api.DELETE("/toasts/:id", s.dismissToast)
	api.POST("/toasts/:id/pause", s.pauseToast)
	api.POST("/toasts/:id/resume", s.resumeToast)
	api.POST("/toasts/:id/events", s.adapterEvent)
	api.POST("/toasts/:id/failures", s.reportFailure)

	api.GET("/config", s.getConfig)
	api.PATCH("/config", s.updateConfig)

	api.GET("/errors", s.listErrors)
	api.POST("/errors/reset", s.resetRetries)

	api.GET("/performance", s.performance)
	api.POST("/performance/timings", s.reportTiming)
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run listens on the configured address until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("address", s.settings.Listen))
		if err := s.echo.Start(s.settings.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.settings.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultWait
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info("http server shutting down")
	s.closeStreams()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// closeStreams ends every open change stream
func (s *Server) closeStreams() {
	s.doneOnce.Do(func() { close(s.done) })
}
