// Package server exposes the capture session over HTTP: WHEP playback,
// Prometheus metrics, health and the current track descriptor.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/petems/audio-ingest/internal/sink/webrtc"
	"github.com/petems/audio-ingest/internal/track"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	sdpContentType = "application/sdp"
	maxOfferBytes  = 64 * 1024
	answerTimeout  = 10 * time.Second
)

// Session reports on the running capture
type Session interface {
	IsCapturing() bool
	TrackInfo() *track.Info
}

// Negotiator answers playback offers
type Negotiator interface {
	Answer(ctx context.Context, offer string) (id, answer string, err error)
	Remove(id string) error
	Peers() int
}

// Server is the HTTP surface of the process
type Server struct {
	echo       *echo.Echo
	listen     string
	log        zerolog.Logger
	session    Session
	negotiator Negotiator
	registry   *prometheus.Registry
	status     fmt.Stringer
	version    string
	startTime  time.Time
}

// Option configures a Server
type Option func(*Server)

// WithMetrics serves the registry on /metrics
func WithMetrics(registry *prometheus.Registry) Option {
	return func(s *Server) { s.registry = registry }
}

// WithNegotiator serves WHEP playback on /whep
func WithNegotiator(n Negotiator) Option {
	return func(s *Server) { s.negotiator = n }
}

// WithStatus reports the capture status on /healthz
func WithStatus(status fmt.Stringer) Option {
	return func(s *Server) { s.status = status }
}

// WithVersion is reported by /healthz
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server for session listening on listen
func New(listen string, session Session, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		listen:    listen,
		log:       log.With().Str("component", "server").Logger(),
		session:   session,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			s.log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Err(v.Error).
				Msg("Request")
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)
	s.echo.GET("/track", s.trackInfo)

	if s.registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
			ErrorHandling: promhttp.HTTPErrorOnError,
		})))
	}

	if s.negotiator != nil {
		s.echo.POST("/whep", s.whepOffer)
		s.echo.DELETE("/whep/:id", s.whepDelete)
	}
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	body := map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"capturing":      s.session.IsCapturing(),
		"uptime_seconds": uptime.Seconds(),
	}
	if s.status != nil {
		body["capture_status"] = s.status.String()
	}
	if s.negotiator != nil {
		body["peers"] = s.negotiator.Peers()
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) trackInfo(c echo.Context) error {
	info := s.session.TrackInfo()
	if info == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active track")
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) whepOffer(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxOfferBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read offer")
	}
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty offer")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), answerTimeout)
	defer cancel()

	id, answer, err := s.negotiator.Answer(ctx, string(body))
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to answer offer")
		if errors.Is(err, webrtc.ErrClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "publisher closed")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	c.Response().Header().Set(echo.HeaderLocation, "/whep/"+id)
	return c.Blob(http.StatusCreated, sdpContentType, []byte(answer))
}

func (s *Server) whepDelete(c echo.Context) error {
	if err := s.negotiator.Remove(c.Param("id")); err != nil {
		if errors.Is(err, webrtc.ErrUnknownSession) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown session")
		}
		s.log.Debug().Err(err).Msg("Failed to close session")
	}
	return c.NoContent(http.StatusOK)
}

// Start serves in a background goroutine. Errors other than a clean
// shutdown are sent on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.log.Info().Str("listen", s.listen).Msg("HTTP server starting")
		if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()
	return errCh
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.log.Info().Msg("HTTP server stopped")
	return nil
}
