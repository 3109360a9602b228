package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/audio-ingest/internal/app"
	"github.com/petems/audio-ingest/internal/audio"
	"github.com/petems/audio-ingest/internal/config"
	"github.com/petems/audio-ingest/internal/logging"
	"github.com/petems/audio-ingest/internal/metrics"
	"github.com/petems/audio-ingest/internal/permissions"
	"github.com/petems/audio-ingest/internal/server"
	"github.com/petems/audio-ingest/internal/sink"
	"github.com/petems/audio-ingest/internal/sink/webrtc"
	"github.com/petems/audio-ingest/internal/status"
	pion "github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

func run(ctx context.Context, v *viper.Viper, cfgFile string) error {
	// Load config from flags, environment and XDG/Library/AppData
	cfg, err := config.LoadViper(v, cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.NewWithLevel(cfg.LogLevel)

	// macOS requires explicit microphone approval before capture works
	if cfg.Capture.Source == config.SourcePortAudio {
		if err := permissions.EnsureMicrophone(); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	captureMetrics, err := metrics.NewCaptureMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	out, publisher, closeSink, err := newSink(cfg.Sink, log)
	if err != nil {
		return err
	}
	defer closeSink()

	indicator := status.New(log)
	application := app.New(app.Config{
		Config:        cfg,
		ConfigPath:    cfgFile,
		Logger:        log,
		Sink:          out,
		Metrics:       captureMetrics,
		StatusUpdater: indicator,
	})

	log.Info().Str("version", Version).Str("commit", Commit).Msg("audio-ingest starting...")
	if err := application.Start(); err != nil {
		return err
	}

	var srv *server.Server
	var srvErr <-chan error
	if cfg.Server.Listen != "" {
		opts := []server.Option{server.WithVersion(Version), server.WithStatus(indicator)}
		if cfg.Server.Metrics {
			opts = append(opts, server.WithMetrics(registry))
		}
		if publisher != nil {
			opts = append(opts, server.WithNegotiator(publisher))
		}
		srv = server.New(cfg.Server.Listen, application, log, opts...)
		srvErr = srv.Start()
	}

	// Setup shutdown signal handling
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case <-application.Done():
		runErr = application.Err()
	case err := <-srvErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	// A finished file is a normal end of run
	if errors.Is(runErr, audio.ErrEndOfStream) {
		log.Info().Msg("Input file finished")
		return nil
	}
	return runErr
}

// newSink builds the configured sink. The publisher is nil unless the sink
// is WebRTC.
func newSink(sc config.SinkConfig, log zerolog.Logger) (sink.Sink, *webrtc.Publisher, func(), error) {
	switch sc.Kind {
	case config.SinkWebRTC:
		track, err := webrtc.NewTrack(sc.QueueSize, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create webrtc track: %w", err)
		}
		publisher := webrtc.NewPublisher(track, pion.Configuration{}, log)
		closeFn := func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close peers")
			}
			track.Close()
		}
		return track, publisher, closeFn, nil
	case config.SinkLog:
		logSink := sink.NewLog(log)
		closeFn := func() {
			units, bytes := logSink.Totals()
			log.Info().Uint64("units", units).Uint64("bytes", bytes).Msg("Log sink closed")
		}
		return logSink, nil, closeFn, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown sink: %q", sc.Kind)
	}
}
