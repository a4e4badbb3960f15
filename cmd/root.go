package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"S3Stream/internal/backend"
	"S3Stream/internal/config"
	"S3Stream/internal/logger"
)

var (
	configPath    string
	logLevel      string
	logFormat     string
	metricsListen string
)

var rootCmd = &cobra.Command{
	Use:           "s3stream",
	Short:         "Stream data into and out of S3-compatible object storage",
	Long:          "s3stream uploads stdin or files as multipart objects in fixed 5 MiB parts, and streams every object under a prefix as a single tar archive without staging anything on disk.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $S3STREAM_CONFIG or ~/.config/s3stream/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format override (json, console)")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address while the command runs (e.g. :9102)")
}

func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("command failed")
		return 1
	}
	return 0
}

// loadConfig reads, validates and applies the logging section of the config.
func loadConfig(checkPerms bool) (*config.Config, error) {
	v, err := config.Load(configPath, checkPerms)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	level, format := logLevel, logFormat
	if cfg.Log != nil {
		if level == "" {
			level = cfg.Log.Level
		}
		if format == "" {
			format = cfg.Log.Format
		}
	}
	if err := logger.Configure(os.Stderr, level, format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is the shared setup of every command that talks to storage.
type session struct {
	cfg    *config.Config
	client backend.Client
	stop   func()
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	client, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, client: client, stop: serveMetrics(metricsListen)}, nil
}

func (s *session) Close() {
	s.stop()
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics listener failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
