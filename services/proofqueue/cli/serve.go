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
	"github.com/spf13/viper"

	"github.com/moven0831/proofqueue/internal/api"
	"github.com/moven0831/proofqueue/internal/bus"
	"github.com/moven0831/proofqueue/internal/notify"
	"github.com/moven0831/proofqueue/internal/prover"
	"github.com/moven0831/proofqueue/pkg/telemetry"
	"github.com/moven0831/proofqueue/services/client"
	"github.com/moven0831/proofqueue/services/proofqueue/config"
	"github.com/moven0831/proofqueue/services/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proof queue daemon with its HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9091", "Prometheus metrics server address")
	serveCmd.Flags().String("prover-bin", "", "path to the prover binary; empty uses the built-in simulator")
	serveCmd.Flags().Duration("sim-latency", 0, "per-operation delay for the simulator")
	serveCmd.Flags().Duration("ready-timeout", 5*time.Second, "how long submissions wait for the worker handshake")
	serveCmd.Flags().Int("channel-buffer", 64, "frames buffered per direction on the event channel")
	serveCmd.Flags().String("webhook-url", "", "webhook for task/batch notifications; empty logs them instead")
	serveCmd.Flags().Float64("rate-limit-rps", 50, "sustained API requests per second")
	serveCmd.Flags().Int("rate-limit-burst", 100, "API request burst size")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("prover_bin", serveCmd.Flags(), "prover-bin")
	bindFlag("sim_latency", serveCmd.Flags(), "sim-latency")
	bindFlag("ready_timeout", serveCmd.Flags(), "ready-timeout")
	bindFlag("channel_buffer", serveCmd.Flags(), "channel-buffer")
	bindFlag("webhook_url", serveCmd.Flags(), "webhook-url")
	bindFlag("rate_limit_rps", serveCmd.Flags(), "rate-limit-rps")
	bindFlag("rate_limit_burst", serveCmd.Flags(), "rate-limit-burst")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// buildProver picks the external binary when configured, the deterministic
// simulator otherwise.
func buildProver(cfg config.Config) prover.Prover {
	if cfg.ProverBin != "" {
		return prover.NewExecProver(cfg.ProverBin)
	}
	return &prover.SimProver{Latency: cfg.SimLatency}
}

func buildNotifier(cfg config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.WebhookURL != "" {
		return notify.NewWebhookNotifier(cfg.WebhookURL)
	}
	return &notify.LogNotifier{Logger: logger}
}

// buildFacade wires prover → worker → façade for the configured setup.
func buildFacade(cfg config.Config, logger *slog.Logger) *client.Client {
	prov := buildProver(cfg)
	dispatcher := notify.NewDispatcher(buildNotifier(cfg, logger), logger)

	runner := func(ctx context.Context, conn *bus.Conn) error {
		w := worker.NewWorker(conn, prov,
			worker.WithLogger(logger.With(slog.String("component", "worker"))),
			worker.WithDispatcher(dispatcher),
		)
		return w.Run(ctx)
	}

	opts := []client.Option{
		client.WithLogger(logger.With(slog.String("component", "facade"))),
	}
	if cfg.ReadyTimeout > 0 {
		opts = append(opts, client.WithReadyTimeout(cfg.ReadyTimeout))
	}
	if cfg.ChannelBuffer > 0 {
		opts = append(opts, client.WithChannelBuffer(cfg.ChannelBuffer))
	}
	return client.New(runner, opts...)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "proofqueue")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "proofqueue", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	facade := buildFacade(cfg, logger)
	srv := api.NewServer(facade, logger)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(cfg.RateLimitRPS, cfg.RateLimitBurst),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	go func() {
		logger.Info("proofqueue HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := facade.StopService(stopCtx); err != nil {
		logger.Error("worker stop error", slog.String("error", err.Error()))
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
