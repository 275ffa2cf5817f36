package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/chat-moderator/internal/alerts"
	"github.com/wolfman30/chat-moderator/internal/api/router"
	"github.com/wolfman30/chat-moderator/internal/app/bootstrap"
	"github.com/wolfman30/chat-moderator/internal/chatlog"
	appconfig "github.com/wolfman30/chat-moderator/internal/config"
	"github.com/wolfman30/chat-moderator/internal/conversation"
	httpmiddleware "github.com/wolfman30/chat-moderator/internal/http/middleware"
	"github.com/wolfman30/chat-moderator/internal/moderation"
	"github.com/wolfman30/chat-moderator/internal/observability/metrics"
	"github.com/wolfman30/chat-moderator/internal/room"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting chat moderator API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"oracle_provider", cfg.OracleProvider,
		"chatlog_backend", cfg.ChatlogBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	modMetrics := metrics.NewModerationMetrics(prometheus.DefaultRegisterer)

	oracle, err := bootstrap.BuildOracle(ctx, cfg, logger, modMetrics)
	if err != nil {
		return err
	}
	defer func() { _ = oracle.Close() }()

	cl, err := bootstrap.BuildChatlog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cl.Close()

	recorder := chatlog.NewRecorder(cl.Store, cfg.ChatlogBuffer,
		chatlog.WithBackendName(cl.Backend),
		chatlog.WithRecorderLogger(logger),
		chatlog.WithRecorderMetrics(modMetrics),
	)

	registry := moderation.NewRegistry(oracle, cfg.MaxHistory,
		moderation.WithHydrator(chatlog.NewHydrator(cl.Store)),
		moderation.WithRegistryLogger(logger),
		moderation.WithRegistryMetrics(modMetrics),
	)

	var publisher alerts.Publisher = alerts.NewLogPublisher(logger)
	var archiver *chatlog.Archiver
	if cfg.AlertQueueURL != "" || cfg.ArchiveBucket != "" {
		awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if cfg.AlertQueueURL != "" {
			publisher = alerts.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.AlertQueueURL)
			logger.Info("moderation alerts go to SQS", "queue_url", cfg.AlertQueueURL)
		}
		if cfg.ArchiveBucket != "" {
			s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
				o.UsePathStyle = cfg.AWSEndpointOverride != ""
			})
			archiver = chatlog.NewArchiver(cl.Store, s3Client, cfg.ArchiveBucket, logger.Logger)
			logger.Info("chat log archive enabled", "bucket", cfg.ArchiveBucket)
		}
	}
	notifier := alerts.NewNotifier(publisher, logger, modMetrics)

	hub := room.NewHub(logger)
	service := conversation.NewService(registry,
		conversation.WithRecorder(recorder),
		conversation.WithNotifier(notifier),
		conversation.WithBroadcaster(hub),
		conversation.WithLogger(logger),
	)
	hub.SetSubmitter(service)

	var limiter *httpmiddleware.RateLimiter
	if cfg.ChatRatePerSecond > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.ChatRatePerSecond, cfg.ChatRateBurst)
		defer limiter.Stop()
	}

	var archiveHandler conversation.Archiver
	if archiver != nil {
		archiveHandler = archiver
	}
	handler := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(service, cl.Store, archiveHandler, cfg.AssistantName, logger),
		RoomHub:             hub,
		MetricsHandler:      promhttp.Handler(),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		ChatLimiter:         limiter,
		HealthCheck:         cl.Ping,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := notifier.Wait(shutdownCtx); err != nil {
			logger.Warn("alerts still in flight at shutdown", "error", err)
		}
		if err := recorder.Close(shutdownCtx); err != nil {
			logger.Warn("chat log entries not flushed before shutdown", "error", err)
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
