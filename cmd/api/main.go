package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clientela-ai/clientela/cmd/mainconfig"
	"github.com/clientela-ai/clientela/internal/api/router"
	"github.com/clientela-ai/clientela/internal/channels/instagram"
	"github.com/clientela-ai/clientela/internal/channels/whatsapp"
	appconfig "github.com/clientela-ai/clientela/internal/config"
	"github.com/clientela-ai/clientela/internal/genai"
	"github.com/clientela-ai/clientela/internal/notify"
	"github.com/clientela-ai/clientela/internal/observability/metrics"
	"github.com/clientela-ai/clientela/internal/pipeline"
	"github.com/clientela-ai/clientela/internal/store"
	"github.com/clientela-ai/clientela/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clientela API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	st := store.NewPostgres(pool, db)

	var cache *pipeline.TranscriptCache
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		cache = pipeline.NewTranscriptCache(redis.NewClient(opts), logger)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var secondary genai.Client
	if cfg.BedrockModelID != "" {
		bedrock, err := genai.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
		if err != nil {
			logger.Error("failed to wire bedrock backend", "error", err)
			os.Exit(1)
		}
		secondary = bedrock
	}

	factory := genai.NewGeminiFactory(cfg.GeminiAPIKey, cfg.GeminiModel, secondary, logger,
		genai.WithMaxAttempts(cfg.GenerateMaxAttempts),
		genai.WithBaseDelay(cfg.GenerateBaseDelay),
	)

	var emailSender notify.EmailSender
	if cfg.NotifyFromEmail != "" {
		emailSender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger)
	}
	if emailSender == nil {
		emailSender = notify.NewLogSender(logger)
	}
	notifier := notify.NewService(emailSender, st, logger)

	svc := pipeline.NewService(st, factory, pipeline.DefaultDetectorConfig(), cache, logger).
		WithNotifier(notifier)

	channelMetrics := metrics.NewChannelMetrics(nil)

	var instagramAdapter *instagram.Adapter
	if botMap := parseBotMap(cfg.InstagramBotMapJSON, logger); len(botMap) > 0 {
		instagramAdapter = instagram.NewAdapter(
			svc,
			instagram.NewClient(cfg.InstagramAccessToken),
			cfg.InstagramAppSecret,
			cfg.InstagramVerifyToken,
			botMap,
			logger,
		).WithMetrics(channelMetrics)
	}

	var whatsappAdapter *whatsapp.Adapter
	if botMap := parseBotMap(cfg.WhatsAppBotMapJSON, logger); len(botMap) > 0 {
		webhookURL := strings.TrimSuffix(cfg.PublicBaseURL, "/") + "/webhooks/whatsapp"
		whatsappAdapter = whatsapp.NewAdapter(svc, cfg.TwilioAuthToken, webhookURL, botMap, logger).
			WithMetrics(channelMetrics)
	}

	r := router.New(router.Config{
		Logger:             logger,
		PipelineHandler:    pipeline.NewHandler(svc, logger),
		InstagramAdapter:   instagramAdapter,
		WhatsAppAdapter:    whatsappAdapter,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// parseBotMap decodes a JSON object of channel account id -> bot id. A
// malformed map is logged and skipped so one bad channel doesn't block boot.
func parseBotMap(raw string, logger *logging.Logger) map[string]uuid.UUID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var ids map[string]string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		logger.Error("invalid bot map JSON", "error", err)
		return nil
	}
	botMap := make(map[string]uuid.UUID, len(ids))
	for account, id := range ids {
		botID, err := uuid.Parse(id)
		if err != nil {
			logger.Error("invalid bot id in bot map", "account", account, "error", err)
			continue
		}
		botMap[account] = botID
	}
	return botMap
}
