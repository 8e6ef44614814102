package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/robloxar/giftcard-bot/cmd/mainconfig"
	"github.com/robloxar/giftcard-bot/internal/activity"
	"github.com/robloxar/giftcard-bot/internal/api/router"
	appconfig "github.com/robloxar/giftcard-bot/internal/config"
	"github.com/robloxar/giftcard-bot/internal/conversation"
	"github.com/robloxar/giftcard-bot/internal/events"
	"github.com/robloxar/giftcard-bot/internal/http/handlers"
	"github.com/robloxar/giftcard-bot/internal/intake"
	"github.com/robloxar/giftcard-bot/internal/inventory"
	"github.com/robloxar/giftcard-bot/internal/llm"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/internal/notify"
	"github.com/robloxar/giftcard-bot/internal/observability/metrics"
	"github.com/robloxar/giftcard-bot/internal/poller"
	"github.com/robloxar/giftcard-bot/internal/questions"
	"github.com/robloxar/giftcard-bot/internal/webhook"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting giftcard-bot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	market, err := meli.New(meli.Config{
		BaseURL:       cfg.MeliBaseURL,
		AppID:         cfg.MeliAppID,
		ClientSecret:  cfg.MeliClientSecret,
		RefreshToken:  cfg.MeliRefreshToken,
		Timeout:       cfg.MeliTimeout,
		MaxRetries:    cfg.MeliMaxRetries,
		SequencePause: cfg.MessagePause,
		Logger:        logger.Logger,
	})
	if err != nil {
		logger.Error("failed to build MercadoLibre client", "error", err)
		os.Exit(1)
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	inv := buildInventory(ctx, cfg, pool, logger)

	var journal conversation.Journal
	if pool != nil {
		journal = conversation.NewPostgresJournal(pool)
	} else {
		logger.Warn("no DATABASE_URL, conversation journal is in-memory and will not survive restarts")
		journal = conversation.NewMemoryJournal()
	}

	var store conversation.StateStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		store = conversation.NewRedisStore(rdb, cfg.StateTTL, nil)
	} else {
		store = conversation.NewMemoryStore()
	}

	var dedup events.Dedup
	if pool != nil {
		dedup = events.NewProcessedStore(pool)
	} else {
		dedup = events.NewMemoryDedup()
	}

	var telegram notify.Notifier
	if t := notify.NewTelegramSender(notify.TelegramConfig{
		Token:  cfg.TelegramToken,
		ChatID: cfg.TelegramChatID,
	}, logger); t != nil {
		telegram = t
	}
	var email notify.EmailSender
	if s := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  "Giftcard Bot",
	}, logger); s != nil {
		email = s
	}
	notifier := notify.NewService(telegram, email, cfg.SendGridToEmail, notify.Settings{
		NotifyNewOrder:      true,
		NotifyCodeDelivered: true,
	}, logger)

	var assistant *llm.Assistant
	if client, model := buildLLMClient(ctx, cfg, logger); client != nil {
		assistant = llm.NewAssistant(client, model, logger.Logger)
	} else {
		logger.Warn("no LLM provider configured, contextual replies and question answering are off")
	}

	feed := activity.NewLog(activity.DefaultCapacity)

	var engineAssistant conversation.Assistant
	if assistant != nil {
		engineAssistant = assistant
	}
	engine := conversation.NewEngine(market, inv, journal, store, notifier, engineAssistant, feed, conversation.EngineConfig{
		ResendLimit: cfg.ResendLimit,
		Enabled:     cfg.BotEnabledAtBoot,
	}, logger)

	intakeSvc := intake.New(market, journal, store, engine.Reconstructor(), notifier, feed, logger)

	var answerer questions.Answerer
	if assistant != nil {
		answerer = assistant
	}
	responder := questions.New(market, answerer, notifier, feed, logger)

	registry := prometheus.NewRegistry()
	botMetrics := metrics.NewBotMetrics(registry)

	dispatcherCfg := webhook.DispatcherConfig{Workers: cfg.WorkerCount}
	var dispatcher *webhook.Dispatcher
	if cfg.UseMemoryQueue {
		dispatcher = webhook.NewDispatcher(webhook.NewMemoryQueue(64), intakeSvc, engine, responder, market, botMetrics, logger, dispatcherCfg)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue := webhook.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.WebhookQueueURL)
		dispatcher = webhook.NewDispatcher(queue, intakeSvc, engine, responder, market, botMetrics, logger, dispatcherCfg)
	}

	sweeper := poller.New(market, engine, cfg.OrderScanLimit, logger)

	webhookHandler := handlers.NewWebhookHandler(dispatcher, dispatcher, dedup, botMetrics, logger)
	dashboardHandler := handlers.NewDashboardHandler(engine, store, journal, inv, feed, sweeper, market, logger)
	authHandler := handlers.NewAuthHandler(market, cfg.PublicBaseURL, feed, logger)

	var origins []string
	if cfg.CORSAllowedOrigins != "" {
		origins = strings.Split(cfg.CORSAllowedOrigins, ",")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		WebhookHandler:     webhookHandler,
		DashboardHandler:   dashboardHandler,
		AuthHandler:        authHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: origins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown failed", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildInventory picks the code source for the configured backend. The bot can
// run, degraded, without one: out-of-stock handling covers a missing backend.
func buildInventory(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) inventory.Source {
	switch cfg.InventoryBackend {
	case "postgres":
		if pool == nil {
			logger.Error("INVENTORY_BACKEND=postgres requires DATABASE_URL")
			os.Exit(1)
		}
		return inventory.NewPostgresSource(pool)
	case "sheets":
		src, err := inventory.NewSheetsSource(cfg.SheetsScriptURL, logger)
		if err != nil {
			logger.Error("failed to build sheets inventory", "error", err)
			os.Exit(1)
		}
		if tabs, err := src.Verify(ctx); err != nil {
			logger.Warn("sheets inventory unreachable at boot", "error", err)
		} else {
			logger.Info("sheets inventory connected", "tabs", tabs)
		}
		return src
	default:
		logger.Warn("using in-memory inventory, codes will not survive restarts")
		return inventory.NewMemorySource()
	}
}

// buildLLMClient assembles the model tier: OpenAI primary with Gemini as the
// fallback when both keys are present.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, string) {
	var primary, backup llm.Client
	if cfg.OpenAIAPIKey != "" {
		client, err := llm.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
		if err != nil {
			logger.Error("openai client init failed", "error", err)
		} else {
			primary = client
		}
	}
	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("gemini client init failed", "error", err)
		} else {
			backup = client
		}
	}

	switch {
	case primary != nil && backup != nil:
		return llm.NewFallbackClient(primary, backup, logger.Logger), cfg.OpenAIModel
	case primary != nil:
		return primary, cfg.OpenAIModel
	case backup != nil:
		return backup, cfg.GeminiModel
	default:
		return nil, ""
	}
}
