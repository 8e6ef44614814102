// Standalone queue worker for SQS deployments: consumes MercadoLibre
// notifications published by the API binary and drives the conversation
// engine, without serving HTTP. With the in-process memory queue the API
// binary consumes its own notifications and this worker has nothing to do.
package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/robloxar/giftcard-bot/cmd/mainconfig"
	"github.com/robloxar/giftcard-bot/internal/activity"
	appconfig "github.com/robloxar/giftcard-bot/internal/config"
	"github.com/robloxar/giftcard-bot/internal/conversation"
	"github.com/robloxar/giftcard-bot/internal/intake"
	"github.com/robloxar/giftcard-bot/internal/inventory"
	"github.com/robloxar/giftcard-bot/internal/llm"
	"github.com/robloxar/giftcard-bot/internal/meli"
	"github.com/robloxar/giftcard-bot/internal/notify"
	"github.com/robloxar/giftcard-bot/internal/questions"
	"github.com/robloxar/giftcard-bot/internal/webhook"
	"github.com/robloxar/giftcard-bot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting giftcard-bot queue worker", "env", cfg.Env)

	if cfg.UseMemoryQueue || cfg.WebhookQueueURL == "" {
		logger.Error("queue worker requires USE_MEMORY_QUEUE=false and WEBHOOK_QUEUE_URL")
		os.Exit(1)
	}

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

	var inv inventory.Source
	switch cfg.InventoryBackend {
	case "postgres":
		if pool == nil {
			logger.Error("INVENTORY_BACKEND=postgres requires DATABASE_URL")
			os.Exit(1)
		}
		inv = inventory.NewPostgresSource(pool)
	case "sheets":
		src, err := inventory.NewSheetsSource(cfg.SheetsScriptURL, logger)
		if err != nil {
			logger.Error("failed to build sheets inventory", "error", err)
			os.Exit(1)
		}
		inv = src
	default:
		logger.Warn("using in-memory inventory, codes will not survive restarts")
		inv = inventory.NewMemorySource()
	}

	var journal conversation.Journal
	if pool != nil {
		journal = conversation.NewPostgresJournal(pool)
	} else {
		logger.Warn("no DATABASE_URL, conversation journal is in-memory and will not survive restarts")
		journal = conversation.NewMemoryJournal()
	}

	// State must be shared with the API binary, so a worker without Redis
	// would reconstruct every sale from scratch. Allowed, but noisy.
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
		logger.Warn("no REDIS_ADDR, sale state is local to this worker")
		store = conversation.NewMemoryStore()
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

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	queue := webhook.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.WebhookQueueURL)
	dispatcher := webhook.NewDispatcher(queue, intakeSvc, engine, responder, market, nil, logger, webhook.DispatcherConfig{
		Workers: cfg.WorkerCount,
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("queue worker shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown failed", "error", err)
	}
	logger.Info("queue worker stopped")
}

// buildLLMClient assembles the model tier the same way the API binary does.
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
