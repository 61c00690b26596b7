package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alemoreirac/maria-aux-back/internal/auth"
	"github.com/alemoreirac/maria-aux-back/internal/config"
	"github.com/alemoreirac/maria-aux-back/internal/credits"
	"github.com/alemoreirac/maria-aux-back/internal/crypto"
	"github.com/alemoreirac/maria-aux-back/internal/gateway"
	"github.com/alemoreirac/maria-aux-back/internal/history"
	"github.com/alemoreirac/maria-aux-back/internal/httpapi"
	"github.com/alemoreirac/maria-aux-back/internal/metrics"
	"github.com/alemoreirac/maria-aux-back/internal/prompts"
	"github.com/alemoreirac/maria-aux-back/internal/providers"
	"github.com/alemoreirac/maria-aux-back/internal/providers/anthropic_messages"
	"github.com/alemoreirac/maria-aux-back/internal/providers/bedrock"
	"github.com/alemoreirac/maria-aux-back/internal/providers/gemini"
	"github.com/alemoreirac/maria-aux-back/internal/providers/openai_compat"
	"github.com/alemoreirac/maria-aux-back/internal/providers/registry"
	"github.com/alemoreirac/maria-aux-back/internal/queue"
	"github.com/alemoreirac/maria-aux-back/internal/telegram"
	"github.com/alemoreirac/maria-aux-back/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the alert worker and the optional admin bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	log.Info().
		Str("db_driver", cfg.DB.Driver).
		Str("claude_transport", cfg.Providers.ClaudeTransport).
		Bool("telegram", cfg.Telegram.BotToken != "").
		Bool("sealed_log", len(cfg.Crypto.Keys) > 0).
		Msg("starting maria-aux")

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore(ctx, cfg, cfg.DB.AutoMigrate)
	if err != nil {
		return err
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("failed to connect redis")
		return err
	}
	defer rdb.Close()

	var sealer *crypto.Sealer
	if len(cfg.Crypto.Keys) > 0 {
		sealer, err = crypto.NewSealer(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize log sealer")
			return err
		}
	}

	adapters, err := registry.Build(ctx, buildOptions(cfg))
	if err != nil {
		log.Error().Err(err).Msg("failed to build provider adapters")
		return err
	}
	if len(adapters) == 0 {
		log.Warn().Msg("no provider credentials configured, every AI request will be rejected")
	}

	m := metrics.Global()
	ledger := credits.New(store, log.Logger)
	templates := prompts.NewCache(store, rdb, prompts.CacheConfig{TTL: cfg.Redis.PromptCacheTTL, Logger: log.Logger})
	interactions := history.New(store, history.Config{Sealer: sealer, Logger: log.Logger})
	alerts := queue.NewAlertStream(rdb, cfg.Alerts.Stream, cfg.Alerts.Group, cfg.Alerts.ConsumerName, cfg.Alerts.Block)

	router := gateway.New(ledger, templates, interactions, gateway.Config{
		Adapters:            adapters,
		DefaultTimeout:      cfg.Providers.DefaultTimeout,
		Timeouts:            providerTimeouts(cfg.Providers.Timeouts),
		Alerts:              alerts,
		OutageAlertInterval: cfg.Alerts.OutageInterval,
		Logger:              log.Logger,
	})
	log.Info().Interface("providers", router.Providers()).Msg("router ready")

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	api := httpapi.New(httpapi.Config{
		Router:       router,
		Accounts:     ledger,
		History:      interactions,
		Store:        store,
		Verifier:     verifier,
		Templates:    templates,
		Cache:        templates,
		Limiter:      queue.NewRateLimiter(rdb, cfg.Rate.PerHour),
		Ping:         store.Ping,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		HealthPath:   cfg.HTTP.HealthPath,
		MetricsPath:  cfg.HTTP.MetricsPath,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Logger:       log.Logger,
		Metrics:      m,
	})

	errCh := make(chan error, 4)

	var notifier worker.Notifier = worker.LogNotifier{Logger: log.Logger}
	var updater *ext.Updater
	if cfg.Telegram.BotToken != "" {
		bot, err := gotgbot.NewBot(cfg.Telegram.BotToken, nil)
		if err != nil {
			log.Error().Str("component", "telegram").Msg(sanitizeTelegramErr(err, cfg.Telegram.BotToken))
			return errors.New("failed to create telegram bot")
		}
		log.Info().Str("bot_username", bot.User.Username).Int64("bot_id", bot.User.Id).Msg("telegram bot initialized")
		notifier = telegram.NewAlertNotifier(bot, cfg.Telegram.AlertChatID)

		updater, err = startAdminBot(cfg, bot, ledger, interactions, store)
		if err != nil {
			return err
		}
	}

	w := worker.New(worker.Config{
		Queue:      alerts,
		Notifier:   notifier,
		Dedupe:     queue.NewDeduplicator(rdb, cfg.Alerts.Stream+":seen", cfg.Alerts.DedupeTTL),
		MaxRetries: cfg.Alerts.MaxRetries,
		Logger:     log.Logger,
		Metrics:    m,
	})
	go func() {
		if err := w.Start(ctx, cfg.Alerts.Concurrency); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("alert worker failed: %w", err)
		}
	}()
	log.Info().Int("concurrency", cfg.Alerts.Concurrency).Msg("alert worker started")

	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if updater != nil {
		if err := updater.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop updater")
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
	return runErr
}

func startAdminBot(cfg *config.Config, bot *gotgbot.Bot, ledger *credits.Ledger, interactions *history.Logger, templates telegram.Templates) (*ext.Updater, error) {
	logTelegramErr := func(err error) {
		log.Error().Str("component", "telegram").Msg(sanitizeTelegramErr(err, cfg.Telegram.BotToken))
	}
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		MaxRoutines:      10,
		UnhandledErrFunc: logTelegramErr,
	})
	telegram.NewService(telegram.Config{
		Credits:     ledger,
		History:     interactions,
		Templates:   templates,
		Logger:      log.Logger,
		AdminUserID: cfg.Telegram.AdminUserID,
	}).Register(dispatcher)

	updater := ext.NewUpdater(dispatcher, &ext.UpdaterOpts{
		UnhandledErrFunc: logTelegramErr,
	})
	if err := updater.StartPolling(bot, &ext.PollingOpts{
		EnableWebhookDeletion: true,
		DropPendingUpdates:    true,
		GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
			Timeout: 50,
			RequestOpts: &gotgbot.RequestOpts{
				Timeout: 60 * time.Second,
			},
		},
	}); err != nil {
		log.Error().Str("component", "telegram").Msg(sanitizeTelegramErr(err, cfg.Telegram.BotToken))
		return nil, errors.New("failed to start telegram polling")
	}
	log.Info().Int64("admin_user_id", cfg.Telegram.AdminUserID).Msg("admin bot polling started")
	return updater, nil
}

func buildOptions(cfg *config.Config) registry.BuildOptions {
	p := cfg.Providers
	return registry.BuildOptions{
		OpenAI: openai_compat.Config{
			BaseURL:   p.OpenAIBaseURL,
			APIKey:    p.OpenAIKey,
			TextModel: p.OpenAIModel,
		},
		Anthropic: anthropic_messages.Config{
			APIKey: p.AnthropicKey,
			Model:  p.AnthropicModel,
		},
		Gemini: gemini.Config{
			APIKey: p.GeminiKey,
			Model:  p.GeminiModel,
		},
		ClaudeTransport: p.ClaudeTransport,
		Bedrock: bedrock.Config{
			Region: p.BedrockRegion,
			Model:  p.BedrockModel,
		},
		HTTPClient:  &http.Client{Timeout: p.ClientTimeout},
		MaxRetries:  p.MaxRetries,
		BackoffBase: p.BackoffBase,
	}
}

func providerTimeouts(byName map[string]time.Duration) map[providers.ID]time.Duration {
	out := make(map[providers.ID]time.Duration, len(byName))
	for name, d := range byName {
		id, err := providers.ParseID(name)
		if err != nil {
			log.Warn().Str("provider", name).Msg("ignoring timeout for unknown provider")
			continue
		}
		out[id] = d
	}
	return out
}
