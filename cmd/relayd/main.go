package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"relay/internal/bus"
	"relay/internal/command"
	"relay/internal/config"
	"relay/internal/connreg"
	"relay/internal/history"
	"relay/internal/httpapi"
	"relay/internal/identity"
	"relay/internal/ingress/telegram"
	"relay/internal/ingress/web"
	"relay/internal/jobs"
	"relay/internal/metrics"
	"relay/internal/objectstore"
	"relay/internal/obslog"
	"relay/internal/processor"
	"relay/internal/router"
	"relay/internal/store"
	"relay/internal/store/memkv"
	"relay/internal/store/rediskv"
)

var (
	buildVersion = "dev"
	buildTime    = "unknown"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "run the legacy history migration once and exit, instead of starting the gateway")
	flag.Parse()

	if *migrateFlag {
		runMigrationOnce()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, sysCfg, err := config.Load()
	if err == nil {
		obslog.Setup(sysCfg.LogLevel)
	} else {
		obslog.Setup("info")
	}

	reloadCh := config.WatchConfig(ctx, "config.json", "system.json")

	for {
		err := runGateway(ctx, reloadCh)
		if err != nil {
			slog.Error("gateway crashed or failed to start", "error", err)
			slog.Info("waiting 5 seconds before retrying")
			select {
			case <-ctx.Done():
				return
			case <-reloadCh:
				slog.Info("configuration change detected while waiting, retrying immediately")
			case <-time.After(5 * time.Second):
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("bye")
			return
		default:
			slog.Info("configuration reloaded, restarting gateway")
		}
	}
}

// runMigrationOnce is the `-migrate` sub-mode: it backfills conversation_id
// on legacy history messages and exits, an operational escape hatch for
// operators who don't want to wait for the jobs scheduler's nightly run.
func runMigrationOnce() {
	obslog.Setup("info")

	cfg, sysCfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return
	}

	kv := newStore(cfg)
	historyStore := history.NewStore(kv, time.Duration(sysCfg.HistoryTTLSeconds)*time.Second)
	migrator := history.NewMigrator(historyStore, uuid.NewString)

	report, err := migrator.Run(context.Background())
	if err != nil {
		slog.Error("migration failed", "error", err)
		return
	}
	slog.Info("migration complete",
		"users_processed", report.UsersProcessed,
		"messages_assigned", report.MessagesAssigned,
		"conversations_created", report.ConversationsCreated,
		"errors", len(report.Errors),
	)
}

// runGateway wires every component together and blocks until ctx is
// canceled or a configuration reload is detected.
func runGateway(ctx context.Context, reloadCh <-chan struct{}) error {
	cfg, sysCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	obslog.Setup(sysCfg.LogLevel)

	kv := newStore(cfg)

	identityStore := identity.NewStore(kv)
	jwtSvc := identity.NewJWTService(cfg.JWTSecret, time.Duration(sysCfg.JWTLifetimeSeconds)*time.Second)
	hasher := identity.NewPasswordHasher(sysCfg.BcryptCost)
	rateLimiter := identity.NewLoginRateLimiter(kv, sysCfg.LoginMaxAttempts, time.Duration(sysCfg.LoginWindowSeconds)*time.Second)
	identitySvc := identity.NewService(identityStore, jwtSvc, hasher, rateLimiter, uuid.NewString)

	historyStore := history.NewStore(kv, time.Duration(sysCfg.HistoryTTLSeconds)*time.Second)
	historySvc := history.NewService(historyStore, sysCfg.HistoryPageSize, uuid.NewString)
	migrator := history.NewMigrator(historyStore, uuid.NewString)

	connTTL := time.Duration(sysCfg.ConnectionTTLSeconds) * time.Second
	connRegistry := connreg.New(kv, connTTL)
	reaper := connreg.NewReaper(connRegistry, connTTL, time.Duration(sysCfg.ReaperIntervalSeconds)*time.Second)

	var objects *objectstore.Store
	if cfg.ObjectStore.Endpoint != "" {
		objects, err = objectstore.New(cfg.ObjectStore.Endpoint, cfg.ObjectStore.AccessKey, cfg.ObjectStore.SecretKey, cfg.ObjectStore.Bucket, cfg.ObjectStore.UseSSL)
		if err != nil {
			return fmt.Errorf("failed to init object store: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure object store bucket: %w", err)
		}
	}

	eventBus := bus.New()
	metricsRegistry := metrics.New()

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)

	commandRouter := command.NewRouter(identitySvc)

	telegramHandler := telegram.New(bot, objects, identitySvc, commandRouter, eventBus, metricsRegistry, telegram.Config{
		WebhookSecret:      cfg.Telegram.WebhookSecret,
		MaxAttachmentBytes: sysCfg.MaxAttachmentBytes,
		GetFileTimeout:     time.Duration(sysCfg.GetFileTimeoutMs) * time.Millisecond,
		DownloadTimeout:    time.Duration(sysCfg.DownloadTimeoutMs) * time.Millisecond,
	})

	webHandler := web.New(identitySvc, historySvc, connRegistry, eventBus)

	scheduler, err := jobs.New(jobs.Config{
		Registry:      connRegistry,
		Migrator:      migrator,
		Metrics:       metricsRegistry,
		ConnectionTTL: connTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to build job scheduler: %w", err)
	}

	commandRouter.Register(command.NewBindCommand(identitySvc))
	commandRouter.Register(command.NewDebugCommand(telegramHandler.RawEventProvider))
	commandRouter.Register(command.NewNewCommand(func(ctx context.Context, chatID string) (string, error) {
		unified, err := identityStore.GetUnifiedUserByChatID(ctx, chatID)
		if err != nil {
			return "", err
		}
		conv, err := historySvc.StartNew(ctx, unified.UnifiedUserID, "", time.Now().UTC())
		if err != nil {
			return "", err
		}
		return conv.ConversationID, nil
	}))
	commandRouter.Register(command.NewAdminCommand(identitySvc, telegramHandler.Broadcast, func(ctx context.Context) (string, error) {
		report, err := scheduler.RunMigration(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("migrated %d users, %d messages, %d new conversations", report.UsersProcessed, report.MessagesAssigned, report.ConversationsCreated), nil
	}))
	commandRouter.Register(command.NewInfoCommand(command.BuildInfo{
		Version:  buildVersion,
		BuiltAt:  buildTime,
		Channels: []string{"telegram", "web"},
	}))

	responseRouter := router.New(eventBus, telegramHandler, webHandler, connRegistry, historySvc, metricsRegistry, sysCfg.TelegramMessageLimit)

	pump := processor.NewPump(eventBus, processor.NewEcho(), 30*time.Second)

	reaper.Start(ctx)
	scheduler.Start(ctx)
	go responseRouter.Run(ctx)
	go pump.Run(ctx)

	engine := gin.Default()
	engine.POST("/webhook", telegramHandler.ServeWebhook)
	engine.GET("/ws", webHandler.ServeWS)
	httpapi.RegisterRoutes(engine, identitySvc, historySvc)

	srv := &http.Server{Addr: ":8080", Handler: engine}
	serveErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()
	slog.Info("gateway listening", "addr", srv.Addr)

	defer func() {
		reaper.Stop()
		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal, stopping services")
		return nil
	case <-reloadCh:
		slog.Info("configuration change detected, stopping services")
		return nil
	case err := <-serveErrCh:
		return fmt.Errorf("http server failed: %w", err)
	}
}

func newStore(cfg *config.Config) store.KV {
	if cfg.Redis.Addr == "" {
		slog.Warn("redis.addr not configured, falling back to an in-memory store (state does not survive restarts)")
		return memkv.New()
	}
	return rediskv.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
}
