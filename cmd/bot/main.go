package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"persona-bot/internal/bot"
	"persona-bot/internal/classify"
	"persona-bot/internal/export"
	"persona-bot/internal/jobs"
	"persona-bot/internal/memory"
	"persona-bot/internal/model/llm"
	"persona-bot/internal/ops"
	"persona-bot/internal/persona"
	"persona-bot/internal/promotion"
	"persona-bot/internal/rewrite"
	"persona-bot/internal/session"
	"persona-bot/internal/settings"
	"persona-bot/internal/stats"
	"persona-bot/internal/storage/cache"
	"persona-bot/pkg/config"
	"persona-bot/pkg/log"
)

func main() {
	// .env 缺失不是错误，环境变量可能来自部署环境
	_ = godotenv.Load()

	cfg, err := config.LoadBotConfig()
	if err != nil {
		stdlog.Fatalf("加载配置失败: %v", err)
	}

	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		stdlog.Fatalf("初始化日志失败: %v", err)
	}

	if cfg.Telegram.Token == "" {
		logger.Error("缺少 Telegram Token（telegram.token 或 TELEGRAM_BOT_TOKEN）")
		os.Exit(1)
	}
	if cfg.Telegram.AllowedUserID == 0 {
		logger.Error("缺少白名单使用者 ID（telegram.allowed_user）")
		os.Exit(1)
	}

	memDir := cfg.Memory.Dir
	if memDir == "" {
		memDir = "memory"
	}
	personaDir := cfg.Persona.Dir
	if personaDir == "" {
		personaDir = "persona"
	}

	store := memory.NewFileStore(memDir, cfg.Memory.RecentDays, logger)

	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Error("初始化缓存失败", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	llmClient, err := llm.NewClient(cfg.Model.Provider, cfg.Model.Name, cfg.Model.APIKey, cfg.Model.BaseURL)
	if err != nil {
		logger.Error("初始化模型客户端失败", "err", err)
		os.Exit(1)
	}

	loader := persona.NewLoader(personaDir, logger)
	systemPrompt := func(memories string) string {
		p, err := loader.Load()
		if err != nil {
			logger.Error("装载人格失败，使用空人格", "err", err)
			p = &persona.Persona{}
		}
		return persona.Compose(p, memories)
	}

	transport := session.NewHTTPTransport(cfg.Model.BaseURL, cfg.Model.APIKey, logger)
	registry := session.NewRegistry(transport, store, systemPrompt, cfg.Model.Name, logger)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Error("连接 Telegram 失败", "err", err)
		os.Exit(1)
	}
	logger.Info("Telegram 已连接", "bot", api.Self.UserName)

	limiter := bot.NewLimiter(cfg.RateLimit.MaxMessages, cfg.RateLimit.WindowDuration())
	rewriter := rewrite.NewLLMRewriter(llmClient, logger)
	settingsStore := settings.NewStore("data/settings", c, logger)
	statsStore := stats.NewStore("data/stats", c, logger)
	pipeline := promotion.NewPipeline(store, rewriter, statsStore, logger)
	classifier := classify.NewClassifier(store, personaDir, cfg.Scheduler.WindowDays, logger)
	exporter := export.NewExporter(store, "data/exports", logger)

	dispatcher := session.NewDispatcher(registry, bot.NewSink(api),
		cfg.Session.AskTimeoutDuration(), cfg.Session.HeartbeatIntervalDuration(), logger)

	b := bot.New(bot.Deps{
		API:        api,
		Registry:   registry,
		Dispatcher: dispatcher,
		Store:      store,
		Pipeline:   pipeline,
		Exporter:   exporter,
		Settings:   settingsStore,
		Stats:      statsStore,
		Limiter:    limiter,
		Logger:     logger,
	}, cfg.Telegram.AllowedUserID, cfg.Telegram.MaxMessageLen)

	runner, err := jobs.NewRunner(jobs.Specs{
		Promotion:      cfg.Scheduler.PromotionSpec,
		Classification: cfg.Scheduler.ClassificationSpec,
		Retention:      cfg.Scheduler.RetentionSpec,
	}, jobs.Deps{
		Store:      store,
		Pipeline:   pipeline,
		Classifier: classifier,
		Limiter:    limiter,
		Logger:     logger,
	}, cfg.Telegram.AllowedUserID, cfg.Memory.RetentionDays)
	if err != nil {
		logger.Error("初始化排程失败", "err", err)
		os.Exit(1)
	}
	runner.Start()

	var opsServer *ops.Server
	if cfg.Ops.Enable {
		port := cfg.Ops.Port
		if port <= 0 {
			port = 9090
		}
		opsServer = ops.NewServer(port, cfg.Log.Level, logger)
		go func() {
			if err := opsServer.Run(); err != nil {
				logger.Error("运维端点异常退出", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := b.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Bot 异常退出", "err", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("收到退出信号，开始优雅关闭")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	runner.Stop()
	registry.Shutdown(shutdownCtx)
	if opsServer != nil {
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("运维端点关闭失败", "err", err)
		}
	}
	logger.Info("persona-bot 已关闭")
}
