package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ebops/deploybot/apisync"
	"github.com/ebops/deploybot/approval"
	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/form"
	"github.com/ebops/deploybot/jenkins"
	"github.com/ebops/deploybot/notify"
	"github.com/ebops/deploybot/ops"
	"github.com/ebops/deploybot/sso"
	"github.com/ebops/deploybot/storage"
)

// bootSweepLimit caps how many missed build notifications one startup
// delivers before the long-poll loop takes over.
const bootSweepLimit = 100

// run boots the daemon: store, config, transport, handlers, long-poll loop.
func run(ctx context.Context, opts options) error {
	level := parseLevel(opts.logLevel)
	logger := setupLogging(level, os.Stderr)

	store, err := storage.Open(opts.dbPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := store.SeedMessageTemplates(ctx, notify.DefaultTemplates()); err != nil {
		return fmt.Errorf("seed message templates: %w", err)
	}

	cfg := config.NewApp(store)

	// The DB-resident LOG_LEVEL / LOG_FILE settings only become readable
	// now, so the logger is rebuilt once with the file tee applied.
	if name := cfg.LogLevel(ctx); name != "" {
		level = parseLevel(name)
	}
	logger = setupLogging(level, logWriter(ctx, cfg))

	if err := cfg.RequireBotToken(ctx); err != nil {
		return err
	}

	optionsCache := config.NewCache(store, logger)
	projects, err := optionsCache.Load(ctx)
	if err != nil {
		return fmt.Errorf("load project options: %w", err)
	}
	if err := projects.EnsureGroupIDs(); err != nil {
		return err
	}

	pool := cfg.Pool(ctx)
	client, err := config.NewHTTPClient(config.ClientSettings{
		Proxy: cfg.GlobalProxy(ctx),
		// The update long-poll is held server-side for LongPollTimeout
		// seconds; the client timeout sits on top of the read timeout so
		// an idle poll is not cut off mid-hold.
		Timeout:        pool.ReadTimeout + chat.LongPollTimeout*time.Second,
		PoolSize:       pool.Size,
		ConnectTimeout: pool.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("build transport client: %w", err)
	}

	tg, err := chat.NewTelegram(cfg.BotToken(ctx), client, logger)
	if err != nil {
		return fmt.Errorf("connect chat transport: %w", err)
	}
	logger.Info("chat transport ready",
		"bot", tg.Username(),
		"pool_size", pool.Size,
		"projects", len(projects.Projects))

	notifier := notify.New(tg, store, optionsCache, cfg, logger)
	syncer := apisync.New(cfg, store, logger)
	ssoOrch := sso.NewOrchestrator(store, notifier, optionsCache, cfg, logger)
	jenkinsOrch := jenkins.NewOrchestrator(store, notifier, optionsCache, cfg, logger)
	dispatcher := approval.New(approval.Deps{
		Store:     store,
		Notifier:  notifier,
		Options:   optionsCache,
		Syncer:    syncer,
		SSO:       ssoOrch,
		Jenkins:   jenkinsOrch,
		Transport: tg,
		Config:    cfg,
		Logger:    logger,
	})
	forms := form.New(tg, optionsCache, dispatcher, logger)

	router := chat.NewRouter(tg, logger)
	registerHandlers(router, forms, dispatcher, tg, projects)

	if err := tg.SetCommands(ctx, commandList(projects)); err != nil {
		// The bot works without the slash menu; users just type commands.
		logger.Error("register command list failed", "error", err)
	}

	if n, err := notifier.SweepPending(ctx, bootSweepLimit); err != nil {
		logger.Warn("missed-notification sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("delivered missed build notifications", "count", n)
	}

	var opsServer *ops.Server
	if opts.opsAddr != "" {
		opsServer = ops.New(opts.opsAddr, store, optionsCache, logger)
		go func() {
			if err := opsServer.Start(); err != nil {
				logger.Error("ops server failed", "error", err)
			}
		}()
		logger.Info("ops server listening", "addr", opts.opsAddr)
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	logger.Info("bot started", "version", Version)
	router.Run(signalCtx, tg.Updates(signalCtx))

	logger.Info("shutting down")
	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown failed", "error", err)
		}
	}
	logger.Info("shutdown complete")
	return nil
}

// registerHandlers binds every command, callback, and the free-text route.
// Form callbacks are global rather than per-conversation; the form handler
// keeps its own per-(chat,user) session state.
func registerHandlers(router *chat.Router, forms *form.Handler, dispatcher *approval.Dispatcher, transport chat.Transport, projects *config.Options) {
	router.Command("start", func(ctx context.Context, u chat.Update) error {
		_, err := transport.Send(ctx, chat.Message{
			ChatID: u.ChatID(),
			Text:   "👋 欢迎使用工作流审批机器人！\n\n使用 /deploy_build 命令提交工作流信息。",
		})
		return err
	})
	router.Command("cancel", forms.Cancel)
	for _, name := range projects.ProjectNames() {
		project := projects.Projects[name]
		router.Command(commandName(project.Command), forms.Start(name))
	}

	router.Callback(chat.ActionApprove, dispatcher.HandleDecision)
	router.Callback(chat.ActionReject, dispatcher.HandleDecision)
	router.Callback(chat.ActionSelectProject, forms.SelectProject)
	router.Callback(chat.ActionSelectEnv, forms.SelectEnvironment)
	router.Callback(chat.ActionSelectService, forms.SelectService)
	router.Callback(chat.ActionConfirmServices, forms.ConfirmServices)
	router.Callback(chat.ActionConfirmForm, forms.Confirm)
	router.Callback(chat.ActionCancelForm, forms.CancelForm)
	router.Callback(chat.ActionBranch, forms.Branch)

	router.Text(forms.HandleText)
}

// commandName normalises a configured entry command to the slash-free form
// the router matches on.
func commandName(command string) string {
	return strings.TrimPrefix(strings.TrimSpace(command), "/")
}

// commandList is the slash menu registered with the chat service: the fixed
// start/cancel pair plus one entry per configured project.
func commandList(projects *config.Options) []chat.Command {
	commands := []chat.Command{
		{Name: "start", Description: "开始使用Bot"},
	}
	for _, name := range projects.ProjectNames() {
		commands = append(commands, chat.Command{
			Name:        commandName(projects.Projects[name].Command),
			Description: "申请测试环境服务发版",
		})
	}
	return append(commands, chat.Command{Name: "cancel", Description: "取消当前操作"})
}
