// Package main wires the HTTP server for the agent runtime service.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"agent-runtime/config"
	"agent-runtime/internal/bootstrap"
	"agent-runtime/internal/debugger"
	"agent-runtime/internal/ratelimit"
	"agent-runtime/internal/repository"
	"agent-runtime/internal/runtime"
	"agent-runtime/internal/sessionstore"
	"agent-runtime/internal/transport/http/server"
	"agent-runtime/internal/upload"
	"agent-runtime/internal/usecase"
	"agent-runtime/internal/usecase/domain"
	"agent-runtime/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		panic(err)
	}

	repo, err := repository.New(ctx, cfg.Repository.Backend, log, cfg)
	if err != nil {
		log.Errorw("repository initialization error", "error", err)
		return
	}
	if err := repo.OnStart(ctx); err != nil {
		log.Errorw("repository start error", "error", err)
		return
	}
	defer func() {
		_ = repo.OnStop(context.Background())
	}()

	if cfg.Seed.File != "" {
		seed, err := bootstrap.Load(cfg.Seed.File)
		if err != nil {
			log.Errorw("seed load error", "file", cfg.Seed.File, "error", err)
			return
		}
		if _, err := bootstrap.Apply(ctx, repo, seed, log); err != nil {
			log.Errorw("seed apply error", "error", err)
			return
		}
	}

	runner, err := runtime.New(cfg.Runner)
	if err != nil {
		log.Errorw("runner initialization error", "error", err)
		return
	}
	uploads, err := upload.New(cfg.Upload.Dir, log)
	if err != nil {
		log.Errorw("upload store initialization error", "error", err)
		return
	}
	store, err := sessionstore.New(ctx, cfg.Sessions.Backend, cfg.Redis, log)
	if err != nil {
		log.Errorw("session store initialization error", "error", err)
		return
	}
	defer func() {
		_ = store.Close()
	}()

	build := runtime.BuildOptions{
		DefaultModel:    cfg.Runner.DefaultModel,
		InlineTextLimit: cfg.Upload.InlineTextLimit,
	}
	sessions := debugger.New(store, runner, repo, uploads, debugger.Config{
		MaxPerTeam:      cfg.Sessions.MaxPerTeam,
		Retention:       cfg.Sessions.Retention,
		RunTimeout:      cfg.Sessions.RunTimeout,
		JanitorInterval: cfg.Sessions.JanitorInterval,
		Build:           build,
	}, log)
	go sessions.RunJanitor(ctx)

	timeout := cfg.HTTP.RequestTimeout
	uc := usecase.New(log, ctx, repo, timeout, domain.Deps{
		Runner:       runner,
		Sessions:     sessions,
		Build:        build,
		HistoryLimit: cfg.Chat.HistoryLimit,
		RunTimeout:   cfg.Sessions.RunTimeout,
		AdminKey:     cfg.Auth.AdminKey,
	})

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 0)
	}

	serv := server.New(server.Deps{
		Log:     log,
		Usecase: uc,
		Uploads: uploads,
		Limiter: limiter,
		HTTP:    cfg.HTTP,
		Upload:  cfg.Upload,
		CORS:    cfg.CORS,

		PingInterval: cfg.HTTP.SSEPing,
	})

	go func() {
		log.Infow("listening", "addr", cfg.ServerAddr(), "runner", cfg.Runner.Backend, "sessions", cfg.Sessions.Backend)
		if err := serv.Listen(cfg.ServerAddr()); err != nil {
			log.Errorw("failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx, serv, sessions); err != nil {
		log.Warnw("shutdown incomplete", "timeout", cfg.Server.ShutdownTimeout, "error", err)
	}
}
