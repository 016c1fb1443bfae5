package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alert-dialer/internal/attempts"
	"alert-dialer/internal/auth"
	"alert-dialer/internal/config"
	"alert-dialer/internal/contacts"
	"alert-dialer/internal/dialer"
	"alert-dialer/internal/dispatch"
	"alert-dialer/internal/gateway"
	"alert-dialer/internal/messages"
	"alert-dialer/internal/orchestrator"
	"alert-dialer/internal/runs"
	"alert-dialer/pkg/logger"
	"alert-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// fleetCapKey is the shared redis counter bounding simultaneous
// outbound attempts across every dialer process.
const fleetCapKey = "dialer:fleet:inflight"

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores
	attemptLog := attempts.NewPostgresStore(db)
	runStore := runs.NewPostgresStore(db)
	contactRepo := contacts.NewPostgresRepo(db)
	templateRepo := messages.NewPostgresRepo(db)
	snapshotStore := messages.NewPostgresSnapshotStore(db)

	// Delivery engine
	gw := gateway.NewTwilioGateway(cfg.Twilio, nil)
	agg := runs.NewAggregator(runStore, attemptLog)
	voice := dialer.New(gw, attemptLog, agg, cfg.Dialer, log)
	text := dialer.NewTexter(gw, attemptLog, agg, cfg.Dialer, log)

	fleetCap := cfg.Dialer.BotCount * cfg.Dialer.CallsPerBot
	limiter := dispatch.NewRedisLimiter(rdb, fleetCapKey, fleetCap, cfg.Dialer.CallTimeout*2)
	disp := dispatch.New(cfg.Dialer, limiter, log)

	engine := orchestrator.New(orchestrator.Deps{
		Resolver:  contacts.NewResolver(contactRepo),
		Templates: templateRepo,
		Snapshots: snapshotStore,
		Runs:      runStore,
		Attempts:  attemptLog,
		Agg:       agg,
		Voice:     voice,
		Text:      text,
		Dispatch:  disp,
		Logger:    log,
	})

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, authManager, engine, gw)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Let in-flight runs settle their attempt rows before exit.
	engine.Wait()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
