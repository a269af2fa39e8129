package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/quiz-battle-backend/internal/backend"
	"github.com/DoyleJ11/quiz-battle-backend/internal/battle"
	"github.com/DoyleJ11/quiz-battle-backend/internal/config"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/httpapi"
	"github.com/DoyleJ11/quiz-battle-backend/internal/hub"
	"github.com/DoyleJ11/quiz-battle-backend/internal/lobby"
	"github.com/DoyleJ11/quiz-battle-backend/internal/repository"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Minute
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Init("info", false)
		logger.Fatal("invalid configuration", err)
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("server stopped", err)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) (err error) {
	backends, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, backends.Close()) }()

	bank := repository.NewBank(backends.Store)
	if cfg.SeedQuestionsFile != "" {
		seedQuestions(ctx, bank, cfg.SeedQuestionsFile)
	}

	rooms := repository.NewRooms(backends.Store, cfg.RoomTTL)
	// lobbies outlive the signal so Shutdown can drain them
	h := hub.NewHub(context.WithoutCancel(ctx), lobby.Deps{
		Rooms:       rooms,
		Bank:        bank,
		Bus:         backends.Bus,
		Rules:       engine.Rules{AnswerGrace: cfg.AnswerGrace},
		IdleTimeout: cfg.LobbyIdleTimeout,
	})
	svc := battle.NewService(rooms, h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(svc, backends.Store, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return backends.RunJanitor(gctx, janitorInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(
			srv.Shutdown(sctx),
			h.Shutdown(sctx),
		)
	})
	return g.Wait()
}

func seedQuestions(ctx context.Context, bank *repository.Bank, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("could not read question file", "path", path, "error", err)
		return
	}
	n, err := bank.ImportFile(ctx, data)
	if err != nil {
		logger.Warn("question import failed", "path", path, "error", err)
		return
	}
	logger.Info("question bank seeded", "path", path, "count", n)
}
