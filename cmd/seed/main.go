// Command seed imports a question bank file into the configured store.
//
//	go run ./cmd/seed -file questions.json
package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/DoyleJ11/quiz-battle-backend/internal/backend"
	"github.com/DoyleJ11/quiz-battle-backend/internal/config"
	"github.com/DoyleJ11/quiz-battle-backend/internal/repository"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Init("info", false)
		logger.Fatal("invalid configuration", err)
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())
	defer logger.Sync()

	file := flag.String("file", cfg.SeedQuestionsFile, "question bank JSON file")
	flag.Parse()
	if *file == "" {
		logger.Error("no question file given; pass -file or set SEED_QUESTIONS_FILE")
		os.Exit(2)
	}
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("seeding the in-memory store has no lasting effect")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal("read question file", err)
	}

	ctx := context.Background()
	backends, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", err)
	}
	defer backends.Close()

	n, err := repository.NewBank(backends.Store).ImportFile(ctx, data)
	if err != nil {
		logger.Fatal("import questions", err)
	}
	logger.Info("question bank imported", "file", *file, "count", n, "store", cfg.StoreBackend)
}
