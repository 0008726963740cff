package main

import (
	"net/http"

	"go.uber.org/zap"

	"stairsync/internal/config"
	"stairsync/internal/devserver"
)

func main() {
	cfg := config.NewConfig()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	defer func() {
		_ = logger.Sync()
	}()

	db, err := devserver.InitDB(cfg.ServerDBPath)
	if err != nil {
		sugar.Fatalw("failed to initialize database", "error", err)
	}
	if err := devserver.Seed(db); err != nil {
		sugar.Fatalw("failed to seed database", "error", err)
	}

	h := devserver.NewHandler(db, cfg.AuthSecret, sugar)

	sugar.Infow("Starting devserver",
		"addr", cfg.BaseURL,
		"db", cfg.ServerDBPath,
	)
	if err := http.ListenAndServe(cfg.BaseURL, h.Router); err != nil {
		sugar.Fatalw("Server failed", "error", err)
	}
}
