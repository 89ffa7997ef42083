package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/config"
	"github.com/chungtau/ledger-bank/internal/logger"
	"github.com/chungtau/ledger-bank/internal/server"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("initializing server")
	srv, err := server.New(cfg, zl)
	if err != nil {
		zl.Fatal("failed to create server", zap.Error(err))
	}

	if err := srv.Run(); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}
