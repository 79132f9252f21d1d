package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/planbeam/identity-service/internal/infra/app"
	"github.com/planbeam/identity-service/internal/infra/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("identity-service: %v", err)
	}
}

func run() error {
	// Missing .env is fine; real deployments configure through the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	return application.Run(ctx)
}
