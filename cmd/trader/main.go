// cmd/trader runs the live (or paper) breakout trader: a feature refresh task
// and a decision loop sharing one FeatureStore.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"breakout-trader/config"
	"breakout-trader/internal/logger"
	"breakout-trader/internal/service"
)

func main() {
	config.LoadDotEnv(os.Getenv("ENV_FILE"))
	cfg := config.Load()
	logger.Init("trader", logger.ParseLevel(cfg.LogLevel))

	svc, err := service.New(cfg)
	if err != nil {
		log.Fatalf("[trader] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[trader] fatal: %v", err)
	}
}
