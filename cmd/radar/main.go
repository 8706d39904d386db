package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consensus-radar/internal/logger"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	must(err)

	app, err := buildApp(ctx, cfg)
	must(err)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info(ctx, "Shutting down...")
		cancel()
	}()

	logger.Info(ctx, "Server started", "port", cfg.Server.Port)
	if err := app.server.Run(ctx, cfg.Server.Port); err != nil {
		logger.ErrorWithErr(ctx, "Server exited with error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = logger.Shutdown(shutdownCtx)
}
