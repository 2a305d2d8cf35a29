package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/livepreview/backend/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment values
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen address")
	flag.StringVar(&cfg.Library.Dir, "libraries", cfg.Library.Dir, "Directory scanned for library manifests")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development mode (colored logs)")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	flag.IntVar(&cfg.Sandbox.PoolSize, "sandbox-pool", cfg.Sandbox.PoolSize, "Number of pooled sandboxes")
	flag.DurationVar(&cfg.Sandbox.Timeout, "sandbox-timeout", cfg.Sandbox.Timeout, "Headless run timeout")
	flag.DurationVar(&cfg.Preview.LoopBudget, "loop-budget", cfg.Preview.LoopBudget, "Time a single loop may run when loops are bounded")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loadCtx, cancel := context.WithTimeout(ctx, time.Minute)
	srv, err := server.NewServer(loadCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Server error: %v", runErr)
	}
}
