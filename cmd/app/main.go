package main

import (
	"context"
	"flag"
	"log"
	"os"

	"TrustBoard/internal/di"
	"TrustBoard/pkg/config"
	"TrustBoard/pkg/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", server.ModeRun, "run | replay | serve | sink")
	runID := flag.String("run-id", "", "run to replay from its stored snapshots (replay mode)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s mode=%s backend=%s", cfg.Environment, *mode, cfg.Load.Backend)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	err = app.Run(context.Background(), *mode, *runID)
	cleanup()
	if err != nil {
		log.Printf("%s failed: %v", *mode, err)
		os.Exit(1)
	}
}
