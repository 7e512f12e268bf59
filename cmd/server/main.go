// Package main is the entry point for the ritual archive server.
//
// The main package stays minimal: read configuration, build the logger,
// start the server. Everything else lives under internal/.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/ritual-archive/internal/config"
	"github.com/sakif/ritual-archive/internal/logger"
	"github.com/sakif/ritual-archive/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	// === 1. CONFIGURATION ===
	// Defaults, then the YAML file, then .env and real environment variables.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	// === 2. LOGGING ===
	log, closeLog := logger.New(cfg.Log)
	defer closeLog()

	// === 3. SERVER ===
	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}
}
