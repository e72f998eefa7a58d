package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"branchchat/internal/app"
	"branchchat/pkg/config"
	"branchchat/pkg/logger"
	"branchchat/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	flags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(flags.Config, flags.Set["config"])
	eff, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags explicitly set win over env/config for addr and db path.
	if flags.Set["addr"] || eff.Addr == "" {
		eff.Addr = flags.Addr
	}
	if flags.Set["db"] || eff.DBPath == "" {
		eff.DBPath = flags.DB
	}
	if flags.Set["addr"] || flags.Set["db"] {
		eff.Source = "flags"
	}

	logger.InitWithLevel(eff.Config.Logging.Level)

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
