package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/noncmra/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config.toml, using defaults", "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
	})

	if err := runner.app().Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrMissingCredentials) {
			logger.Fatal("no Smarty credentials configured", "hint", "add [[smarty.credentials]] to config.toml or set "+shared.EnvCredentials)
		}
		logger.Fatalf("application error: %v", err)
	}
}
