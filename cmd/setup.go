package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/stemx/internal/repositories"
	"github.com/desertthunder/stemx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file and initializes the session database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}
	r.config = config

	r.logger.Info("initializing session database", "path", config.Sessions.Path)

	db, err := shared.NewDatabase(config.Sessions.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Sessions.MaxOpenConns, config.Sessions.MaxIdleConns)

	store, err := repositories.NewSessionStore(db, nil)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create session store: %w", err)
	}
	r.sessions = store

	r.logger.Infof("setup complete for session database: %v", config.Sessions.Path)
	return nil
}
