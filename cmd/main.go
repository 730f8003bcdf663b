package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemx/internal/repositories"
	"github.com/desertthunder/stemx/internal/services"
	"github.com/desertthunder/stemx/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	var tokens oauth2.TokenSource
	if config.API.TokenEnv != "" {
		if token := os.Getenv(config.API.TokenEnv); token != "" {
			tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		}
	}

	client := services.NewClient(services.ClientOpts{
		BaseURL:      config.API.BaseURL,
		Tokens:       tokens,
		ChunkSize:    config.Upload.ChunkSizeBytes,
		RateLimit:    config.Upload.RateLimit,
		MaxFileBytes: config.Upload.MaxFileBytes,
	})

	var sessions repositories.SessionRepository
	if db, err := shared.NewDatabase(config.Sessions.Path); err == nil {
		shared.ConfigureDatabase(db, config.Sessions.MaxOpenConns, config.Sessions.MaxIdleConns)
		if store, err := repositories.NewSessionStore(db, nil); err == nil {
			sessions = store
		} else {
			logger.Warn("session store unavailable, resume disabled", "error", err)
		}
	} else {
		logger.Warn("session database unavailable, resume disabled", "error", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:   config,
		Client:   client,
		Sessions: sessions,
		Logger:   logger,
	})

	app := &cli.Command{
		Name:    "stemx",
		Usage:   "Separate audio into stems and edit detected segments",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
