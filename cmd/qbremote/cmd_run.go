package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/menuflow/qbremote/pkg/bus"
	"github.com/menuflow/qbremote/pkg/capability"
	"github.com/menuflow/qbremote/pkg/channels"
	"github.com/menuflow/qbremote/pkg/config"
	"github.com/menuflow/qbremote/pkg/downloader"
	"github.com/menuflow/qbremote/pkg/logger"
	"github.com/menuflow/qbremote/pkg/menu"
	"github.com/menuflow/qbremote/pkg/ratelimit"
	"github.com/menuflow/qbremote/pkg/session"
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".qbremote", "config.json")
}

func newRunCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runBot(configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the config file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func setupLogging(cfg *config.Config, debug bool) {
	switch {
	case debug:
		logger.SetLevel(logger.DEBUG)
	default:
		switch strings.ToLower(cfg.Log.Level) {
		case "debug":
			logger.SetLevel(logger.DEBUG)
		case "warn":
			logger.SetLevel(logger.WARN)
		case "error":
			logger.SetLevel(logger.ERROR)
		default:
			logger.SetLevel(logger.INFO)
		}
	}
	if cfg.Log.File != "" {
		if err := logger.EnableFileLogging(cfg.Log.File); err != nil {
			logger.WarnCF("main", "File logging disabled", map[string]any{
				"path":  cfg.Log.File,
				"error": err.Error(),
			})
		}
	}
}

func runBot(configPath string, debug bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg, debug)

	if !cfg.Engine.Enabled {
		return fmt.Errorf("engine is disabled in %s", configPath)
	}

	logger.InfoCF("main", "Starting qbremote", map[string]any{
		"version": formatVersion(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgBus := bus.NewMessageBus()

	sessions := session.NewManager()
	sessions.SetTimeout(cfg.Engine.SessionTimeoutMinutes)
	go sessions.RunSweeper(ctx.Done(), cfg.Engine.SweepSchedule)

	dls := downloader.NewRegistry(cfg.Downloaders)
	if len(dls.Names()) == 0 {
		logger.WarnC("main", "No downloaders configured; menus will be empty")
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Enabled:           cfg.RateLimits.Enabled,
		CommandsPerMinute: cfg.RateLimits.CommandsPerMinute,
		PerUserLimit:      cfg.RateLimits.PerUserLimit,
	})

	engine := menu.NewEngine(
		msgBus,
		sessions,
		dls,
		capability.Defaults(),
		limiter,
		cfg.Engine,
		formatVersion(),
	)
	go engine.Run(ctx)

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return fmt.Errorf("initializing channels: %w", err)
	}
	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}

	logger.InfoCF("main", "qbremote is running", map[string]any{
		"channels":    channelManager.Enabled(),
		"downloaders": dls.Names(),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.InfoCF("main", "Shutting down", map[string]any{"signal": sig.String()})

	cancel()
	if err := channelManager.StopAll(context.Background()); err != nil {
		logger.ErrorCF("main", "Error stopping channels", map[string]any{
			"error": err.Error(),
		})
	}
	msgBus.Close()
	logger.DisableFileLogging()
	return nil
}
