package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/lydakis/godot-mcp/internal/godot"
	"github.com/lydakis/godot-mcp/internal/launch"
	"github.com/lydakis/godot-mcp/internal/mcpserver"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tool surface over stdio (the default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
}

func runServe(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := resolveConfig(cmd, flags)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	launcher := launch.New(cfg.LaunchCommand)
	client := godot.New(launcher, godot.Options{
		ProjectPath:    cfg.ProjectPath,
		Port:           cfg.Port,
		ConnectTimeout: cfg.ConnectTimeoutDuration(),
		CommandTimeout: cfg.CommandTimeoutDuration(),
		Logger:         log.With("component", "godot"),
	})
	defer client.Shutdown()

	srv := mcpserver.New(client, log.With("component", "mcp"), version)

	log.Info("serving MCP over stdio", "port", cfg.Port, "project", cfg.ProjectPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(srv)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("serving mcp: %w", err)
		}
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	// stdout carries the MCP transport; everything else goes to stderr.
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
