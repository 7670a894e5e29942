package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/eihwaz/internal"
	"github.com/starford/eihwaz/internal/mcpserver"
	"github.com/starford/eihwaz/internal/repo"
	"github.com/starford/eihwaz/internal/service"
	pkgconfig "github.com/starford/eihwaz/pkg/config"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// runMCP serves the MCP tools over stdio. Logs go to stderr so they do
// not corrupt the protocol stream.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Projects.Path, 0o755); err != nil {
		return fmt.Errorf("create projects dir: %w", err)
	}

	resolver, err := repo.NewResolver(cfg.Projects.Path, cfg.Git.TrunkBranch,
		cfg.Git.AuthorName, cfg.Git.AuthorEmail, cfg.Git.CommandTimeout)
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}

	// No shadow mirror in stdio mode; search is served by the HTTP server.
	svc := service.NewService(resolver, nil, logger)

	srv := mcpserver.New(svc)
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "eihwaz",
		Usage:  "Version-control-backed store for branching reasoning histories",
		Action: runServer,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: runMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
