package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/dstanfill/inkwell/internal"
	pkgconfig "github.com/dstanfill/inkwell/pkg/config"
)

func loadAgentConfig(cmd *cli.Command) (*internal.AgentConfig, error) {
	cfg := internal.NewDefaultAgentConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runAgent(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadAgentConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunAgent(ctx, internal.WithAgentConfig(cfg)); err != nil {
		return fmt.Errorf("agent run error: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg := internal.NewDefaultServerConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := internal.RunServer(ctx, internal.WithServerConfig(cfg)); err != nil {
		return fmt.Errorf("server run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadAgentConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithAgentConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func configFlag(def string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: def,
		Value:       def,
		Sources:     cli.EnvVars("INKWELL_CONFIG_FILE"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "inkwell",
		Usage: "Offline-first thought capture: durable local queue with background sync to a remote store",
		Commands: []*cli.Command{
			{
				Name:   "agent",
				Usage:  "Run the local capture agent (loopback API, queue, sync engine)",
				Action: runAgent,
				Flags:  []cli.Flag{configFlag("config/agent.yaml")},
			},
			{
				Name:   "server",
				Usage:  "Run the remote ingest server (idempotent sync endpoint, record store)",
				Action: runServer,
				Flags:  []cli.Flag{configFlag("config/server.yaml")},
			},
			{
				Name:   "mcp",
				Usage:  "Serve capture tools over MCP stdio",
				Action: runMCP,
				Flags:  []cli.Flag{configFlag("config/agent.yaml")},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
