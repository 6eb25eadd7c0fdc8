package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/lattice/internal"
	pkgconfig "github.com/starford/lattice/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func importNotes(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	driveID := cmd.String("drive")
	if len(paths) == 0 && driveID == "" {
		return fmt.Errorf("nothing to import: pass file paths or --drive")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunImport(ctx, paths, driveID, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "lattice",
		Usage:   "Knowledge graph of notes with link suggestions",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the workspace to an MCP client over stdio",
				Action: mcp,
			},
			{
				Name:      "import",
				Usage:     "Import text files or a Google Drive document",
				ArgsUsage: "[file...]",
				Action:    importNotes,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "drive",
						Usage: "Google Drive file id",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
