package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/spotter/internal"
	pkgconfig "github.com/starford/spotter/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// stderrLogger keeps stdout free for command output and the MCP protocol.
func stderrLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func search(ctx context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("search: a query is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	results, err := internal.Search(ctx, query,
		internal.WithConfig(cfg),
		internal.WithLogger(stderrLogger(max(cfg.App.LogLevel, slog.LevelWarn))),
	)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, r := range results {
		name := r.Name
		if r.DisplayAlias != "" {
			name = r.DisplayAlias + " -> " + name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Kind, name, r.Path)
	}
	return tw.Flush()
}

func scan(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	status, err := internal.Scan(ctx,
		internal.WithConfig(cfg),
		internal.WithLogger(stderrLogger(cfg.App.LogLevel)),
	)
	if err != nil {
		return err
	}

	fmt.Printf("indexed %d items (%d apps, %d folders, %d files)\n",
		status.Items, status.Index.Apps, status.Index.Directories, status.Index.Files)
	if s := status.LastScan; s != nil {
		fmt.Printf("scan took %s\n", (s.Apps.Duration + s.Documents.Duration).Round(time.Millisecond))
		if s.Error != "" {
			return fmt.Errorf("scan: %s", s.Error)
		}
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	return internal.ServeMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))),
	)
}

func main() {
	cmd := &cli.Command{
		Name:    "spotter",
		Usage:   "Offline launcher index: find applications, folders and files by name, acronym or pinyin",
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
				Usage:  "Keep the index fresh and serve the local HTTP API",
				Action: serve,
			},
			{
				Name:      "search",
				Usage:     "Print ranked results for a query",
				ArgsUsage: "<query>",
				Action:    search,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				},
			},
			{
				Name:   "scan",
				Usage:  "Rebuild the record store from a fresh scan of every scope",
				Action: scan,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the index tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
