// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/poiesic/searchgate"
	"github.com/poiesic/searchgate/community"
	"github.com/poiesic/searchgate/config"
	"github.com/poiesic/searchgate/orchestrator"
	"github.com/poiesic/searchgate/transport/httpapi"
	"github.com/poiesic/searchgate/transport/mcpserver"
)

var version = "dev"

// errToolFailed makes invoke exit non-zero after printing an error envelope.
var errToolFailed = errors.New("tool call failed")

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "searchgate",
		Usage:   "Quota-metered search gateway for community and web content",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to a rotating file instead of stderr",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"SEARCHGATE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from a .env file",
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("env-file"); path != "" {
				if err := godotenv.Load(path); err != nil {
					return fmt.Errorf("failed to load env file: %w", err)
				}
			}
			return setupLogger(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the tools over MCP on stdin/stdout",
				Action: serveCommand,
			},
			{
				Name:   "serve-http",
				Usage:  "Serve the tools, health checks and metrics over HTTP",
				Action: serveHTTPCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides http_addr)",
					},
				},
			},
			{
				Name:      "invoke",
				Usage:     "Run one tool and print its response envelope",
				ArgsUsage: "TOOL",
				Action:    invokeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "args",
						Aliases: []string{"a"},
						Usage:   "Tool arguments as a JSON object",
						Value:   "{}",
					},
				},
			},
			{
				Name:   "cleanup",
				Usage:  "Remove expired cache entries",
				Action: cleanupCommand,
			},
			{
				Name:  "quota",
				Usage: "Inspect quotas",
				Subcommands: []*cli.Command{
					{
						Name:   "status",
						Usage:  "Show quota status for a subject",
						Action: quotaStatusCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "subject",
								Aliases:  []string{"s"},
								Usage:    "Subject identifier",
								Required: true,
							},
						},
					},
				},
			},
			{
				Name:  "tier",
				Usage: "Manage subject tiers",
				Subcommands: []*cli.Command{
					{
						Name:   "set",
						Usage:  "Assign a subject to a tier",
						Action: tierSetCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "subject",
								Aliases:  []string{"s"},
								Usage:    "Subject identifier",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "tier",
								Aliases:  []string{"t"},
								Usage:    "Tier name",
								Required: true,
							},
						},
					},
				},
			},
			{
				Name:   "index",
				Usage:  "Validate a community data file and optionally query it",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Community data JSON file",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Search the loaded data",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Items per kind when querying",
						Value: orchestrator.DefaultLimit,
					},
				},
			},
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openGateway(ctx context.Context, c *cli.Context) (*searchgate.Gateway, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return searchgate.NewGateway(ctx, cfg, searchgate.WithLogger(slog.Default()))
}

func serveCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	g, err := openGateway(ctx, c)
	if err != nil {
		return err
	}
	defer g.Close()

	if err := g.Janitor().Start(ctx); err != nil {
		return err
	}
	defer g.Janitor().Wait()

	slog.Info("serving MCP on stdio", "tools", len(g.Dispatcher().Tools()))
	err = mcpserver.ServeStdio(ctx, g.Dispatcher(), version, slog.Default())
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveHTTPCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	g, err := openGateway(ctx, c)
	if err != nil {
		return err
	}
	defer g.Close()

	if err := g.Janitor().Start(ctx); err != nil {
		return err
	}
	defer g.Janitor().Wait()

	addr := c.String("addr")
	if addr == "" {
		addr = g.Config().HTTPAddr
	}
	err = httpapi.NewServer(g.Dispatcher(), slog.Default()).Run(ctx, addr)
	cancel()
	return err
}

func invokeCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(c.String("args")), &args); err != nil {
		return fmt.Errorf("invalid --args: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, err := openGateway(ctx, c)
	if err != nil {
		return err
	}
	defer g.Close()

	resp := g.Dispatcher().Invoke(ctx, name, args)
	if err := writeJSON(c.App.Writer, resp); err != nil {
		return err
	}
	if resp.IsError {
		return fmt.Errorf("%w: %s", errToolFailed, resp.Kind)
	}
	return nil
}

func cleanupCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	g, err := openGateway(ctx, c)
	if err != nil {
		return err
	}
	defer g.Close()

	removed, err := g.Janitor().RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "removed %d expired cache entries\n", removed)
	return nil
}

func quotaStatusCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	g, err := openGateway(ctx, c)
	if err != nil {
		return err
	}
	defer g.Close()

	subject := c.String("subject")
	decisions, err := g.Quotas().Status(ctx, subject)
	if err != nil {
		return err
	}

	for _, d := range decisions {
		fmt.Fprintf(c.App.Writer, "%s\ttier=%s\tremaining=%d/%d\tresets=%s\n",
			d.Resource, d.Tier, d.Remaining, d.Limit, d.ResetsAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

func tierSetCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	g, err := openGateway(ctx, c)
	if err != nil {
		return err
	}
	defer g.Close()

	subject, tier := c.String("subject"), c.String("tier")
	if err := g.SetTier(ctx, subject, tier); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s is now on tier %s\n", subject, tier)
	return nil
}

func indexCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	idx, err := community.NewIndex(community.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.LoadFile(ctx, c.String("file")); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "indexed %d items\n", idx.Count())

	q := strings.TrimSpace(c.String("query"))
	if q == "" {
		return nil
	}
	keywords := orchestrator.ExtractKeywords(q, orchestrator.DefaultMaxKeywords)
	results, err := idx.Search(ctx, q, keywords, c.Int("limit"))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, results)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// stdout carries MCP traffic, so logs never go there
	var out io.Writer = os.Stderr
	if path := c.String("log-file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.String("log-format"))
	}
	slog.SetDefault(slog.New(handler))

	return nil
}
