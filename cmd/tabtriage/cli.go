package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tabtriage/tabtriage/internal/classify"
	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/db"
	"github.com/tabtriage/tabtriage/internal/enrich"
	"github.com/tabtriage/tabtriage/internal/errors"
	"github.com/tabtriage/tabtriage/internal/extract"
	"github.com/tabtriage/tabtriage/internal/mcp"
	"github.com/tabtriage/tabtriage/internal/notion"
	"github.com/tabtriage/tabtriage/internal/ops"
	"github.com/tabtriage/tabtriage/internal/web"
)

// appEnv bundles everything a command needs after setup.
type appEnv struct {
	baseDir string
	db      *sql.DB
	cfg     *config.Config
	log     *zap.Logger
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "tabtriage",
		Usage:   "Capture, enrich, and triage browser tabs",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-dir", Usage: "Data directory (default: ~/.tabtriage)"},
		},
		Commands: []*cli.Command{
			serveCmd(),
			mcpCmd(),
			searchCmd(),
			sessionsCmd(),
			ignoreCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// setup opens the database and loads configuration for a command.
func setup(c *cli.Context) (*appEnv, error) {
	baseDir := c.String("base-dir")
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".tabtriage")
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	log, err := zap.NewProduction()
	if err != nil {
		database.Close()
		return nil, err
	}

	return &appEnv{baseDir: baseDir, db: database, cfg: cfg, log: log}, nil
}

func (e *appEnv) close() {
	_ = e.log.Sync()
	_ = e.db.Close()
}

// buildOrchestrator wires the enrichment pipeline from config.
func buildOrchestrator(e *appEnv) (*enrich.Orchestrator, classify.Classifier, *notion.Client) {
	classifier := classify.NewCLI(e.cfg, e.log)
	extractor := extract.New(time.Duration(e.cfg.ExtractTimeoutSecs) * time.Second)
	nc := notion.NewClient(e.cfg, e.log)

	var projects enrich.ProjectSource
	if nc.Enabled() {
		projects = nc
	}
	orch := enrich.New(e.db, classifier, extractor, projects, e.cfg, e.log)
	return orch, classifier, nc
}

// serveCmd creates the serve command.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the capture/triage HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Bind address (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			if host := c.String("host"); host != "" {
				e.cfg.Host = host
			}
			if port := c.Int("port"); port != 0 {
				e.cfg.Port = port
			}

			orch, classifier, nc := buildOrchestrator(e)
			srv := web.NewServer(e.db, e.cfg, orch, classifier, nc, Version, e.log)
			return web.Run(srv, orch, e.log)
		},
	}
}

// mcpCmd creates the mcp command (stdio transport).
func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			if unknown := mcp.ValidateDisabledTools(e.cfg.DisabledTools); len(unknown) > 0 {
				e.log.Warn("ignoring unknown disabled tools", zap.Strings("tools", unknown))
			}

			nc := notion.NewClient(e.cfg, e.log)
			var fw ops.Forwarder
			if nc.Enabled() {
				fw = nc
			}
			return mcp.Run(e.db, e.cfg, fw, Version, e.log)
		},
	}
}

// searchCmd creates the search command.
func searchCmd() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search captured tabs",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category"},
			&cli.BoolFlag{Name: "starred", Usage: "Only starred tabs"},
			&cli.StringFlag{Name: "project", Usage: "Filter by project id"},
			&cli.Int64Flag{Name: "session", Aliases: []string{"s"}, Usage: "Filter by session id"},
			&cli.StringFlag{Name: "tag", Usage: "Filter by tag"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			hits, err := ops.Search(e.db, ops.SearchInput{
				Query:     c.Args().First(),
				Category:  c.String("category"),
				Starred:   c.Bool("starred"),
				ProjectID: c.String("project"),
				SessionID: c.Int64("session"),
				Tag:       c.String("tag"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"results": hits, "count": len(hits)})
		},
	}
}

// sessionsCmd creates the sessions command.
func sessionsCmd() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List capture sessions with triage counts",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			sessions, err := ops.ListSessions(e.db)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"sessions": sessions})
		},
	}
}

// ignoreCmd creates the ignore command group.
func ignoreCmd() *cli.Command {
	return &cli.Command{
		Name:  "ignore",
		Usage: "Manage ignored domains",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Ignore a domain (accepts a URL or bare domain)",
				ArgsUsage: "<domain>",
				Action: func(c *cli.Context) error {
					e, err := setup(c)
					if err != nil {
						return err
					}
					defer e.close()

					domain, err := ops.IgnoreDomain(e.db, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"status": "added", "domain": domain})
				},
			},
			{
				Name:      "remove",
				Usage:     "Stop ignoring a domain",
				ArgsUsage: "<domain>",
				Action: func(c *cli.Context) error {
					e, err := setup(c)
					if err != nil {
						return err
					}
					defer e.close()

					domain, err := ops.UnignoreDomain(e.db, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"status": "removed", "domain": domain})
				},
			},
			{
				Name:  "list",
				Usage: "List ignored domains",
				Action: func(c *cli.Context) error {
					e, err := setup(c)
					if err != nil {
						return err
					}
					defer e.close()

					domains, err := ops.ListIgnoredDomains(e.db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"domains": domains})
				},
			},
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if tErr, ok := err.(*errors.TriageError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
