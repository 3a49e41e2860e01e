// Package main is the filmdex CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/filmdex/internal/catalog"
	"github.com/hyperjump/filmdex/internal/cli"
	"github.com/hyperjump/filmdex/internal/config"
	"github.com/hyperjump/filmdex/internal/metrics"
	"github.com/hyperjump/filmdex/internal/models"
	"github.com/hyperjump/filmdex/internal/server"
	"github.com/hyperjump/filmdex/internal/watcher"
	"github.com/hyperjump/filmdex/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/filmdex/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "filmdex server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "search":
		err = runSearch(args, os.Stdout)
	case "get":
		err = runGet(args, os.Stdout)
	case "directors":
		err = runDirectors(args, os.Stdout)
	case "import":
		err = runImport(args, os.Stdout)
	case "version", "--version", "-v":
		fmt.Printf("filmdex version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage(os.Stdout)
		os.Exit(1)
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
		}
		os.Exit(1)
	}
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (backend calls, import events, etc.)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("engine", cfg.Engine),
		zap.Bool("debug", debugMode),
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer components.Close()

	if len(cfg.Import.Directories) > 0 {
		svc := components.Catalog
		importer := watcher.NewWatcher(
			cfg.Import.Directories,
			[]string{catalog.ImportExtension},
			cfg.Import.RecursiveOrDefault(),
			func(ctx context.Context, path string) error {
				_, err := svc.ImportFile(ctx, path)
				return err
			},
			svc.RemoveFile,
			watcher.WithLogger(logger.Named("import")),
		)
		if err := importer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start import watcher: %w", err)
		}
		defer importer.Stop()
		go importer.SyncExistingFiles()
		logger.Info("import watcher started", zap.Strings("directories", importer.Directories()))
	}

	srv := server.NewServer(components.Catalog, &cfg.Server, logger,
		server.WithMetrics(m),
		server.WithDataPaths(dataPaths(cfg)),
	)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: filmdex search [flags] [query]\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Every word must match the title,\nsynopsis, review or director. Without a query or filters, the newest movies come first.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  filmdex search heat
  filmdex search "bank robbers" --rating 5
  filmdex search --director "Michael Mann" --year 1995
  filmdex search --server http://localhost:8080 --format json space
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "filmdex search heat -rating 5"
// would otherwise leave -rating unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// optionalInt treats zero as an absent flag.
func optionalInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func optionalString(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func runSearch(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = open the backends directly)")
	outputFormat := fs.String("format", "text", "output format: text or json")
	page := fs.Int("page", models.DefaultPage, "page number")
	limit := fs.Int("limit", models.DefaultLimit, "results per page")
	year := fs.Int("year", 0, "release year filter")
	rating := fs.Int("rating", 0, "star bucket filter, 1-5 (r-1 < rating <= r)")
	director := fs.String("director", "", "exact director filter")
	fs.Usage = func() { printSearchUsage(fs) }
	if err := fs.Parse(searchArgsReorder(args)); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}

	filter := &models.Filter{
		Page:        *page,
		Limit:       *limit,
		ReleaseYear: optionalInt(*year),
		Rating:      optionalInt(*rating),
		Director:    optionalString(*director),
		Search:      optionalString(buildSearchQuery(fs.Args())),
	}

	if *serverURL != "" {
		// Use HTTP API when server is running (avoids Bleve/SQLite lock conflict).
		result, err := newAPIClient(*serverURL).search(filter)
		if err != nil {
			return err
		}
		return cli.WriteSearchResults(stdout, result, format)
	}

	return withCatalog(*configPath, func(ctx context.Context, svc *catalog.Service) error {
		result, err := svc.SearchRecords(ctx, filter)
		if err != nil {
			return err
		}
		return cli.WriteSearchResults(stdout, result, format)
	})
}

func runGet(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = open the backends directly)")
	outputFormat := fs.String("format", "text", "output format: text or json")
	if err := fs.Parse(searchArgsReorder(args)); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: filmdex get [flags] <movie-id>")
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	id := fs.Arg(0)

	if *serverURL != "" {
		m, err := newAPIClient(*serverURL).movie(id)
		if err != nil {
			return err
		}
		return cli.WriteMovie(stdout, m, format)
	}
	return withCatalog(*configPath, func(ctx context.Context, svc *catalog.Service) error {
		m, err := svc.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		return cli.WriteMovie(stdout, m, format)
	})
}

func runDirectors(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("directors", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = open the backends directly)")
	outputFormat := fs.String("format", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}

	if *serverURL != "" {
		directors, err := newAPIClient(*serverURL).directors()
		if err != nil {
			return err
		}
		return cli.WriteDirectors(stdout, directors, format)
	}
	return withCatalog(*configPath, func(ctx context.Context, svc *catalog.Service) error {
		directors, err := svc.ListDirectors(ctx)
		if err != nil {
			return err
		}
		return cli.WriteDirectors(stdout, directors, format)
	})
}

// runImport upserts movie JSON files, or every .json file under a directory. Re-importing a
// path updates the same record.
func runImport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	if err := fs.Parse(searchArgsReorder(args)); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: filmdex import [flags] <file.json|directory>...")
	}
	return withCatalog(*configPath, func(ctx context.Context, svc *catalog.Service) error {
		for _, path := range fs.Args() {
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("failed to stat path: %w", err)
			}
			if info.IsDir() {
				n, err := svc.ImportDirectory(ctx, path)
				if err != nil {
					return fmt.Errorf("importing %s: %w", path, err)
				}
				fmt.Fprintf(stdout, "Imported %d movie(s) from %s\n", n, path)
				continue
			}
			m, err := svc.ImportFile(ctx, path)
			if err != nil {
				return fmt.Errorf("importing %s: %w", path, err)
			}
			fmt.Fprintf(stdout, "Movie imported: %s %s\n", m.ID, m.Title)
		}
		return nil
	})
}

// withCatalog opens the configured backends, runs fn and closes them.
func withCatalog(configPath string, fn func(ctx context.Context, svc *catalog.Service) error) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := zap.NewNop()
	if cfg.Debug {
		if logger, err = utils.NewLogger(true); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(ctx, components.Catalog)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `filmdex - Movie catalog over multiple search backends

Usage:
  filmdex server [flags]                  Start the HTTP server
  filmdex search [flags] [query]          Search movies
  filmdex get [flags] <id>                Show one movie
  filmdex directors [flags]               List distinct directors
  filmdex import [flags] <file|dir>...    Import movie JSON files
  filmdex version                         Show version
  filmdex help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/filmdex/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string     Config file path (direct mode)
  --server string     Server URL. Empty (default) opens the backends directly.
  --format string     Output format: text or json (default: text)
  --page int          Page number (default: 1)
  --limit int         Results per page (default: 10)
  --year int          Release year
  --rating int        Star bucket 1-5
  --director string   Exact director name

Get / Directors Flags:
  --config, --server, --format as for search

Environment:
  FILMDEX_ENGINE         Read engine (bleve, sqlite, postgres); overrides the config file
  FILMDEX_POSTGRES_DSN   PostgreSQL DSN; enables the postgres backend

Examples:
  filmdex server
  filmdex search space crew
  filmdex search --rating 5 --year 1995
  filmdex search --server http://localhost:8080 --format json heat
  filmdex get 0b6b5e8a-0c39-4d5c-9a8f-3f2d6a9e1c11
  filmdex import ./movies`)
}
