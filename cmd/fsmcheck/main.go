// Package main is the fsmcheck CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/fsmcheck/internal/cli"
	"github.com/hyperjump/fsmcheck/internal/config"
	"github.com/hyperjump/fsmcheck/internal/index"
	"github.com/hyperjump/fsmcheck/internal/ingest"
	"github.com/hyperjump/fsmcheck/internal/matcher"
	"github.com/hyperjump/fsmcheck/internal/models"
	"github.com/hyperjump/fsmcheck/internal/server"
	"github.com/hyperjump/fsmcheck/internal/settings"
	"github.com/hyperjump/fsmcheck/internal/source"
	"github.com/hyperjump/fsmcheck/internal/watcher"
	"github.com/hyperjump/fsmcheck/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/fsmcheck/config.yaml"
	defaultServerURL  = "http://localhost:5000"
)

var httpClient = &http.Client{Timeout: 2 * time.Minute}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development). When no file exists at
// the default path either, built-in defaults are used.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
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
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
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
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "update":
		runUpdate()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "source":
		runSource()
	case "version", "--version", "-v":
		fmt.Printf("fsmcheck version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	noRefresh := fs.Bool("no-refresh", false, "do not refresh the index on startup")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresh := func() {
		if _, err := components.Refresher.Refresh(ctx); err != nil {
			logger.Warn("refresh failed; serving last good generation", zap.Error(err))
		}
	}
	if !*noRefresh {
		go refresh()
	}

	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled {
		file := ""
		if st, err := components.Settings.Load(); err == nil && st.Source.Kind.Local() {
			file = st.Source.Location
		}
		watchSvc = watcher.NewWatcher(file, refresh,
			watcher.WithDebounce(cfg.Watch.Debounce),
			watcher.WithLogger(logger))
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	var watch server.SourceWatcher
	if watchSvc != nil {
		watch = watchSvc
	}
	srv := server.NewServer(
		components.Matcher,
		components.Refresher,
		components.Store,
		components.Settings,
		cfg,
		logger,
		watch,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: fsmcheck search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Every word must occur in a record for it to match. Case and punctuation are ignored.
Wrap words in double quotes (escaped for the shell) to require them as an exact phrase.

Examples:
  fsmcheck search some text
  fsmcheck search '"запретная история"'        # phrase
  fsmcheck search --output json some text
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops at
// the first non-flag argument.
func argsReorder(args []string) []string {
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

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the index directly when the server is not running)")
	limit := fs.Int("limit", 0, "maximum number of matches (0 = all)")
	outputFormat := fs.String("output", "text", "output format: text, compact (one match per line), or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query := &models.SearchQuery{Query: queryStr, Limit: *limit}

	var response *models.SearchResponse
	if *serverURL != "" {
		// Use HTTP API when server is running (the index directory is locked by it).
		response, err = searchViaHTTP(*serverURL, query)
	} else {
		err = withDirect(*configPath, func(c *Components) error {
			var e error
			response, e = c.Matcher.Check(context.Background(), query)
			return e
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if response.Found {
		os.Exit(2)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	var response models.SearchResponse
	if err := doJSON(http.MethodPost, serverURL+"/api/v1/search", query, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func runUpdate() {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = refresh the index directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var res *models.RefreshResult
	if *serverURL != "" {
		res = &models.RefreshResult{}
		err = doJSON(http.MethodPost, *serverURL+"/api/v1/update", nil, res)
		if err != nil && res.Reason == "" {
			fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		err = withDirect(*configPath, func(c *Components) error {
			var e error
			res, e = c.Refresher.Refresh(context.Background())
			return e
		})
		if res == nil {
			fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
			os.Exit(1)
		}
	}
	_ = cli.WriteRefreshResult(os.Stdout, res, format)
	if err != nil {
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the index directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	status := &cli.StatusReport{}
	if *serverURL != "" {
		err = doJSON(http.MethodGet, *serverURL+"/api/v1/status", nil, status)
	} else {
		err = withDirect(*configPath, func(c *Components) error {
			status = directStatus(c)
			return nil
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func directStatus(c *Components) *cli.StatusReport {
	status := &cli.StatusReport{Index: c.Store.Verify(context.Background())}
	if gen := c.Store.Generation(); gen != nil {
		status.Generation = &cli.GenerationInfo{ID: gen.ID, Records: gen.RecordCount}
	}
	if st, err := c.Settings.Load(); err == nil {
		status.Source = &st.Source
		status.Fingerprint = &st.Fingerprint
	}
	if usage, err := c.Store.DiskUsage(); err == nil {
		status.DiskUsage = &usage.TotalBytes
	}
	return status
}

func printSourceUsage() {
	fmt.Println(`Usage: fsmcheck source [flags] <txt|local_csv|remote_csv> [location]

  txt         bulletin text file on disk
  local_csv   semicolon-delimited file on disk
  remote_csv  semicolon-delimited file over HTTP (location defaults to the configured remote_url)

Changing the source clears the stored fingerprint; run "fsmcheck update" afterwards.`)
}

func runSource() {
	fs := flag.NewFlagSet("source", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = write the settings file directly)")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		printSourceUsage()
		os.Exit(1)
	}
	src := models.SourceConfig{Kind: models.SourceKind(fs.Arg(0)), Location: fs.Arg(1)}
	if src.Kind.Local() && src.Location != "" {
		if abs, err := filepath.Abs(src.Location); err == nil {
			src.Location = abs
		}
	}

	var st models.Settings
	var err error
	if *serverURL != "" {
		err = doJSON(http.MethodPut, *serverURL+"/api/v1/settings/source", src, &st)
	} else {
		var cfg *config.Config
		cfg, _, err = loadConfig(*configPath)
		if err == nil {
			if src.Kind == models.SourceRemoteDelimited && src.Location == "" {
				src.Location = cfg.Source.RemoteURL
			}
			store := settings.NewFileStore(cfg.Storage.SettingsPath, cfg.Source.Default())
			if err = store.SetSource(src); err == nil {
				var loaded *models.Settings
				if loaded, err = store.Load(); err == nil {
					st = *loaded
				}
			}
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Set source failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Source set: %s %s\n", st.Source.Kind, st.Source.Location)
}

// doJSON sends body (if any) as JSON and decodes the response into out. A non-2xx
// status is an error; the body is still decoded into out when it is JSON.
func doJSON(method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = json.Unmarshal(data, out)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// withDirect opens the components for a one-shot command that runs without a server.
func withDirect(configPath string, fn func(*Components) error) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(components)
}

// Components holds initialized services.
type Components struct {
	Store     *index.Store
	Settings  *settings.FileStore
	Refresher *ingest.Refresher
	Matcher   *matcher.Matcher
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := index.Open(context.Background(), index.Config{
		DatabasePath: cfg.Storage.DatabasePath,
		IndexDir:     cfg.Storage.IndexDir,
	}, index.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	st := settings.NewFileStore(cfg.Storage.SettingsPath, cfg.Source.Default(), settings.WithLogger(logger))
	reader := source.NewReader(source.Config{
		Timeout:            cfg.Source.Timeout,
		MaxBytes:           cfg.Source.MaxBytes,
		UserAgent:          cfg.Source.UserAgent,
		InsecureSkipVerify: cfg.Source.InsecureSkipVerify,
	}, source.WithLogger(logger))

	return &Components{
		Store:     store,
		Settings:  st,
		Refresher: ingest.NewRefresher(st, reader, store, ingest.WithLogger(logger)),
		Matcher:   matcher.NewMatcher(store, matcher.WithLogger(logger)),
	}, nil
}

func printUsage() {
	fmt.Println(`fsmcheck - check text against the federal list of restricted materials

Usage:
  fsmcheck server [flags]                  Start the HTTP server (refreshes the index on start)
  fsmcheck update [flags]                  Refresh the index from the configured source
  fsmcheck search [flags] <query>          Check a query against the index
  fsmcheck status [flags]                  Show index, source and fingerprint status
  fsmcheck source [flags] <kind> [path]    Switch the source (txt, local_csv, remote_csv)
  fsmcheck version                         Show version
  fsmcheck help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/fsmcheck/config.yaml)
  --debug            Enable debug logging
  --no-refresh       Skip the refresh on startup

Client Flags (update, search, status, source):
  --server string    Server URL (default: http://localhost:5000). Use empty (--server "") to
                     open the index directly when the server is not running.
  --config string    Config file path (direct mode)
  --output string    Output format: text, compact (search only), or json

Search exits with status 2 when a match is found.

Examples:
  fsmcheck server
  fsmcheck update
  fsmcheck search some text
  fsmcheck search --output json "some text"
  fsmcheck source remote_csv
  fsmcheck source txt ./fs_em.txt
  fsmcheck status --server ""`)
}
