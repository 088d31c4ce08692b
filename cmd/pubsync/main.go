// Package main provides the pubsync CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matsen/pubsync/internal/config"
	"github.com/matsen/pubsync/internal/manual"
	"github.com/matsen/pubsync/internal/provider"
	"github.com/matsen/pubsync/internal/pubsync"
	"github.com/matsen/pubsync/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	ownerFlag   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// SilenceErrors is set, so cobra errors (bad flags, arg counts) are printed here
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pubsync",
	Short: "Publication sync for researcher profiles",
	Long: `pubsync keeps a researcher's publication list in step with an external
bibliographic provider without ever storing the same work twice.

Core features:
  - Preview provider works annotated with which ones are already stored
  - Commit a selection, or resync every external record from scratch
  - Manage hand-entered records alongside synced ones
  - Serve the owner API and the public site list over HTTP

Configuration is read from $XDG_CONFIG_HOME/pubsync/config.yml, a .env file
and PUBSYNC_* environment variables.
All commands output JSON by default for scripting.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Load .env file if present (for PUBSYNC_PROVIDER_API_KEY)
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $XDG_CONFIG_HOME/pubsync/config.yml)")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Owner id to act as (or PUBSYNC_OWNER)")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenStore opens the SQLite store, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenStore(cfg *config.Config) *storage.DB {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		exitWithError(ExitConfigError, "creating data directory: %v", err)
	}
	db, err := storage.OpenDB(cfg.Store.Path)
	if err != nil {
		exitWithError(ExitError, "opening store: %v", err)
	}
	return db
}

// mustOwner returns the owner to act as, exits if none is set.
func mustOwner() string {
	owner := strings.TrimSpace(ownerFlag)
	if owner == "" {
		owner = strings.TrimSpace(os.Getenv("PUBSYNC_OWNER"))
	}
	if owner == "" {
		exitWithError(ExitConfigError, "no owner set\n\nUse --owner or set PUBSYNC_OWNER.")
	}
	return owner
}

// newProviderClient builds the provider client from config.
func newProviderClient(cfg *config.Config) *provider.Client {
	return provider.NewClient(
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithAPIKey(cfg.Provider.APIKey),
		provider.WithRateLimit(cfg.Provider.RateLimit),
		provider.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout}),
	)
}

// newSyncService wires the sync service to the store and provider.
func newSyncService(cfg *config.Config, db storage.Store, opts ...pubsync.Option) *pubsync.Service {
	opts = append([]pubsync.Option{pubsync.WithPageSize(cfg.Provider.PerPage)}, opts...)
	return pubsync.New(db, newProviderClient(cfg), opts...)
}

// newRecordManager wires the record manager to the store.
func newRecordManager(db storage.Store, opts ...manual.Option) *manual.Manager {
	return manual.New(db, opts...)
}
