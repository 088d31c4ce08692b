package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/pubsync/internal/api"
	"github.com/matsen/pubsync/internal/logger"
	"github.com/matsen/pubsync/internal/manual"
	"github.com/matsen/pubsync/internal/pubsync"
	"github.com/matsen/pubsync/internal/sitecache"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 10 * time.Second

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides http.port)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the owner API under /api, the public site list under /sites,
uploaded documents under /attachments, plus /healthz and /metrics.

Logs are written to stdout as JSON lines.

Examples:
  pubsync serve
  PUBSYNC_AUTH_MODE=token pubsync serve --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	if servePort != 0 {
		cfg.HTTP.Port = servePort
	}
	log := logger.New("pubsync", cfg.Log.Level)

	db := mustOpenStore(cfg)
	defer db.Close()

	site := sitecache.New(db, cfg.Cache.Size, cfg.Cache.TTL)
	syncSvc := newSyncService(cfg, db,
		pubsync.WithInvalidator(site),
		pubsync.WithLogger(log.With().Str("component", "sync").Logger()),
	)
	records := newRecordManager(db, manual.WithInvalidator(site))

	router := api.NewRouter(api.Deps{
		Sync:        syncSvc,
		Records:     records,
		Store:       db,
		Site:        site,
		Auth:        api.NewAuthenticator(cfg.Auth),
		Attachments: cfg.Attachments,
		Log:         log.With().Str("component", "http").Logger(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("http_address", srv.Addr).
			Str("auth_mode", cfg.Auth.Mode).
			Str("store", cfg.Store.Path).
			Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			return err
		}
	case <-cmd.Context().Done():
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
			return err
		}
	}
	return nil
}
