package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/pubsync/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after applying the config file and PUBSYNC_*
environment overrides. Secrets are masked.

Config file: $XDG_CONFIG_HOME/pubsync/config.yml (or --config)`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

// ConfigResponse is the response for the config command.
type ConfigResponse struct {
	Path   string         `json:"path"`
	Config *config.Config `json:"config"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	masked := *cfg
	if masked.Provider.APIKey != "" {
		masked.Provider.APIKey = "********"
	}
	masked.Auth.Tokens = make([]config.Token, len(cfg.Auth.Tokens))
	for i, t := range cfg.Auth.Tokens {
		masked.Auth.Tokens[i] = config.Token{OwnerID: t.OwnerID, TokenHash: "********"}
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	if humanOutput {
		outputHuman("config file:   %s\n", path)
		outputHuman("http address:  %s\n", masked.HTTP.Address())
		outputHuman("store:         %s\n", masked.Store.Path)
		outputHuman("provider:      %s (per page %d, %.1f req/s, timeout %s)\n",
			masked.Provider.BaseURL, masked.Provider.PerPage, masked.Provider.RateLimit, masked.Provider.Timeout)
		outputHuman("api key:       %s\n", orNone(masked.Provider.APIKey))
		outputHuman("site cache:    %d owners, ttl %s\n", masked.Cache.Size, masked.Cache.TTL)
		outputHuman("attachments:   %s (max %d bytes)\n", masked.Attachments.Dir, masked.Attachments.MaxBytes)
		outputHuman("auth:          %s (%d tokens)\n", masked.Auth.Mode, len(masked.Auth.Tokens))
		outputHuman("log level:     %s\n", masked.Log.Level)
		return nil
	}
	return outputJSON(ConfigResponse{Path: path, Config: &masked})
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
