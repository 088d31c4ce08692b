package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/pubsync/internal/pubsync"
	"github.com/matsen/pubsync/internal/reference"
)

var (
	commitAll    bool
	commitSelect string
)

func init() {
	commitCmd.Flags().BoolVar(&commitAll, "all", false, "Commit every candidate not already stored")
	commitCmd.Flags().StringVar(&commitSelect, "select", "", "JSON file with the records to commit (array, or preview output)")
	commitCmd.MarkFlagsMutuallyExclusive("all", "select")

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(resyncCmd)
}

var previewCmd = &cobra.Command{
	Use:   "preview [external-id]",
	Short: "Show provider works and which ones are already stored",
	Long: `Fetch the researcher's works from the provider and flag each one that
matches a stored external record, by DOI first and then by title.

Nothing is written. When external-id is omitted, the id used by the
owner's last sync is reused.

Examples:
  pubsync preview 0000-0002-1825-0097 --owner alice
  pubsync preview --owner alice --human
  pubsync preview 0000-0002-1825-0097 --owner alice > preview.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

var commitCmd = &cobra.Command{
	Use:   "commit [external-id] (--all | --select file.json)",
	Short: "Store selected provider works",
	Long: `Commit provider works into the owner's publication list.

The duplicate check is repeated at commit time, so anything that is
already stored is skipped even if it was selected.

  --all          preview, then commit every candidate not already stored
  --select FILE  commit the records in FILE: a JSON array of records or
                 candidates, or the full output of 'pubsync preview'
                 (only candidates not flagged already_exists are used)

Examples:
  pubsync commit 0000-0002-1825-0097 --owner alice --all
  pubsync commit --owner alice --select picked.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommit,
}

var resyncCmd = &cobra.Command{
	Use:   "resync [external-id]",
	Short: "Replace every external record with a fresh fetch",
	Long: `Delete all of the owner's external records and insert the provider's
current works in their place. Manual records are never touched.

External records deleted by hand come back. Edits made to external
records are lost.

Examples:
  pubsync resync 0000-0002-1825-0097 --owner alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResync,
}

// resolveExternalID returns the id from args or the owner's last sync.
func resolveExternalID(ctx context.Context, args []string, lookup func(context.Context) (string, error)) string {
	if len(args) == 1 && args[0] != "" {
		return args[0]
	}
	id, err := lookup(ctx)
	if err != nil {
		exitWithAppError(err)
	}
	if id == "" {
		exitWithError(ExitDataError, "no external id given and none stored for this owner")
	}
	return id
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := mustLoadConfig()
	owner := mustOwner()
	db := mustOpenStore(cfg)
	defer db.Close()

	extID := resolveExternalID(ctx, args, lastExternalID(db, owner))
	res, err := newSyncService(cfg, db).Preview(ctx, owner, extID)
	if err != nil {
		exitWithAppError(err)
	}

	if humanOutput {
		outputHuman("Preview for %s: %d new, %d already stored", res.ExternalID, res.NewCount, res.DuplicateCount)
		if res.Dropped > 0 {
			outputHuman(", %d unusable", res.Dropped)
		}
		outputHuman("\n\n")
		for i, c := range res.Candidates {
			printCandidate(i, c)
		}
		return nil
	}
	return outputJSON(res)
}

func runCommit(cmd *cobra.Command, args []string) error {
	if !commitAll && commitSelect == "" {
		exitWithError(ExitError, "one of --all or --select is required")
	}

	ctx := cmd.Context()
	cfg := mustLoadConfig()
	owner := mustOwner()

	var selected []reference.RawRecord
	if commitSelect != "" {
		var err error
		selected, err = readSelection(commitSelect)
		if err != nil {
			exitWithError(ExitDataError, "reading %s: %v", commitSelect, err)
		}
	}

	db := mustOpenStore(cfg)
	defer db.Close()

	extID := resolveExternalID(ctx, args, lastExternalID(db, owner))
	svc := newSyncService(cfg, db)

	if commitAll {
		preview, err := svc.Preview(ctx, owner, extID)
		if err != nil {
			exitWithAppError(err)
		}
		selected = preview.DefaultSelection()
	}

	res, err := svc.Commit(ctx, owner, extID, selected)
	if err != nil {
		exitWithAppError(err)
	}
	return printCommitResult(res)
}

func runResync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := mustLoadConfig()
	owner := mustOwner()
	db := mustOpenStore(cfg)
	defer db.Close()

	extID := resolveExternalID(ctx, args, lastExternalID(db, owner))
	res, err := newSyncService(cfg, db).FullResync(ctx, owner, extID)
	if err != nil {
		exitWithAppError(err)
	}
	return printCommitResult(res)
}

func printCommitResult(res *pubsync.CommitResult) error {
	if humanOutput {
		outputHuman("Inserted %d, skipped %d", res.InsertedCount, res.SkippedCount)
		if res.DeletedCount > 0 {
			outputHuman(", replaced %d", res.DeletedCount)
		}
		outputHuman("\n%d external records as of %s\n", res.ExternalCount, res.SyncedAt.Format("2006-01-02 15:04:05"))
		return nil
	}
	return outputJSON(res)
}

// ownerLookup is the part of the store resolveExternalID needs.
type ownerLookup interface {
	GetOwner(ctx context.Context, ownerID string) (*reference.Owner, error)
}

func lastExternalID(db ownerLookup, owner string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		o, err := db.GetOwner(ctx, owner)
		if err != nil {
			return "", err
		}
		return o.ExternalID, nil
	}
}

// readSelection parses a selection file. It accepts an array of records
// (candidate annotations are ignored) or a preview result, in which case
// only the candidates not already stored are taken.
func readSelection(path string) ([]reference.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSelection(data)
}

func parseSelection(data []byte) ([]reference.RawRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty selection")
	}

	if data[0] == '[' {
		var recs []reference.RawRecord
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("parsing record array: %w", err)
		}
		return recs, nil
	}

	var preview pubsync.PreviewResult
	if err := json.Unmarshal(data, &preview); err != nil {
		return nil, fmt.Errorf("parsing preview: %w", err)
	}
	if preview.Candidates == nil {
		return nil, fmt.Errorf("object has no candidates")
	}
	return preview.DefaultSelection(), nil
}
