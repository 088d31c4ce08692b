package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/pubsync/internal/apperr"
	"github.com/matsen/pubsync/internal/export"
	"github.com/matsen/pubsync/internal/reference"
	"github.com/matsen/pubsync/internal/storage"
)

// Export formats.
const (
	formatJSONL  = "jsonl"
	formatBibTeX = "bibtex"
)

var (
	exportOut    string
	exportFormat string
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default pubsync-export.jsonl, or stdout for bibtex)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", formatJSONL, "Output format: jsonl (restorable backup) or bibtex")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(restoreCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export records to a JSONL backup or BibTeX",
	Long: `Write records to a JSONL file, one record per line, or as BibTeX.

With --owner only that owner's records are exported; otherwise every
record in the store is. JSONL output can be loaded again with 'pubsync
restore'.

Examples:
  pubsync export
  pubsync export --owner alice -o alice.jsonl
  pubsync export --owner alice --format bibtex > alice.bib`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file.jsonl>",
	Short: "Load records from a JSONL backup",
	Long: `Insert the records of a JSONL backup into the store.

Records whose id is already stored, and external records whose DOI or title
the owner already has, are skipped. The whole file is checked before
anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

// RestoreResult is the response for the restore command.
type RestoreResult struct {
	Path     string `json:"path"`
	Read     int    `json:"read"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != formatJSONL && exportFormat != formatBibTeX {
		exitWithError(ExitError, "unknown format %q (use jsonl or bibtex)", exportFormat)
	}
	cfg := mustLoadConfig()
	db := mustOpenStore(cfg)
	defer db.Close()

	var recs []reference.Record
	var err error
	if ownerFlag != "" {
		recs, err = db.ListByOwner(cmd.Context(), ownerFlag, "")
	} else {
		recs, err = db.ListAll(cmd.Context())
	}
	if err != nil {
		exitWithAppError(err)
	}

	if exportFormat == formatBibTeX {
		// BibTeX is always text output, never JSON
		bib := export.ToBibTeXList(recs)
		if exportOut == "" {
			fmt.Print(bib)
			return nil
		}
		if err := os.WriteFile(exportOut, []byte(bib), 0o644); err != nil {
			exitWithError(ExitError, "writing %s: %v", exportOut, err)
		}
	} else {
		if exportOut == "" {
			exportOut = "pubsync-export.jsonl"
		}
		if err := storage.WriteAll(exportOut, recs); err != nil {
			exitWithError(ExitError, "writing %s: %v", exportOut, err)
		}
	}

	if humanOutput {
		outputHuman("Exported %d records to %s\n", len(recs), exportOut)
		return nil
	}
	return outputJSON(StatusResponse{Status: "exported", Path: exportOut, Count: len(recs)})
}

func runRestore(cmd *cobra.Command, args []string) error {
	path := args[0]
	recs, err := storage.ReadAll(path)
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", path, err)
	}
	if err := checkRestorable(recs); err != nil {
		exitWithAppError(err)
	}

	cfg := mustLoadConfig()
	db := mustOpenStore(cfg)
	defer db.Close()

	inserted := 0
	if len(recs) > 0 {
		inserted, err = db.InsertBatch(cmd.Context(), recs)
		if err != nil {
			exitWithAppError(err)
		}
	}
	if err := refreshOwners(cmd.Context(), db, recs); err != nil {
		exitWithAppError(err)
	}

	res := RestoreResult{Path: path, Read: len(recs), Inserted: inserted, Skipped: len(recs) - inserted}
	if humanOutput {
		outputHuman("Restored %d of %d records from %s (%d skipped)\n", res.Inserted, res.Read, path, res.Skipped)
		return nil
	}
	return outputJSON(res)
}

// refreshOwners recounts external records for every owner with external
// records in recs. An owner with no stored external_id takes the last one
// seen in the backup.
func refreshOwners(ctx context.Context, db storage.Store, recs []reference.Record) error {
	externalIDs := make(map[string]string)
	for _, rec := range recs {
		if rec.IsExternal() {
			externalIDs[rec.OwnerID] = rec.ExternalSourceID
		}
	}

	for ownerID, externalID := range externalIDs {
		owner, err := db.GetOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		owner.ExternalCount, err = db.CountByOwner(ctx, ownerID, reference.SourceExternal)
		if err != nil {
			return err
		}
		if owner.ExternalID == "" {
			owner.ExternalID = externalID
		}
		if err := db.PutOwner(ctx, *owner); err != nil {
			return err
		}
	}
	return nil
}

// checkRestorable rejects backups containing records that could not have
// been written by this tool.
func checkRestorable(recs []reference.Record) error {
	for i, rec := range recs {
		if rec.ID == "" || rec.OwnerID == "" {
			return fmt.Errorf("%w: line %d: id and owner_id are required", apperr.ErrValidation, i+1)
		}
		if !rec.SourceKind.Valid() {
			return fmt.Errorf("%w: line %d: unknown source_kind %q", apperr.ErrValidation, i+1, rec.SourceKind)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return nil
}
