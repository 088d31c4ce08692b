package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/matsen/pubsync/internal/manual"
	"github.com/matsen/pubsync/internal/pdf"
	"github.com/matsen/pubsync/internal/reference"
)

var (
	listKind  string
	listQuery string
	listLimit int

	recTitle    string
	recAuthors  string
	recJournal  string
	recYear     int
	recDOI      string
	recType     string
	recAbstract string
	recURL      string
)

func init() {
	recordsListCmd.Flags().StringVar(&listKind, "kind", "", "Only list records of this source kind (manual, external)")
	recordsListCmd.Flags().StringVarP(&listQuery, "query", "q", "", "Full-text query over title, authors, journal and abstract")
	recordsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum number of records (0 = all)")

	for _, c := range []*cobra.Command{recordsAddCmd, recordsUpdateCmd} {
		c.Flags().StringVar(&recTitle, "title", "", "Title")
		c.Flags().StringVar(&recAuthors, "authors", "", "Authors, comma-separated")
		c.Flags().StringVar(&recJournal, "journal", "", "Journal or venue")
		c.Flags().IntVar(&recYear, "year", 0, "Publication year")
		c.Flags().StringVar(&recDOI, "doi", "", "DOI")
		c.Flags().StringVar(&recType, "type", "", "Publication type (article, preprint, book, ...)")
		c.Flags().StringVar(&recAbstract, "abstract", "", "Abstract")
		c.Flags().StringVar(&recURL, "url", "", "Link to the publication")
	}

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsGetCmd)
	recordsCmd.AddCommand(recordsAddCmd)
	recordsCmd.AddCommand(recordsUpdateCmd)
	recordsCmd.AddCommand(recordsDeleteCmd)
	recordsCmd.AddCommand(recordsDeleteManyCmd)
	recordsCmd.AddCommand(recordsAttachCmd)
	rootCmd.AddCommand(recordsCmd)
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage the owner's publication records",
	Long: `Commands for listing and editing publication records.

Manual records are created here and are never touched by sync. External
records can be edited and deleted too; a deleted external record comes
back on the next full resync.`,
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records",
	Long: `List the owner's records, newest first.

Examples:
  pubsync records list --owner alice
  pubsync records list --owner alice --kind manual
  pubsync records list --owner alice -q phylogenetics -n 10 --human`,
	Args: cobra.NoArgs,
	RunE: runRecordsList,
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordsGet,
}

var recordsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a manual record",
	Long: `Add a hand-entered record. Title, authors and year are required.

Examples:
  pubsync records add --owner alice --title "Notes on engines" --authors "Ada Lovelace" --year 1843`,
	Args: cobra.NoArgs,
	RunE: runRecordsAdd,
}

var recordsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit fields of a record",
	Long: `Edit a record. Only the flags given are changed; the result must still
have a title, authors and a valid year.

Examples:
  pubsync records update 3f2a... --owner alice --journal "Nature"
  pubsync records update 3f2a... --owner alice --type preprint`,
	Args: cobra.ExactArgs(1),
	RunE: runRecordsUpdate,
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordsDelete,
}

var recordsDeleteManyCmd = &cobra.Command{
	Use:   "delete-many <id>...",
	Short: "Delete several records, reporting failures per id",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecordsDeleteMany,
}

var recordsAttachCmd = &cobra.Command{
	Use:   "attach <id> <file.pdf>",
	Short: "Attach a PDF to a record",
	Long: `Copy a PDF into the attachments directory and link it from the record.

The document is checked for a DOI and title; these are reported but never
change the record.`,
	Args: cobra.ExactArgs(2),
	RunE: runRecordsAttach,
}

func runRecordsList(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	owner := mustOwner()
	db := mustOpenStore(cfg)
	defer db.Close()

	recs, err := newRecordManager(db).List(cmd.Context(), owner, manual.ListOptions{
		Kind:  reference.SourceKind(listKind),
		Query: listQuery,
		Limit: listLimit,
	})
	if err != nil {
		exitWithAppError(err)
	}

	if humanOutput {
		if len(recs) == 0 {
			outputHuman("No records\n")
			return nil
		}
		for _, r := range recs {
			printRecordLine(r)
		}
		outputHuman("\n%d records\n", len(recs))
		return nil
	}
	return outputJSON(recs)
}

func runRecordsGet(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	owner := mustOwner()
	db := mustOpenStore(cfg)
	defer db.Close()

	rec, err := newRecordManager(db).Get(cmd.Context(), owner, args[0])
	if err != nil {
		exitWithAppError(err)
	}
	return printRecord(rec)
}

func runRecordsAdd(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	owner := mustOwner()
	db := mustOpenStore(cfg)
	defer db.Close()

	rec, err := newRecordManager(db).Create(cmd.Context(), owner, reference.Fields{
		Title:    recTitle,
		Authors:  recAuthors,
		Journal:  recJournal,
		Year:     recYear,
		DOI:      recDOI,
		Type:     recType,
		Abstract: recAbstract,
		URL:      recURL,
	})
	if err != nil {
		exitWithAppError(err)
	}
	return printRecord(rec)
}

func runRecordsUpdate(cmd *cobra.Command, args []string) error {
	patch := patchFromFlags(cmd)
	if patch.IsEmpty() {
		exitWithError(ExitError, "no fields to update")
	}

	cfg := mustLoadConfig()
	owner := mustOwner()
	db := mustOpenStore(cfg)
	defer db.Close()

	rec, err := newRecordManager(db).Update(cmd.Context(), owner, args[0], patch)
	if err != nil {
		exitWithAppError(err)
	}
	return printRecord(rec)
}

// patchFromFlags builds a Patch from the flags the user actually set.
func patchFromFlags(cmd *cobra.Command) reference.Patch {
	var p reference.Patch
	flags := cmd.Flags()
	if flags.Changed("title") {
		p.Title = &recTitle
	}
	if flags.Changed("authors") {
		p.Authors = &recAuthors
	}
	if flags.Changed("journal") {
		p.Journal = &recJournal
	}
	if flags.Changed("year") {
		p.Year = &recYear
	}
	if flags.Changed("doi") {
		p.DOI = &recDOI
	}
	if flags.Changed("type") {
		p.Type = &recType
	}
	if flags.Changed("abstract") {
		p.Abstract = &recAbstract
	}
	if flags.Changed("url") {
		p.URL = &recURL
	}
	return p
}

func runRecordsDelete(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	owner := mustOwner()
	db := mustOpenStore(cfg)
	defer db.Close()

	if err := newRecordManager(db).Delete(cmd.Context(), owner, args[0]); err != nil {
		exitWithAppError(err)
	}

	if humanOutput {
		outputHuman("Deleted %s\n", args[0])
		return nil
	}
	return outputJSON(StatusResponse{Status: "deleted", ID: args[0]})
}

func runRecordsDeleteMany(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	owner := mustOwner()
	db := mustOpenStore(cfg)
	defer db.Close()

	res := newRecordManager(db).DeleteMany(cmd.Context(), owner, args)

	if humanOutput {
		outputHuman("Deleted %d, failed %d\n", res.SuccessCount, res.FailureCount)
		for _, f := range res.Failures {
			outputHuman("  %s: %s\n", f.ID, f.Error)
		}
	} else {
		outputJSON(res)
	}
	if res.FailureCount > 0 && res.SuccessCount == 0 {
		os.Exit(ExitDataError)
	}
	return nil
}

// AttachResult is the response for records attach.
type AttachResult struct {
	Publication *reference.Record `json:"publication"`
	Document    *pdf.Info         `json:"document"`
}

func runRecordsAttach(cmd *cobra.Command, args []string) error {
	id, src := args[0], args[1]
	cfg := mustLoadConfig()
	owner := mustOwner()
	db := mustOpenStore(cfg)
	defer db.Close()

	m := newRecordManager(db)
	if _, err := m.Get(cmd.Context(), owner, id); err != nil {
		exitWithAppError(err)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		exitWithError(ExitError, "reading %s: %v", src, err)
	}
	if int64(len(data)) > cfg.Attachments.MaxBytes {
		exitWithError(ExitDataError, "%s is larger than %d bytes", src, cfg.Attachments.MaxBytes)
	}
	info, err := pdf.Inspect(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		exitWithAppError(err)
	}

	name := uuid.NewString() + ".pdf"
	if err := os.MkdirAll(cfg.Attachments.Dir, 0o755); err != nil {
		exitWithError(ExitError, "creating attachments dir: %v", err)
	}
	dst := filepath.Join(cfg.Attachments.Dir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		exitWithError(ExitError, "writing attachment: %v", err)
	}

	rec, err := m.AttachDocument(cmd.Context(), owner, id, "/attachments/"+name)
	if err != nil {
		_ = os.Remove(dst)
		exitWithAppError(err)
	}

	if humanOutput {
		outputHuman("Attached %s to %s (%d pages)\n", filepath.Base(src), rec.ID, info.Pages)
		if info.DOI != "" {
			outputHuman("  detected doi:   %s\n", info.DOI)
		}
		if info.Title != "" {
			outputHuman("  detected title: %s\n", info.Title)
		}
		return nil
	}
	return outputJSON(AttachResult{Publication: rec, Document: info})
}

func printRecord(rec *reference.Record) error {
	if humanOutput {
		printRecordDetail(*rec)
		return nil
	}
	return outputJSON(rec)
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Path   string `json:"path,omitempty"`
	Count  int    `json:"count,omitempty"`
}
