package commands

import (
	"fmt"
	"time"

	"github.com/dyluth/lodge/internal/history"
	"github.com/dyluth/lodge/internal/printer"
	"github.com/dyluth/lodge/internal/resolver"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/spf13/cobra"
)

var (
	revOutputFormat string
	revSince        string
	revUntil        string
	revActor        string
	revStatus       string
	revRestoresOnly bool
	revComment      string
)

var revisionsCmd = &cobra.Command{
	Use:     "revisions",
	Aliases: []string{"rev"},
	Short:   "Inspect and restore a document's revision history",
	Long: `Inspect and restore the append-only revision history of a document.

REV accepts a sequence number ("3" or "#3"), a full revision ID or a unique
prefix of at least 6 characters.`,
}

var revisionsListCmd = &cobra.Command{
	Use:   "list DOC",
	Short: "List revisions newest first",
	Long: `List the revisions of a document, newest first.

Output Formats:
  default - Human-readable table
  jsonl   - Line-delimited JSON, one revision per line

Filters:
  --since / --until - Duration ("2h") or RFC3339 timestamp
  --actor           - Glob on who minted the revision ("j*")
  --status          - Document status at the time ("Verified")
  --restores        - Only revisions produced by a restore

Examples:
  lodge revisions list 3f2a9c --since=24h
  lodge revisions list 3f2a9c --output=jsonl | jq .sequence`,
	Args: cobra.ExactArgs(1),
	RunE: runRevisionsList,
}

var revisionsShowCmd = &cobra.Command{
	Use:   "show DOC REV",
	Short: "Show a revision with its full snapshot as JSON",
	Args:  cobra.ExactArgs(2),
	RunE:  runRevisionsShow,
}

var revisionsRestoreCmd = &cobra.Command{
	Use:   "restore DOC REV",
	Short: "Restore the document to a revision, minting a new revision",
	Long: `Replay a revision's snapshot onto the live document. History is never
rewritten: the restore is recorded as a new revision that points back at REV.`,
	Args: cobra.ExactArgs(2),
	RunE: runRevisionsRestore,
}

func init() {
	revisionsListCmd.Flags().StringVarP(&revOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	revisionsListCmd.Flags().StringVar(&revSince, "since", "", "Show revisions after time (duration or RFC3339)")
	revisionsListCmd.Flags().StringVar(&revUntil, "until", "", "Show revisions before time (duration or RFC3339)")
	revisionsListCmd.Flags().StringVar(&revActor, "actor", "", "Filter by author (glob pattern)")
	revisionsListCmd.Flags().StringVar(&revStatus, "status", "", "Filter by document status at mint time")
	revisionsListCmd.Flags().BoolVar(&revRestoresOnly, "restores", false, "Only show restore revisions")

	revisionsRestoreCmd.Flags().StringVar(&revComment, "comment", "", "Comment for the new revision")

	revisionsCmd.AddCommand(revisionsListCmd, revisionsShowCmd, revisionsRestoreCmd)
	rootCmd.AddCommand(revisionsCmd)
}

func runRevisionsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var outputFormat history.OutputFormat
	switch revOutputFormat {
	case "default":
		outputFormat = history.OutputFormatDefault
	case "jsonl":
		outputFormat = history.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", revOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	sinceMs, untilMs, err := history.ParseRange(revSince, revUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time filter", err.Error(), nil)
	}
	criteria := &history.Criteria{
		SinceTimestampMs: sinceMs,
		UntilTimestampMs: untilMs,
		ActorGlob:        revActor,
		Status:           datasheet.DocumentStatus(revStatus),
		RestoresOnly:     revRestoresOnly,
	}
	if revStatus != "" {
		if err := criteria.Status.Validate(); err != nil {
			return printer.Error("invalid --status", err.Error(), nil)
		}
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.documentID(ctx, args[0])
	if err != nil {
		return fail(err)
	}
	if err := history.List(ctx, s.engine, s.scope, id, outputFormat, criteria, printer.Out); err != nil {
		return fail(err)
	}
	return nil
}

func runRevisionsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	docID, revID, err := s.revisionRef(cmd, args[0], args[1])
	if err != nil {
		return fail(err)
	}
	detail, err := s.engine.GetRevision(ctx, s.scope, docID, revID)
	if err != nil {
		return fail(err)
	}
	return history.FormatJSON(printer.Out, detail)
}

func runRevisionsRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	docID, revID, err := s.revisionRef(cmd, args[0], args[1])
	if err != nil {
		return fail(err)
	}
	res, err := s.engine.Restore(ctx, s.scope, docID, revID, revComment)
	if err != nil {
		return fail(err)
	}
	printer.Success("Restored revision #%d as revision #%d, status %s\n",
		res.Revision.RestoredFromSequence, res.Revision.Sequence, printer.Status(res.Document.Status))
	return nil
}

func (s *session) revisionRef(cmd *cobra.Command, docRef, revRef string) (string, string, error) {
	docID, err := s.documentID(cmd.Context(), docRef)
	if err != nil {
		return "", "", err
	}
	revID, err := resolver.ResolveRevisionID(cmd.Context(), s.store, docID, revRef)
	if err != nil {
		return "", "", err
	}
	return docID, revID, nil
}
