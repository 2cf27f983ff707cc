package commands

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/internal/printer"
	"github.com/dyluth/lodge/internal/scaffold"
	"github.com/dyluth/lodge/internal/watch"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/spf13/cobra"
)

var (
	docFile       string
	docJSON       bool
	docSets       []string
	docClears     []string
	docComment    string
	docName       string
	docTag        string
	docProject    string
	docClient     string
	docDiscipline string
	docWait       time.Duration
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Create, edit and move documents through their lifecycle",
	Long: `Create, edit and move datasheet documents through their lifecycle.

Statuses:
  Draft → ModifiedDraft (any edit) → Verified → Approved
  Draft, ModifiedDraft or Verified → Rejected (with a comment)
  Rejected → ModifiedDraft (on the next edit)

Every edit of values or header mints a numbered revision.
DOC accepts a full document ID or a unique prefix of at least 6 characters.`,
}

var docCreateCmd = &cobra.Command{
	Use:   "create --file DOCUMENT.json",
	Short: "Create a Draft document or template from a JSON definition",
	Long: `Create a Draft document from a JSON file holding header, layout and
is_template, such as templates/centrifugal-pump.json from 'lodge init'.`,
	Args: cobra.NoArgs,
	RunE: runDocCreate,
}

var docFromTemplateCmd = &cobra.Command{
	Use:   "from-template TEMPLATE",
	Short: "Create a document from a template",
	Long: `Create a Draft document that copies a template's layout and default values.
The new document gets its own header.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocFromTemplate,
}

var docShowCmd = &cobra.Command{
	Use:   "show DOC",
	Short: "Show a document with its live values",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocShow,
}

var docEditCmd = &cobra.Command{
	Use:   "edit DOC",
	Short: "Edit header fields and values, minting a revision",
	Long: `Edit a document. Values are set with --set id=value and cleared with --clear id.
Header fields are changed with --name, --tag, --project, --client and --discipline.

Examples:
  lodge doc edit 3f2a9c --set flow=120 --set seal=double --comment "vendor data"
  lodge doc edit 3f2a9c --clear atex`,
	Args: cobra.ExactArgs(1),
	RunE: runDocEdit,
}

var docVerifyCmd = &cobra.Command{
	Use:   "verify DOC",
	Short: "Mark a Draft or ModifiedDraft document as Verified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDisposition(cmd, args[0], lifecycle.ActionVerify)
	},
}

var docApproveCmd = &cobra.Command{
	Use:   "approve DOC",
	Short: "Approve a Verified document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDisposition(cmd, args[0], lifecycle.ActionApprove)
	},
}

var docRejectCmd = &cobra.Command{
	Use:   "reject DOC --comment TEXT",
	Short: "Reject a document that is not yet Approved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDisposition(cmd, args[0], lifecycle.ActionReject)
	},
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List document summaries for the tenant",
	Long: `List the summaries of every document in the tenant.

Summaries are rebuilt in the background by lodged, so a document written a
moment ago may not be listed yet.`,
	Args: cobra.NoArgs,
	RunE: runDocList,
}

var docSummaryCmd = &cobra.Command{
	Use:   "summary DOC",
	Short: "Show the derived summary of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocSummary,
}

func init() {
	docCreateCmd.Flags().StringVar(&docFile, "file", "", "JSON document definition")
	_ = docCreateCmd.MarkFlagRequired("file")

	addHeaderFlags(docFromTemplateCmd)
	addHeaderFlags(docEditCmd)

	docShowCmd.Flags().BoolVar(&docJSON, "json", false, "Print the full document as JSON")

	docEditCmd.Flags().StringArrayVar(&docSets, "set", nil, "Set a value: id=value (repeatable)")
	docEditCmd.Flags().StringArrayVar(&docClears, "clear", nil, "Clear a value by id (repeatable)")
	docEditCmd.Flags().StringVar(&docComment, "comment", "", "Revision comment")

	docRejectCmd.Flags().StringVar(&docComment, "comment", "", "Why the document is rejected (required)")
	_ = docRejectCmd.MarkFlagRequired("comment")

	docSummaryCmd.Flags().DurationVar(&docWait, "wait", 0, "Wait up to this long for a summary rebuilt after now")

	docCmd.AddCommand(docCreateCmd, docFromTemplateCmd, docShowCmd, docEditCmd,
		docVerifyCmd, docApproveCmd, docRejectCmd, docListCmd, docSummaryCmd)
	rootCmd.AddCommand(docCmd)
}

func addHeaderFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&docName, "name", "", "Document name")
	cmd.Flags().StringVar(&docTag, "tag", "", "Equipment tag")
	cmd.Flags().StringVar(&docProject, "project", "", "Project ID")
	cmd.Flags().StringVar(&docClient, "client", "", "Client ID")
	cmd.Flags().StringVar(&docDiscipline, "discipline", "", "Engineering discipline")
}

func runDocCreate(cmd *cobra.Command, args []string) error {
	def, err := scaffold.LoadDocument(docFile)
	if err != nil {
		return printer.Error("invalid document definition", err.Error(), nil)
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	doc, err := s.engine.CreateDocument(cmd.Context(), s.scope, *def)
	if err != nil {
		return fail(err)
	}
	kind := "document"
	if doc.IsTemplate {
		kind = "template"
	}
	printer.Success("Created %s %s (%s)\n", kind, doc.ID, doc.Header.Tag)
	return nil
}

func runDocFromTemplate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	templateID, err := s.documentID(ctx, args[0])
	if err != nil {
		return fail(err)
	}
	doc, err := s.engine.CreateFromTemplate(ctx, s.scope, templateID, datasheet.Header{
		Name:       docName,
		Tag:        docTag,
		ProjectID:  docProject,
		ClientID:   docClient,
		Discipline: docDiscipline,
	})
	if err != nil {
		return fail(err)
	}
	printer.Success("Created document %s (%s) from template %s\n", doc.ID, doc.Header.Tag, templateID)
	return nil
}

func runDocShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.documentID(ctx, args[0])
	if err != nil {
		return fail(err)
	}
	state, err := s.engine.GetDocument(ctx, s.scope, id)
	if err != nil {
		return fail(err)
	}
	if docJSON {
		return printJSON(state)
	}

	doc := state.Document
	printer.Info("%s  %s  [%s]\n", doc.Header.Tag, doc.Header.Name, printer.Status(doc.Status))
	printer.Info("ID:         %s\n", doc.ID)
	printer.Info("Project:    %s\n", doc.Header.ProjectID)
	printer.Info("Discipline: %s\n", doc.Header.Discipline)
	if doc.IsTemplate {
		printer.Info("Template:   yes\n")
	}
	if doc.ParentDocumentID != "" {
		printer.Info("From:       %s\n", doc.ParentDocumentID)
	}
	printer.Info("Revisions:  %d\n", state.LatestSequence)
	if doc.RejectionComment != "" {
		printer.Warning("Rejected by %s: %s\n", doc.RejectedBy, doc.RejectionComment)
	}

	for _, sub := range sortedSubsections(doc.Layout) {
		printer.Info("\n%s\n", sub.Title)
		for _, f := range sub.Fields {
			value := "-"
			if v, ok := state.Values[f.DefinitionID]; ok {
				value = v
				if f.UOM != "" {
					value += " " + f.UOM
				}
			}
			printer.Info("  %-24s %s\n", f.Label, value)
		}
	}
	return nil
}

func sortedSubsections(layout []datasheet.Subsection) []datasheet.Subsection {
	out := append([]datasheet.Subsection(nil), layout...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		fields := append([]datasheet.FieldDefinition(nil), out[i].Fields...)
		sort.SliceStable(fields, func(a, b int) bool { return fields[a].Order < fields[b].Order })
		out[i].Fields = fields
	}
	return out
}

func runDocEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	values, err := parseAssignments(docSets, docClears)
	if err != nil {
		return err
	}
	upd := lifecycle.DocumentUpdate{Values: values, Comment: docComment}
	if patch := headerPatch(cmd); patch != nil {
		upd.Header = patch
	}
	if len(upd.Values) == 0 && upd.Header == nil {
		return printer.Error("nothing to change", "Pass --set, --clear or a header flag.", nil)
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
	res, err := s.engine.UpdateDocument(ctx, s.scope, id, upd)
	if err != nil {
		return fail(err)
	}
	printer.Success("Revision #%d recorded, status %s\n", res.Revision.Sequence, printer.Status(res.Document.Status))
	return nil
}

// headerPatch collects the header flags that were explicitly passed.
func headerPatch(cmd *cobra.Command) *datasheet.HeaderPatch {
	var patch datasheet.HeaderPatch
	changed := false
	for flag, dst := range map[string]**string{
		"name":       &patch.Name,
		"tag":        &patch.Tag,
		"project":    &patch.ProjectID,
		"client":     &patch.ClientID,
		"discipline": &patch.Discipline,
	} {
		if cmd.Flags().Changed(flag) {
			v := cmd.Flags().Lookup(flag).Value.String()
			*dst = &v
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return &patch
}

func runDisposition(cmd *cobra.Command, ref string, action lifecycle.Action) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.documentID(ctx, ref)
	if err != nil {
		return fail(err)
	}

	var doc *datasheet.Document
	switch action {
	case lifecycle.ActionVerify:
		doc, err = s.engine.Verify(ctx, s.scope, id)
	case lifecycle.ActionApprove:
		doc, err = s.engine.Approve(ctx, s.scope, id)
	case lifecycle.ActionReject:
		doc, err = s.engine.Reject(ctx, s.scope, id, docComment)
	default:
		return fmt.Errorf("unsupported action %s", action)
	}
	if err != nil {
		return fail(err)
	}
	printer.Success("%s %s is now %s\n", doc.Header.Tag, doc.ID, printer.Status(doc.Status))
	return nil
}

func runDocList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	summaries, err := s.engine.ListSummaries(ctx, s.scope)
	if err != nil {
		return fail(err)
	}
	if len(summaries) == 0 {
		printer.Info("No documents found.\n")
		return nil
	}

	printer.Info("%-10s  %-14s  %-24s  %-14s  %4s  %4s\n", "ID", "TAG", "NAME", "STATUS", "REVS", "SETS")
	for _, sum := range summaries {
		name := sum.Name
		if sum.IsTemplate {
			name += " (template)"
		}
		printer.Info("%-10s  %-14s  %-24s  %-14s  %4d  %4d\n",
			shortID(sum.DocumentID), sum.Tag, truncate(name, 24), sum.Status, sum.RevisionCount, sum.ValueSetCount)
	}
	return nil
}

func runDocSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.documentID(ctx, args[0])
	if err != nil {
		return fail(err)
	}

	var summary *datasheet.DocumentSummary
	if docWait > 0 {
		summary, err = watch.PollForSummary(ctx, s.engine, s.scope, id, time.Now().UnixMilli(), docWait)
		var typed *datasheet.Error
		if err != nil && !errors.As(err, &typed) {
			return printer.Error("summary not rebuilt", err.Error(),
				[]string{"Check that lodged is running; it rebuilds summaries in the background."})
		}
	} else {
		summary, err = s.engine.GetSummary(ctx, s.scope, id)
	}
	if err != nil {
		return fail(err)
	}
	return printJSON(summary)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
