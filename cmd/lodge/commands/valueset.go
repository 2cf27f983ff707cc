package commands

import (
	"fmt"
	"sort"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/internal/printer"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/spf13/cobra"
)

var (
	vsContext string
	vsParty   string
	vsSets    []string
	vsClears  []string
	vsJSON    bool
	varStatus string
	cmpParty  string
	cmpJSON   bool
)

var valuesetCmd = &cobra.Command{
	Use:     "valueset",
	Aliases: []string{"vs"},
	Short:   "Manage Requirement, Offered and AsBuilt value sets",
	Long: `Manage the value sets of a document.

Contexts:
  Requirement - The canonical target values, one per document
  Offered     - One per vendor party, prefilled from the Requirement
  AsBuilt     - What was delivered, one per document

Offered sets move Draft → Locked once the vendor offer is final. AsBuilt sets
move Draft → Verified. Values can only change while a set is Draft.`,
}

var valuesetListCmd = &cobra.Command{
	Use:   "list DOC",
	Short: "List value sets with their values",
	Args:  cobra.ExactArgs(1),
	RunE:  runValuesetList,
}

var valuesetEnsureCmd = &cobra.Command{
	Use:   "ensure DOC --context CONTEXT [--party PARTY]",
	Short: "Create a value set if it does not exist yet",
	Long: `Return the value set for a context (and party, for Offered), creating it
when missing. Creating an Offered or AsBuilt set also creates the Requirement.`,
	Args: cobra.ExactArgs(1),
	RunE: runValuesetEnsure,
}

var valuesetLockCmd = &cobra.Command{
	Use:   "lock DOC VALUESET",
	Short: "Lock a Draft Offered value set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValuesetTransition(cmd, args, datasheet.ValueSetLocked)
	},
}

var valuesetVerifyCmd = &cobra.Command{
	Use:   "verify DOC VALUESET",
	Short: "Verify a Draft AsBuilt value set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValuesetTransition(cmd, args, datasheet.ValueSetVerified)
	},
}

var valuesetSetCmd = &cobra.Command{
	Use:   "set DOC VALUESET",
	Short: "Set or clear values in a Draft value set",
	Args:  cobra.ExactArgs(2),
	RunE:  runValuesetSet,
}

var varianceCmd = &cobra.Command{
	Use:   "variance",
	Short: "Accept or reject deviations from the Requirement",
}

var varianceSetCmd = &cobra.Command{
	Use:   "set DOC VALUESET FIELD --status STATUS",
	Short: "Record a variance decision for a field",
	Long: `Record whether a deviating Offered or AsBuilt value is accepted.

Statuses: DeviatesAccepted, DeviatesRejected`,
	Args: cobra.ExactArgs(3),
	RunE: runVarianceSet,
}

var varianceClearCmd = &cobra.Command{
	Use:   "clear DOC VALUESET FIELD",
	Short: "Remove a variance decision",
	Args:  cobra.ExactArgs(3),
	RunE:  runVarianceSet,
}

var compareCmd = &cobra.Command{
	Use:   "compare DOC",
	Short: "Compare Requirement, Offered and AsBuilt values side by side",
	Long: `Show every field of the layout with its Requirement value next to each
Offered value and the AsBuilt value.

Markers:
  !  deviates from the Requirement
  ✓  deviation accepted
  ✗  deviation rejected`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	valuesetListCmd.Flags().BoolVar(&vsJSON, "json", false, "Print value sets as JSON")

	valuesetEnsureCmd.Flags().StringVar(&vsContext, "context", "", "Requirement, Offered or AsBuilt")
	valuesetEnsureCmd.Flags().StringVar(&vsParty, "party", "", "Vendor party (Offered only)")
	_ = valuesetEnsureCmd.MarkFlagRequired("context")

	valuesetSetCmd.Flags().StringArrayVar(&vsSets, "set", nil, "Set a value: id=value (repeatable)")
	valuesetSetCmd.Flags().StringArrayVar(&vsClears, "clear", nil, "Clear a value by id (repeatable)")

	varianceSetCmd.Flags().StringVar(&varStatus, "status", "", "DeviatesAccepted or DeviatesRejected")
	_ = varianceSetCmd.MarkFlagRequired("status")

	compareCmd.Flags().StringVar(&cmpParty, "party", "", "Only show this Offered party")
	compareCmd.Flags().BoolVar(&cmpJSON, "json", false, "Print comparison data as JSON")

	valuesetCmd.AddCommand(valuesetListCmd, valuesetEnsureCmd, valuesetLockCmd, valuesetVerifyCmd, valuesetSetCmd)
	varianceCmd.AddCommand(varianceSetCmd, varianceClearCmd)
	rootCmd.AddCommand(valuesetCmd, varianceCmd, compareCmd)
}

func runValuesetList(cmd *cobra.Command, args []string) error {
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
	views, err := s.engine.ListValueSets(ctx, s.scope, id)
	if err != nil {
		return fail(err)
	}
	if vsJSON {
		return printJSON(views)
	}
	if len(views) == 0 {
		printer.Info("No value sets yet. Create one with 'lodge valueset ensure'.\n")
		return nil
	}
	for _, v := range views {
		printValueSet(v)
	}
	return nil
}

func printValueSet(v *lifecycle.ValueSetView) {
	label := string(v.ValueSet.Context)
	if v.ValueSet.PartyID != "" {
		label += " " + v.ValueSet.PartyID
	}
	printer.Info("%s  [%s]  %s\n", label, v.ValueSet.Status, v.ValueSet.ID)

	keys := make([]string, 0, len(v.Values))
	for k := range v.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line := fmt.Sprintf("  %-20s %s", k, v.Values[k])
		if o, ok := v.Variances[k]; ok {
			line += fmt.Sprintf("  (%s by %s)", o.Status, o.ReviewedBy)
		}
		printer.Info("%s\n", line)
	}
}

func runValuesetEnsure(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := datasheet.ValueSetContext(vsContext)
	if err := c.Validate(); err != nil {
		return printer.Error("invalid --context", err.Error(), []string{"Valid contexts: Requirement, Offered, AsBuilt"})
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
	vs, err := s.engine.EnsureValueSet(ctx, s.scope, id, c, vsParty)
	if err != nil {
		return fail(err)
	}
	printer.Success("%s value set %s [%s]\n", vs.Context, vs.ID, vs.Status)
	return nil
}

func runValuesetTransition(cmd *cobra.Command, args []string, target datasheet.ValueSetStatus) error {
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
	vs, err := s.engine.TransitionValueSet(ctx, s.scope, id, args[1], target)
	if err != nil {
		return fail(err)
	}
	printer.Success("%s value set %s is now %s\n", vs.Context, vs.ID, vs.Status)
	return nil
}

func runValuesetSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	values, err := parseAssignments(vsSets, vsClears)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return printer.Error("nothing to change", "Pass --set or --clear.", nil)
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
	view, err := s.engine.SetValueSetValues(ctx, s.scope, id, args[1], values)
	if err != nil {
		return fail(err)
	}
	printValueSet(view)
	return nil
}

func runVarianceSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var status *datasheet.VarianceStatus
	if cmd.Name() == "set" {
		st := datasheet.VarianceStatus(varStatus)
		if err := st.Validate(); err != nil {
			return printer.Error("invalid --status", err.Error(), []string{"Valid statuses: DeviatesAccepted, DeviatesRejected"})
		}
		status = &st
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
	override, err := s.engine.PatchVariance(ctx, s.scope, id, args[1], args[2], status)
	if err != nil {
		return fail(err)
	}
	if override == nil {
		printer.Success("Variance on %s cleared\n", args[2])
		return nil
	}
	printer.Success("Variance on %s set to %s\n", args[2], override.Status)
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
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
	data, err := s.engine.GetCompareData(ctx, s.scope, id, cmpParty)
	if err != nil {
		return fail(err)
	}
	if cmpJSON {
		return printJSON(data)
	}
	fmt.Fprintln(printer.Out, printer.CompareTable(data))
	return nil
}
