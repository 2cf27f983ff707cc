package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/internal/printer"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/spf13/cobra"
)

var (
	ratingsTitle  string
	ratingsSets   []string
	ratingsClears []string
)

var ratingsCmd = &cobra.Command{
	Use:   "ratings",
	Short: "Manage ratings blocks attached to a document",
	Long: `Manage ratings blocks: named groups of ratings kept beside the datasheet.

A block can be locked once its document is Approved. Locked blocks cannot be
edited or deleted; only an operator listed in lodge.yml can unlock them.`,
}

var ratingsListCmd = &cobra.Command{
	Use:   "list DOC",
	Short: "List ratings blocks oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runRatingsList,
}

var ratingsCreateCmd = &cobra.Command{
	Use:   "create DOC --title TITLE [--set key=value ...]",
	Short: "Create an unlocked ratings block",
	Args:  cobra.ExactArgs(1),
	RunE:  runRatingsCreate,
}

var ratingsUpdateCmd = &cobra.Command{
	Use:   "update DOC BLOCK",
	Short: "Change the title or ratings of an unlocked block",
	Args:  cobra.ExactArgs(2),
	RunE:  runRatingsUpdate,
}

var ratingsDeleteCmd = &cobra.Command{
	Use:   "delete DOC BLOCK",
	Short: "Delete an unlocked ratings block",
	Args:  cobra.ExactArgs(2),
	RunE:  runRatingsDelete,
}

var ratingsLockCmd = &cobra.Command{
	Use:   "lock DOC BLOCK",
	Short: "Lock a ratings block of an Approved document",
	Args:  cobra.ExactArgs(2),
	RunE:  runRatingsLock,
}

var ratingsUnlockCmd = &cobra.Command{
	Use:   "unlock DOC BLOCK",
	Short: "Unlock a ratings block (operators only)",
	Args:  cobra.ExactArgs(2),
	RunE:  runRatingsLock,
}

func init() {
	ratingsCreateCmd.Flags().StringVar(&ratingsTitle, "title", "", "Block title")
	ratingsCreateCmd.Flags().StringArrayVar(&ratingsSets, "set", nil, "Rating: key=value (repeatable)")
	_ = ratingsCreateCmd.MarkFlagRequired("title")

	ratingsUpdateCmd.Flags().StringVar(&ratingsTitle, "title", "", "New block title")
	ratingsUpdateCmd.Flags().StringArrayVar(&ratingsSets, "set", nil, "Set a rating: key=value (repeatable)")
	ratingsUpdateCmd.Flags().StringArrayVar(&ratingsClears, "clear", nil, "Remove a rating by key (repeatable)")

	ratingsCmd.AddCommand(ratingsListCmd, ratingsCreateCmd, ratingsUpdateCmd, ratingsDeleteCmd, ratingsLockCmd, ratingsUnlockCmd)
	rootCmd.AddCommand(ratingsCmd)
}

func runRatingsList(cmd *cobra.Command, args []string) error {
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
	blocks, err := s.engine.ListRatingsBlocks(ctx, s.scope, id)
	if err != nil {
		return fail(err)
	}
	if len(blocks) == 0 {
		printer.Info("No ratings blocks.\n")
		return nil
	}
	for _, b := range blocks {
		printBlock(b)
	}
	return nil
}

func printBlock(b *datasheet.RatingsBlock) {
	state := "unlocked"
	if b.Locked() {
		state = fmt.Sprintf("locked by %s at %s", b.LockedBy, time.UnixMilli(b.LockedAtMs).Format(time.RFC3339))
	}
	printer.Info("%s  %s  (%s)\n", b.ID, b.Title, state)

	keys := make([]string, 0, len(b.Ratings))
	for k := range b.Ratings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printer.Info("  %-20s %s\n", k, b.Ratings[k])
	}
}

func runRatingsCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	patch, err := parseAssignments(ratingsSets, nil)
	if err != nil {
		return err
	}
	ratings := make(map[string]string, len(patch))
	for k, v := range patch {
		ratings[k] = *v
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
	block, err := s.engine.CreateRatingsBlock(ctx, s.scope, id, ratingsTitle, ratings)
	if err != nil {
		return fail(err)
	}
	printer.Success("Created ratings block %s\n", block.ID)
	return nil
}

func runRatingsUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ratings, err := parseAssignments(ratingsSets, ratingsClears)
	if err != nil {
		return err
	}
	patch := lifecycle.RatingsPatch{Ratings: ratings}
	if cmd.Flags().Changed("title") {
		patch.Title = &ratingsTitle
	}
	if patch.Title == nil && len(patch.Ratings) == 0 {
		return printer.Error("nothing to change", "Pass --title, --set or --clear.", nil)
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
	block, err := s.engine.UpdateRatingsBlock(ctx, s.scope, id, args[1], patch)
	if err != nil {
		return fail(err)
	}
	printBlock(block)
	return nil
}

func runRatingsDelete(cmd *cobra.Command, args []string) error {
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
	if err := s.engine.DeleteRatingsBlock(ctx, s.scope, id, args[1]); err != nil {
		return fail(err)
	}
	printer.Success("Deleted ratings block %s\n", args[1])
	return nil
}

// runRatingsLock serves both lock and unlock.
func runRatingsLock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	unlock := cmd.Name() == "unlock"
	if unlock && !s.cfg.IsOperator(s.scope.ActorID) {
		return printer.ErrorWithContext(
			"not an operator",
			"Only operators can unlock ratings blocks.",
			map[string]string{"Actor": s.scope.ActorID},
			[]string{"Ask an operator, or add the actor to operators in lodge.yml."},
		)
	}

	id, err := s.documentID(ctx, args[0])
	if err != nil {
		return fail(err)
	}
	var block *datasheet.RatingsBlock
	if unlock {
		block, err = s.engine.UnlockRatingsBlock(ctx, s.scope, id, args[1])
	} else {
		block, err = s.engine.LockRatingsBlock(ctx, s.scope, id, args[1])
	}
	if err != nil {
		return fail(err)
	}
	printBlock(block)
	return nil
}
