package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/lodge/internal/printer"
	"github.com/dyluth/lodge/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchAll          bool
	watchDocument     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream lifecycle notifications as they happen",
	Long: `Stream lifecycle notifications (verifications, approvals, rejections,
restores, ratings locks) published by any Lodge process on this instance.

By default only notifications addressed to --actor are shown. Delivery is
live only: notifications sent while nothing is watching are not replayed.

Output Formats:
  default - Human-readable output with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  lodge watch --actor alice
  lodge watch --all --output=json > notifications.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().BoolVar(&watchAll, "all", false, "Show notifications for every recipient")
	watchCmd.Flags().StringVar(&watchDocument, "doc", "", "Only show notifications about this document")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	filter := watch.Filter{}
	if !watchAll {
		if s.scope.ActorID == "" {
			return printer.Error("no actor to watch for", "Pass --actor, set LODGE_ACTOR, or use --all.", nil)
		}
		filter.Actor = s.scope.ActorID
	}
	if watchDocument != "" {
		if filter.DocumentID, err = s.documentID(ctx, watchDocument); err != nil {
			return fail(err)
		}
	}

	if err := watch.StreamNotifications(ctx, s.store, filter, outputFormat, printer.Out); err != nil && err != context.Canceled {
		return printer.Error("watch stopped", err.Error(), nil)
	}
	return nil
}
