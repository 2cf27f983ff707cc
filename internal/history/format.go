// Package history lists and formats the revision ledger of a document for the CLI.
package history

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/lodge/pkg/datasheet"
)

// FormatTable writes revisions as a table with columns SEQ, ID, STATUS, BY,
// AGE and COMMENT. Returns the number of revisions written.
func FormatTable(w io.Writer, revisions []*datasheet.Revision, documentLabel string, now time.Time) int {
	if len(revisions) == 0 {
		fmt.Fprintf(w, "No revisions found for %s\n", documentLabel)
		return 0
	}

	fmt.Fprintf(w, "Revisions of %s:\n\n", documentLabel)
	fmt.Fprintf(w, "%-5s %-10s %-14s %-16s %-8s %s\n",
		"SEQ", "ID", "STATUS", "BY", "AGE", "COMMENT")
	fmt.Fprintf(w, "%-5s %-10s %-14s %-16s %-8s %s\n",
		"-----", "----------", "--------------", "----------------", "--------", "----------------------------------------")

	for _, r := range revisions {
		fmt.Fprintf(w, "%-5d %-10s %-14s %-16s %-8s %s\n",
			r.Sequence,
			formatID(r.ID),
			r.Status,
			formatActor(r.CreatedBy),
			formatAge(r.CreatedAtMs, now),
			formatComment(r),
		)
	}

	noun := "revision"
	if len(revisions) != 1 {
		noun = "revisions"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(revisions), noun)
	return len(revisions)
}

// FormatJSONL writes one compact JSON object per revision.
func FormatJSONL(w io.Writer, revisions []*datasheet.Revision) error {
	for _, r := range revisions {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal revision to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatJSON writes v as indented JSON followed by a newline.
func FormatJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID truncates an ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatActor(actor string) string {
	if actor == "" {
		return "-"
	}
	if len(actor) > 16 {
		return actor[:13] + "..."
	}
	return actor
}

// formatComment shows the first line of the comment, truncated to 40
// characters. Restores without a comment show their origin.
func formatComment(r *datasheet.Revision) string {
	comment := strings.TrimSpace(strings.SplitN(r.Comment, "\n", 2)[0])
	if comment == "" && r.RestoredFromID != "" {
		comment = fmt.Sprintf("restored from #%d", r.RestoredFromSequence)
	}
	if comment == "" {
		return "-"
	}
	if len(comment) > 40 {
		return comment[:37] + "..."
	}
	return comment
}

// formatAge renders a millisecond timestamp as "2m ago", "1h ago" and so on.
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}
	diff := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
