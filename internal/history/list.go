package history

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/pkg/datasheet"
)

// OutputFormat selects how List writes revisions.
type OutputFormat string

const (
	// OutputFormatDefault is a table with truncated comments
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL is one revision summary per line
	OutputFormatJSONL OutputFormat = "jsonl"
)

// Lister pages through a document's revisions, newest first.
type Lister interface {
	ListRevisions(ctx context.Context, scope lifecycle.Scope, documentID string, page, pageSize int) (*lifecycle.RevisionPage, error)
}

// List walks every revision page of a document, applies criteria and writes
// the matching revisions newest first.
func List(ctx context.Context, l Lister, scope lifecycle.Scope, documentID string, format OutputFormat, criteria *Criteria, w io.Writer) error {
	if format != OutputFormatDefault && format != OutputFormatJSONL {
		return fmt.Errorf("unknown output format: %s", format)
	}

	var matched []*datasheet.Revision
	for page := 1; ; page++ {
		result, err := l.ListRevisions(ctx, scope, documentID, page, lifecycle.MaxPageSize)
		if err != nil {
			return err
		}
		for _, rev := range result.Revisions {
			if criteria.Matches(rev) {
				matched = append(matched, rev)
			}
		}
		if len(result.Revisions) == 0 || int64(page*result.PageSize) >= result.Total {
			break
		}
	}

	if format == OutputFormatJSONL {
		if err := FormatJSONL(w, matched); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
		return nil
	}
	FormatTable(w, matched, "document "+formatID(documentID), time.Now())
	return nil
}
