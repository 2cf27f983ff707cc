// Package watch follows lifecycle activity as it happens: live notifications
// and summary rebuilds.
package watch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/internal/notify"
	"github.com/dyluth/lodge/pkg/datasheet"
)

// OutputFormat selects how streamed notifications are written.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// Filter narrows the notification stream. Empty fields match everything.
type Filter struct {
	Actor      string // Only notifications addressed to this actor
	DocumentID string // Only notifications about this document
}

// Matches reports whether n passes the filter.
func (f Filter) Matches(n *notify.Notification) bool {
	if f.DocumentID != "" && n.DocumentID != f.DocumentID {
		return false
	}
	if f.Actor != "" && !n.For(f.Actor) {
		return false
	}
	return true
}

// StreamNotifications writes every matching notification to w until ctx is
// cancelled. Undecodable messages are reported and skipped.
func StreamNotifications(ctx context.Context, store *datasheet.Client, filter Filter, format OutputFormat, w io.Writer) error {
	sub, err := notify.Subscribe(ctx, store)
	if err != nil {
		return err
	}
	defer sub.Close()

	f := newFormatter(format, w)
	events, errs := sub.Events(), sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-events:
			if !ok {
				return nil
			}
			if !filter.Matches(n) {
				continue
			}
			if err := f.FormatNotification(n); err != nil {
				return fmt.Errorf("failed to write notification: %w", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err := f.FormatError(err); err != nil {
				return fmt.Errorf("failed to write notification: %w", err)
			}
		}
	}
}

// SummaryReader is the read side used by PollForSummary.
type SummaryReader interface {
	GetSummary(ctx context.Context, scope lifecycle.Scope, documentID string) (*datasheet.DocumentSummary, error)
}

// PollForSummary polls until the document's summary has been rebuilt at or
// after sinceMs. Polls every 200ms for the specified timeout duration.
func PollForSummary(ctx context.Context, r SummaryReader, scope lifecycle.Scope, documentID string, sinceMs int64, timeout time.Duration) (*datasheet.DocumentSummary, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for summary of %s after %v", documentID, timeout)

		case <-ticker.C:
			summary, err := r.GetSummary(ctx, scope, documentID)
			if err != nil {
				if datasheet.IsNotFound(err) {
					// Not built yet, continue polling
					continue
				}
				return nil, fmt.Errorf("failed to read summary: %w", err)
			}
			if summary.RebuiltAtMs < sinceMs {
				continue
			}
			return summary, nil
		}
	}
}
