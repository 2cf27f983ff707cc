package lifecycle

import (
	"context"
	"sort"

	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/pkg/datasheet"
)

// Notifier delivers user-facing messages about a document.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, documentID, message string) error
}

// Rebuilder queues derived-data rebuilds for documents and wakes the workers.
type Rebuilder interface {
	Enqueue(ctx context.Context, documentIDs ...string) error
	Kick(ctx context.Context) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, []string, string, string) error { return nil }

type nopRebuilder struct{}

func (nopRebuilder) Enqueue(context.Context, ...string) error { return nil }
func (nopRebuilder) Kick(context.Context) error               { return nil }

// notifyAfterCommit sends message to recipients once tx has committed.
// Delivery failures are logged and counted, never returned.
func (e *Engine) notifyAfterCommit(tx *datasheet.Tx, recipients []string, message string) {
	documentID := tx.DocumentID()
	recipients = uniqueRecipients(recipients)
	if len(recipients) == 0 {
		return
	}
	tx.AfterCommit(func(ctx context.Context) {
		if err := e.notifier.Notify(ctx, recipients, documentID, message); err != nil {
			e.metrics.HookFailed("notify")
			logging.Event(e.logger, logging.EventHookFailed).
				Err(err).
				Str("hook", "notify").
				Str("document_id", documentID).
				Msg("notification failed")
		}
	})
}

// rebuildAfterCommit queues projection rebuilds once tx has committed.
// Failures are logged and counted, never returned.
func (e *Engine) rebuildAfterCommit(tx *datasheet.Tx, documentIDs ...string) {
	if len(documentIDs) == 0 {
		return
	}
	tx.AfterCommit(func(ctx context.Context) {
		err := e.rebuilder.Enqueue(ctx, documentIDs...)
		if err == nil {
			err = e.rebuilder.Kick(ctx)
		}
		if err != nil {
			e.metrics.HookFailed("rebuild")
			logging.Event(e.logger, logging.EventHookFailed).
				Err(err).
				Str("hook", "rebuild").
				Strs("document_ids", documentIDs).
				Msg("rebuild enqueue failed")
		}
	})
}

// stakeholders returns who should hear about a disposition: the creator and
// the last editor of the document.
func stakeholders(doc *datasheet.Document) []string {
	return []string{doc.CreatedBy, doc.UpdatedBy}
}

func uniqueRecipients(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
