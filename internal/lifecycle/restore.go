package lifecycle

import (
	"context"
	"fmt"

	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/pkg/datasheet"
	"go.opentelemetry.io/otel/attribute"
)

// Restore rolls a document back to a stored revision in one unit of work.
//
// The stored snapshot is validated, replayed over the current state with
// RestoreReplay (header and layout rewritten, dispositions replaced by an
// editable status, rejection cleared) and then exactly one new revision is
// minted that records where it was restored from. comment defaults to
// "restored from revision #N".
func (e *Engine) Restore(ctx context.Context, scope Scope, documentID, revisionID, comment string) (res *Result, err error) {
	const op = "restore"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("revision_id", revisionID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		res = nil
		target, err := tx.Revision(ctx, revisionID)
		if datasheet.IsNotFound(err) || (err == nil && target.DocumentID != documentID) {
			return datasheet.NewNotFoundError(op, "revision %s not found on document %s", revisionID, documentID)
		}
		if err != nil {
			return err
		}
		snap, err := decodeStoredSnapshot(op, target)
		if err != nil {
			return err
		}

		doc, err := loadDocument(ctx, op, tx)
		if err != nil {
			return err
		}
		headerChanged, err := e.applyMutation(ctx, tx, RestoreReplay, doc, mutation{snapshot: snap}, scope.ActorID)
		if err != nil {
			return err
		}

		current, err := tx.Document(ctx)
		if err != nil {
			return err
		}
		values, err := tx.FieldValues(ctx)
		if err != nil {
			return err
		}
		note := comment
		if note == "" {
			note = fmt.Sprintf("restored from revision #%d", target.Sequence)
		}
		rev, err := e.createRevision(ctx, tx, current, values, scope.ActorID, note, target)
		if err != nil {
			return err
		}

		if err := e.rebuildAffected(ctx, tx, current, headerChanged); err != nil {
			return err
		}
		tx.AfterCommit(func(context.Context) {
			e.event(logging.EventRevisionRestored).
				Str("document_id", documentID).
				Int("restored_from", target.Sequence).
				Int("sequence", rev.Sequence).
				Str("status", string(current.Status)).
				Str("actor", scope.ActorID).
				Msg("document restored")
		})
		res = &Result{Document: current, Values: values, Revision: rev}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
