package lifecycle

import (
	"context"
	"strings"

	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// RatingsPatch edits a ratings block. A nil Title keeps the title; a nil
// entry in Ratings removes that rating.
type RatingsPatch struct {
	Title   *string            `json:"title,omitempty"`
	Ratings map[string]*string `json:"ratings,omitempty"`
}

// CreateRatingsBlock adds an unlocked ratings block to a document.
func (e *Engine) CreateRatingsBlock(ctx context.Context, scope Scope, documentID, title string, ratings map[string]string) (block *datasheet.RatingsBlock, err error) {
	const op = "create_ratings_block"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID))
	defer finish(&err)

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, datasheet.NewValidationError(op, "a ratings block needs a title",
			datasheet.Issue{Path: "title", Message: "is required"})
	}
	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		block = nil
		if _, err := loadDocument(ctx, op, tx); err != nil {
			return err
		}
		b := &datasheet.RatingsBlock{
			ID:          uuid.New().String(),
			DocumentID:  documentID,
			Title:       title,
			Ratings:     make(map[string]string, len(ratings)),
			CreatedBy:   scope.ActorID,
			CreatedAtMs: e.nowMs(),
		}
		for k, v := range ratings {
			b.Ratings[k] = v
		}
		if err := tx.PutRatingsBlock(b); err != nil {
			return err
		}
		block = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// UpdateRatingsBlock edits an unlocked ratings block.
func (e *Engine) UpdateRatingsBlock(ctx context.Context, scope Scope, documentID, blockID string, patch RatingsPatch) (block *datasheet.RatingsBlock, err error) {
	const op = "update_ratings_block"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("ratings_block_id", blockID))
	defer finish(&err)

	if patch.Title == nil && len(patch.Ratings) == 0 {
		return nil, datasheet.NewValidationError(op, "update contains no changes")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, datasheet.NewValidationError(op, "a ratings block needs a title",
			datasheet.Issue{Path: "title", Message: "cannot be empty"})
	}
	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		block = nil
		current, err := loadRatingsBlock(ctx, op, tx, blockID)
		if err != nil {
			return err
		}
		if current.Locked() {
			return datasheet.NewConflictError(op, "ratings block %s is locked by %s", blockID, current.LockedBy)
		}

		next := *current
		next.Ratings = make(map[string]string, len(current.Ratings))
		for k, v := range current.Ratings {
			next.Ratings[k] = v
		}
		if patch.Title != nil {
			next.Title = strings.TrimSpace(*patch.Title)
		}
		for k, v := range patch.Ratings {
			if v == nil {
				delete(next.Ratings, k)
			} else {
				next.Ratings[k] = *v
			}
		}
		if err := tx.PutRatingsBlock(&next); err != nil {
			return err
		}
		block = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// DeleteRatingsBlock removes an unlocked ratings block.
func (e *Engine) DeleteRatingsBlock(ctx context.Context, scope Scope, documentID, blockID string) (err error) {
	const op = "delete_ratings_block"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("ratings_block_id", blockID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return err
	}
	return e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		current, err := loadRatingsBlock(ctx, op, tx, blockID)
		if err != nil {
			return err
		}
		if current.Locked() {
			return datasheet.NewConflictError(op, "ratings block %s is locked by %s", blockID, current.LockedBy)
		}
		tx.DeleteRatingsBlock(blockID)
		return nil
	})
}

// LockRatingsBlock locks a ratings block once its document is Approved.
// Locking an already locked block returns it unchanged.
func (e *Engine) LockRatingsBlock(ctx context.Context, scope Scope, documentID, blockID string) (block *datasheet.RatingsBlock, err error) {
	const op = "lock_ratings_block"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("ratings_block_id", blockID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		block = nil
		current, err := loadRatingsBlock(ctx, op, tx, blockID)
		if err != nil {
			return err
		}
		if current.Locked() {
			block = current
			return nil
		}
		doc, err := loadDocument(ctx, op, tx)
		if err != nil {
			return err
		}
		if doc.Status != datasheet.StatusApproved {
			return datasheet.NewConflictError(op,
				"cannot lock ratings of document in status %s (requires %s)", doc.Status, datasheet.StatusApproved)
		}

		next := *current
		next.LockedBy = scope.ActorID
		next.LockedAtMs = e.nowMs()
		if err := tx.PutRatingsBlock(&next); err != nil {
			return err
		}
		tx.AfterCommit(func(context.Context) {
			e.event(logging.EventRatingsLocked).
				Str("document_id", documentID).
				Str("ratings_block_id", blockID).
				Str("actor", scope.ActorID).
				Msg("ratings block locked")
		})
		block = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// UnlockRatingsBlock clears a ratings block lock regardless of document
// status. Callers must have checked that the actor holds operator rights.
func (e *Engine) UnlockRatingsBlock(ctx context.Context, scope Scope, documentID, blockID string) (block *datasheet.RatingsBlock, err error) {
	const op = "unlock_ratings_block"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("ratings_block_id", blockID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		block = nil
		current, err := loadRatingsBlock(ctx, op, tx, blockID)
		if err != nil {
			return err
		}
		if !current.Locked() {
			block = current
			return nil
		}
		next := *current
		previous := next.LockedBy
		next.LockedBy = ""
		next.LockedAtMs = 0
		if err := tx.PutRatingsBlock(&next); err != nil {
			return err
		}
		tx.AfterCommit(func(context.Context) {
			e.event(logging.EventRatingsUnlocked).
				Str("document_id", documentID).
				Str("ratings_block_id", blockID).
				Str("locked_by", previous).
				Str("actor", scope.ActorID).
				Msg("ratings block unlocked")
		})
		block = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// ListRatingsBlocks returns a document's ratings blocks, oldest first.
func (e *Engine) ListRatingsBlocks(ctx context.Context, scope Scope, documentID string) (blocks []*datasheet.RatingsBlock, err error) {
	const op = "list_ratings_blocks"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}
	blocks, err = e.store.ListRatingsBlocks(ctx, documentID)
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}
	return blocks, nil
}

func loadRatingsBlock(ctx context.Context, op string, tx *datasheet.Tx, blockID string) (*datasheet.RatingsBlock, error) {
	b, err := tx.RatingsBlock(ctx, blockID)
	if datasheet.IsNotFound(err) || (err == nil && b.DocumentID != tx.DocumentID()) {
		return nil, datasheet.NewNotFoundError(op, "ratings block %s not found on document %s", blockID, tx.DocumentID())
	}
	return b, err
}
