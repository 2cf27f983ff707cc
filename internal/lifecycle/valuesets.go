package lifecycle

import (
	"context"
	"fmt"
	"sort"

	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ValueSetView is a value set with its values and variance overrides.
type ValueSetView struct {
	ValueSet  *datasheet.ValueSet                    `json:"value_set"`
	Values    map[string]string                      `json:"values"`
	Variances map[string]*datasheet.VarianceOverride `json:"variances,omitempty"`
}

// valueSetTransitions lists the only legal status changes per context.
var valueSetTransitions = map[datasheet.ValueSetContext]datasheet.ValueSetStatus{
	datasheet.ContextRequirement: datasheet.ValueSetLocked,
	datasheet.ContextOffered:     datasheet.ValueSetLocked,
	datasheet.ContextAsBuilt:     datasheet.ValueSetVerified,
}

// EnsureValueSet returns the value set for (context, party), creating it if
// needed. The Requirement set is created first on any value set operation and
// is pre-filled from the live document values; Offered and AsBuilt sets are
// pre-filled from the Requirement. Offered requires a party; the other
// contexts forbid one.
func (e *Engine) EnsureValueSet(ctx context.Context, scope Scope, documentID string, vsContext datasheet.ValueSetContext, partyID string) (vs *datasheet.ValueSet, err error) {
	const op = "ensure_value_set"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("context", string(vsContext)))
	defer finish(&err)

	if err := vsContext.Validate(); err != nil {
		return nil, datasheet.NewValidationError(op, err.Error(), datasheet.Issue{Path: "context", Message: err.Error()})
	}
	if vsContext == datasheet.ContextOffered && partyID == "" {
		return nil, datasheet.NewValidationError(op, "offered value sets require a party",
			datasheet.Issue{Path: "party_id", Message: "is required for Offered"})
	}
	if vsContext != datasheet.ContextOffered && partyID != "" {
		return nil, datasheet.NewValidationError(op, fmt.Sprintf("%s value sets cannot carry a party", vsContext),
			datasheet.Issue{Path: "party_id", Message: "is only allowed for Offered"})
	}
	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		vs = nil
		if _, err := loadDocument(ctx, op, tx); err != nil {
			return err
		}
		requirement, requirementValues, err := e.ensureRequirement(ctx, tx, scope.ActorID)
		if err != nil {
			return err
		}
		if vsContext == datasheet.ContextRequirement {
			vs = requirement
			return nil
		}

		id, err := tx.ValueSetID(ctx, datasheet.ValueSetSlot(vsContext, partyID))
		if err == nil {
			existing, err := tx.ValueSet(ctx, id)
			if err != nil {
				return indexedValueSetError(op, id, err)
			}
			vs = existing
			return nil
		}
		if !datasheet.IsNotFound(err) {
			return err
		}

		created, err := e.createValueSet(tx, vsContext, partyID, scope.ActorID, requirementValues)
		if err != nil {
			return err
		}
		vs = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vs, nil
}

// ensureRequirement returns the document's Requirement set and its values,
// creating it from the live values when absent.
func (e *Engine) ensureRequirement(ctx context.Context, tx *datasheet.Tx, actor string) (*datasheet.ValueSet, map[string]string, error) {
	id, err := tx.ValueSetID(ctx, datasheet.ValueSetSlot(datasheet.ContextRequirement, ""))
	if err == nil {
		vs, err := tx.ValueSet(ctx, id)
		if err != nil {
			return nil, nil, indexedValueSetError("ensure requirement", id, err)
		}
		values, err := tx.ValueSetValues(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return vs, values, nil
	}
	if !datasheet.IsNotFound(err) {
		return nil, nil, err
	}

	live, err := tx.FieldValues(ctx)
	if err != nil {
		return nil, nil, err
	}
	vs, err := e.createValueSet(tx, datasheet.ContextRequirement, "", actor, live)
	if err != nil {
		return nil, nil, err
	}
	return vs, live, nil
}

func (e *Engine) createValueSet(tx *datasheet.Tx, vsContext datasheet.ValueSetContext, partyID, actor string, prefill map[string]string) (*datasheet.ValueSet, error) {
	vs := &datasheet.ValueSet{
		ID:          uuid.New().String(),
		DocumentID:  tx.DocumentID(),
		Context:     vsContext,
		PartyID:     partyID,
		Status:      datasheet.ValueSetDraft,
		CreatedBy:   actor,
		CreatedAtMs: e.nowMs(),
	}
	if err := tx.PutValueSet(vs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(prefill))
	for id := range prefill {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		v := prefill[id]
		tx.SetValueSetValue(vs.ID, id, &v)
	}

	e.rebuildAfterCommit(tx, vs.DocumentID)
	tx.AfterCommit(func(context.Context) {
		e.event(logging.EventValueSetCreated).
			Str("document_id", vs.DocumentID).
			Str("value_set_id", vs.ID).
			Str("context", string(vs.Context)).
			Str("party_id", vs.PartyID).
			Int("prefilled", len(prefill)).
			Msg("value set created")
	})
	return vs, nil
}

// TransitionValueSet moves a value set forward: Draft to Locked for
// Requirement and Offered, Draft to Verified for AsBuilt. Anything else is a conflict.
func (e *Engine) TransitionValueSet(ctx context.Context, scope Scope, documentID, valueSetID string, target datasheet.ValueSetStatus) (vs *datasheet.ValueSet, err error) {
	const op = "transition_value_set"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("value_set_id", valueSetID))
	defer finish(&err)

	if err := target.Validate(); err != nil {
		return nil, datasheet.NewValidationError(op, err.Error(), datasheet.Issue{Path: "status", Message: err.Error()})
	}
	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		vs = nil
		current, err := loadValueSet(ctx, op, tx, valueSetID)
		if err != nil {
			return err
		}
		allowed := valueSetTransitions[current.Context]
		if current.Status != datasheet.ValueSetDraft || target != allowed {
			return datasheet.NewConflictError(op,
				"cannot move %s value set from %s to %s (only %s -> %s is allowed)",
				current.Context, current.Status, target, datasheet.ValueSetDraft, allowed)
		}

		next := *current
		next.Status = target
		now := e.nowMs()
		switch target {
		case datasheet.ValueSetLocked:
			next.LockedBy, next.LockedAtMs = scope.ActorID, now
		case datasheet.ValueSetVerified:
			next.VerifiedBy, next.VerifiedAtMs = scope.ActorID, now
		}
		if err := tx.PutValueSet(&next); err != nil {
			return err
		}

		e.rebuildAfterCommit(tx, documentID)
		tx.AfterCommit(func(context.Context) {
			e.metrics.ValueSetTransition(string(next.Context), string(next.Status))
			e.event(logging.EventValueSetTransition).
				Str("document_id", documentID).
				Str("value_set_id", next.ID).
				Str("context", string(next.Context)).
				Str("from", string(current.Status)).
				Str("to", string(next.Status)).
				Str("actor", scope.ActorID).
				Msg("value set status changed")
		})
		vs = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vs, nil
}

// SetValueSetValues upserts values in a Draft value set. A nil value clears the field.
func (e *Engine) SetValueSetValues(ctx context.Context, scope Scope, documentID, valueSetID string, values map[string]*string) (view *ValueSetView, err error) {
	const op = "set_value_set_values"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("value_set_id", valueSetID))
	defer finish(&err)

	if len(values) == 0 {
		return nil, datasheet.NewValidationError(op, "no values given")
	}
	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		view = nil
		doc, err := loadDocument(ctx, op, tx)
		if err != nil {
			return err
		}
		vs, err := loadValueSet(ctx, op, tx, valueSetID)
		if err != nil {
			return err
		}
		if vs.Status != datasheet.ValueSetDraft {
			return datasheet.NewConflictError(op,
				"cannot edit values of %s value set in status %s (requires %s)", vs.Context, vs.Status, datasheet.ValueSetDraft)
		}
		if issues := valueIssues(doc, values); len(issues) > 0 {
			return datasheet.NewValidationError(op, "values failed validation", issues...)
		}

		current, err := tx.ValueSetValues(ctx, valueSetID)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(values))
		for id := range values {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			v := values[id]
			tx.SetValueSetValue(valueSetID, id, v)
			if v == nil {
				delete(current, id)
			} else {
				current[id] = *v
			}
		}
		view = &ValueSetView{ValueSet: vs, Values: current}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// PatchVariance records (or, with a nil status, removes) the review outcome of
// a deviation on an Offered or AsBuilt value set. The Requirement set never
// carries variances, and only Draft value sets may be annotated.
func (e *Engine) PatchVariance(ctx context.Context, scope Scope, documentID, valueSetID, fieldID string, status *datasheet.VarianceStatus) (override *datasheet.VarianceOverride, err error) {
	const op = "patch_variance"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("value_set_id", valueSetID))
	defer finish(&err)

	if status != nil {
		if err := status.Validate(); err != nil {
			return nil, datasheet.NewValidationError(op, err.Error(), datasheet.Issue{Path: "status", Message: err.Error()})
		}
	}
	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		override = nil
		doc, err := loadDocument(ctx, op, tx)
		if err != nil {
			return err
		}
		vs, err := loadValueSet(ctx, op, tx, valueSetID)
		if err != nil {
			return err
		}
		if vs.Context == datasheet.ContextRequirement {
			return datasheet.NewValidationError(op, "variances cannot be recorded on the Requirement value set")
		}
		if vs.Status != datasheet.ValueSetDraft {
			return datasheet.NewConflictError(op,
				"cannot change variances of %s value set in status %s (requires %s)", vs.Context, vs.Status, datasheet.ValueSetDraft)
		}
		if _, ok := doc.Definition(fieldID); !ok {
			return datasheet.NewValidationError(op, fmt.Sprintf("unknown field definition %q", fieldID),
				datasheet.Issue{Path: "field_id", Message: "unknown field definition"})
		}

		if status == nil {
			tx.DeleteVariance(valueSetID, fieldID)
			return nil
		}
		v := &datasheet.VarianceOverride{
			ValueSetID:        valueSetID,
			FieldDefinitionID: fieldID,
			Status:            *status,
			ReviewedBy:        scope.ActorID,
			ReviewedAtMs:      e.nowMs(),
		}
		if err := tx.PutVariance(v); err != nil {
			return err
		}
		override = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return override, nil
}

// ListValueSets returns every value set of a document with values and variances.
func (e *Engine) ListValueSets(ctx context.Context, scope Scope, documentID string) (views []*ValueSetView, err error) {
	const op = "list_value_sets"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}
	sets, err := e.store.ListValueSets(ctx, documentID)
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}
	views = make([]*ValueSetView, 0, len(sets))
	for _, vs := range sets {
		view, err := e.valueSetView(ctx, vs)
		if err != nil {
			return nil, e.translate(op, documentID, err)
		}
		views = append(views, view)
	}
	return views, nil
}

func (e *Engine) valueSetView(ctx context.Context, vs *datasheet.ValueSet) (*ValueSetView, error) {
	values, err := e.store.GetValueSetValues(ctx, vs.ID)
	if err != nil {
		return nil, err
	}
	variances, err := e.store.GetVariances(ctx, vs.ID)
	if err != nil {
		return nil, err
	}
	return &ValueSetView{ValueSet: vs, Values: values, Variances: variances}, nil
}

// loadValueSet reads a value set that must belong to the scoped document.
func loadValueSet(ctx context.Context, op string, tx *datasheet.Tx, valueSetID string) (*datasheet.ValueSet, error) {
	vs, err := tx.ValueSet(ctx, valueSetID)
	if datasheet.IsNotFound(err) || (err == nil && vs.DocumentID != tx.DocumentID()) {
		return nil, datasheet.NewNotFoundError(op, "value set %s not found on document %s", valueSetID, tx.DocumentID())
	}
	return vs, err
}

// indexedValueSetError reports a slot index entry whose value set is missing.
func indexedValueSetError(op, id string, err error) error {
	if datasheet.IsNotFound(err) {
		return datasheet.NewCorruptError(op, fmt.Sprintf("value set %s is indexed but missing", id), err)
	}
	return err
}
