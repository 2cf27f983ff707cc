package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// NewDocument is the input for creating a document.
type NewDocument struct {
	Header     datasheet.Header       `json:"header"`
	Layout     []datasheet.Subsection `json:"layout"`
	IsTemplate bool                   `json:"is_template"`
}

// DocumentUpdate is an ordinary edit. Header fields left nil are unchanged;
// a nil entry in Values clears that field.
type DocumentUpdate struct {
	Header  *datasheet.HeaderPatch `json:"header,omitempty"`
	Values  map[string]*string     `json:"values,omitempty"`
	Comment string                 `json:"comment,omitempty"`
}

// DocumentState is a document together with its live values.
type DocumentState struct {
	Document       *datasheet.Document `json:"document"`
	Values         map[string]string   `json:"values"`
	LatestSequence int                 `json:"latest_sequence"`
}

// Result is the outcome of a mutation that minted a revision.
type Result struct {
	Document *datasheet.Document `json:"document"`
	Values   map[string]string   `json:"values"`
	Revision *datasheet.Revision `json:"revision"`
}

// mutation carries what a write changes. NormalEdit uses header and values as
// a patch; RestoreReplay replaces the document state with snapshot.
type mutation struct {
	header   *datasheet.HeaderPatch
	values   map[string]*string
	snapshot *datasheet.Snapshot
}

// CreateDocument creates a Draft document. No revision is minted until the first edit.
func (e *Engine) CreateDocument(ctx context.Context, scope Scope, in NewDocument) (doc *datasheet.Document, err error) {
	const op = "create_document"
	ctx, finish := e.begin(ctx, op)
	defer finish(&err)

	if err := scope.check(op); err != nil {
		return nil, err
	}
	if err := datasheet.ValidateLayout(in.Header, in.Layout); err != nil {
		return nil, relabel(op, err)
	}

	doc = &datasheet.Document{
		ID:          uuid.New().String(),
		TenantID:    scope.TenantID,
		Header:      in.Header,
		Status:      datasheet.StatusDraft,
		IsTemplate:  in.IsTemplate,
		Layout:      in.Layout,
		CreatedBy:   scope.ActorID,
		CreatedAtMs: e.nowMs(),
	}

	err = e.inDocument(ctx, op, doc.ID, func(tx *datasheet.Tx) error {
		if err := tx.PutDocument(doc); err != nil {
			return err
		}
		e.rebuildAfterCommit(tx, doc.ID)
		tx.AfterCommit(func(context.Context) {
			e.event(logging.EventDocumentCreated).
				Str("document_id", doc.ID).
				Str("tenant_id", doc.TenantID).
				Bool("is_template", doc.IsTemplate).
				Str("actor", scope.ActorID).
				Msg("document created")
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateFromTemplate creates a Draft document that copies a template's layout
// (not its values) and records the template as its parent.
func (e *Engine) CreateFromTemplate(ctx context.Context, scope Scope, templateID string, header datasheet.Header) (doc *datasheet.Document, err error) {
	const op = "create_from_template"
	ctx, finish := e.begin(ctx, op, attribute.String("template_id", templateID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, templateID); err != nil {
		return nil, err
	}
	tmpl, err := e.store.GetDocument(ctx, templateID)
	if err != nil {
		return nil, e.translate(op, templateID, err)
	}
	if !tmpl.IsTemplate {
		return nil, datasheet.NewValidationError(op, fmt.Sprintf("document %s is not a template", templateID))
	}
	if err := datasheet.ValidateLayout(header, tmpl.Layout); err != nil {
		return nil, relabel(op, err)
	}

	doc = &datasheet.Document{
		ID:               uuid.New().String(),
		TenantID:         scope.TenantID,
		Header:           header,
		Status:           datasheet.StatusDraft,
		ParentDocumentID: tmpl.ID,
		Layout:           tmpl.Layout,
		CreatedBy:        scope.ActorID,
		CreatedAtMs:      e.nowMs(),
	}

	err = e.inDocument(ctx, op, doc.ID, func(tx *datasheet.Tx) error {
		if err := tx.PutDocument(doc); err != nil {
			return err
		}
		tx.AddTemplateChild(tmpl.ID)
		e.rebuildAfterCommit(tx, doc.ID)
		tx.AfterCommit(func(context.Context) {
			e.event(logging.EventDocumentCreated).
				Str("document_id", doc.ID).
				Str("template_id", tmpl.ID).
				Str("actor", scope.ActorID).
				Msg("document created from template")
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument returns the current header, status, layout and live values.
func (e *Engine) GetDocument(ctx context.Context, scope Scope, documentID string) (state *DocumentState, err error) {
	const op = "get_document"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}
	values, err := e.store.GetFieldValues(ctx, documentID)
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}
	latest, err := e.store.LatestSequence(ctx, documentID)
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}
	return &DocumentState{Document: doc, Values: values, LatestSequence: latest}, nil
}

// UpdateDocument applies an ordinary edit and mints one revision.
// Editing moves the document to ModifiedDraft; the header is editable only in Draft.
func (e *Engine) UpdateDocument(ctx context.Context, scope Scope, documentID string, upd DocumentUpdate) (res *Result, err error) {
	const op = "update_document"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID))
	defer finish(&err)

	if upd.Header == nil && len(upd.Values) == 0 {
		return nil, datasheet.NewValidationError(op, "update contains no changes")
	}
	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		res = nil
		doc, err := loadDocument(ctx, op, tx)
		if err != nil {
			return err
		}

		headerChanged, err := e.applyMutation(ctx, tx, NormalEdit, doc, mutation{header: upd.Header, values: upd.Values}, scope.ActorID)
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
		rev, err := e.createRevision(ctx, tx, current, values, scope.ActorID, upd.Comment, nil)
		if err != nil {
			return err
		}

		if err := e.rebuildAffected(ctx, tx, current, headerChanged); err != nil {
			return err
		}
		tx.AfterCommit(func(context.Context) {
			e.event(logging.EventDocumentUpdated).
				Str("document_id", documentID).
				Int("sequence", rev.Sequence).
				Int("values_changed", len(upd.Values)).
				Bool("header_changed", headerChanged).
				Str("actor", scope.ActorID).
				Msg("document updated")
		})
		res = &Result{Document: current, Values: values, Revision: rev}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// applyMutation is the single write path for document content. The mode
// decides which guards apply; see WriteMode.
func (e *Engine) applyMutation(ctx context.Context, tx *datasheet.Tx, mode WriteMode, doc *datasheet.Document, m mutation, actor string) (headerChanged bool, err error) {
	next := *doc
	var patch map[string]*string

	switch mode {
	case NormalEdit:
		status, err := NextStatus(doc.Status, ActionEdit)
		if err != nil {
			return false, err
		}
		if h, changed := m.header.Apply(doc.Header); changed {
			if doc.Status != datasheet.StatusDraft {
				return false, datasheet.NewConflictError(string(ActionEdit),
					"cannot change header of document in status %s (requires %s)", doc.Status, datasheet.StatusDraft)
			}
			if err := datasheet.ValidateLayout(h, doc.Layout); err != nil {
				return false, relabel(string(ActionEdit), err)
			}
			next.Header = h
			headerChanged = true
		}
		if issues := valueIssues(doc, m.values); len(issues) > 0 {
			return false, datasheet.NewValidationError(string(ActionEdit), "values failed validation", issues...)
		}
		next.Status = status
		patch = m.values

	case RestoreReplay:
		snap := m.snapshot
		headerChanged = snap.Header != doc.Header
		next.Header = snap.Header
		next.Layout = snap.Layout()
		next.Status = restoredStatus(snap.Status)

		current, err := tx.FieldValues(ctx)
		if err != nil {
			return false, err
		}
		target := snap.Values()
		patch = make(map[string]*string, len(current)+len(target))
		for id := range current {
			if _, ok := target[id]; !ok {
				patch[id] = nil
			}
		}
		for id, v := range target {
			v := v
			patch[id] = &v
		}

	default:
		return false, datasheet.NewInternalError("apply mutation", fmt.Errorf("unsupported write mode %s", mode))
	}

	next.RejectionComment = ""
	next.RejectedBy = ""
	next.RejectedAtMs = 0
	next.UpdatedBy = actor
	next.UpdatedAtMs = e.nowMs()

	if err := tx.PutDocument(&next); err != nil {
		return false, err
	}
	ids := make([]string, 0, len(patch))
	for id := range patch {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		tx.SetFieldValue(id, patch[id])
	}

	if doc.Status != next.Status {
		e.recordTransition(tx, doc.Status, next.Status, actor)
	}
	return headerChanged, nil
}

func valueIssues(doc *datasheet.Document, values map[string]*string) []datasheet.Issue {
	var issues []datasheet.Issue
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		def, ok := doc.Definition(id)
		if !ok {
			issues = append(issues, datasheet.Issue{Path: "values." + id, Message: "unknown field definition"})
			continue
		}
		if v := values[id]; v != nil {
			if err := datasheet.CheckValue(def, *v); err != nil {
				issues = append(issues, datasheet.Issue{Path: "values." + id, Message: err.Error()})
			}
		}
	}
	return issues
}

// Verify moves a Draft or ModifiedDraft document to Verified.
func (e *Engine) Verify(ctx context.Context, scope Scope, documentID string) (*datasheet.Document, error) {
	return e.dispose(ctx, scope, documentID, ActionVerify, "")
}

// Approve moves a Verified document to Approved.
func (e *Engine) Approve(ctx context.Context, scope Scope, documentID string) (*datasheet.Document, error) {
	return e.dispose(ctx, scope, documentID, ActionApprove, "")
}

// Reject moves a Draft, ModifiedDraft or Verified document to Rejected. A comment is mandatory.
func (e *Engine) Reject(ctx context.Context, scope Scope, documentID, comment string) (*datasheet.Document, error) {
	return e.dispose(ctx, scope, documentID, ActionReject, comment)
}

// dispose applies a disposition transition. Dispositions do not mint revisions.
func (e *Engine) dispose(ctx context.Context, scope Scope, documentID string, action Action, comment string) (doc *datasheet.Document, err error) {
	op := string(action)
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID))
	defer finish(&err)

	comment = strings.TrimSpace(comment)
	if action == ActionReject && comment == "" {
		return nil, datasheet.NewValidationError(op, "a rejection comment is required",
			datasheet.Issue{Path: "comment", Message: "is required"})
	}
	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	err = e.inDocument(ctx, op, documentID, func(tx *datasheet.Tx) error {
		current, err := loadDocument(ctx, op, tx)
		if err != nil {
			return err
		}
		status, err := NextStatus(current.Status, action)
		if err != nil {
			return err
		}

		next := *current
		next.Status = status
		now := e.nowMs()
		var verb string
		switch action {
		case ActionVerify:
			next.VerifiedBy, next.VerifiedAtMs = scope.ActorID, now
			verb = "verified"
		case ActionApprove:
			next.ApprovedBy, next.ApprovedAtMs = scope.ActorID, now
			verb = "approved"
		case ActionReject:
			next.RejectedBy, next.RejectedAtMs = scope.ActorID, now
			next.RejectionComment = comment
			verb = "rejected"
		}
		if err := tx.PutDocument(&next); err != nil {
			return err
		}

		message := fmt.Sprintf("%s (%s) was %s by %s", next.Header.Tag, next.Header.Name, verb, scope.ActorID)
		if comment != "" {
			message += ": " + comment
		}
		e.recordTransition(tx, current.Status, next.Status, scope.ActorID)
		e.notifyAfterCommit(tx, stakeholders(current), message)
		e.rebuildAfterCommit(tx, documentID)
		doc = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// rebuildAffected queues a rebuild of doc, plus every child document when a
// template's header changed.
func (e *Engine) rebuildAffected(ctx context.Context, tx *datasheet.Tx, doc *datasheet.Document, headerChanged bool) error {
	ids := []string{doc.ID}
	if doc.IsTemplate && headerChanged {
		children, err := tx.TemplateChildren(ctx)
		if err != nil {
			return err
		}
		sort.Strings(children)
		ids = append(ids, children...)
	}
	e.rebuildAfterCommit(tx, ids...)
	return nil
}

func (e *Engine) recordTransition(tx *datasheet.Tx, from, to datasheet.DocumentStatus, actor string) {
	documentID := tx.DocumentID()
	tx.AfterCommit(func(context.Context) {
		e.metrics.Transition(string(from), string(to))
		e.event(logging.EventDocumentTransition).
			Str("document_id", documentID).
			Str("from", string(from)).
			Str("to", string(to)).
			Str("actor", actor).
			Msg("document status changed")
	})
}

// relabel sets the operation name on a typed error produced by a helper.
func relabel(op string, err error) error {
	var typed *datasheet.Error
	if errors.As(err, &typed) {
		typed.Op = op
	}
	return err
}
