package datasheet

import (
	"fmt"

	"github.com/google/uuid"
)

// Document is the aggregate root of a datasheet: header attributes, lifecycle
// status, template lineage and the layout of field definitions. Live field
// values are stored separately (see FieldValues).
type Document struct {
	ID               string         `json:"id"`                           // UUID
	TenantID         string         `json:"tenant_id"`                    // Owning tenant/account scope
	Header           Header         `json:"header"`                       // Identity attributes
	Status           DocumentStatus `json:"status"`                       // Current lifecycle state
	IsTemplate       bool           `json:"is_template"`                  // Templates seed new documents
	ParentDocumentID string         `json:"parent_document_id,omitempty"` // Template this document was created from
	Layout           []Subsection   `json:"layout"`                       // Ordered subsections of field definitions

	CreatedBy        string `json:"created_by"`
	CreatedAtMs      int64  `json:"created_at_ms"`
	UpdatedBy        string `json:"updated_by,omitempty"`
	UpdatedAtMs      int64  `json:"updated_at_ms,omitempty"`
	VerifiedBy       string `json:"verified_by,omitempty"`
	VerifiedAtMs     int64  `json:"verified_at_ms,omitempty"`
	ApprovedBy       string `json:"approved_by,omitempty"`
	ApprovedAtMs     int64  `json:"approved_at_ms,omitempty"`
	RejectedBy       string `json:"rejected_by,omitempty"`
	RejectedAtMs     int64  `json:"rejected_at_ms,omitempty"`
	RejectionComment string `json:"rejection_comment,omitempty"`
}

// Header holds the identity attributes of a document.
type Header struct {
	Name       string `json:"name" validate:"required,max=200"`
	Tag        string `json:"tag" validate:"required,max=100"`
	ProjectID  string `json:"project_id" validate:"required,max=64"`
	ClientID   string `json:"client_id,omitempty" validate:"max=64"`
	Discipline string `json:"discipline" validate:"required,max=64"`
}

// HeaderPatch carries optional header changes. Nil fields are left untouched.
type HeaderPatch struct {
	Name       *string `json:"name,omitempty"`
	Tag        *string `json:"tag,omitempty"`
	ProjectID  *string `json:"project_id,omitempty"`
	ClientID   *string `json:"client_id,omitempty"`
	Discipline *string `json:"discipline,omitempty"`
}

// Apply returns a copy of h with the patch applied and whether anything changed.
func (p *HeaderPatch) Apply(h Header) (Header, bool) {
	if p == nil {
		return h, false
	}
	out := h
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&out.Name, p.Name)
	set(&out.Tag, p.Tag)
	set(&out.ProjectID, p.ProjectID)
	set(&out.ClientID, p.ClientID)
	set(&out.Discipline, p.Discipline)
	return out, out != h
}

// Subsection groups field definitions within a document layout.
type Subsection struct {
	ID     string            `json:"id" validate:"required,max=64"`
	Title  string            `json:"title" validate:"required,max=200"`
	Order  int               `json:"order" validate:"gte=0"`
	Fields []FieldDefinition `json:"fields" validate:"dive"`
}

// FieldDefinition describes one field of a datasheet.
type FieldDefinition struct {
	DefinitionID string    `json:"definition_id" validate:"required,max=64"`
	Label        string    `json:"label" validate:"required,max=200"`
	Type         FieldType `json:"type" validate:"required,fieldtype"`
	Order        int       `json:"order" validate:"gte=0"`
	UOM          string    `json:"uom,omitempty" validate:"max=32"`
	Options      []string  `json:"options,omitempty"`
	Rule         string    `json:"rule,omitempty" validate:"max=500"` // Acceptance expression, see rules.go
}

// FieldType is the value type of a field definition.
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeEnum    FieldType = "enum"
)

// Validate checks if the FieldType is a valid enum value.
func (ft FieldType) Validate() error {
	switch ft {
	case FieldTypeText, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate, FieldTypeEnum:
		return nil
	default:
		return fmt.Errorf("unknown field type: %q", ft)
	}
}

// DocumentStatus is the lifecycle state of a document.
// Draft and ModifiedDraft are editable; Verified, Approved and Rejected are dispositions.
type DocumentStatus string

const (
	// StatusDraft is the state of a freshly created document
	StatusDraft DocumentStatus = "Draft"

	// StatusModifiedDraft is the state after any edit following creation
	StatusModifiedDraft DocumentStatus = "ModifiedDraft"

	// StatusVerified means a checker has verified the content
	StatusVerified DocumentStatus = "Verified"

	// StatusApproved is terminal for ordinary edits
	StatusApproved DocumentStatus = "Approved"

	// StatusRejected carries a mandatory rejection comment until the next edit
	StatusRejected DocumentStatus = "Rejected"
)

// Validate checks if the DocumentStatus is a valid enum value.
func (s DocumentStatus) Validate() error {
	switch s {
	case StatusDraft, StatusModifiedDraft, StatusVerified, StatusApproved, StatusRejected:
		return nil
	default:
		return fmt.Errorf("unknown document status: %q", s)
	}
}

// Editable reports whether field values may be changed in this status.
func (s DocumentStatus) Editable() bool {
	return s == StatusDraft || s == StatusModifiedDraft
}

// Definition looks up a field definition by ID across all subsections.
func (d *Document) Definition(definitionID string) (FieldDefinition, bool) {
	for _, sub := range d.Layout {
		for _, f := range sub.Fields {
			if f.DefinitionID == definitionID {
				return f, true
			}
		}
	}
	return FieldDefinition{}, false
}

// Validate checks if the Document has valid field values.
func (d *Document) Validate() error {
	if !isValidUUID(d.ID) {
		return fmt.Errorf("invalid document ID: not a valid UUID")
	}
	if d.TenantID == "" {
		return fmt.Errorf("tenant_id cannot be empty")
	}
	if err := d.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	if d.ParentDocumentID != "" && !isValidUUID(d.ParentDocumentID) {
		return fmt.Errorf("invalid parent document ID: not a valid UUID")
	}
	if d.CreatedBy == "" {
		return fmt.Errorf("created_by cannot be empty")
	}
	return nil
}

// Revision is an immutable, sequence-numbered snapshot of a document.
// Snapshot is omitted from list results.
type Revision struct {
	ID                   string         `json:"id"`          // UUID
	DocumentID           string         `json:"document_id"` // Owning document
	Sequence             int            `json:"sequence"`    // 1, 2, 3... per document, gapless
	Snapshot             []byte         `json:"snapshot,omitempty"`
	CreatedBy            string         `json:"created_by"`
	CreatedAtMs          int64          `json:"created_at_ms"`
	Status               DocumentStatus `json:"status"` // Document status when the revision was minted
	Comment              string         `json:"comment,omitempty"`
	RestoredFromID       string         `json:"restored_from_id,omitempty"`
	RestoredFromSequence int            `json:"restored_from_sequence,omitempty"`
}

// Validate checks if the Revision has valid field values.
func (r *Revision) Validate() error {
	if !isValidUUID(r.ID) {
		return fmt.Errorf("invalid revision ID: not a valid UUID")
	}
	if !isValidUUID(r.DocumentID) {
		return fmt.Errorf("invalid document ID: not a valid UUID")
	}
	if r.Sequence < 1 {
		return fmt.Errorf("invalid sequence: must be >= 1, got %d", r.Sequence)
	}
	if err := r.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	if r.CreatedBy == "" {
		return fmt.Errorf("created_by cannot be empty")
	}
	if len(r.Snapshot) == 0 {
		return fmt.Errorf("snapshot cannot be empty")
	}
	return nil
}

// ValueSetContext names what a value set records.
type ValueSetContext string

const (
	// ContextRequirement holds the canonical target values; exactly one per document
	ContextRequirement ValueSetContext = "Requirement"

	// ContextOffered holds one counterparty's offer; at most one per party
	ContextOffered ValueSetContext = "Offered"

	// ContextAsBuilt holds what was actually built; at most one per document
	ContextAsBuilt ValueSetContext = "AsBuilt"
)

// Validate checks if the ValueSetContext is a valid enum value.
func (c ValueSetContext) Validate() error {
	switch c {
	case ContextRequirement, ContextOffered, ContextAsBuilt:
		return nil
	default:
		return fmt.Errorf("unknown value set context: %q", c)
	}
}

// ValueSetStatus is the lifecycle state of a value set.
type ValueSetStatus string

const (
	ValueSetDraft    ValueSetStatus = "Draft"
	ValueSetLocked   ValueSetStatus = "Locked"
	ValueSetVerified ValueSetStatus = "Verified"
)

// Validate checks if the ValueSetStatus is a valid enum value.
func (s ValueSetStatus) Validate() error {
	switch s {
	case ValueSetDraft, ValueSetLocked, ValueSetVerified:
		return nil
	default:
		return fmt.Errorf("unknown value set status: %q", s)
	}
}

// ValueSet is an independently stateful bundle of field values for one context.
type ValueSet struct {
	ID           string          `json:"id"`
	DocumentID   string          `json:"document_id"`
	Context      ValueSetContext `json:"context"`
	PartyID      string          `json:"party_id,omitempty"` // Offered only
	Status       ValueSetStatus  `json:"status"`
	CreatedBy    string          `json:"created_by"`
	CreatedAtMs  int64           `json:"created_at_ms"`
	LockedBy     string          `json:"locked_by,omitempty"`
	LockedAtMs   int64           `json:"locked_at_ms,omitempty"`
	VerifiedBy   string          `json:"verified_by,omitempty"`
	VerifiedAtMs int64           `json:"verified_at_ms,omitempty"`
}

// Validate checks if the ValueSet has valid field values.
func (v *ValueSet) Validate() error {
	if !isValidUUID(v.ID) {
		return fmt.Errorf("invalid value set ID: not a valid UUID")
	}
	if !isValidUUID(v.DocumentID) {
		return fmt.Errorf("invalid document ID: not a valid UUID")
	}
	if err := v.Context.Validate(); err != nil {
		return fmt.Errorf("invalid context: %w", err)
	}
	if err := v.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	if v.Context == ContextOffered && v.PartyID == "" {
		return fmt.Errorf("offered value sets require a party_id")
	}
	if v.Context != ContextOffered && v.PartyID != "" {
		return fmt.Errorf("%s value sets cannot carry a party_id", v.Context)
	}
	return nil
}

// Slot returns the per-document uniqueness key of the value set.
func (v *ValueSet) Slot() string {
	return ValueSetSlot(v.Context, v.PartyID)
}

// ValueSetSlot returns the uniqueness key for a (context, party) pair.
// Requirement and AsBuilt have one slot per document; Offered has one per party.
func ValueSetSlot(context ValueSetContext, partyID string) string {
	if context == ContextOffered {
		return fmt.Sprintf("offered:%s", partyID)
	}
	switch context {
	case ContextRequirement:
		return "requirement"
	case ContextAsBuilt:
		return "asbuilt"
	}
	return string(context)
}

// VarianceStatus records the review outcome of a deviation.
type VarianceStatus string

const (
	VarianceDeviatesAccepted VarianceStatus = "DeviatesAccepted"
	VarianceDeviatesRejected VarianceStatus = "DeviatesRejected"
)

// Validate checks if the VarianceStatus is a valid enum value.
func (s VarianceStatus) Validate() error {
	switch s {
	case VarianceDeviatesAccepted, VarianceDeviatesRejected:
		return nil
	default:
		return fmt.Errorf("unknown variance status: %q", s)
	}
}

// VarianceOverride annotates a discrepancy between an Offered/AsBuilt value and the Requirement.
type VarianceOverride struct {
	ValueSetID        string         `json:"value_set_id"`
	FieldDefinitionID string         `json:"field_definition_id"`
	Status            VarianceStatus `json:"status"`
	ReviewedBy        string         `json:"reviewed_by"`
	ReviewedAtMs      int64          `json:"reviewed_at_ms"`
}

// RatingsBlock is a satellite block of ratings that can be locked once the document is approved.
type RatingsBlock struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	Title       string            `json:"title"`
	Ratings     map[string]string `json:"ratings"`
	CreatedBy   string            `json:"created_by"`
	CreatedAtMs int64             `json:"created_at_ms"`
	LockedBy    string            `json:"locked_by,omitempty"`
	LockedAtMs  int64             `json:"locked_at_ms,omitempty"`
}

// Locked reports whether the block is currently locked.
func (r *RatingsBlock) Locked() bool {
	return r.LockedAtMs > 0
}

// Validate checks if the RatingsBlock has valid field values.
func (r *RatingsBlock) Validate() error {
	if !isValidUUID(r.ID) {
		return fmt.Errorf("invalid ratings block ID: not a valid UUID")
	}
	if !isValidUUID(r.DocumentID) {
		return fmt.Errorf("invalid document ID: not a valid UUID")
	}
	if r.Title == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if (r.LockedAtMs > 0) != (r.LockedBy != "") {
		return fmt.Errorf("locked_at and locked_by must be set together")
	}
	return nil
}

// DocumentSummary is the derived projection rebuilt in the background.
type DocumentSummary struct {
	DocumentID     string         `json:"document_id"`
	TenantID       string         `json:"tenant_id"`
	Name           string         `json:"name"`
	Tag            string         `json:"tag"`
	Status         DocumentStatus `json:"status"`
	IsTemplate     bool           `json:"is_template"`
	TemplateName   string         `json:"template_name,omitempty"`
	RevisionCount  int            `json:"revision_count"`
	LatestSequence int            `json:"latest_sequence"`
	ValueSetCount  int            `json:"value_set_count"`
	RebuiltAtMs    int64          `json:"rebuilt_at_ms"`
	Generation     int64          `json:"generation"` // Document write counter the summary was built from
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
