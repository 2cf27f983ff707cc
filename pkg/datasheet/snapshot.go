package datasheet

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SnapshotSchemaVersion is the only snapshot payload version this build reads and writes.
const SnapshotSchemaVersion = 1

// Snapshot is the versioned document payload stored inside each Revision.
// It captures header, status, template lineage, layout and live values.
type Snapshot struct {
	SchemaVersion    int                  `json:"schema_version" validate:"eq=1"`
	Header           Header               `json:"header"`
	Status           DocumentStatus       `json:"status" validate:"required,docstatus"`
	IsTemplate       bool                 `json:"is_template"`
	ParentDocumentID string               `json:"parent_document_id,omitempty" validate:"omitempty,uuid"`
	Subsections      []SnapshotSubsection `json:"subsections" validate:"required,min=1,dive"`
}

// SnapshotSubsection is one subsection of a snapshot with its fields and values.
type SnapshotSubsection struct {
	ID     string          `json:"id" validate:"required,max=64"`
	Title  string          `json:"title" validate:"required,max=200"`
	Order  int             `json:"order" validate:"gte=0"`
	Fields []SnapshotField `json:"fields" validate:"dive"`
}

// SnapshotField is a field definition with its live value at snapshot time.
type SnapshotField struct {
	FieldDefinition
	Value *string `json:"value"`
}

var snapshotValidate *validator.Validate

func init() {
	snapshotValidate = validator.New()
	snapshotValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = snapshotValidate.RegisterValidation("docstatus", func(fl validator.FieldLevel) bool {
		return DocumentStatus(fl.Field().String()).Validate() == nil
	})
	_ = snapshotValidate.RegisterValidation("fieldtype", func(fl validator.FieldLevel) bool {
		return FieldType(fl.Field().String()).Validate() == nil
	})
}

// BuildSnapshot assembles the snapshot of a document and its live values.
// Subsections and fields are emitted in layout order.
func BuildSnapshot(doc *Document, values map[string]string) *Snapshot {
	subsections := make([]SnapshotSubsection, 0, len(doc.Layout))
	for _, sub := range SortedLayout(doc.Layout) {
		fields := make([]SnapshotField, 0, len(sub.Fields))
		for _, def := range sub.Fields {
			field := SnapshotField{FieldDefinition: def}
			if v, ok := values[def.DefinitionID]; ok {
				v := v
				field.Value = &v
			}
			fields = append(fields, field)
		}
		subsections = append(subsections, SnapshotSubsection{
			ID:     sub.ID,
			Title:  sub.Title,
			Order:  sub.Order,
			Fields: fields,
		})
	}
	return &Snapshot{
		SchemaVersion:    SnapshotSchemaVersion,
		Header:           doc.Header,
		Status:           doc.Status,
		IsTemplate:       doc.IsTemplate,
		ParentDocumentID: doc.ParentDocumentID,
		Subsections:      subsections,
	}
}

// EncodeSnapshot builds the snapshot of a document and serialises it.
func EncodeSnapshot(doc *Document, values map[string]string) ([]byte, error) {
	payload, err := json.Marshal(BuildSnapshot(doc, values))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return payload, nil
}

// Layout returns the layout described by the snapshot, without values.
func (s *Snapshot) Layout() []Subsection {
	layout := make([]Subsection, 0, len(s.Subsections))
	for _, sub := range s.Subsections {
		fields := make([]FieldDefinition, 0, len(sub.Fields))
		for _, f := range sub.Fields {
			fields = append(fields, f.FieldDefinition)
		}
		layout = append(layout, Subsection{ID: sub.ID, Title: sub.Title, Order: sub.Order, Fields: fields})
	}
	return layout
}

// Values returns the field values of the snapshot keyed by definition ID.
// Fields with a null value are absent from the map.
func (s *Snapshot) Values() map[string]string {
	values := make(map[string]string)
	for _, sub := range s.Subsections {
		for _, f := range sub.Fields {
			if f.Value != nil {
				values[f.DefinitionID] = *f.Value
			}
		}
	}
	return values
}

// ValidateSnapshot decodes and validates an untrusted snapshot payload.
// Every problem found is reported as an Issue on a KindValidation error.
func ValidateSnapshot(payload []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, NewValidationError("validate snapshot", "snapshot is not valid JSON", decodeIssue(err))
	}
	if err := ValidateSnapshotValue(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ValidateSnapshotValue validates an already decoded snapshot.
func ValidateSnapshotValue(snap *Snapshot) error {
	var issues []Issue

	if err := snapshotValidate.Struct(snap); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return NewInternalError("validate snapshot", err)
		}
		for _, fe := range verrs {
			issues = append(issues, Issue{Path: issuePath(fe.Namespace()), Message: issueMessage(fe)})
		}
	}

	issues = append(issues, layoutIssues(snap)...)

	if len(issues) > 0 {
		return NewValidationError("validate snapshot", "snapshot failed validation", issues...)
	}
	return nil
}

// ValidateLayout checks a layout on its own, as used when creating documents.
func ValidateLayout(header Header, layout []Subsection) error {
	doc := &Document{Header: header, Status: StatusDraft, Layout: layout}
	return ValidateSnapshotValue(BuildSnapshot(doc, nil))
}

func layoutIssues(snap *Snapshot) []Issue {
	var issues []Issue
	subsectionIDs := make(map[string]bool)
	definitionIDs := make(map[string]bool)

	for i, sub := range snap.Subsections {
		subPath := fmt.Sprintf("subsections[%d]", i)
		if sub.ID != "" {
			if subsectionIDs[sub.ID] {
				issues = append(issues, Issue{Path: subPath + ".id", Message: fmt.Sprintf("duplicate subsection id %q", sub.ID)})
			}
			subsectionIDs[sub.ID] = true
		}
		for j, f := range sub.Fields {
			fieldPath := fmt.Sprintf("%s.fields[%d]", subPath, j)
			if f.DefinitionID != "" {
				if definitionIDs[f.DefinitionID] {
					issues = append(issues, Issue{Path: fieldPath + ".definition_id", Message: fmt.Sprintf("duplicate definition id %q", f.DefinitionID)})
				}
				definitionIDs[f.DefinitionID] = true
			}
			if f.Type == FieldTypeEnum && len(f.Options) == 0 {
				issues = append(issues, Issue{Path: fieldPath + ".options", Message: "enum fields require at least one option"})
			}
			if f.Type != FieldTypeEnum && len(f.Options) > 0 {
				issues = append(issues, Issue{Path: fieldPath + ".options", Message: "options are only allowed on enum fields"})
			}
			if f.Rule != "" {
				if err := CompileRule(f.Rule); err != nil {
					issues = append(issues, Issue{Path: fieldPath + ".rule", Message: err.Error()})
				}
			}
			if f.Value != nil && f.Type.Validate() == nil {
				if err := CheckValue(f.FieldDefinition, *f.Value); err != nil {
					issues = append(issues, Issue{Path: fieldPath + ".value", Message: err.Error()})
				}
			}
		}
	}
	return issues
}

// CheckValue reports whether value conforms to the definition's type.
func CheckValue(def FieldDefinition, value string) error {
	switch def.Type {
	case FieldTypeText:
		if len(value) > 4000 {
			return fmt.Errorf("text value exceeds 4000 bytes")
		}
		return nil
	case FieldTypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%q is not a number", value)
		}
		return nil
	case FieldTypeBoolean:
		if value != "true" && value != "false" {
			return fmt.Errorf("%q is not a boolean (true or false)", value)
		}
		return nil
	case FieldTypeDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return fmt.Errorf("%q is not a date (YYYY-MM-DD)", value)
		}
		return nil
	case FieldTypeEnum:
		for _, opt := range def.Options {
			if opt == value {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of %s", value, strings.Join(def.Options, ", "))
	default:
		return fmt.Errorf("unknown field type: %q", def.Type)
	}
}

// SortedLayout returns a copy of layout with subsections and fields in display order.
func SortedLayout(layout []Subsection) []Subsection {
	out := make([]Subsection, len(layout))
	for i, sub := range layout {
		fields := make([]FieldDefinition, len(sub.Fields))
		copy(fields, sub.Fields)
		sort.SliceStable(fields, func(a, b int) bool { return fields[a].Order < fields[b].Order })
		sub.Fields = fields
		out[i] = sub
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Order < out[b].Order })
	return out
}

// issuePath converts a validator namespace such as "Snapshot.subsections[0].fields[1].label"
// into "subsections[0].fields[1].label". Embedded FieldDefinition segments are dropped.
func issuePath(namespace string) string {
	parts := strings.Split(namespace, ".")
	kept := parts[:0]
	for i, p := range parts {
		if i == 0 || p == "FieldDefinition" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, ".")
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must contain at least %s entries", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "eq":
		return fmt.Sprintf("must equal %s", fe.Param())
	case "uuid":
		return "must be a UUID"
	case "docstatus":
		return fmt.Sprintf("unknown document status %q", fe.Value())
	case "fieldtype":
		return fmt.Sprintf("unknown field type %q", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func decodeIssue(err error) Issue {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		path := typeErr.Field
		if path == "" {
			path = "$"
		}
		return Issue{Path: path, Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value)}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return Issue{Path: "$", Message: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)}
	}
	return Issue{Path: "$", Message: err.Error()}
}
