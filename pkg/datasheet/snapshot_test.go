package datasheet

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuesOf(t *testing.T, err error) []Issue {
	t.Helper()
	var e *Error
	require.True(t, errors.As(err, &e), "expected *Error, got %T", err)
	require.Equal(t, KindValidation, e.Kind)
	return e.Issues
}

func hasIssue(issues []Issue, pathSuffix string) bool {
	for _, i := range issues {
		if strings.HasSuffix(i.Path, pathSuffix) {
			return true
		}
	}
	return false
}

func validSnapshot() *Snapshot {
	return BuildSnapshot(testDocument(), map[string]string{"flow": "120", "seal": "double"})
}

func TestBuildSnapshotOrdersLayout(t *testing.T) {
	snap := validSnapshot()

	require.Len(t, snap.Subsections, 2)
	assert.Equal(t, "general", snap.Subsections[0].ID)
	assert.Equal(t, "performance", snap.Subsections[1].ID)
	assert.Equal(t, "flow", snap.Subsections[1].Fields[0].DefinitionID)
	assert.Equal(t, "head", snap.Subsections[1].Fields[1].DefinitionID)

	require.NotNil(t, snap.Subsections[1].Fields[0].Value)
	assert.Equal(t, "120", *snap.Subsections[1].Fields[0].Value)
	assert.Nil(t, snap.Subsections[1].Fields[1].Value)
	assert.Equal(t, SnapshotSchemaVersion, snap.SchemaVersion)
}

func TestValidateSnapshot(t *testing.T) {
	t.Run("accepts a well-formed payload", func(t *testing.T) {
		payload, err := json.Marshal(validSnapshot())
		require.NoError(t, err)

		snap, err := ValidateSnapshot(payload)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"flow": "120", "seal": "double"}, snap.Values())
		assert.Equal(t, "P-101", snap.Header.Tag)
		assert.Len(t, snap.Layout(), 2)
	})

	t.Run("reports malformed JSON", func(t *testing.T) {
		_, err := ValidateSnapshot([]byte(`{"schema_version": 1,`))
		issues := issuesOf(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "$", issues[0].Path)
	})

	t.Run("reports wrong JSON types with their path", func(t *testing.T) {
		_, err := ValidateSnapshot([]byte(`{"schema_version": "one"}`))
		issues := issuesOf(t, err)
		assert.True(t, hasIssue(issues, "schema_version"))
	})

	t.Run("rejects unknown schema versions", func(t *testing.T) {
		snap := validSnapshot()
		snap.SchemaVersion = 2
		payload, _ := json.Marshal(snap)

		_, err := ValidateSnapshot(payload)
		assert.True(t, hasIssue(issuesOf(t, err), "schema_version"))
	})

	t.Run("collects every missing header field", func(t *testing.T) {
		snap := validSnapshot()
		snap.Header.Name = ""
		snap.Header.Discipline = ""

		issues := issuesOf(t, ValidateSnapshotValue(snap))
		assert.True(t, hasIssue(issues, "header.name"))
		assert.True(t, hasIssue(issues, "header.discipline"))
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		snap := validSnapshot()
		snap.Status = "Archived"

		assert.True(t, hasIssue(issuesOf(t, ValidateSnapshotValue(snap)), "status"))
	})

	t.Run("rejects unknown field type", func(t *testing.T) {
		snap := validSnapshot()
		snap.Subsections[0].Fields[0].Type = "colour"

		assert.True(t, hasIssue(issuesOf(t, ValidateSnapshotValue(snap)), "type"))
	})

	t.Run("rejects duplicate definition ids across subsections", func(t *testing.T) {
		snap := validSnapshot()
		snap.Subsections[1].Fields[1].DefinitionID = "seal"

		issues := issuesOf(t, ValidateSnapshotValue(snap))
		assert.True(t, hasIssue(issues, "subsections[1].fields[1].definition_id"))
	})

	t.Run("rejects duplicate subsection ids", func(t *testing.T) {
		snap := validSnapshot()
		snap.Subsections[1].ID = "general"

		assert.True(t, hasIssue(issuesOf(t, ValidateSnapshotValue(snap)), "subsections[1].id"))
	})

	t.Run("requires options on enum fields", func(t *testing.T) {
		snap := validSnapshot()
		snap.Subsections[0].Fields[0].Options = nil
		snap.Subsections[0].Fields[0].Value = nil

		assert.True(t, hasIssue(issuesOf(t, ValidateSnapshotValue(snap)), "subsections[0].fields[0].options"))
	})

	t.Run("checks values against their type", func(t *testing.T) {
		snap := validSnapshot()
		snap.Subsections[1].Fields[0].Value = strPtr("lots")

		assert.True(t, hasIssue(issuesOf(t, ValidateSnapshotValue(snap)), "subsections[1].fields[0].value"))
	})

	t.Run("rejects rules that do not compile", func(t *testing.T) {
		snap := validSnapshot()
		snap.Subsections[1].Fields[0].Rule = "num(value) >"

		assert.True(t, hasIssue(issuesOf(t, ValidateSnapshotValue(snap)), "subsections[1].fields[0].rule"))
	})

	t.Run("requires at least one subsection", func(t *testing.T) {
		snap := validSnapshot()
		snap.Subsections = nil

		assert.True(t, hasIssue(issuesOf(t, ValidateSnapshotValue(snap)), "subsections"))
	})
}

func TestCheckValue(t *testing.T) {
	enum := FieldDefinition{DefinitionID: "seal", Type: FieldTypeEnum, Options: []string{"single", "double"}}

	tests := []struct {
		name    string
		def     FieldDefinition
		value   string
		wantErr bool
	}{
		{"number", FieldDefinition{Type: FieldTypeNumber}, "12.5", false},
		{"not a number", FieldDefinition{Type: FieldTypeNumber}, "twelve", true},
		{"boolean", FieldDefinition{Type: FieldTypeBoolean}, "true", false},
		{"boolean must be lowercase", FieldDefinition{Type: FieldTypeBoolean}, "TRUE", true},
		{"date", FieldDefinition{Type: FieldTypeDate}, "2024-02-29", false},
		{"invalid date", FieldDefinition{Type: FieldTypeDate}, "2023-02-29", true},
		{"enum option", enum, "double", false},
		{"enum outsider", enum, "triple", true},
		{"text", FieldDefinition{Type: FieldTypeText}, "anything", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckValue(tt.def, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLayout(t *testing.T) {
	doc := testDocument()
	assert.NoError(t, ValidateLayout(doc.Header, doc.Layout))

	layout := testLayout()
	layout[0].Fields[0].Label = ""
	err := ValidateLayout(doc.Header, layout)
	assert.True(t, errors.Is(err, ErrValidation))
}
