package printer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureErr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := ErrOut
	ErrOut = &buf
	t.Cleanup(func() { ErrOut = prev })
	return &buf
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		captureErr(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("numbers multiple suggestions", func(t *testing.T) {
		buf := captureErr(t)
		err := Error("Test Error", "Explanation", []string{"First option", "Second option"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, buf.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext_SortsKeys(t *testing.T) {
	buf := captureErr(t)
	err := ErrorWithContext("Test Error", "Explanation", map[string]string{"Tenant": "acme", "Document": "doc-1"}, nil)
	require.Equal(t, "Test Error", err.Error())
	assert.Contains(t, buf.String(), "  Document: doc-1\n  Tenant: acme\n")
}

func TestLifecycleError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantTitle string
		wantText  string
	}{
		{
			name:      "validation lists issues",
			err:       datasheet.NewValidationError("reject", "a rejection comment is required", datasheet.Issue{Path: "comment", Message: "is required"}),
			wantTitle: "Invalid input",
			wantText:  "  - comment: is required",
		},
		{
			name:      "conflict",
			err:       datasheet.NewConflictError("edit", "cannot edit document in status Approved (requires Draft or ModifiedDraft)"),
			wantTitle: "Not allowed in the current state",
			wantText:  "Operation: edit",
		},
		{
			name:      "not found",
			err:       datasheet.NewNotFoundError("get_document", "document %s not found", "doc-1"),
			wantTitle: "Not found",
			wantText:  "document doc-1 not found",
		},
		{
			name:      "internal shows cause",
			err:       datasheet.NewInternalError("verify", errors.New("connection refused")),
			wantTitle: "Storage failure",
			wantText:  "connection refused",
		},
		{
			name:      "untyped",
			err:       errors.New("boom"),
			wantTitle: "Operation failed",
			wantText:  "boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureErr(t)
			err := LifecycleError(tt.err)
			assert.Equal(t, tt.wantTitle, err.Error())
			assert.Contains(t, buf.String(), tt.wantText)
		})
	}
}

func TestCompareTable(t *testing.T) {
	color.NoColor = true
	accepted := datasheet.VarianceDeviatesAccepted
	req, offeredLow, offeredHigh := "120", "100", "130"

	data := &lifecycle.CompareData{
		DocumentID:  "doc-1",
		Requirement: &lifecycle.ValueSetRef{ID: "vs-req"},
		Offered: []*lifecycle.ValueSetRef{
			{ID: "vs-a", PartyID: "acme-pumps"},
			{ID: "vs-b", PartyID: "flowco"},
		},
		Sections: []lifecycle.CompareSection{{
			ID:    "performance",
			Title: "Performance",
			Rows: []lifecycle.CompareRow{
				{
					FieldID:     "flow",
					Label:       "Flow",
					UOM:         "m3/h",
					Requirement: &req,
					Offered: []lifecycle.CompareCell{
						{ValueSetID: "vs-a", PartyID: "acme-pumps", Value: &offeredLow, Deviates: true, Variance: &accepted},
						{ValueSetID: "vs-b", PartyID: "flowco", Value: &offeredHigh},
					},
				},
				{
					FieldID: "seal",
					Label:   "Seal type",
					Offered: []lifecycle.CompareCell{
						{ValueSetID: "vs-a", PartyID: "acme-pumps", Deviates: true},
						{ValueSetID: "vs-b", PartyID: "flowco"},
					},
				},
			},
		}},
	}

	out := CompareTable(data)
	assert.Contains(t, out, "Performance")
	assert.Contains(t, out, "OFFERED acme-pumps")
	assert.Contains(t, out, "OFFERED flowco")
	assert.NotContains(t, out, "AS BUILT")
	assert.Contains(t, out, "Flow [m3/h]")
	assert.Contains(t, out, "100 ✓")
	assert.Contains(t, out, "130")
	assert.Contains(t, out, "- !")
}
