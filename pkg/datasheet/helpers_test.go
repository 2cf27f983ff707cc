package datasheet

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func strPtr(s string) *string {
	return &s
}

func testLayout() []Subsection {
	return []Subsection{
		{
			ID:    "performance",
			Title: "Performance",
			Order: 1,
			Fields: []FieldDefinition{
				{DefinitionID: "head", Label: "Head", Type: FieldTypeNumber, Order: 1, UOM: "m"},
				{DefinitionID: "flow", Label: "Flow", Type: FieldTypeNumber, Order: 0, UOM: "m3/h", Rule: "num(value) >= num(requirement)"},
			},
		},
		{
			ID:    "general",
			Title: "General",
			Order: 0,
			Fields: []FieldDefinition{
				{DefinitionID: "seal", Label: "Seal type", Type: FieldTypeEnum, Order: 0, Options: []string{"single", "double"}},
				{DefinitionID: "atex", Label: "ATEX rated", Type: FieldTypeBoolean, Order: 1},
			},
		},
	}
}

func testDocument() *Document {
	return &Document{
		ID:       uuid.New().String(),
		TenantID: "acme",
		Header: Header{
			Name:       "Cooling water pump",
			Tag:        "P-101",
			ProjectID:  "proj-7",
			Discipline: "mechanical",
		},
		Status:      StatusDraft,
		Layout:      testLayout(),
		CreatedBy:   "alice",
		CreatedAtMs: 1700000000000,
	}
}
