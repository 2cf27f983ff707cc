package lifecycle

import (
	"context"
	"testing"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCompareData(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	f.edit(t, alice, doc.ID, map[string]*string{"flow": strPtr("100"), "head": strPtr("30"), "seal": strPtr("single")})

	vendorB, err := f.engine.EnsureValueSet(ctx, alice, doc.ID, datasheet.ContextOffered, "vendor-b")
	require.NoError(t, err)
	vendorA, err := f.engine.EnsureValueSet(ctx, alice, doc.ID, datasheet.ContextOffered, "vendor-a")
	require.NoError(t, err)
	asBuilt, err := f.engine.EnsureValueSet(ctx, alice, doc.ID, datasheet.ContextAsBuilt, "")
	require.NoError(t, err)

	_, err = f.engine.SetValueSetValues(ctx, alice, doc.ID, vendorA.ID, map[string]*string{"flow": strPtr("90")})
	require.NoError(t, err)
	_, err = f.engine.SetValueSetValues(ctx, alice, doc.ID, vendorB.ID, map[string]*string{"flow": strPtr("120"), "head": strPtr("35")})
	require.NoError(t, err)
	accepted := datasheet.VarianceDeviatesAccepted
	_, err = f.engine.PatchVariance(ctx, bob, doc.ID, vendorA.ID, "flow", &accepted)
	require.NoError(t, err)

	data, err := f.engine.GetCompareData(ctx, alice, doc.ID, "")
	require.NoError(t, err)
	require.NotNil(t, data.Requirement)
	require.Len(t, data.Offered, 2)
	assert.Equal(t, "vendor-a", data.Offered[0].PartyID)
	assert.Equal(t, "vendor-b", data.Offered[1].PartyID)
	require.NotNil(t, data.AsBuilt)
	assert.Equal(t, asBuilt.ID, data.AsBuilt.ID)

	require.Len(t, data.Sections, 2)
	assert.Equal(t, "general", data.Sections[0].ID)
	assert.Equal(t, "performance", data.Sections[1].ID)

	performance := data.Sections[1]
	require.Len(t, performance.Rows, 2)
	flow, head := performance.Rows[0], performance.Rows[1]
	assert.Equal(t, "flow", flow.FieldID)
	assert.Equal(t, "head", head.FieldID)

	require.NotNil(t, flow.Requirement)
	assert.Equal(t, "100", *flow.Requirement)
	require.Len(t, flow.Offered, 2)

	a := flow.Offered[0]
	assert.Equal(t, "90", *a.Value)
	assert.True(t, a.Deviates, "90 fails num(value) >= num(requirement)")
	require.NotNil(t, a.Variance)
	assert.Equal(t, accepted, *a.Variance)

	b := flow.Offered[1]
	assert.Equal(t, "120", *b.Value)
	assert.False(t, b.Deviates, "120 satisfies the acceptance rule")
	assert.Nil(t, b.Variance)

	assert.True(t, head.Offered[1].Deviates, "fields without a rule deviate on any difference")
	assert.False(t, head.Offered[0].Deviates)

	require.NotNil(t, flow.AsBuilt)
	assert.Equal(t, "100", *flow.AsBuilt.Value)
	assert.False(t, flow.AsBuilt.Deviates)

	atex := data.Sections[0].Rows[1]
	assert.Equal(t, "atex", atex.FieldID)
	assert.Nil(t, atex.Requirement)
	assert.Nil(t, atex.Offered[0].Value)
	assert.False(t, atex.Offered[0].Deviates)
}

func TestGetCompareData_PartyFilter(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	for _, party := range []string{"vendor-a", "vendor-b"} {
		_, err := f.engine.EnsureValueSet(ctx, alice, doc.ID, datasheet.ContextOffered, party)
		require.NoError(t, err)
	}

	data, err := f.engine.GetCompareData(ctx, alice, doc.ID, "vendor-b")
	require.NoError(t, err)
	require.Len(t, data.Offered, 1)
	assert.Equal(t, "vendor-b", data.Offered[0].PartyID)
	assert.Nil(t, data.AsBuilt)
	for _, section := range data.Sections {
		for _, row := range section.Rows {
			assert.Len(t, row.Offered, 1)
			assert.Nil(t, row.AsBuilt)
		}
	}
}

func TestGetCompareData_NoValueSets(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	data, err := f.engine.GetCompareData(ctx, alice, doc.ID, "")
	require.NoError(t, err)
	assert.Nil(t, data.Requirement)
	assert.Empty(t, data.Offered)
	require.Len(t, data.Sections, 2)

	_, err = f.engine.GetCompareData(ctx, mallory, doc.ID, "")
	requireKind(t, err, datasheet.KindNotFound)
}
