package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

func TestHasEvidence(t *testing.T) {
	assert.True(t, hasEvidence("Jane", "NULL"))
	assert.False(t, hasEvidence("", "NULL"))
	assert.False(t, hasEvidence("   ", "NULL"))
	assert.False(t, hasEvidence("NULL", "NULL"))
	assert.False(t, hasEvidence(" NULL ", "NULL"))
}

func TestSelectBetter(t *testing.T) {
	low := schema.FieldValue{Key: "k", Value: "a", Confidence: schema.ConfidenceLow}
	high := schema.FieldValue{Key: "k", Value: "b", Confidence: schema.ConfidenceHigh}
	blank := schema.FieldValue{Key: "k", Value: "NULL"}

	assert.Equal(t, low, selectBetter(nil, low, "NULL"))

	// Non-blank beats blank in both directions.
	assert.Equal(t, low, selectBetter(&blank, low, "NULL"))
	assert.Equal(t, low, selectBetter(&low, blank, "NULL"))

	// Higher confidence wins.
	assert.Equal(t, high, selectBetter(&low, high, "NULL"))
	assert.Equal(t, high, selectBetter(&high, low, "NULL"))

	// Equal rank: first seen wins.
	other := schema.FieldValue{Key: "k", Value: "c", Confidence: schema.ConfidenceLow}
	assert.Equal(t, low, selectBetter(&low, other, "NULL"))
}

func TestMergeValuesDeterministic(t *testing.T) {
	batches := [][]schema.FieldValue{
		{
			{Key: "name", Value: "Jane", Confidence: schema.ConfidenceMedium},
			{Key: "total", Value: "NULL"},
		},
		{
			{Key: "name", Value: "J.", Confidence: schema.ConfidenceMedium},
			{Key: "total", Value: "12.5", Confidence: schema.ConfidenceLow},
		},
	}

	merged := mergeValues(batches, "NULL")
	assert.Equal(t, "Jane", merged["name"].Value, "equal rank keeps the earlier chunk")
	assert.Equal(t, "12.5", merged["total"].Value, "evidence beats the sentinel")
}

func TestAssembleFieldsNoKeyOmission(t *testing.T) {
	spec := &schema.Spec{Fields: []schema.Field{
		{Key: "name", Label: "Name", Page: 1, Kind: schema.KindText},
		{Key: "total", Label: "Total", Page: 2, SemanticType: schema.SemanticAmount},
		{Key: "notes", Label: "Notes"},
	}}
	byKey := map[string]schema.FieldValue{
		"name":  {Key: "name", Value: " Jane Doe ", Page: 1},
		"total": {Key: "total", Value: "1 234,50"},
	}

	fields, flat := assembleFields(spec, byKey, "NULL")

	require.Len(t, fields, 3)
	require.Len(t, flat, 3)

	assert.Equal(t, "name", fields[0].Key)
	assert.Equal(t, "Jane Doe", fields[0].Value)

	assert.Equal(t, "1234.5", fields[1].Value, "typed normalization applied")
	assert.Equal(t, 2, fields[1].Page, "missing page falls back to the hint")

	assert.Equal(t, "NULL", fields[2].Value)
	assert.Equal(t, "NULL", flat["notes"])
}

func TestAssembleFieldsSentinelKeepsReportedPage(t *testing.T) {
	spec := &schema.Spec{Fields: []schema.Field{{Key: "x", Page: 1}}}
	byKey := map[string]schema.FieldValue{
		"x": {Key: "x", Value: "NULL", Page: 3},
	}
	fields, _ := assembleFields(spec, byKey, "NULL")
	require.Len(t, fields, 1)
	assert.Equal(t, 3, fields[0].Page)
}
