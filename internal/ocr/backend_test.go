package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guillaume-Lombardo/extractforms/internal/pages"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

type staticProvider struct {
	pages []PageText
	err   error
}

func (p *staticProvider) ExtractPages(ctx context.Context, _ []pages.Page) ([]PageText, error) {
	return p.pages, p.err
}

func twoLogicalPages() []pages.Page {
	return []pages.Page{{Number: 1}, {Number: 2}}
}

func TestBackendRequiresProvider(t *testing.T) {
	b := NewBackend(nil, "NULL", nil)

	_, _, err := b.InferSchema(context.Background(), twoLogicalPages(), "")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, _, err = b.ExtractValues(context.Background(), nil, []schema.Field{{Key: "x"}}, twoLogicalPages(), "")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestInferSchemaFromLines(t *testing.T) {
	provider := &staticProvider{pages: []PageText{
		{Page: 1, Lines: []string{
			"Client Name: Jane Doe",
			"no separator here",
			"Total Amount : 12,50",
		}},
		{Page: 2, Lines: []string{
			"client name: duplicate ignored",
			"Signature:",
		}},
	}}
	b := NewBackend(provider, "NULL", nil)

	spec, call, err := b.InferSchema(context.Background(), twoLogicalPages(), "")
	require.NoError(t, err)
	assert.Nil(t, call, "ocr reports no pricing")
	require.Len(t, spec.Fields, 3)

	assert.Equal(t, "client_name", spec.Fields[0].Key)
	assert.Equal(t, "Client Name", spec.Fields[0].Label)
	assert.Equal(t, 1, spec.Fields[0].Page)

	assert.Equal(t, "total_amount", spec.Fields[1].Key)
	assert.Equal(t, "signature", spec.Fields[2].Key)
	assert.Equal(t, 2, spec.Fields[2].Page)
}

func TestExtractValuesFirstMatchWins(t *testing.T) {
	provider := &staticProvider{pages: []PageText{
		{Page: 1, Lines: []string{"Client Name: Jane Doe", "Signature:"}},
		{Page: 2, Lines: []string{"Client Name: Someone Else"}},
	}}
	b := NewBackend(provider, "NULL", nil)

	fields := []schema.Field{
		{Key: "client_name"},
		{Key: "signature"},
		{Key: "absent_key"},
	}
	values, call, err := b.ExtractValues(context.Background(), nil, fields, twoLogicalPages(), "")
	require.NoError(t, err)
	assert.Nil(t, call)

	byKey := map[string]schema.FieldValue{}
	for _, v := range values {
		byKey[v.Key] = v
	}
	assert.Equal(t, "Jane Doe", byKey["client_name"].Value, "first match in page order wins")
	assert.Equal(t, 1, byKey["client_name"].Page)
	assert.Equal(t, schema.ConfidenceMedium, byKey["client_name"].Confidence)

	assert.Equal(t, "NULL", byKey["signature"].Value, "empty value maps to the sentinel")

	_, found := byKey["absent_key"]
	assert.False(t, found, "unmatched keys are simply absent")
}

func TestExtractValuesEmptyFieldSet(t *testing.T) {
	b := NewBackend(&staticProvider{}, "NULL", nil)
	values, call, err := b.ExtractValues(context.Background(), nil, nil, twoLogicalPages(), "")
	require.NoError(t, err)
	assert.Nil(t, values)
	assert.Nil(t, call)
}

func TestInferAndExtract(t *testing.T) {
	provider := &staticProvider{pages: []PageText{
		{Page: 1, Lines: []string{"Client Name: Jane Doe"}},
	}}
	b := NewBackend(provider, "NULL", nil)

	spec, values, call, err := b.InferAndExtract(context.Background(), twoLogicalPages(), "")
	require.NoError(t, err)
	assert.Nil(t, call)
	require.Len(t, spec.Fields, 1)
	require.Len(t, values, 1)
	assert.Equal(t, "client_name", values[0].Key)
	assert.Equal(t, "Jane Doe", values[0].Value)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "client_name", normalizeKey(" Client  Name "))
	assert.Equal(t, "n_dossier", normalizeKey("N° Dossier"))
	assert.Equal(t, "", normalizeKey("  ::  "))
}
