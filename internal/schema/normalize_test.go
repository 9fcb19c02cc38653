package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTypedValue(t *testing.T) {
	tests := []struct {
		name  string
		value string
		field Field
		want  string
	}{
		{
			name:  "blank becomes sentinel",
			value: "   ",
			field: Field{Key: "name"},
			want:  "NULL",
		},
		{
			name:  "sentinel passes through",
			value: "NULL",
			field: Field{Key: "name", SemanticType: SemanticPhone},
			want:  "NULL",
		},
		{
			name:  "phone strips separators",
			value: "06 12.34-56 78",
			field: Field{Key: "phone", SemanticType: SemanticPhone},
			want:  "0612345678",
		},
		{
			name:  "phone international prefix",
			value: "0033 6 12 34 56 78",
			field: Field{Key: "phone", SemanticType: SemanticPhone},
			want:  "+33612345678",
		},
		{
			name:  "amount with comma and spaces",
			value: "1 234,50",
			field: Field{Key: "total", SemanticType: SemanticAmount},
			want:  "1234.5",
		},
		{
			name:  "number kind normalized too",
			value: "42,0",
			field: Field{Key: "count", Kind: KindNumber},
			want:  "42",
		},
		{
			name:  "unparseable number untouched",
			value: "forty-two",
			field: Field{Key: "count", Kind: KindNumber},
			want:  "forty-two",
		},
		{
			name:  "percentage keeps the sign",
			value: "19,6 %",
			field: Field{Key: "vat", SemanticType: SemanticPercentage},
			want:  "19.6%",
		},
		{
			name:  "address collapses whitespace",
			value: "12  rue\tde la   Paix",
			field: Field{Key: "addr", SemanticType: SemanticAddress},
			want:  "12 rue de la Paix",
		},
		{
			name:  "email lowercased",
			value: "Jane.Doe@Example.COM",
			field: Field{Key: "email", SemanticType: SemanticEmail},
			want:  "jane.doe@example.com",
		},
		{
			name:  "iban compacted and uppercased",
			value: "fr76 3000 6000 0112 3456 7890 189",
			field: Field{Key: "iban", SemanticType: SemanticIBAN},
			want:  "FR7630006000011234567890189",
		},
		{
			name:  "plain text only trimmed",
			value: "  Jane Doe  ",
			field: Field{Key: "name", Kind: KindText},
			want:  "Jane Doe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTypedValue(tt.value, tt.field, "NULL"))
		})
	}
}

func TestConfidenceRank(t *testing.T) {
	assert.Greater(t, ConfidenceHigh.Rank(), ConfidenceMedium.Rank())
	assert.Greater(t, ConfidenceMedium.Rank(), ConfidenceLow.Rank())
	assert.Greater(t, ConfidenceLow.Rank(), Confidence("").Rank())
}

func TestSpecAccessors(t *testing.T) {
	spec := Spec{Fields: []Field{
		{Key: "name", Label: " Full Name ", Page: 1},
		{Key: "total", Label: "Total", Page: 3},
	}}

	assert.Equal(t, []string{"name", "total"}, spec.Keys())
	assert.Equal(t, []string{"full name", "total"}, spec.Labels())
	assert.Equal(t, 3, spec.MaxPage())

	f := spec.FieldByKey("total")
	if assert.NotNil(t, f) {
		assert.Equal(t, 3, f.Page)
	}
	assert.Nil(t, spec.FieldByKey("missing"))
}
