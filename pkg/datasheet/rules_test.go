package datasheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviates(t *testing.T) {
	plain := FieldDefinition{DefinitionID: "seal", Type: FieldTypeText}
	minimum := FieldDefinition{DefinitionID: "flow", Type: FieldTypeNumber, Rule: "num(value) >= num(requirement)"}

	tests := []struct {
		name        string
		def         FieldDefinition
		requirement *string
		value       *string
		want        bool
	}{
		{"equal values without rule", plain, strPtr("double"), strPtr("double"), false},
		{"different values without rule", plain, strPtr("double"), strPtr("single"), true},
		{"missing value never deviates", plain, strPtr("double"), nil, false},
		{"missing requirement never deviates", plain, nil, strPtr("single"), false},
		{"rule satisfied", minimum, strPtr("100"), strPtr("120"), false},
		{"rule violated", minimum, strPtr("100"), strPtr("80"), true},
		{"rule runtime failure deviates", minimum, strPtr("100"), strPtr("n/a"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Deviates(tt.def, tt.requirement, tt.value))
		})
	}
}

func TestCompileRule(t *testing.T) {
	assert.NoError(t, CompileRule("num(value) <= num(requirement) * 1.1"))
	assert.NoError(t, CompileRule(`value in ["A", "B"]`))
	assert.Error(t, CompileRule("num(value) +"))
	assert.Error(t, CompileRule(`value + "x"`), "non-boolean rules are rejected")
}
