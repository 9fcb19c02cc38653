package llm

import (
	"strings"

	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
)

// BuildSchemaInferencePrompt composes the pass-1 instruction text.
func BuildSchemaInferencePrompt(extraInstructions string) string {
	parts := []string{
		"You are a form analysis engine. Infer a stable field schema for this form document.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"For every field return a short snake_case key, a human-readable label,",
		"the 1-based page number printed in the 'Page N' marker before each image,",
		"a kind (text, number, date, boolean, enum) and an optional semantic_type",
		"(phone, address, amount, percentage, email, iban, postal_code).",
		"Keys must be unique. Do not invent fields that are not visible on the pages.",
	}
	return joinPromptParts(parts, extraInstructions)
}

// BuildValuesPrompt composes the pass-2 instruction text for a key subset.
func BuildValuesPrompt(fields []schema.Field, nullSentinel, extraInstructions string) string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	parts := []string{
		"You are a form extraction engine. Extract values for the following keys from the attached pages.",
		"Return ONLY JSON that matches the provided JSON Schema: one object with exactly these keys.",
		"Keys: " + strings.Join(keys, ", ") + ".",
		"Page numbers refer to the 'Page N' markers preceding each image.",
		"When a value is not present on the pages, return the sentinel " + nullSentinel + " for it.",
		"Report a confidence of low, medium or high per value; use null when unsure.",
	}
	return joinPromptParts(parts, extraInstructions)
}

// BuildOnePassPrompt composes the combined schema-and-values instruction text.
func BuildOnePassPrompt(nullSentinel, extraInstructions string) string {
	parts := []string{
		"You are a form extraction engine. Infer the field schema of this form document",
		"AND extract the value of every field in one response.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"For every field return key, label, page (from the 'Page N' markers), kind,",
		"semantic_type, the extracted value, and a confidence of low, medium or high.",
		"When a value is not present on the pages, return the sentinel " + nullSentinel + " for it.",
	}
	return joinPromptParts(parts, extraInstructions)
}

func joinPromptParts(parts []string, extraInstructions string) string {
	prompt := strings.Join(parts, " ")
	if extra := strings.TrimSpace(extraInstructions); extra != "" {
		prompt += "\nAdditional instructions: " + extra
	}
	return prompt
}
