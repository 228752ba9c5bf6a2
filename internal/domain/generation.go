package domain

import "encoding/json"

// CompletionRequest is a free-form chat completion call.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float32 // nil leaves the provider default
	MaxTokens    int
}

// Completion is the text produced by a completion call.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// StructuredRequest is a constrained-schema call. The provider must answer with a single
// function payload conforming to Schema (a JSON Schema object).
type StructuredRequest struct {
	SystemPrompt string
	UserPrompt   string
	FunctionName string
	Description  string
	Schema       json.RawMessage
	Temperature  float32
}

// StructuredCompletion is the function payload of a structured call.
// Token counts are reported even when the payload is missing.
type StructuredCompletion struct {
	Arguments        json.RawMessage
	PromptTokens     int
	CompletionTokens int
}
