package llm

import "context"

// GenerateRequest is one prompt sent to the reasoning engine. Agents set a
// persona through System and the task through Prompt.
type GenerateRequest struct {
	System string
	Prompt string
}

// Generator is the narrow interface the pipeline holds on the reasoning
// engine: a prompt goes in, generated text comes out. Everything about the
// underlying provider stays behind this seam so stages can be tested with a
// fake.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
