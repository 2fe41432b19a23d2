package llm

import (
	"context"
)

// LLMClient is the single capability the pipeline needs from a language
// model backend: prompt in, text out.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
