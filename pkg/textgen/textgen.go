// Package textgen abstracts the text generation providers used by the
// classification, rewrite and summary stages.
package textgen

import "context"

// Provider performs text generation against a single backend.
type Provider interface {
	// Name identifies the provider ("anthropic", "openai") in logs and reports.
	Name() string

	// Generate produces a completion for the given request. Errors are
	// *ProviderError values classified by failure kind.
	Generate(ctx context.Context, req Request) (string, error)

	// TestConnection issues a minimal request to verify credentials and
	// reachability.
	TestConnection(ctx context.Context) error
}

// Request describes a single generation call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
}
