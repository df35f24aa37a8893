// Package perception wraps the LLM oracle behind a small client
// interface and an extraction adapter. The LLM is used strictly as a
// structured-data transducer: it populates slot candidates and renders
// reply text, and never makes policy decisions.
package perception

import "context"

// LLMClient defines the interface for LLM providers.
type LLMClient interface {
	// Complete sends a prompt and returns freeform text.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithSchema requests structured JSON output conforming to
	// the given JSON schema.
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error)
	// CompleteWithImage requests structured JSON output for a prompt
	// plus an inline JPEG image.
	CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, jsonSchema string) (string, error)
}

// NullClient is the default no-network client. Every call reports that
// no oracle is configured; callers treat that as "nothing extracted".
type NullClient struct{}

// ErrNoOracle is returned by NullClient for every operation.
type noOracleError struct{}

func (noOracleError) Error() string { return "no LLM oracle configured" }

// ErrNoOracle signals that the null client is in use.
var ErrNoOracle error = noOracleError{}

func (NullClient) Complete(context.Context, string) (string, error) {
	return "", ErrNoOracle
}

func (NullClient) CompleteWithSystem(context.Context, string, string) (string, error) {
	return "", ErrNoOracle
}

func (NullClient) CompleteWithSchema(context.Context, string, string, string) (string, error) {
	return "", ErrNoOracle
}

func (NullClient) CompleteWithImage(context.Context, string, string, []byte, string) (string, error) {
	return "", ErrNoOracle
}
