// Package fallback delegates unmatched messages to a generative model.
package fallback

import "context"

// Message is one turn of conversation context passed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates a reply for a message the knowledge base could not
// answer. history carries recent conversation turns, oldest first.
//
// Implementations must honor ctx: the caller bounds every attempt with a
// deadline, and a timed-out attempt is reported as *UpstreamError.
type Provider interface {
	Generate(ctx context.Context, question string, history []Message) (string, error)
	Model() string
}

// UpstreamError is a transient provider failure (network, 5xx, rate limit,
// timeout). The caller may retry with backoff.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "fallback upstream: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// ContentPolicyError is terminal for the message: the provider refused it.
// The caller must answer with a safe default and never retry.
type ContentPolicyError struct {
	Reason string
}

func (e *ContentPolicyError) Error() string { return "fallback content policy: " + e.Reason }
