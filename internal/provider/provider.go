// Package provider supplies the LLM client used by every reasoning
// component in the engine. The concrete implementation wraps the
// Anthropic Messages API (direct or via AWS Bedrock); components depend
// only on the ChatClient interface so tests can substitute fakes.
package provider

import "context"

// Role identifies the author of a chat message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a single chat completion call.
type ChatRequest struct {
	// System is the system prompt, optional.
	System string
	// Messages is the conversation so far, oldest first.
	Messages []Message
	// Model overrides the client's default model when non-empty.
	Model string
	// Temperature is the sampling temperature. Zero means provider default.
	Temperature float64
	// MaxTokens bounds the response length. Zero means the client default.
	MaxTokens int64
}

// ChatResponse is the result of a chat completion call.
type ChatResponse struct {
	// Content is the concatenated text output.
	Content string
	// FinishReason is the provider's stop reason.
	FinishReason string
	// InputTokens and OutputTokens report usage for this call.
	InputTokens  int64
	OutputTokens int64
	// Model is the model that produced the response.
	Model string
}

// ChatClient is the minimal LLM surface the engine needs.
type ChatClient interface {
	// Chat performs one completion call. Implementations must honor
	// ctx cancellation and deadlines.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
