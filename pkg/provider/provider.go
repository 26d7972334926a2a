package provider

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a normalized chat transcript. Image is an optional
// URL reference; each adapter decides whether to inline it or pass it through.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

// CompletionRequest is the provider-agnostic completion call.
type CompletionRequest struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	TopK        int       `json:"top_k"`
	MaxTokens   int       `json:"max_tokens"`
	Seed        int       `json:"seed"`
}

// Chunk is one incremental fragment of a streamed completion. An empty Delta
// is a valid chunk; end of stream is signalled by io.EOF from Stream.Next,
// never by an empty delta.
type Chunk struct {
	Delta string
}

// Stream is a pull iterator over provider chunks. Next returns io.EOF after
// the last chunk; any upstream failure is returned as *Error. Close releases
// the underlying call and is safe to invoke more than once.
type Stream interface {
	Next() (Chunk, error)
	Close() error
}

// Adapter translates normalized completion requests into one upstream
// provider's wire shape. Implementations are safe for concurrent use.
type Adapter interface {
	Name() string
	StreamComplete(ctx context.Context, req CompletionRequest) (Stream, error)
}

// Embedder is implemented by adapters that can serve embedding calls.
// The returned vectors preserve input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float64, error)
}

type ImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	Style   string `json:"style"`
}

type ImageResult struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageGenerator is implemented by adapters that can serve one-shot image
// generation calls.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}

// Error wraps an upstream failure with provider and model context. Adapters
// never let an upstream error escape untyped.
type Error struct {
	Provider string
	Model    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s model %s: %v", e.Provider, e.Model, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a typed provider error.
func NewError(provider, model string, err error) *Error {
	return &Error{Provider: provider, Model: model, Err: err}
}

// SplitSystem extracts the system prompt from a transcript for providers that
// take it as a separate top-level field. Only the first system message is
// promoted; any later system message is demoted to a user message and kept in
// place.
func SplitSystem(msgs []Message) (string, []Message) {
	var system string
	var taken bool
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if !taken {
				system = m.Content
				taken = true
				continue
			}
			m.Role = RoleUser
		}
		rest = append(rest, m)
	}
	return system, rest
}
