// Package anthropic adapts the completion contract onto the Anthropic
// messages API. The first system message of the transcript is promoted to the
// top-level system field; image references are fetched and inlined as base64
// blocks before the streaming call is issued.
package anthropic

import (
	"context"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/veylan/synapnode/pkg/provider"
)

const Name = "Anthropic"

const defaultMaxTokens = 4096

type Adapter struct {
	client anthropic.Client
}

func New(apiKey string) *Adapter {
	return &Adapter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (a *Adapter) Name() string { return Name }

// StreamComplete implements provider.Adapter.
func (a *Adapter) StreamComplete(ctx context.Context, req provider.CompletionRequest) (provider.Stream, error) {
	system, rest := provider.SplitSystem(req.Messages)

	msgs, err := convertMessages(ctx, rest)
	if err != nil {
		return nil, provider.NewError(Name, req.Model, err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    msgs,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if req.TopK > 0 {
		params.TopK = anthropic.Int(int64(req.TopK))
	}

	s := a.client.Messages.NewStreaming(ctx, params)
	return &messageStream{model: req.Model, inner: s}, nil
}

// convertMessages builds Anthropic content blocks. The image fetch is a
// synchronous network call; a failed fetch fails the whole request.
func convertMessages(ctx context.Context, msgs []provider.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		if m.Image != "" {
			data, err := provider.FetchImageBase64(ctx, m.Image)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, anthropic.NewImageBlockBase64("image/jpeg", data))
		}
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == provider.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

type messageStream struct {
	model string
	inner *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *messageStream) Next() (provider.Chunk, error) {
	for s.inner.Next() {
		event := s.inner.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				return provider.Chunk{Delta: delta.Text}, nil
			}
		}
	}
	if err := s.inner.Err(); err != nil {
		return provider.Chunk{}, provider.NewError(Name, s.model, err)
	}
	return provider.Chunk{}, io.EOF
}

func (s *messageStream) Close() error { return s.inner.Close() }
