// Package groq adapts the completion contract onto Groq's OpenAI-compatible
// fast-inference API by pointing the OpenAI client at the Groq endpoint.
package groq

import (
	"context"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/veylan/synapnode/pkg/provider"
)

const Name = "Groq"

const defaultBaseURL = "https://api.groq.com/openai/v1"

type Adapter struct {
	client openai.Client
}

func New(apiKey, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
	}
}

func (a *Adapter) Name() string { return Name }

// StreamComplete implements provider.Adapter. Groq takes plain role/content
// messages; image references are not supported and are dropped.
func (a *Adapter) StreamComplete(ctx context.Context, req provider.CompletionRequest) (provider.Stream, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case provider.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case provider.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    msgs,
		Temperature: openai.Float(req.Temperature),
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Seed != 0 {
		params.Seed = openai.Int(int64(req.Seed))
	}

	s := a.client.Chat.Completions.NewStreaming(ctx, params)
	return &groqStream{model: req.Model, inner: s}, nil
}

type groqStream struct {
	model string
	inner *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *groqStream) Next() (provider.Chunk, error) {
	for s.inner.Next() {
		cur := s.inner.Current()
		if len(cur.Choices) == 0 {
			continue
		}
		return provider.Chunk{Delta: cur.Choices[0].Delta.Content}, nil
	}
	if err := s.inner.Err(); err != nil {
		return provider.Chunk{}, provider.NewError(Name, s.model, err)
	}
	return provider.Chunk{}, io.EOF
}

func (s *groqStream) Close() error { return s.inner.Close() }
