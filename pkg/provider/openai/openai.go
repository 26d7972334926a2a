// Package openai adapts the normalized completion contract onto the OpenAI
// chat completions API. It also serves embedding and image generation calls
// for the node.
package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/veylan/synapnode/pkg/provider"
)

const Name = "OpenAI"

type Adapter struct {
	client openai.Client
}

func New(apiKey string) *Adapter {
	return &Adapter{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (a *Adapter) Name() string { return Name }

// StreamComplete implements provider.Adapter.
func (a *Adapter) StreamComplete(ctx context.Context, req provider.CompletionRequest) (provider.Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    convertMessages(req.Messages),
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
	return &chatStream{model: req.Model, inner: s}, nil
}

// convertMessages maps the normalized transcript onto OpenAI message params.
// Image references stay URLs; OpenAI fetches them itself.
func convertMessages(msgs []provider.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case provider.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case provider.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if m.Image != "" {
				parts := []openai.ChatCompletionContentPartUnionParam{}
				if m.Content != "" {
					parts = append(parts, openai.TextContentPart(m.Content))
				}
				parts = append(parts, openai.ImageContentPart(
					openai.ChatCompletionContentPartImageImageURLParam{URL: m.Image},
				))
				out = append(out, openai.UserMessage(parts))
				continue
			}
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type chatStream struct {
	model string
	inner *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *chatStream) Next() (provider.Chunk, error) {
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

func (s *chatStream) Close() error { return s.inner.Close() }

// Embed implements provider.Embedder. Vector order follows input order.
func (a *Adapter) Embed(ctx context.Context, texts []string, model string) ([][]float64, error) {
	resp, err := a.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, provider.NewError(Name, model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, provider.NewError(Name, model,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			return nil, provider.NewError(Name, model,
				fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// GenerateImage implements provider.ImageGenerator.
func (a *Adapter) GenerateImage(ctx context.Context, req provider.ImageRequest) (provider.ImageResult, error) {
	params := openai.ImageGenerateParams{
		Model:  openai.ImageModel(req.Model),
		Prompt: req.Prompt,
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	if req.Quality != "" {
		params.Quality = openai.ImageGenerateParamsQuality(req.Quality)
	}
	if req.Style != "" {
		params.Style = openai.ImageGenerateParamsStyle(req.Style)
	}

	resp, err := a.client.Images.Generate(ctx, params)
	if err != nil {
		return provider.ImageResult{}, provider.NewError(Name, req.Model, err)
	}
	if len(resp.Data) == 0 {
		return provider.ImageResult{}, provider.NewError(Name, req.Model,
			fmt.Errorf("empty image response"))
	}
	return provider.ImageResult{
		URL:           resp.Data[0].URL,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}, nil
}
