// Package gemini adapts the completion contract onto the Google generative
// content API. Gemini takes a single flattened prompt rather than a role
// transcript; the messages are rendered as "role: content" lines.
package gemini

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/veylan/synapnode/pkg/provider"
)

const Name = "Gemini"

type Adapter struct {
	client *genai.Client
}

func New(ctx context.Context, apiKey string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Adapter{client: client}, nil
}

func (a *Adapter) Name() string { return Name }

// StreamComplete implements provider.Adapter.
func (a *Adapter) StreamComplete(ctx context.Context, req provider.CompletionRequest) (provider.Stream, error) {
	model := a.client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))
	if req.TopP > 0 {
		model.SetTopP(float32(req.TopP))
	}
	if req.TopK > 0 {
		model.SetTopK(int32(req.TopK))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	iter := model.GenerateContentStream(ctx, genai.Text(flattenMessages(req.Messages)))
	return &contentStream{model: req.Model, iter: iter}, nil
}

func flattenMessages(msgs []provider.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// contentStream drains the response iterator one text part at a time. A
// single upstream response can carry several parts, so parts are queued.
type contentStream struct {
	model   string
	iter    *genai.GenerateContentResponseIterator
	pending []string
	done    bool
}

func (s *contentStream) Next() (provider.Chunk, error) {
	for len(s.pending) == 0 {
		if s.done {
			return provider.Chunk{}, io.EOF
		}
		resp, err := s.iter.Next()
		if err == iterator.Done {
			return provider.Chunk{}, io.EOF
		}
		if err != nil {
			return provider.Chunk{}, provider.NewError(Name, s.model, err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if txt, ok := part.(genai.Text); ok {
					s.pending = append(s.pending, string(txt))
				}
			}
		}
	}
	delta := s.pending[0]
	s.pending = s.pending[1:]
	return provider.Chunk{Delta: delta}, nil
}

func (s *contentStream) Close() error {
	s.done = true
	return nil
}
