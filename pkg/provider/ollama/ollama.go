// Package ollama adapts the completion contract onto a self-hosted Ollama
// server. The Ollama client pushes chunks through a callback; the adapter
// inverts that into the pull-based Stream so the dispatcher paces the
// upstream read.
package ollama

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/veylan/synapnode/pkg/provider"
)

const Name = "Ollama"

type Adapter struct {
	client *api.Client
}

func New(host string) (*Adapter, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama host: %w", err)
	}
	return &Adapter{client: api.NewClient(base, http.DefaultClient)}, nil
}

func (a *Adapter) Name() string { return Name }

// StreamComplete implements provider.Adapter.
func (a *Adapter) StreamComplete(ctx context.Context, req provider.CompletionRequest) (provider.Stream, error) {
	msgs := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	stream := true
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
			"top_p":       req.TopP,
			"top_k":       req.TopK,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}
	if req.Seed != 0 {
		chatReq.Options["seed"] = req.Seed
	}

	cctx, cancel := context.WithCancel(ctx)
	ch := make(chan item)

	go func() {
		defer close(ch)
		err := a.client.Chat(cctx, chatReq, func(resp api.ChatResponse) error {
			select {
			case ch <- item{chunk: provider.Chunk{Delta: resp.Message.Content}}:
				return nil
			case <-cctx.Done():
				return cctx.Err()
			}
		})
		if err != nil && cctx.Err() == nil {
			select {
			case ch <- item{err: provider.NewError(Name, req.Model, err)}:
			case <-cctx.Done():
			}
		}
	}()

	return &callbackStream{ch: ch, cancel: cancel}, nil
}

type item struct {
	chunk provider.Chunk
	err   error
}

type callbackStream struct {
	ch     chan item
	cancel context.CancelFunc
}

func (s *callbackStream) Next() (provider.Chunk, error) {
	it, ok := <-s.ch
	if !ok {
		return provider.Chunk{}, io.EOF
	}
	if it.err != nil {
		return provider.Chunk{}, it.err
	}
	return it.chunk, nil
}

func (s *callbackStream) Close() error {
	s.cancel()
	return nil
}
