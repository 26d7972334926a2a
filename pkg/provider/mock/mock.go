// Package mock provides a scriptable adapter for tests.
package mock

import (
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/veylan/synapnode/pkg/provider"
)

// Adapter is a scriptable provider adapter for testing. By default it streams
// the configured chunks and ends cleanly; an error can be injected either at
// call time or after N chunks.
type Adapter struct {
	name      string
	chunks    []string
	callErr   error
	failAfter int // inject streamErr after this many chunks (-1 = never)
	streamErr error
	calls     atomic.Int64
	vectors   [][]float64
	embedErr  error
}

var _ provider.Adapter = (*Adapter)(nil)
var _ provider.Embedder = (*Adapter)(nil)

type Option func(*Adapter)

func New(opts ...Option) *Adapter {
	a := &Adapter{
		name:      "mock",
		failAfter: -1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(a *Adapter) { a.name = name }
}

// WithChunks sets the deltas the stream yields.
func WithChunks(chunks ...string) Option {
	return func(a *Adapter) { a.chunks = chunks }
}

// WithCallError makes StreamComplete fail before any chunk.
func WithCallError(err error) Option {
	return func(a *Adapter) { a.callErr = err }
}

// WithStreamErrorAfter makes the stream fail after n chunks.
func WithStreamErrorAfter(n int, err error) Option {
	return func(a *Adapter) {
		a.failAfter = n
		a.streamErr = err
	}
}

// WithVectors sets the embedding vectors returned per input text, cycled.
func WithVectors(vectors ...[]float64) Option {
	return func(a *Adapter) { a.vectors = vectors }
}

// WithEmbedError makes Embed fail.
func WithEmbedError(err error) Option {
	return func(a *Adapter) { a.embedErr = err }
}

func (a *Adapter) Name() string { return a.name }

// Calls reports how many StreamComplete calls were made.
func (a *Adapter) Calls() int64 { return a.calls.Load() }

func (a *Adapter) StreamComplete(ctx context.Context, req provider.CompletionRequest) (provider.Stream, error) {
	a.calls.Add(1)
	if a.callErr != nil {
		return nil, provider.NewError(a.name, req.Model, a.callErr)
	}
	return &stream{
		name:      a.name,
		model:     req.Model,
		chunks:    a.chunks,
		failAfter: a.failAfter,
		err:       a.streamErr,
		ctx:       ctx,
	}, nil
}

func (a *Adapter) Embed(_ context.Context, texts []string, model string) ([][]float64, error) {
	if a.embedErr != nil {
		return nil, provider.NewError(a.name, model, a.embedErr)
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		if len(a.vectors) > 0 {
			out[i] = a.vectors[i%len(a.vectors)]
		} else {
			out[i] = []float64{float64(len(strings.TrimSpace(texts[i])))}
		}
	}
	return out, nil
}

type stream struct {
	name      string
	model     string
	chunks    []string
	failAfter int
	err       error
	pos       int
	closed    bool
	ctx       context.Context
}

func (s *stream) Next() (provider.Chunk, error) {
	if err := s.ctx.Err(); err != nil {
		return provider.Chunk{}, provider.NewError(s.name, s.model, err)
	}
	if s.failAfter >= 0 && s.pos == s.failAfter {
		return provider.Chunk{}, provider.NewError(s.name, s.model, s.err)
	}
	if s.pos >= len(s.chunks) {
		return provider.Chunk{}, io.EOF
	}
	c := provider.Chunk{Delta: s.chunks[s.pos]}
	s.pos++
	return c, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}
