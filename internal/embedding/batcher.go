// Package embedding fans an input text list out into fixed-size concurrent
// sub-batch calls against an embedding-capable provider and reassembles the
// results, skipping failed batches.
package embedding

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/veylan/synapnode/pkg/Logger"
	"github.com/veylan/synapnode/pkg/provider"
)

type Batcher struct {
	embedder  provider.Embedder
	batchSize int
	logger    *Logger.Logger
}

func NewBatcher(embedder provider.Embedder, batchSize int, logger *Logger.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Batcher{embedder: embedder, batchSize: batchSize, logger: logger}
}

type batchResult struct {
	vectors [][]float64
	err     error
}

// Run embeds the given texts. Empty and whitespace-only entries are dropped
// before batching. Each batch is one concurrent Embed call; a failed batch is
// logged and skipped, so the output is the concatenation of the surviving
// batches in batch order — not a re-sort to the original text order.
func (b *Batcher) Run(ctx context.Context, texts []string, model string) [][]float64 {
	if b.embedder == nil {
		b.logger.Error("no embedding provider configured")
		return [][]float64{}
	}
	survivors := filterBlank(texts)
	if len(survivors) == 0 {
		return [][]float64{}
	}

	batches := partition(survivors, b.batchSize)
	results := make([]batchResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			vectors, err := b.embedder.Embed(gctx, batch, model)
			results[i] = batchResult{vectors: vectors, err: err}
			// Batch failures are policy, not errors: siblings keep going.
			return nil
		})
	}
	_ = g.Wait()

	all := make([][]float64, 0, len(survivors))
	failed := 0
	for i, res := range results {
		if res.err != nil {
			failed++
			b.logger.Errorf("embedding batch %d/%d (%d texts) failed: %v",
				i+1, len(batches), len(batches[i]), res.err)
			continue
		}
		all = append(all, res.vectors...)
	}

	if failed == len(batches) {
		b.logger.Errorf("all %d embedding batches failed", len(batches))
	} else if failed > 0 {
		b.logger.Warnf("partial embedding failure: %d of %d batches dropped", failed, len(batches))
	}
	return all
}

func filterBlank(texts []string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func partition(texts []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[start:end])
	}
	return batches
}
