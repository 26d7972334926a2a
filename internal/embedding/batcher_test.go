package embedding

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/veylan/synapnode/pkg/Logger"
	"github.com/veylan/synapnode/pkg/provider"
)

// scriptedEmbedder records the batches it receives and can fail selectively.
type scriptedEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	failOn  func(batch []string) bool
	vector  func(text string) []float64
}

func (e *scriptedEmbedder) Embed(_ context.Context, texts []string, model string) ([][]float64, error) {
	e.mu.Lock()
	e.batches = append(e.batches, texts)
	e.mu.Unlock()

	if e.failOn != nil && e.failOn(texts) {
		return nil, provider.NewError("mock", model, errors.New("batch failed"))
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if e.vector != nil {
			out[i] = e.vector(t)
		} else {
			out[i] = []float64{float64(i)}
		}
	}
	return out, nil
}

func TestRunFiltersBlankAndPartitions(t *testing.T) {
	embedder := &scriptedEmbedder{}
	b := NewBatcher(embedder, 2, Logger.Nop())

	texts := []string{"x", "", "  ", "y", "z"}
	vectors := b.Run(context.Background(), texts, "embed-model")

	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors for 3 surviving texts, got %d", len(vectors))
	}
	wantBatches := [][]string{{"x", "y"}, {"z"}}
	if len(embedder.batches) != len(wantBatches) {
		t.Fatalf("expected %d batches, got %v", len(wantBatches), embedder.batches)
	}
	// Concurrent gather may record batches out of order; match by content.
	for _, want := range wantBatches {
		found := false
		for _, got := range embedder.batches {
			if reflect.DeepEqual(got, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("batch %v not issued; got %v", want, embedder.batches)
		}
	}
}

func TestRunSkipsFailedBatch(t *testing.T) {
	embedder := &scriptedEmbedder{
		failOn: func(batch []string) bool { return batch[0] == "x" },
		vector: func(text string) []float64 { return []float64{float64(len(text))} },
	}
	b := NewBatcher(embedder, 2, Logger.Nop())

	vectors := b.Run(context.Background(), []string{"x", "", "  ", "y", "zzz"}, "embed-model")

	// First batch ["x","y"] failed; result is exactly the second batch.
	want := [][]float64{{3}}
	if !reflect.DeepEqual(vectors, want) {
		t.Errorf("expected only surviving batch vectors %v, got %v", want, vectors)
	}
}

func TestRunAllBatchesFailed(t *testing.T) {
	embedder := &scriptedEmbedder{
		failOn: func([]string) bool { return true },
	}
	b := NewBatcher(embedder, 2, Logger.Nop())

	vectors := b.Run(context.Background(), []string{"a", "b", "c"}, "embed-model")
	if len(vectors) != 0 {
		t.Errorf("expected empty result when every batch fails, got %v", vectors)
	}
}

func TestRunPreservesBatchOrder(t *testing.T) {
	embedder := &scriptedEmbedder{
		vector: func(text string) []float64 { return []float64{float64(text[0])} },
	}
	b := NewBatcher(embedder, 2, Logger.Nop())

	vectors := b.Run(context.Background(), []string{"a", "b", "c", "d", "e"}, "embed-model")

	want := [][]float64{{'a'}, {'b'}, {'c'}, {'d'}, {'e'}}
	if !reflect.DeepEqual(vectors, want) {
		t.Errorf("expected batch-order concatenation %v, got %v", want, vectors)
	}
}

func TestRunEmptyInput(t *testing.T) {
	b := NewBatcher(&scriptedEmbedder{}, 2, Logger.Nop())
	if got := b.Run(context.Background(), []string{"", "   "}, "m"); len(got) != 0 {
		t.Errorf("expected empty result for blank-only input, got %v", got)
	}
}

func TestRunNoEmbedderConfigured(t *testing.T) {
	b := NewBatcher(nil, 2, Logger.Nop())
	if got := b.Run(context.Background(), []string{"a"}, "m"); len(got) != 0 {
		t.Errorf("expected empty result without an embedder, got %v", got)
	}
}

func TestPartition(t *testing.T) {
	got := partition([]string{"a", "b", "c", "d", "e"}, 2)
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("partition = %v, want %v", got, want)
	}
}
