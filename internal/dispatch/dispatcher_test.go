package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veylan/synapnode/pkg/Logger"
	"github.com/veylan/synapnode/pkg/provider"
	"github.com/veylan/synapnode/pkg/provider/mock"
)

type send struct {
	payload string
	more    bool
}

type recordSink struct {
	sends   []send
	sendErr error
}

func (s *recordSink) Send(p []byte, more bool) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sends = append(s.sends, send{payload: string(p), more: more})
	return nil
}

func newTestDispatcher(cfg Config, adapters ...provider.Adapter) *Dispatcher {
	return New(provider.NewRegistry(adapters...), cfg, Logger.Nop())
}

func chatRequest(providerName string) provider.CompletionRequest {
	return provider.CompletionRequest{
		Provider: providerName,
		Model:    "test-model",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
	}
}

func TestDispatchStreamsChunksInOrder(t *testing.T) {
	adapter := mock.New(mock.WithChunks("a", "b", "c"))
	d := newTestDispatcher(Config{FlushSize: 1}, adapter)
	sink := &recordSink{}

	if err := d.Dispatch(context.Background(), chatRequest("mock"), sink); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	want := []send{
		{"a", true},
		{"b", true},
		{"c", true},
		{"", false},
	}
	if len(sink.sends) != len(want) {
		t.Fatalf("expected %d sends, got %d: %v", len(want), len(sink.sends), sink.sends)
	}
	for i, w := range want {
		if sink.sends[i] != w {
			t.Errorf("send %d: got %+v, want %+v", i, sink.sends[i], w)
		}
	}
}

func TestDispatchEmptyStreamStillTerminates(t *testing.T) {
	adapter := mock.New()
	d := newTestDispatcher(Config{FlushSize: 1}, adapter)
	sink := &recordSink{}

	if err := d.Dispatch(context.Background(), chatRequest("mock"), sink); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(sink.sends) != 1 {
		t.Fatalf("expected exactly one terminating send, got %d", len(sink.sends))
	}
	if sink.sends[0].more {
		t.Error("terminating send must carry more=false")
	}
}

func TestDispatchProviderErrorMidStreamTerminates(t *testing.T) {
	adapter := mock.New(
		mock.WithChunks("a"),
		mock.WithStreamErrorAfter(1, errors.New("upstream reset")),
	)
	d := newTestDispatcher(Config{FlushSize: 1}, adapter)
	sink := &recordSink{}

	err := d.Dispatch(context.Background(), chatRequest("mock"), sink)
	var perr *provider.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected provider error, got %v", err)
	}

	want := []send{
		{"a", true},
		{"", false},
	}
	if len(sink.sends) != len(want) {
		t.Fatalf("expected %d sends, got %d: %v", len(want), len(sink.sends), sink.sends)
	}
	for i, w := range want {
		if sink.sends[i] != w {
			t.Errorf("send %d: got %+v, want %+v", i, sink.sends[i], w)
		}
	}
}

func TestDispatchUnknownProvider(t *testing.T) {
	d := newTestDispatcher(Config{FlushSize: 1})
	sink := &recordSink{}

	err := d.Dispatch(context.Background(), chatRequest("nope"), sink)
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if len(sink.sends) != 1 || sink.sends[0].more || sink.sends[0].payload != "" {
		t.Errorf("expected only the mandatory empty terminator, got %v", sink.sends)
	}
}

func TestDispatchFlushSizeGroupsDeltas(t *testing.T) {
	adapter := mock.New(mock.WithChunks("a", "b", "c"))
	d := newTestDispatcher(Config{FlushSize: 2}, adapter)
	sink := &recordSink{}

	if err := d.Dispatch(context.Background(), chatRequest("mock"), sink); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	want := []send{
		{"ab", true},
		{"c", false},
	}
	if len(sink.sends) != len(want) {
		t.Fatalf("expected %d sends, got %d: %v", len(want), len(sink.sends), sink.sends)
	}
	for i, w := range want {
		if sink.sends[i] != w {
			t.Errorf("send %d: got %+v, want %+v", i, sink.sends[i], w)
		}
	}
}

func TestDispatchStopsOnCancelledCaller(t *testing.T) {
	adapter := mock.New(mock.WithChunks("a", "b", "c"))
	d := newTestDispatcher(Config{FlushSize: 1}, adapter)
	sink := &recordSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, chatRequest("mock"), sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// No data was pulled; only the best-effort terminator reached the sink.
	if len(sink.sends) != 1 || sink.sends[0].more {
		t.Errorf("expected single terminator, got %v", sink.sends)
	}
}

func TestDispatchProviderTimeoutApplied(t *testing.T) {
	adapter := mock.New(mock.WithChunks("a"))
	d := newTestDispatcher(Config{FlushSize: 1, ProviderTimeout: time.Nanosecond}, adapter)
	sink := &recordSink{}

	// The nanosecond budget expires before the first pull.
	time.Sleep(time.Millisecond)
	err := d.Dispatch(context.Background(), chatRequest("mock"), sink)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestDispatchDeadSinkStopsPulling(t *testing.T) {
	adapter := mock.New(mock.WithChunks("a", "b", "c"))
	d := newTestDispatcher(Config{FlushSize: 1}, adapter)
	sink := &recordSink{sendErr: errors.New("client gone")}

	if err := d.Dispatch(context.Background(), chatRequest("mock"), sink); err == nil {
		t.Fatal("expected error from dead sink")
	}
	if len(sink.sends) != 0 {
		t.Errorf("dead sink must record nothing, got %v", sink.sends)
	}
}
