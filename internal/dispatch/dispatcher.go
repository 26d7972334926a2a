// Package dispatch drives one provider chunk stream into one outgoing sink
// with buffered flushes and guaranteed terminal framing.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/veylan/synapnode/pkg/Logger"
	"github.com/veylan/synapnode/pkg/provider"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Dispatch lifecycle. One dispatch object per call; closed is terminal.
const (
	stateIdle      = "idle"
	stateStreaming = "streaming"
	stateCompleted = "completed"
	stateFailed    = "failed"
	stateClosed    = "closed"

	eventBegin    = "begin"
	eventComplete = "complete"
	eventFail     = "fail"
	eventClose    = "close"
)

type Config struct {
	// FlushSize is how many deltas accumulate before a flush. 1 means every
	// token is sent as soon as it arrives.
	FlushSize int
	// ProviderTimeout bounds the whole upstream call. Zero disables it.
	ProviderTimeout time.Duration
}

type Dispatcher struct {
	registry *provider.Registry
	cfg      Config
	logger   *Logger.Logger
}

func New(registry *provider.Registry, cfg Config, logger *Logger.Logger) *Dispatcher {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 1
	}
	return &Dispatcher{registry: registry, cfg: cfg, logger: logger}
}

type lifecycle struct {
	id  string
	fsm *fsm.FSM
}

func newLifecycle(id string) *lifecycle {
	return &lifecycle{
		id: id,
		fsm: fsm.NewFSM(
			stateIdle,
			fsm.Events{
				{Name: eventBegin, Src: []string{stateIdle}, Dst: stateStreaming},
				{Name: eventComplete, Src: []string{stateStreaming}, Dst: stateCompleted},
				{Name: eventFail, Src: []string{stateIdle, stateStreaming}, Dst: stateFailed},
				{Name: eventClose, Src: []string{stateCompleted, stateFailed}, Dst: stateClosed},
			},
			fsm.Callbacks{},
		),
	}
}

func (l *lifecycle) transition(ctx context.Context, event string) {
	// Transitions are fixed by the loop below; a refused event is a bug.
	_ = l.fsm.Event(ctx, event)
}

// Dispatch looks up the adapter for req.Provider, drives its chunk stream
// and writes framed flushes into the sink. Exactly one more=false send
// terminates the stream on every path except a dead sink.
func (d *Dispatcher) Dispatch(ctx context.Context, req provider.CompletionRequest, sink Sink) error {
	id := uuid.New().String()
	life := newLifecycle(id)

	adapter, ok := d.registry.Lookup(req.Provider)
	if !ok {
		d.logger.Errorf("dispatch %s: unknown provider %q", id, req.Provider)
		life.transition(ctx, eventFail)
		d.terminate(id, sink)
		life.transition(ctx, eventClose)
		return fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
	}

	if d.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.ProviderTimeout)
		defer cancel()
	}

	stream, err := adapter.StreamComplete(ctx, req)
	if err != nil {
		d.logger.Errorf("dispatch %s: provider call failed: %v", id, err)
		life.transition(ctx, eventFail)
		d.terminate(id, sink)
		life.transition(ctx, eventClose)
		return err
	}
	defer stream.Close()

	life.transition(ctx, eventBegin)
	buffer := make([]string, 0, d.cfg.FlushSize)

	for {
		if ctx.Err() != nil {
			// Caller disconnected or the provider timeout fired: stop
			// pulling and try to close the wire stream anyway.
			d.logger.Infof("dispatch %s: cancelled: %v", id, ctx.Err())
			life.transition(ctx, eventFail)
			d.terminate(id, sink)
			life.transition(ctx, eventClose)
			return ctx.Err()
		}

		chunk, err := stream.Next()
		if err == io.EOF {
			// Final flush carries whatever is buffered, possibly nothing.
			final := strings.Join(buffer, "")
			if err := sink.Send([]byte(final), false); err != nil {
				d.logger.Warnf("dispatch %s: final send failed: %v", id, err)
			}
			life.transition(ctx, eventComplete)
			life.transition(ctx, eventClose)
			return nil
		}
		if err != nil {
			d.logger.Errorf("dispatch %s: stream failed: %v", id, err)
			life.transition(ctx, eventFail)
			d.terminate(id, sink)
			life.transition(ctx, eventClose)
			return err
		}

		buffer = append(buffer, chunk.Delta)
		if len(buffer) < d.cfg.FlushSize {
			continue
		}

		joined := strings.Join(buffer, "")
		buffer = buffer[:0]
		if err := sink.Send([]byte(joined), true); err != nil {
			// Sink is dead; no terminator can reach the caller.
			d.logger.Infof("dispatch %s: sink closed mid-stream: %v", id, err)
			life.transition(ctx, eventFail)
			life.transition(ctx, eventClose)
			return err
		}
		d.logger.Debugf("dispatch %s: streamed %d bytes", id, len(joined))
	}
}

// terminate performs the mandatory closing send so the caller never waits on
// an open stream.
func (d *Dispatcher) terminate(id string, sink Sink) {
	if err := sink.Send(nil, false); err != nil {
		d.logger.Warnf("dispatch %s: terminating send failed: %v", id, err)
	}
}
