// Package admission decides whether an inbound request is served at all:
// registration gate, per-kind stake threshold, then a per-identity sliding
// window rate limit.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veylan/synapnode/pkg/Logger"
)

type RequestKind string

const (
	KindIsAlive    RequestKind = "is_alive"
	KindCompletion RequestKind = "completion"
	KindImage      RequestKind = "image"
	KindEmbedding  RequestKind = "embedding"
)

// Policy holds the admission thresholds.
type Policy struct {
	WindowMinutes     int
	MaxRequests       int
	AllowUnregistered bool
	MinStake          map[RequestKind]float64
}

// Decision is the outcome of one Admit call. It is computed once and carries
// no side effect beyond the timestamp recorded on admit.
type Decision struct {
	Admit  bool
	Reason string
}

func reject(format string, args ...any) Decision {
	return Decision{Admit: false, Reason: fmt.Sprintf(format, args...)}
}

// Controller owns all per-identity rate state. Safe for concurrent use; each
// identity's window has its own lock so unrelated callers never serialize.
type Controller struct {
	oracle StakeOracle
	policy Policy
	logger *Logger.Logger
	now    func() time.Time

	mu      sync.RWMutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	mu     sync.Mutex
	stamps []time.Time
}

func NewController(oracle StakeOracle, policy Policy, logger *Logger.Logger) *Controller {
	return &Controller{
		oracle:  oracle,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
		windows: make(map[string]*rateWindow),
	}
}

// Admit evaluates the checks in order, short-circuiting on the first
// rejection. Any internal failure is logged and turned into a rejection; the
// serving path never sees an error from here.
func (c *Controller) Admit(ctx context.Context, identity string, kind RequestKind) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("panic in admission for %s: %v", identity, r)
			d = reject("admission check failed")
		}
	}()

	stake, registered, err := c.oracle.Stake(ctx, identity)
	if err != nil {
		c.logger.Errorf("admission check failed for %s: %v", identity, err)
		return reject("admission check failed")
	}

	if !registered && !c.policy.AllowUnregistered {
		return reject("unregistered identity %s", identity)
	}

	if minStake := c.policy.MinStake[kind]; stake < minStake {
		return reject("stake %.2f below %s threshold %.2f", stake, kind, minStake)
	}

	return c.checkRate(identity, kind)
}

func (c *Controller) checkRate(identity string, kind RequestKind) Decision {
	w := c.window(identity)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := c.now()
	boundary := now.Add(-time.Duration(c.policy.WindowMinutes) * time.Minute)

	// Lazy prune: drop timestamps that fell out of the window.
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(boundary) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= c.policy.MaxRequests {
		return reject("request frequency for %s exceeded: %d requests in %d minutes, limit is %d",
			identity, len(w.stamps), c.policy.WindowMinutes, c.policy.MaxRequests)
	}

	w.stamps = append(w.stamps, now)
	return Decision{Admit: true, Reason: fmt.Sprintf("accepting %s request from %s", kind, identity)}
}

func (c *Controller) window(identity string) *rateWindow {
	c.mu.RLock()
	w, ok := c.windows[identity]
	c.mu.RUnlock()
	if ok {
		return w
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok = c.windows[identity]; ok {
		return w
	}
	w = &rateWindow{}
	c.windows[identity] = w
	return w
}

// WindowCount reports the recorded (unpruned) timestamps for an identity.
func (c *Controller) WindowCount(identity string) int {
	c.mu.RLock()
	w, ok := c.windows[identity]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stamps)
}
