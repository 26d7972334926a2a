package admission

import (
	"context"
	"sync"
)

// StakeOracle reports registration and stake for a peer identity. The
// backing data is refreshed externally (chain poller); the controller only
// reads it.
type StakeOracle interface {
	Stake(ctx context.Context, identity string) (stake float64, registered bool, err error)
}

// StaticOracle is an in-memory oracle for development and tests.
type StaticOracle struct {
	mu     sync.RWMutex
	stakes map[string]float64
}

var _ StakeOracle = (*StaticOracle)(nil)

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{stakes: make(map[string]float64)}
}

// SetStake registers an identity with the given stake.
func (o *StaticOracle) SetStake(identity string, stake float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stakes[identity] = stake
}

// Remove deregisters an identity.
func (o *StaticOracle) Remove(identity string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.stakes, identity)
}

func (o *StaticOracle) Stake(_ context.Context, identity string) (float64, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	stake, ok := o.stakes[identity]
	return stake, ok, nil
}
