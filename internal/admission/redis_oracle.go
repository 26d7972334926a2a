package admission

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis"
)

// stakeKey is the hash the external chain poller writes the latest metagraph
// snapshot into: field = hotkey, value = stake.
const stakeKey = "metagraph:stake"

// RedisOracle reads the stake snapshot from redis. A missing field means the
// identity is not registered.
type RedisOracle struct {
	client *redis.Client
}

var _ StakeOracle = (*RedisOracle)(nil)

func NewRedisOracle(addr, pass string) *RedisOracle {
	return &RedisOracle{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: pass,
			DB:       0,
		}),
	}
}

func (o *RedisOracle) Stake(ctx context.Context, identity string) (float64, bool, error) {
	val, err := o.client.WithContext(ctx).HGet(stakeKey, identity).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("stake lookup for %s: %w", identity, err)
	}
	stake, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed stake for %s: %w", identity, err)
	}
	return stake, true, nil
}
