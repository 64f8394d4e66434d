package ledger

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/alexxgorcea9/primepass/internal/domain"
	pkgredis "github.com/alexxgorcea9/primepass/pkg/redis"
)

//go:embed scripts/reserve.lua
var reserveScript string

//go:embed scripts/release.lua
var releaseScript string

//go:embed scripts/add_capacity.lua
var addCapacityScript string

// Script names for EVALSHA caching
const (
	scriptReserve     = "ledger_reserve"
	scriptRelease     = "ledger_release"
	scriptAddCapacity = "ledger_add_capacity"
)

// Error codes returned by the Lua scripts
const (
	codeCounterNotFound   = "COUNTER_NOT_FOUND"
	codeNoCapacity        = "NO_CAPACITY"
	codeCapacityBelowUsed = "CAPACITY_BELOW_USED"
	codeNegativeCapacity  = "NEGATIVE_CAPACITY"
)

// RedisLedger is a Ledger whose counters live in Redis hashes. Every mutation
// runs as a Lua script, so the dual-counter check-and-increment is a single
// atomic step on the Redis side regardless of how many processes share the
// inventory.
type RedisLedger struct {
	client *pkgredis.Client
}

// NewRedisLedger creates a RedisLedger on top of an existing client.
func NewRedisLedger(client *pkgredis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

// LoadScripts pre-loads the ledger's Lua scripts into Redis.
func (l *RedisLedger) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptReserve:     reserveScript,
		scriptRelease:     releaseScript,
		scriptAddCapacity: addCapacityScript,
	}
	for name, script := range scripts {
		if _, err := l.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}
	return nil
}

// Register creates (or resets) a counter with the given capacity.
func (l *RedisLedger) Register(ctx context.Context, key string, capacity int64) error {
	if capacity < 0 {
		return domain.ErrNegativeCapacity
	}
	if err := l.client.HSet(ctx, key, "capacity", capacity, "used", 0).Err(); err != nil {
		return fmt.Errorf("failed to register counter %s: %w", key, err)
	}
	return nil
}

// AddCapacity adjusts a counter's capacity by delta.
func (l *RedisLedger) AddCapacity(ctx context.Context, key string, delta int64) (int64, error) {
	result := l.client.EvalWithFallback(ctx, scriptAddCapacity, addCapacityScript,
		[]string{key}, delta)
	if result.Err() != nil {
		return 0, fmt.Errorf("failed to execute add_capacity script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil || len(values) < 3 {
		return 0, fmt.Errorf("unexpected add_capacity result: %v", err)
	}

	if success, _ := toInt64(values[0]); success == 1 {
		cap64, _ := toInt64(values[1])
		return cap64, nil
	}

	code, _ := values[1].(string)
	switch code {
	case codeCounterNotFound:
		return 0, domain.ErrUnknownCounter
	case codeCapacityBelowUsed:
		return 0, domain.ErrCapacityInvariant
	case codeNegativeCapacity:
		return 0, domain.ErrNegativeCapacity
	}
	return 0, fmt.Errorf("add_capacity failed: %s", code)
}

// Reserve atomically increments the tier counter plus the optional wave
// counter if both have room.
func (l *RedisLedger) Reserve(ctx context.Context, tierKey, waveKey string) (Outcome, error) {
	keys := []string{tierKey}
	if waveKey != "" {
		keys = append(keys, waveKey)
	}

	result := l.client.EvalWithFallback(ctx, scriptReserve, reserveScript, keys)
	if result.Err() != nil {
		return OutcomeNoCapacity, fmt.Errorf("failed to execute reserve script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil || len(values) < 3 {
		return OutcomeNoCapacity, fmt.Errorf("unexpected reserve result: %v", err)
	}

	if success, _ := toInt64(values[0]); success == 1 {
		return OutcomeReserved, nil
	}

	code, _ := values[1].(string)
	switch code {
	case codeNoCapacity:
		return OutcomeNoCapacity, nil
	case codeCounterNotFound:
		return OutcomeNoCapacity, domain.ErrUnknownCounter
	}
	return OutcomeNoCapacity, fmt.Errorf("reserve failed: %s", code)
}

// Release decrements the tier counter plus the optional wave counter, floored
// at zero.
func (l *RedisLedger) Release(ctx context.Context, tierKey, waveKey string) error {
	keys := []string{tierKey}
	if waveKey != "" {
		keys = append(keys, waveKey)
	}

	result := l.client.EvalWithFallback(ctx, scriptRelease, releaseScript, keys)
	if result.Err() != nil {
		return fmt.Errorf("failed to execute release script: %w", result.Err())
	}
	return nil
}

// Snapshot returns the current view of one counter.
func (l *RedisLedger) Snapshot(ctx context.Context, key string) (Snapshot, error) {
	values, err := l.client.HMGet(ctx, key, "capacity", "used").Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	if len(values) < 2 || values[0] == nil {
		return Snapshot{}, domain.ErrUnknownCounter
	}

	capacity, err := parseCounterField(values[0])
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse capacity for %s: %w", key, err)
	}
	used := int64(0)
	if values[1] != nil {
		used, err = parseCounterField(values[1])
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to parse used for %s: %w", key, err)
		}
	}
	return Snapshot{Capacity: capacity, Used: used}, nil
}

func parseCounterField(v interface{}) (int64, error) {
	if n, ok := toInt64(v); ok {
		return n, nil
	}
	return 0, fmt.Errorf("unexpected field type %T", v)
}

// toInt64 converts a Lua script result element to int64.
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Ensure RedisLedger implements Ledger
var _ Ledger = (*RedisLedger)(nil)
