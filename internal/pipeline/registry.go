package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

// Registry holds the state of running jobs keyed by catalog.JobKey. Acquire
// is the only concurrency control: it succeeds for at most one caller per key.
type Registry interface {
	// Acquire stores state under key if no entry exists and reports whether it did.
	Acquire(ctx context.Context, key string, state catalog.JobState) (bool, error)
	// Get returns the entry for key, or nil if there is none.
	Get(ctx context.Context, key string) (*catalog.JobState, error)
	// Set overwrites the entry for key.
	Set(ctx context.Context, key string, state catalog.JobState) error
	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error
	// Release removes the entry for key only if it still belongs to jobID.
	Release(ctx context.Context, key, jobID string) error
}

// MemoryRegistry is a Registry for a single process.
type MemoryRegistry struct {
	mu   sync.Mutex
	jobs map[string]catalog.JobState
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: map[string]catalog.JobState{}}
}

func (r *MemoryRegistry) Acquire(_ context.Context, key string, state catalog.JobState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[key]; ok {
		return false, nil
	}
	r.jobs[key] = state
	return true, nil
}

func (r *MemoryRegistry) Get(_ context.Context, key string) (*catalog.JobState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.jobs[key]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r *MemoryRegistry) Set(_ context.Context, key string, state catalog.JobState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[key] = state
	return nil
}

func (r *MemoryRegistry) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, key)
	return nil
}

func (r *MemoryRegistry) Release(_ context.Context, key, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.jobs[key]; ok && st.JobID == jobID {
		delete(r.jobs, key)
	}
	return nil
}

// RedisRegistry is a Registry shared across replicas. Entries are leases:
// every write refreshes the TTL, so a crashed replica's job expires instead
// of blocking the tenant forever.
type RedisRegistry struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry creates a RedisRegistry with the given lease TTL.
func NewRedisRegistry(rdb *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisRegistry{rdb: rdb, prefix: "curator:job:", ttl: ttl}
}

func (r *RedisRegistry) Acquire(ctx context.Context, key string, state catalog.JobState) (bool, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("marshaling job state: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, r.prefix+key, data, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring job lease %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisRegistry) Get(ctx context.Context, key string) (*catalog.JobState, error) {
	data, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting job state %s: %w", key, err)
	}
	var st catalog.JobState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding job state %s: %w", key, err)
	}
	return &st, nil
}

func (r *RedisRegistry) Set(ctx context.Context, key string, state catalog.JobState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling job state: %w", err)
	}
	if err := r.rdb.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("setting job state %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting job state %s: %w", key, err)
	}
	return nil
}

func (r *RedisRegistry) Release(ctx context.Context, key, jobID string) error {
	k := r.prefix + key
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var st catalog.JobState
		if err := json.Unmarshal(data, &st); err != nil || st.JobID != jobID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("releasing job state %s: %w", key, err)
	}
	return nil
}
