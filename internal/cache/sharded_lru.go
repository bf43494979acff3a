package cache

import (
	"context"
	"encoding/binary"
	"hash/maphash"

	"github.com/hupe1980/flatfilter/internal/resource"
)

const numShards = 64

// ShardedLRUBlockCache spreads blocks over independently locked LRU shards.
type ShardedLRUBlockCache struct {
	shards [numShards]*LRUBlockCache
	seed   maphash.Seed
}

// NewShardedLRUBlockCache divides capacity evenly across the shards.
func NewShardedLRUBlockCache(capacity int64, rc *resource.Controller) *ShardedLRUBlockCache {
	shardCapacity := max(capacity/numShards, 1)

	s := &ShardedLRUBlockCache{seed: maphash.MakeSeed()}
	for i := range numShards {
		s.shards[i] = NewLRUBlockCache(shardCapacity, rc)
	}
	return s
}

func (s *ShardedLRUBlockCache) shard(key Key) *LRUBlockCache {
	var h maphash.Hash
	h.SetSeed(s.seed)
	_, _ = h.WriteString(key.Path)

	var block [8]byte
	binary.LittleEndian.PutUint64(block[:], key.Block)
	_, _ = h.Write(block[:])

	return s.shards[h.Sum64()%numShards]
}

// Get returns a cached block.
func (s *ShardedLRUBlockCache) Get(ctx context.Context, key Key) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

// Set caches a block.
func (s *ShardedLRUBlockCache) Set(ctx context.Context, key Key, b []byte) {
	s.shard(key).Set(ctx, key, b)
}

// InvalidatePath drops every block of path from all shards.
func (s *ShardedLRUBlockCache) InvalidatePath(path string) {
	for _, sh := range s.shards {
		sh.InvalidatePath(path)
	}
}

// Evict frees at least bytes across the shards, or empties the cache, and
// returns the bytes freed.
func (s *ShardedLRUBlockCache) Evict(bytes int64) int64 {
	var freed int64
	for _, sh := range s.shards {
		if freed >= bytes {
			break
		}
		freed += sh.Evict(bytes - freed)
	}
	return freed
}

// Stats returns hit and miss counts summed over the shards.
func (s *ShardedLRUBlockCache) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the cached bytes over all shards.
func (s *ShardedLRUBlockCache) Size() int64 {
	var total int64
	for _, sh := range s.shards {
		total += sh.Size()
	}
	return total
}
