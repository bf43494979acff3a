package cache

import "context"

// Key identifies one block of one blob.
type Key struct {
	// Path is the blob name inside its store.
	Path string
	// Block is the block index (byte offset / block size).
	Block uint64
}

// BlockCache is a byte-oriented cache for immutable blob blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. Implementations retain b; callers must not modify it.
	Set(ctx context.Context, key Key, b []byte)
	// InvalidatePath drops every block of a blob.
	InvalidatePath(path string)
	// Stats returns hit and miss counts.
	Stats() (hits, misses int64)
}
