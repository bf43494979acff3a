// Package resource governs what loading filter generations may consume.
//
//   - Memory: bytes pinned by heap-copied generations and block caches
//     (non-blocking, fail-fast)
//   - Loads: how many generations may be fetched and verified at once
//   - IO: a token bucket on the bytes read from blob stores
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   512 << 20,
//	    MaxConcurrentLoads: 2,
//	    IOLimitBytesPerSec: 64 << 20,
//	})
//
//	if err := rc.AcquireLoad(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseLoad()
//
//	r := resource.NewRateLimitedReader(ctx, body, rc)
//
// All methods are safe for concurrent use, and a nil *Controller is valid:
// every method becomes a no-op.
package resource
