package flatfilter

import (
	"log/slog"

	"github.com/hupe1980/flatfilter/codec"
	"github.com/hupe1980/flatfilter/filterdata"
	"github.com/hupe1980/flatfilter/format"
	"github.com/hupe1980/flatfilter/internal/resource"
)

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	verifyOptions    []format.VerifyOption
	contextOptions   []func(*filterdata.Options)
	resources        resource.Config
	zeroCopy         bool
	maxBlobSize      int64
	cacheSize        int64
	cacheBlockSize   int64
	monotonic        bool
}

// Option configures Open.
type Option func(*options)

// WithCodec configures the codec used to decode CURRENT pointer records.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for loads and swaps.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &flatfilter.BasicMetricsCollector{}
//	eng, _ := flatfilter.Open(ctx, store, flatfilter.WithMetricsCollector(metrics))
//	stats := metrics.GetStats()
//	fmt.Printf("Loads: %d, generation: %d\n", stats.LoadCount, stats.Generation)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithVerifyOptions passes options to format.Verify for every load, for
// example format.WithVersionRange during a layout migration.
func WithVerifyOptions(opts ...format.VerifyOption) Option {
	return func(o *options) {
		o.verifyOptions = append(o.verifyOptions, opts...)
	}
}

// WithTokenFalsePositiveRate sets the false positive rate of the token
// bloom filter built for each generation. 0 disables the filter.
func WithTokenFalsePositiveRate(rate float64) Option {
	return func(o *options) {
		o.contextOptions = append(o.contextOptions, func(fo *filterdata.Options) {
			fo.TokenFalsePositiveRate = rate
		})
	}
}

// WithMemoryLimit caps the bytes held by copied generations and the block
// cache. A load that does not fit is rejected. During a swap the old and
// the new generation are both held, so the limit must fit two.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.resources.MemoryLimitBytes = bytes
	}
}

// WithMaxConcurrentLoads bounds loads running at the same time. Default: 1.
func WithMaxConcurrentLoads(n int64) Option {
	return func(o *options) {
		o.resources.MaxConcurrentLoads = n
	}
}

// WithIOLimit throttles blob reads to bytesPerSec.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.resources.IOLimitBytesPerSec = bytesPerSec
	}
}

// WithZeroCopy serves uncompressed blobs straight from stores that can
// expose their bytes (LocalStore maps the file). A blob is unmapped once
// the Context built on it is unreachable, or on Close. Views read from a
// Context are only valid while the Context itself is reachable, and no
// Context obtained from the Engine may be used after Close.
func WithZeroCopy() Option {
	return func(o *options) {
		o.zeroCopy = true
	}
}

// WithMaxBlobSize rejects stored or decompressed blobs larger than bytes.
// Without it, decompressed blobs are capped at codec.DefaultMaxSize.
func WithMaxBlobSize(bytes int64) Option {
	return func(o *options) {
		o.maxBlobSize = bytes
	}
}

// WithBlockCache caches blob blocks of blockSize bytes (0 selects
// blobstore.DefaultBlockSize) in memory, up to sizeBytes in total. Useful
// in front of remote stores when several engines share a process.
func WithBlockCache(sizeBytes, blockSize int64) Option {
	return func(o *options) {
		o.cacheSize = sizeBytes
		o.cacheBlockSize = blockSize
	}
}

// WithMonotonicGenerations rejects blobs whose generation is lower than
// the generation being served.
func WithMonotonicGenerations() Option {
	return func(o *options) {
		o.monotonic = true
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
