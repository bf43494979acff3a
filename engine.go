package flatfilter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/flatfilter/blobstore"
	"github.com/hupe1980/flatfilter/codec"
	"github.com/hupe1980/flatfilter/filterdata"
	"github.com/hupe1980/flatfilter/format"
	"github.com/hupe1980/flatfilter/internal/cache"
	"github.com/hupe1980/flatfilter/internal/resource"
	"github.com/hupe1980/flatfilter/manifest"
)

// bytesSource names generations installed with LoadBytes.
const bytesSource = "<bytes>"

// Engine serves one filter generation at a time and swaps it atomically.
// All methods are safe for concurrent use.
type Engine struct {
	store    blobstore.BlobStore
	pointers *manifest.Store
	opts     options
	rc       *resource.Controller
	cache    cache.BlockCache

	current atomic.Pointer[generation]
	swapMu  sync.Mutex
	reloads singleflight.Group

	mu       sync.Mutex // guards watcher registration
	mappings mappingSet
	closed   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type generation struct {
	fdc      *filterdata.Context
	pointer  *manifest.Pointer
	source   string
	memory   int64 // bytes reserved with the resource controller
	loadedAt time.Time
	mapped   io.Closer
}

// Open creates an Engine on store and loads the generation named by
// CURRENT. A store without CURRENT is not an error: the Engine serves the
// empty generation until something is published. Any other load failure
// is returned.
//
// store may be nil; such an Engine only accepts LoadBytes.
func Open(ctx context.Context, store blobstore.BlobStore, optFns ...Option) (*Engine, error) {
	o := applyOptions(optFns)

	e := &Engine{
		opts: o,
		rc:   resource.NewController(o.resources),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.current.Store(&generation{fdc: filterdata.Empty()})

	if store == nil {
		return e, nil
	}
	e.pointers = manifest.NewStore(store, func(mo *manifest.Options) { mo.Codec = o.codec })
	if o.cacheSize > 0 {
		c := cache.NewShardedLRUBlockCache(o.cacheSize, e.rc)
		e.rc.SetReclaimer(c.Evict)
		e.cache = c
		store = blobstore.NewCachingStore(store, c, o.cacheBlockSize)
	}
	e.store = store

	if _, err := e.Reload(ctx); err != nil {
		if errors.Is(err, ErrNoCurrent) {
			o.logger.InfoContext(ctx, "no generation published yet, serving empty generation")
			return e, nil
		}
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// Current returns the generation being served. It is never nil.
func (e *Engine) Current() *filterdata.Context {
	return e.current.Load().fdc
}

// Pointer returns the CURRENT record of the generation being served, or
// nil if it was not loaded through Reload.
func (e *Engine) Pointer() *manifest.Pointer {
	p := e.current.Load().pointer
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Reload loads the generation named by CURRENT if it differs from the one
// being served. Concurrent calls share one load. changed reports whether a
// new generation was installed.
func (e *Engine) Reload(ctx context.Context) (changed bool, err error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	if e.store == nil {
		return false, ErrNoStore
	}
	v, err, _ := e.reloads.Do("reload", func() (any, error) {
		return e.reload(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (e *Engine) reload(ctx context.Context) (bool, error) {
	p, err := e.pointers.Load(ctx)
	if errors.Is(err, ErrNoCurrent) {
		return false, err
	}
	if err != nil {
		return false, e.reject(ctx, blobstore.CurrentName, StagePointer, err)
	}

	if cur := e.current.Load().pointer; cur != nil && cur.ID == p.ID && cur.Blob == p.Blob {
		return false, nil
	}
	if err := e.load(ctx, p.Blob, p); err != nil {
		return false, err
	}
	return true, nil
}

// Load loads the named blob from the store and makes it current. The
// CURRENT pointer is neither read nor changed.
func (e *Engine) Load(ctx context.Context, name string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.store == nil {
		return ErrNoStore
	}
	return e.load(ctx, name, nil)
}

// LoadBytes verifies b and makes it current. b may carry a compression
// envelope. The Engine keeps b; the caller must not modify it afterwards.
func (e *Engine) LoadBytes(ctx context.Context, b []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.rc.AcquireLoad(ctx); err != nil {
		return err
	}
	defer e.rc.ReleaseLoad()

	start := time.Now()
	gen, err := e.build(ctx, bytesSource, nil, b, true)
	e.finish(ctx, bytesSource, int64(len(b)), start, err)
	if err != nil {
		return err
	}
	if err := e.install(ctx, gen); err != nil {
		e.release(gen)
		return err
	}
	return nil
}

func (e *Engine) load(ctx context.Context, name string, p *manifest.Pointer) error {
	if err := e.rc.AcquireLoad(ctx); err != nil {
		return err
	}
	defer e.rc.ReleaseLoad()

	start := time.Now()
	gen, size, err := e.fetch(ctx, name, p)
	e.finish(ctx, name, size, start, err)
	if err != nil {
		return err
	}
	if err := e.install(ctx, gen); err != nil {
		e.release(gen)
		return err
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, name string, size int64, start time.Time, err error) {
	d := time.Since(start)
	e.opts.metricsCollector.RecordLoad(size, d, err)
	e.opts.logger.LogLoad(ctx, name, size, d, err)
}

// fetch reads a stored blob and builds its generation.
func (e *Engine) fetch(ctx context.Context, name string, p *manifest.Pointer) (*generation, int64, error) {
	b, err := e.store.Open(ctx, name)
	if err != nil {
		return nil, 0, e.reject(ctx, name, StageOpen, err)
	}
	size := b.Size()
	if limit := e.opts.maxBlobSize; limit > 0 && size > limit {
		_ = b.Close()
		return nil, size, e.reject(ctx, name, StageRead, fmt.Errorf("%w: %d > %d", ErrBlobTooLarge, size, limit))
	}

	if e.opts.zeroCopy {
		if m, ok := b.(blobstore.Mappable); ok {
			gen, err := e.fetchMapped(ctx, name, p, b, m)
			if err != nil {
				_ = b.Close()
			}
			return gen, size, err
		}
	}
	defer b.Close()

	if err := e.rc.AcquireMemory(size); err != nil {
		return nil, size, e.reject(ctx, name, StageRead, err)
	}
	data, err := e.read(ctx, b)
	if err != nil {
		e.rc.ReleaseMemory(size)
		return nil, size, e.reject(ctx, name, StageRead, err)
	}

	// A compressed blob is decoded into a new buffer that build accounts
	// for; the stored copy is garbage afterwards.
	c, enveloped := codec.EnvelopeCompression(data)
	compressed := enveloped && c != codec.CompressionNone

	gen, err := e.build(ctx, name, p, data, compressed)
	if err != nil || compressed {
		e.rc.ReleaseMemory(size)
	}
	if err != nil {
		return nil, size, err
	}
	if !compressed {
		gen.memory = size
	}
	return gen, size, nil
}

// fetchMapped builds a generation on the blob's own bytes. Compressed
// blobs are decompressed into memory and the mapping is dropped.
func (e *Engine) fetchMapped(ctx context.Context, name string, p *manifest.Pointer, b blobstore.Blob, m blobstore.Mappable) (*generation, error) {
	data, err := m.Bytes()
	if err != nil {
		return nil, e.reject(ctx, name, StageRead, err)
	}
	c, enveloped := codec.EnvelopeCompression(data)
	aliased := !enveloped || c == codec.CompressionNone

	gen, err := e.build(ctx, name, p, data, !aliased)
	if err != nil {
		return nil, err
	}
	if aliased {
		gen.mapped = b
	} else {
		_ = b.Close()
	}
	return gen, nil
}

func (e *Engine) read(ctx context.Context, b blobstore.Blob) ([]byte, error) {
	size := b.Size()
	rc, err := b.ReadRange(ctx, 0, size)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	buf := make([]byte, size)
	if _, err := io.ReadFull(resource.NewRateLimitedReader(ctx, rc, e.rc), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// build runs check, decompress and verify on stored bytes. account
// reserves memory for a decompressed copy.
func (e *Engine) build(ctx context.Context, name string, p *manifest.Pointer, data []byte, account bool) (*generation, error) {
	if p != nil {
		if err := p.Check(data); err != nil {
			return nil, e.reject(ctx, name, StageCheck, err)
		}
	}

	limit := uint64(0)
	if e.opts.maxBlobSize > 0 {
		limit = uint64(e.opts.maxBlobSize)
	}
	raw, err := codec.Decompress(data, limit)
	if err != nil {
		return nil, e.reject(ctx, name, StageDecompress, err)
	}

	var reserved int64
	if account {
		reserved = int64(len(raw))
		if err := e.rc.AcquireMemory(reserved); err != nil {
			return nil, e.reject(ctx, name, StageDecompress, err)
		}
	}

	mem, err := format.Verify(raw, e.opts.verifyOptions...)
	if err != nil {
		e.rc.ReleaseMemory(reserved)
		return nil, e.reject(ctx, name, StageVerify, err)
	}

	return &generation{
		fdc:      filterdata.New(mem, e.opts.contextOptions...),
		pointer:  p,
		source:   name,
		memory:   reserved,
		loadedAt: time.Now(),
	}, nil
}

// install makes gen current. The previous generation's memory reservation
// is returned. A mapped generation stays mapped while its Context is
// reachable.
func (e *Engine) install(ctx context.Context, gen *generation) error {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}

	old := e.current.Load()
	if e.opts.monotonic && old.fdc != filterdata.Empty() && gen.fdc.Generation() < old.fdc.Generation() {
		err := fmt.Errorf("%w: %d < %d", ErrStaleGeneration, gen.fdc.Generation(), old.fdc.Generation())
		return e.reject(ctx, gen.source, StageGeneration, err)
	}

	if gen.mapped != nil {
		e.mappings.track(gen.fdc, gen.mapped)
	}
	e.current.Store(gen)
	e.rc.ReleaseMemory(old.memory)

	e.opts.metricsCollector.RecordSwap(gen.fdc.Generation(), gen.fdc.NumFilters())
	e.opts.logger.LogSwap(ctx, old.fdc.Generation(), gen.fdc.Generation(), gen.fdc.ListName(), gen.fdc.NumFilters())
	return nil
}

// release undoes the reservations of a generation that was never
// installed.
func (e *Engine) release(gen *generation) {
	e.rc.ReleaseMemory(gen.memory)
	if gen.mapped != nil {
		_ = gen.mapped.Close()
	}
}

func (e *Engine) reject(ctx context.Context, name, stage string, err error) error {
	e.opts.metricsCollector.RecordReject(stage)
	e.opts.logger.LogReject(ctx, name, stage, err)
	return &LoadError{Blob: name, Stage: stage, cause: err}
}

// Watch reloads CURRENT every interval until ctx is done or the Engine is
// closed. Failed reloads are logged; the current generation keeps serving.
func (e *Engine) Watch(ctx context.Context, interval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() || e.store == nil || interval <= 0 {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				changed, err := e.Reload(ctx)
				switch {
				case errors.Is(err, ErrNoCurrent):
				case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
					return
				case err != nil:
					e.opts.logger.WarnContext(ctx, "reload failed", "error", err)
				case changed:
					e.opts.logger.DebugContext(ctx, "reload picked up new generation")
				}
			}
		}
	}()
}

// Stats describes the generation being served.
type Stats struct {
	Source      string
	ListName    string
	Generation  uint64
	NumFilters  int
	NumDomains  int
	Size        int
	LoadedAt    time.Time
	MemoryUsage int64
	Mappings    int // zero-copy blobs still mapped
	CacheHits   int64
	CacheMisses int64
}

// Stats returns a snapshot of the serving state.
func (e *Engine) Stats() Stats {
	gen := e.current.Load()
	s := Stats{
		Source:      gen.source,
		ListName:    gen.fdc.ListName(),
		Generation:  gen.fdc.Generation(),
		NumFilters:  gen.fdc.NumFilters(),
		NumDomains:  gen.fdc.Domains().Len(),
		Size:        gen.fdc.Memory().Size(),
		LoadedAt:    gen.loadedAt,
		MemoryUsage: e.rc.MemoryUsage(),
		Mappings:    e.mappings.len(),
	}
	if e.cache != nil {
		s.CacheHits, s.CacheMisses = e.cache.Stats()
	}
	return s
}
