package filterdata

import (
	"encoding/binary"
	"iter"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/hupe1980/flatfilter/container"
	"github.com/hupe1980/flatfilter/format"
	"github.com/hupe1980/flatfilter/internal/conv"
)

// DefaultTokenFalsePositiveRate is the target false-positive rate of the
// token pre-filter.
const DefaultTokenFalsePositiveRate = 0.01

// Options configures New.
type Options struct {
	// TokenFalsePositiveRate is the target false-positive rate of the bloom
	// filter built over the filter map keys. Zero or negative disables the
	// pre-filter.
	TokenFalsePositiveRate float64
}

// Context is a loaded filter generation.
type Context struct {
	mem     *format.VerifiedMemory
	root    format.FilterData
	domains DomainIndex
	filters FilterMap
	tokens  *bloom.BloomFilter
}

// New indexes verified memory. It cannot fail: every structural property it
// relies on was established by format.Verify.
//
// When a domain hash occurs more than once, the first position wins.
func New(mem *format.VerifiedMemory, optFns ...func(o *Options)) *Context {
	opts := Options{TokenFalsePositiveRate: DefaultTokenFalsePositiveRate}
	for _, fn := range optFns {
		fn(&opts)
	}

	root := mem.Root()
	hashes := root.UniqueDomainsHashes()

	positions := make(map[uint64]uint32, hashes.Len())
	for i, h := range hashes.All() {
		if _, ok := positions[h]; !ok {
			positions[h] = conv.MustUint32(i)
		}
	}

	fdc := &Context{
		mem:     mem,
		root:    root,
		domains: DomainIndex{positions: positions},
		filters: FilterMap{
			keys:    root.FilterMapIndex(),
			values:  root.FilterMapValues(),
			filters: root.NetworkFilters(),
		},
	}
	if opts.TokenFalsePositiveRate > 0 {
		fdc.tokens = buildTokenFilter(fdc.filters.keys, opts.TokenFalsePositiveRate)
	}
	return fdc
}

func buildTokenFilter(keys format.U64Vector, fpRate float64) *bloom.BloomFilter {
	n := uint(max(keys.Len(), 1))
	bf := bloom.NewWithEstimates(n, fpRate)

	var key [8]byte
	for i, k := range keys.All() {
		if i > 0 && keys.Get(i-1) == k {
			continue
		}
		binary.LittleEndian.PutUint64(key[:], k)
		bf.Add(key[:])
	}
	return bf
}

// Memory returns the verified memory the context was built from.
func (c *Context) Memory() *format.VerifiedMemory { return c.mem }

// Root returns the FilterData root of the blob.
func (c *Context) Root() format.FilterData { return c.root }

// Domains returns the domain hash index.
func (c *Context) Domains() DomainIndex { return c.domains }

// FilterMap returns the token multimap.
func (c *Context) FilterMap() FilterMap { return c.filters }

// Generation returns the generation number recorded by the compiler.
func (c *Context) Generation() uint64 { return c.root.Generation() }

// ListName returns the name of the compiled list.
func (c *Context) ListName() string { return c.root.ListName() }

// NumFilters returns the number of network filters in the blob.
func (c *Context) NumFilters() int { return c.filters.filters.Len() }

// MayContainToken reports whether token may be a key of the filter map.
// False is definite; true may be a false positive.
func (c *Context) MayContainToken(token uint64) bool {
	if c.tokens == nil {
		return true
	}
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], token)
	return c.tokens.Test(key[:])
}

// Candidates adds the positions of every filter indexed under one of tokens
// to dst and returns it. A nil dst allocates a new bitmap.
func (c *Context) Candidates(tokens []uint64, dst *roaring.Bitmap) *roaring.Bitmap {
	if dst == nil {
		dst = roaring.New()
	}
	for _, tok := range tokens {
		if !c.MayContainToken(tok) {
			continue
		}
		lo, hi := c.filters.Range(tok)
		for i := lo; i < hi; i++ {
			dst.Add(c.filters.values.Get(i))
		}
	}
	return dst
}

// DomainsMatch reports whether filter applies to a request whose hostname
// hashes (see domainhash.HostnameHashes) are given. A filter with include
// domains needs at least one of them among the hashes; a filter with
// exclude domains must have none of them.
func (c *Context) DomainsMatch(filter format.NetworkFilter, hostnameHashes []uint64) bool {
	if include := filter.OptDomains(); include.Len() > 0 {
		if !c.anyIn(include, hostnameHashes) {
			return false
		}
	}
	if exclude := filter.OptNotDomains(); exclude.Len() > 0 {
		if c.anyIn(exclude, hostnameHashes) {
			return false
		}
	}
	return true
}

func (c *Context) anyIn(positions format.U32Vector, hashes []uint64) bool {
	for _, h := range hashes {
		pos, ok := c.domains.Position(h)
		if ok && container.Contains[uint32](positions, pos) {
			return true
		}
	}
	return false
}

var empty = sync.OnceValue(func() *Context {
	b := format.NewBuilder(64)
	root := b.CreateFilterData(format.FilterDataFields{
		UniqueDomainsHashes: b.CreateU64Vector(nil),
	})
	mem, err := format.Verify(b.Finish(root))
	if err != nil {
		panic("filterdata: empty generation does not verify: " + err.Error())
	}
	return New(mem)
})

// Empty returns the shared context of a generation without domains or
// filters.
func Empty() *Context { return empty() }

// DomainIndex maps a domain hash to its position in unique_domains_hashes.
type DomainIndex struct {
	positions map[uint64]uint32
}

// Position returns the position of hash.
func (d DomainIndex) Position(hash uint64) (uint32, bool) {
	pos, ok := d.positions[hash]
	return pos, ok
}

// Len returns the number of distinct hashes.
func (d DomainIndex) Len() int { return len(d.positions) }

// All iterates hashes and positions in unspecified order.
func (d DomainIndex) All() iter.Seq2[uint64, uint32] {
	return func(yield func(uint64, uint32) bool) {
		for h, pos := range d.positions {
			if !yield(h, pos) {
				return
			}
		}
	}
}

// FilterMap is the token multimap: filter_map_index holds sorted token
// hashes and filter_map_values the filter position stored under each.
type FilterMap struct {
	keys    format.U64Vector
	values  format.U32Vector
	filters format.FilterVector
}

// Len returns the number of entries.
func (m FilterMap) Len() int { return m.keys.Len() }

// Range returns the half-open range of entries stored under token.
func (m FilterMap) Range(token uint64) (lo, hi int) {
	return container.EqualRange[uint64](m.keys, token)
}

// Get iterates the positions and filters stored under token.
func (m FilterMap) Get(token uint64) iter.Seq2[int, format.NetworkFilter] {
	return func(yield func(int, format.NetworkFilter) bool) {
		lo, hi := m.Range(token)
		for i := lo; i < hi; i++ {
			pos := int(m.values.Get(i))
			if !yield(pos, m.filters.Get(pos)) {
				return
			}
		}
	}
}
