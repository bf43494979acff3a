package format

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/hupe1980/flatfilter/container"
)

var le = binary.LittleEndian

// table is a view of a verified table.
type table struct {
	buf []byte
	pos int
}

// field returns the absolute position of a field, or 0 when it is absent.
func (t table) field(slot int) int {
	vt := t.pos - int(int32(le.Uint32(t.buf[t.pos:])))
	vtSize := int(le.Uint16(t.buf[vt:]))
	o := vtableHead + 2*slot
	if o+2 > vtSize {
		return 0
	}
	off := int(le.Uint16(t.buf[vt+o:]))
	if off == 0 {
		return 0
	}
	return t.pos + off
}

// ref follows a reference field.
func (t table) ref(slot int) (int, bool) {
	p := t.field(slot)
	if p == 0 {
		return 0, false
	}
	return p + int(int32(le.Uint32(t.buf[p:]))), true
}

func (t table) u32(slot int, def uint32) uint32 {
	p := t.field(slot)
	if p == 0 {
		return def
	}
	return le.Uint32(t.buf[p:])
}

func (t table) u64(slot int, def uint64) uint64 {
	p := t.field(slot)
	if p == 0 {
		return def
	}
	return le.Uint64(t.buf[p:])
}

func (t table) str(slot int) string {
	p, ok := t.ref(slot)
	if !ok {
		return ""
	}
	n := int(le.Uint32(t.buf[p:]))
	return string(t.buf[p+lenSize : p+lenSize+n])
}

func (t table) u64Vector(slot int) U64Vector {
	p, ok := t.ref(slot)
	if !ok {
		return U64Vector{}
	}
	return U64Vector{buf: t.buf, pos: p + lenSize, n: int(le.Uint32(t.buf[p:]))}
}

func (t table) u32Vector(slot int) U32Vector {
	p, ok := t.ref(slot)
	if !ok {
		return U32Vector{}
	}
	return U32Vector{buf: t.buf, pos: p + lenSize, n: int(le.Uint32(t.buf[p:]))}
}

func outOfRange(i, n int) string {
	return fmt.Sprintf("format: index %d out of range [0, %d)", i, n)
}

// U64Vector is a lazily decoded vector of uint64 values.
type U64Vector struct {
	buf []byte
	pos int
	n   int
}

var _ container.Sorted[uint64] = U64Vector{}

// Len returns the number of elements.
func (v U64Vector) Len() int { return v.n }

// Get decodes the element at position i. It panics if i is out of range.
func (v U64Vector) Get(i int) uint64 {
	if uint(i) >= uint(v.n) {
		panic(outOfRange(i, v.n))
	}
	return le.Uint64(v.buf[v.pos+8*i:])
}

// PartitionPoint returns the first position for which pred is false. The
// vector must be sorted with respect to pred.
func (v U64Vector) PartitionPoint(pred func(uint64) bool) int {
	container.AssertSorted[uint64](v)
	return container.PartitionPoint[uint64](v, pred)
}

// All iterates positions and values in order.
func (v U64Vector) All() iter.Seq2[int, uint64] {
	return func(yield func(int, uint64) bool) {
		for i := 0; i < v.n; i++ {
			if !yield(i, le.Uint64(v.buf[v.pos+8*i:])) {
				return
			}
		}
	}
}

// AppendTo appends all elements to dst.
func (v U64Vector) AppendTo(dst []uint64) []uint64 {
	for _, x := range v.All() {
		dst = append(dst, x)
	}
	return dst
}

// U32Vector is a lazily decoded vector of uint32 values.
type U32Vector struct {
	buf []byte
	pos int
	n   int
}

var _ container.Sorted[uint32] = U32Vector{}

// Len returns the number of elements.
func (v U32Vector) Len() int { return v.n }

// Get decodes the element at position i. It panics if i is out of range.
func (v U32Vector) Get(i int) uint32 {
	if uint(i) >= uint(v.n) {
		panic(outOfRange(i, v.n))
	}
	return le.Uint32(v.buf[v.pos+4*i:])
}

// PartitionPoint returns the first position for which pred is false.
func (v U32Vector) PartitionPoint(pred func(uint32) bool) int {
	container.AssertSorted[uint32](v)
	return container.PartitionPoint[uint32](v, pred)
}

// All iterates positions and values in order.
func (v U32Vector) All() iter.Seq2[int, uint32] {
	return func(yield func(int, uint32) bool) {
		for i := 0; i < v.n; i++ {
			if !yield(i, le.Uint32(v.buf[v.pos+4*i:])) {
				return
			}
		}
	}
}

// AppendTo appends all elements to dst.
func (v U32Vector) AppendTo(dst []uint32) []uint32 {
	for _, x := range v.All() {
		dst = append(dst, x)
	}
	return dst
}

// FilterVector is a lazily decoded vector of NetworkFilter tables.
type FilterVector struct {
	buf []byte
	pos int
	n   int
}

var _ container.Indexed[NetworkFilter] = FilterVector{}

// Len returns the number of filters.
func (v FilterVector) Len() int { return v.n }

// Get returns the filter at position i. It panics if i is out of range.
func (v FilterVector) Get(i int) NetworkFilter {
	if uint(i) >= uint(v.n) {
		panic(outOfRange(i, v.n))
	}
	p := v.pos + refSize*i
	return NetworkFilter{table{buf: v.buf, pos: p + int(int32(le.Uint32(v.buf[p:])))}}
}

// All iterates positions and filters in order.
func (v FilterVector) All() iter.Seq2[int, NetworkFilter] {
	return func(yield func(int, NetworkFilter) bool) {
		for i := 0; i < v.n; i++ {
			if !yield(i, v.Get(i)) {
				return
			}
		}
	}
}

// FilterData is the root table of a compiled filter blob.
type FilterData struct {
	t table
}

// UniqueDomainsHashes returns the hashes of every domain referenced by a
// filter. Filters refer to domains by their position in this vector.
func (f FilterData) UniqueDomainsHashes() U64Vector { return f.t.u64Vector(slotUniqueDomainsHashes) }

// NetworkFilters returns the filter records.
func (f FilterData) NetworkFilters() FilterVector {
	p, ok := f.t.ref(slotNetworkFilters)
	if !ok {
		return FilterVector{}
	}
	return FilterVector{buf: f.t.buf, pos: p + lenSize, n: int(le.Uint32(f.t.buf[p:]))}
}

// FilterMapIndex returns the sorted token hashes of the filter multimap.
func (f FilterData) FilterMapIndex() U64Vector { return f.t.u64Vector(slotFilterMapIndex) }

// FilterMapValues returns the filter positions of the filter multimap,
// parallel to FilterMapIndex.
func (f FilterData) FilterMapValues() U32Vector { return f.t.u32Vector(slotFilterMapValues) }

// ListName returns the name of the source filter list, if recorded.
func (f FilterData) ListName() string { return f.t.str(slotListName) }

// Generation returns the compiler-assigned generation number.
func (f FilterData) Generation() uint64 { return f.t.u64(slotGeneration, 0) }

// NetworkFilter is a compiled network rule.
type NetworkFilter struct {
	t table
}

// Mask returns the option bit mask.
func (f NetworkFilter) Mask() uint32 { return f.t.u32(slotMask, 0) }

// OptDomains returns the sorted positions (into UniqueDomainsHashes) of the
// domains the filter is restricted to.
func (f NetworkFilter) OptDomains() U32Vector { return f.t.u32Vector(slotOptDomains) }

// OptNotDomains returns the sorted positions of the excluded domains.
func (f NetworkFilter) OptNotDomains() U32Vector { return f.t.u32Vector(slotOptNotDomains) }

// Pattern returns the URL pattern.
func (f NetworkFilter) Pattern() string { return f.t.str(slotPattern) }

// Hostname returns the anchored hostname, if any.
func (f NetworkFilter) Hostname() string { return f.t.str(slotHostname) }

// ID returns the filter id.
func (f NetworkFilter) ID() uint64 { return f.t.u64(slotID, 0) }

// RawLine returns the source line, when the list was compiled in debug mode.
func (f NetworkFilter) RawLine() string { return f.t.str(slotRawLine) }
