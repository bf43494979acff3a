package format

import (
	"fmt"
	"slices"

	"github.com/hupe1980/flatfilter/internal/conv"
	"github.com/hupe1980/flatfilter/internal/hash"
)

// Ref is the absolute position of an object written by a Builder. The zero
// Ref means "absent".
type Ref int

type pendingField struct {
	slot   int
	width  int
	scalar uint64
	ref    Ref
	isRef  bool
}

// Builder writes blobs front to back: children are created before the
// tables that reference them. Misuse (nesting, duplicate slots, oversized
// inputs) panics.
type Builder struct {
	buf     []byte
	fields  []pendingField
	inTable bool
}

// NewBuilder returns a Builder with the given initial capacity.
func NewBuilder(capacity int) *Builder {
	if capacity < HeaderSize {
		capacity = 1024
	}
	return &Builder{buf: make([]byte, HeaderSize, capacity)}
}

// Len returns the number of bytes written so far, header included.
func (b *Builder) Len() int { return len(b.buf) }

func (b *Builder) pad(align int) {
	for len(b.buf)%align != 0 {
		b.buf = append(b.buf, 0)
	}
}

func (b *Builder) notNested() {
	if b.inTable {
		panic("format: object created while a table is open")
	}
}

// CreateU64Vector writes a vector of uint64 with 8-byte aligned elements.
func (b *Builder) CreateU64Vector(v []uint64) Ref {
	b.notNested()
	b.pad(4)
	if (len(b.buf)+lenSize)%8 != 0 {
		b.buf = append(b.buf, 0, 0, 0, 0)
	}
	pos := len(b.buf)
	b.buf = le.AppendUint32(b.buf, conv.MustUint32(len(v)))
	for _, x := range v {
		b.buf = le.AppendUint64(b.buf, x)
	}
	return Ref(pos)
}

// CreateU32Vector writes a vector of uint32.
func (b *Builder) CreateU32Vector(v []uint32) Ref {
	b.notNested()
	b.pad(4)
	pos := len(b.buf)
	b.buf = le.AppendUint32(b.buf, conv.MustUint32(len(v)))
	for _, x := range v {
		b.buf = le.AppendUint32(b.buf, x)
	}
	return Ref(pos)
}

// CreateString writes a length-prefixed, NUL-terminated string.
func (b *Builder) CreateString(s string) Ref {
	b.notNested()
	b.pad(4)
	pos := len(b.buf)
	b.buf = le.AppendUint32(b.buf, conv.MustUint32(len(s)))
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	return Ref(pos)
}

// CreateTableVector writes a vector of references to previously created tables.
func (b *Builder) CreateTableVector(refs []Ref) Ref {
	b.notNested()
	b.pad(4)
	pos := len(b.buf)
	b.buf = le.AppendUint32(b.buf, conv.MustUint32(len(refs)))
	for _, r := range refs {
		b.buf = le.AppendUint32(b.buf, relative(r, len(b.buf)))
	}
	return Ref(pos)
}

// relative encodes the int32 distance from at to r.
func relative(r Ref, at int) uint32 {
	rel, err := conv.IntToInt32(int(r) - at)
	if err != nil {
		panic(err)
	}
	return uint32(rel)
}

// StartTable opens a table. Fields are added with AddU32, AddU64 and AddRef.
func (b *Builder) StartTable() {
	b.notNested()
	b.inTable = true
	b.fields = b.fields[:0]
}

func (b *Builder) add(f pendingField) {
	if !b.inTable {
		panic("format: field added outside a table")
	}
	for _, g := range b.fields {
		if g.slot == f.slot {
			panic(fmt.Sprintf("format: slot %d added twice", f.slot))
		}
	}
	b.fields = append(b.fields, f)
}

// AddU32 sets a 4-byte scalar field.
func (b *Builder) AddU32(slot int, v uint32) {
	b.add(pendingField{slot: slot, width: 4, scalar: uint64(v)})
}

// AddU64 sets an 8-byte scalar field.
func (b *Builder) AddU64(slot int, v uint64) {
	b.add(pendingField{slot: slot, width: 8, scalar: v})
}

// AddRef sets a reference field. A zero Ref is ignored.
func (b *Builder) AddRef(slot int, r Ref) {
	if r == 0 {
		return
	}
	b.add(pendingField{slot: slot, width: refSize, ref: r, isRef: true})
}

// EndTable writes the vtable followed by the table and returns the table.
func (b *Builder) EndTable() Ref {
	if !b.inTable {
		panic("format: EndTable without StartTable")
	}
	b.inTable = false

	slices.SortFunc(b.fields, func(x, y pendingField) int { return x.slot - y.slot })

	numSlots := 0
	if n := len(b.fields); n > 0 {
		numSlots = b.fields[n-1].slot + 1
	}
	offsets := make([]int, numSlots)
	size := refSize
	for _, f := range b.fields {
		if f.width == 8 && size%8 != 0 {
			size += 8 - size%8
		}
		offsets[f.slot] = size
		size += f.width
	}

	b.pad(2)
	vt := len(b.buf)
	b.buf = le.AppendUint16(b.buf, mustUint16(vtableHead+2*numSlots))
	b.buf = le.AppendUint16(b.buf, mustUint16(size))
	for _, off := range offsets {
		b.buf = le.AppendUint16(b.buf, mustUint16(off))
	}

	b.pad(8)
	t := len(b.buf)
	b.buf = le.AppendUint32(b.buf, uint32(int32(t-vt)))
	b.buf = append(b.buf, make([]byte, size-refSize)...)
	for _, f := range b.fields {
		p := t + offsets[f.slot]
		switch {
		case f.isRef:
			le.PutUint32(b.buf[p:], relative(f.ref, p))
		case f.width == 4:
			le.PutUint32(b.buf[p:], uint32(f.scalar))
		default:
			le.PutUint64(b.buf[p:], f.scalar)
		}
	}
	return Ref(t)
}

func mustUint16(v int) uint16 {
	u, err := conv.IntToUint16(v)
	if err != nil {
		panic(err)
	}
	return u
}

// FilterDataFields are the fields of a FilterData root table.
type FilterDataFields struct {
	UniqueDomainsHashes Ref
	NetworkFilters      Ref
	FilterMapIndex      Ref
	FilterMapValues     Ref
	ListName            Ref
	Generation          uint64
}

// CreateFilterData writes a FilterData table.
func (b *Builder) CreateFilterData(f FilterDataFields) Ref {
	b.StartTable()
	b.AddRef(slotUniqueDomainsHashes, f.UniqueDomainsHashes)
	b.AddRef(slotNetworkFilters, f.NetworkFilters)
	b.AddRef(slotFilterMapIndex, f.FilterMapIndex)
	b.AddRef(slotFilterMapValues, f.FilterMapValues)
	b.AddRef(slotListName, f.ListName)
	if f.Generation != 0 {
		b.AddU64(slotGeneration, f.Generation)
	}
	return b.EndTable()
}

// NetworkFilterFields are the fields of a NetworkFilter table.
type NetworkFilterFields struct {
	Mask          uint32
	OptDomains    Ref
	OptNotDomains Ref
	Pattern       Ref
	Hostname      Ref
	ID            uint64
	RawLine       Ref
}

// CreateNetworkFilter writes a NetworkFilter table. Zero scalars are omitted
// and read back as their defaults.
func (b *Builder) CreateNetworkFilter(f NetworkFilterFields) Ref {
	b.StartTable()
	if f.Mask != 0 {
		b.AddU32(slotMask, f.Mask)
	}
	b.AddRef(slotOptDomains, f.OptDomains)
	b.AddRef(slotOptNotDomains, f.OptNotDomains)
	b.AddRef(slotPattern, f.Pattern)
	b.AddRef(slotHostname, f.Hostname)
	if f.ID != 0 {
		b.AddU64(slotID, f.ID)
	}
	b.AddRef(slotRawLine, f.RawLine)
	return b.EndTable()
}

// Finish writes the header for root and returns the blob. The Builder must
// not be used afterwards.
func (b *Builder) Finish(root Ref) []byte {
	return b.FinishVersion(root, Version)
}

// FinishVersion is Finish with an explicit layout version.
func (b *Builder) FinishVersion(root Ref, version uint32) []byte {
	b.notNested()
	le.PutUint32(b.buf[offMagic:], Magic)
	le.PutUint32(b.buf[offVersion:], version)
	le.PutUint32(b.buf[offRoot:], conv.MustUint32(int(root)))
	le.PutUint32(b.buf[offChecksum:], hash.CRC32C(b.buf[HeaderSize:]))
	out := b.buf
	b.buf = nil
	return out
}
